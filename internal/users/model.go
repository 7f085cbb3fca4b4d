package users

import (
	"strings"
	"time"
)

// AccountStatus enumerates the lifecycle of a user account.
type AccountStatus string

const (
	// AccountStatusActive marks a normal account.
	AccountStatusActive AccountStatus = "active"
	// AccountStatusInactive marks a dormant account.
	AccountStatusInactive AccountStatus = "inactive"
	// AccountStatusSuspended marks an account disabled by administrative action.
	AccountStatusSuspended AccountStatus = "suspended"
)

// FriendshipStatus enumerates the state of a directed friendship request.
type FriendshipStatus string

const (
	// FriendshipStatusPending marks a request awaiting a response.
	FriendshipStatusPending FriendshipStatus = "pending"
	// FriendshipStatusAccepted marks an accepted request.
	FriendshipStatusAccepted FriendshipStatus = "accepted"
	// FriendshipStatusDeclined marks a declined request.
	FriendshipStatusDeclined FriendshipStatus = "declined"
)

// User is the identity record created by the social-login provider on first login.
type User struct {
	ID            string        `gorm:"column:id;primaryKey;size:190;not null"`
	Name          string        `gorm:"column:name;size:320;not null"`
	Email         string        `gorm:"column:email;size:320;not null;uniqueIndex"`
	EmailVerified bool          `gorm:"column:email_verified;not null;default:false"`
	Image         string        `gorm:"column:image;size:512"`
	Username      string        `gorm:"column:username;size:190;not null;uniqueIndex"`
	Bio           string        `gorm:"column:bio;type:text"`
	Karma         int64         `gorm:"column:karma;not null;default:0"`
	XP            int64         `gorm:"column:xp;not null;default:0"`
	Level         int64         `gorm:"column:level;not null;default:1"`
	AccountStatus AccountStatus `gorm:"column:account_status;size:32;not null;default:'active'"`
	CreatedAt     time.Time     `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time     `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// Friendship is a directed relation between two users. The schema is carried
// for referential completeness; no operation in this module exposes it.
type Friendship struct {
	ID        string           `gorm:"column:id;primaryKey;size:190;not null"`
	UserID    string           `gorm:"column:user_id;size:190;not null;index;constraint:OnDelete:CASCADE"`
	FriendID  string           `gorm:"column:friend_id;size:190;not null;index;constraint:OnDelete:CASCADE"`
	Status    FriendshipStatus `gorm:"column:status;size:32;not null;default:'pending'"`
	CreatedAt time.Time        `gorm:"column:created_at;not null"`
	UpdatedAt time.Time        `gorm:"column:updated_at;not null"`
}

// TableName exposes the table backing friendships.
func (Friendship) TableName() string {
	return "friendships"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
