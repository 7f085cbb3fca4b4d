package vaults

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LifecycleState enumerates the soft-delete lifecycle shared by vaults and chits.
type LifecycleState string

const (
	// StateActive marks an entity as live and visible.
	StateActive LifecycleState = "active"
	// StateArchived marks an entity as retained but hidden from default views.
	StateArchived LifecycleState = "archived"
	// StateFlagged marks an entity held for moderation.
	StateFlagged LifecycleState = "flagged"
	// StateDeleted marks an entity as soft-deleted.
	StateDeleted LifecycleState = "deleted"
	// StateSuspended marks an entity disabled by administrative action.
	StateSuspended LifecycleState = "suspended"
)

const (
	maxVaultNameLength        = 100
	maxVaultDescriptionLength = 500
	defaultVaultName          = "Personal Vault"
)

var (
	// ErrInvalidVaultName indicates an empty or oversized vault name.
	ErrInvalidVaultName = errors.New("vaults: invalid vault name")
	// ErrInvalidVaultDescription indicates an oversized vault description.
	ErrInvalidVaultDescription = errors.New("vaults: invalid vault description")
	// ErrEmptyChitContent indicates chit content that is empty after trimming.
	ErrEmptyChitContent = errors.New("vaults: chit content must not be empty")
)

// Vault is a named container of chits owned by exactly one user.
type Vault struct {
	ID          string         `gorm:"column:id;primaryKey;size:190;not null"`
	UserID      string         `gorm:"column:user_id;size:190;not null;index:idx_vaults_user_state,priority:1"`
	Name        string         `gorm:"column:name;size:100;not null"`
	Description string         `gorm:"column:description;size:500"`
	IsPublic    bool           `gorm:"column:is_public;not null;default:false"`
	IsDefault   bool           `gorm:"column:is_default;not null;default:false"`
	State       LifecycleState `gorm:"column:state;size:32;not null;default:'active';index:idx_vaults_user_state,priority:2"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vault) TableName() string {
	return "vaults"
}

// Chit is a single freeform text note filed into exactly one vault.
type Chit struct {
	ID        string         `gorm:"column:id;primaryKey;size:190;not null"`
	UserID    string         `gorm:"column:user_id;size:190;not null;index:idx_chits_user_state,priority:1"`
	VaultID   string         `gorm:"column:vault_id;size:190;not null;index"`
	Content   string         `gorm:"column:content;type:text;not null"`
	State     LifecycleState `gorm:"column:state;size:32;not null;default:'active';index:idx_chits_user_state,priority:2"`
	CreatedAt time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Chit) TableName() string {
	return "chits"
}

// VaultInput carries caller-supplied vault attributes for create and update.
type VaultInput struct {
	Name        string
	Description string
	IsPublic    bool
}

func (in VaultInput) validate() (VaultInput, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return VaultInput{}, fmt.Errorf("%w: empty", ErrInvalidVaultName)
	}
	if len(name) > maxVaultNameLength {
		return VaultInput{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidVaultName, maxVaultNameLength)
	}
	if len(in.Description) > maxVaultDescriptionLength {
		return VaultInput{}, fmt.Errorf("%w: exceeds %d characters", ErrInvalidVaultDescription, maxVaultDescriptionLength)
	}
	return VaultInput{Name: name, Description: in.Description, IsPublic: in.IsPublic}, nil
}

// VaultSummary is the projection returned by list operations.
type VaultSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// VaultWithCount is the per-vault aggregate including its active chit count.
type VaultWithCount struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsDefault   bool      `json:"is_default"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
	ChitCount   int64     `json:"chit_count"`
}

// VaultDetail bundles a vault with its ordered active chits.
type VaultDetail struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	IsDefault   bool          `json:"is_default"`
	IsPublic    bool          `json:"is_public"`
	CreatedAt   time.Time     `json:"created_at"`
	Chits       []ChitSummary `json:"chits"`
}

// ChitSummary is the projection of a chit returned by read operations.
type ChitSummary struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
