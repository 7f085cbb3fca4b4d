package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emoki-app/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the verified profile did not contain a usable login.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// IDProvider issues identifiers for newly created accounts.
type IDProvider interface {
	NewID() (string, error)
}

// VaultProvisioner creates the default vault for a freshly registered account.
type VaultProvisioner interface {
	EnsureDefaultVault(ctx context.Context, userID string) error
}

// ServiceConfig describes the dependencies required for account resolution.
type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  IDProvider
	Provisioner VaultProvisioner
	Logger      *zap.Logger
}

// Service resolves verified social-login profiles to persisted accounts and
// provisions new accounts with their default vault.
type Service struct {
	db          *gorm.DB
	now         func() time.Time
	idProvider  IDProvider
	provisioner VaultProvisioner
	logger      *zap.Logger
	cache       sync.Map
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:          cfg.Database,
		now:         clock,
		idProvider:  cfg.IDProvider,
		provisioner: cfg.Provisioner,
		logger:      logger,
	}, nil
}

type cachedAccount struct {
	ID    string
	Email string
}

// EnsureAccount returns the persisted account for the provided verified
// profile, creating it on first login. Account creation triggers the
// default-vault provisioning hook; a hook failure is logged and swallowed so
// that login never fails because provisioning did.
func (s *Service) EnsureAccount(ctx context.Context, profile auth.GitHubProfile) (User, error) {
	login := normalize(profile.Login)
	if login == "" {
		return User{}, ErrInvalidIdentity
	}

	if cached, ok := s.cache.Load(login); ok {
		if account, ok := cached.(cachedAccount); ok {
			return User{ID: account.ID, Email: account.Email, Username: login}, nil
		}
	}

	var user User
	err := s.db.WithContext(ctx).
		Where("username = ?", login).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = s.createAccount(ctx, login, profile)
		if err != nil {
			return User{}, err
		}
		s.runProvisioningHook(ctx, user.ID)
	} else if err != nil {
		return User{}, err
	} else {
		s.refreshProfile(ctx, &user, profile)
	}

	s.cache.Store(login, cachedAccount{ID: user.ID, Email: user.Email})
	return user, nil
}

func (s *Service) createAccount(ctx context.Context, login string, profile auth.GitHubProfile) (User, error) {
	userID, err := s.idProvider.NewID()
	if err != nil {
		return User{}, err
	}

	name := normalize(profile.Name)
	if name == "" {
		name = login
	}

	now := s.now().UTC()
	user := User{
		ID:            userID,
		Name:          name,
		Email:         normalize(profile.Email),
		EmailVerified: true,
		Image:         normalize(profile.AvatarURL),
		Username:      login,
		Bio:           normalize(profile.Bio),
		Karma:         0,
		XP:            0,
		Level:         1,
		AccountStatus: AccountStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}

// refreshProfile keeps mutable profile fields in sync on repeat logins; the
// update is best effort and never fails the login.
func (s *Service) refreshProfile(ctx context.Context, user *User, profile auth.GitHubProfile) {
	updates := map[string]interface{}{}
	if name := normalize(profile.Name); name != "" && name != user.Name {
		updates["name"] = name
	}
	if image := normalize(profile.AvatarURL); image != "" && image != user.Image {
		updates["image"] = image
	}
	if bio := normalize(profile.Bio); bio != "" && bio != user.Bio {
		updates["bio"] = bio
	}
	if len(updates) == 0 {
		return
	}
	updates["updated_at"] = s.now().UTC()
	_ = s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", user.ID).
		Updates(updates).Error
}

func (s *Service) runProvisioningHook(ctx context.Context, userID string) {
	if s.provisioner == nil {
		return
	}
	if err := s.provisioner.EnsureDefaultVault(ctx, userID); err != nil {
		s.logger.Error("account provisioning failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
