package vaults

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrVaultNotFound indicates the vault is absent, owned by another user, or not active.
	ErrVaultNotFound = errors.New("vaults: vault not found")
	// ErrChitNotFound indicates the chit is absent, owned by another user, or not active.
	ErrChitNotFound = errors.New("vaults: chit not found")
	// ErrDefaultVaultDelete indicates an attempt to delete the caller's default vault.
	ErrDefaultVaultDelete = errors.New("vaults: cannot delete the default vault")
	// ErrNoDefaultVault indicates no default vault exists to file a chit into.
	ErrNoDefaultVault = errors.New("vaults: no default vault found")
)

// ServiceError wraps storage-layer failures with a dotted operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew         = "vaults.service.new"
	opListVaults         = "vaults.list_vaults"
	opListVaultCounts    = "vaults.list_vaults_with_counts"
	opGetVaultWithChits  = "vaults.get_vault_with_chits"
	opCreateVault        = "vaults.create_vault"
	opUpdateVault        = "vaults.update_vault"
	opDeleteVault        = "vaults.delete_vault"
	opDeleteChit         = "vaults.delete_chit"
	opTransferChit       = "vaults.transfer_chit"
	opSaveChit           = "vaults.save_chit"
	opEnsureDefaultVault = "vaults.ensure_default_vault"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues identifiers for newly created rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the vault service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service implements the authorization-scoped data access layer over vaults and chits.
// Every operation is scoped to the supplied owner id conjoined with the active state;
// not-found and not-owned are deliberately indistinguishable to callers.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// scopedVaults narrows a query to active vaults owned by the given user.
// This conjunction is the only authorization mechanism in the system.
func scopedVaults(tx *gorm.DB, userID string) *gorm.DB {
	return tx.Model(&Vault{}).Where("user_id = ? AND state = ?", userID, StateActive)
}

// scopedChits narrows a query to active chits owned by the given user.
func scopedChits(tx *gorm.DB, userID string) *gorm.DB {
	return tx.Model(&Chit{}).Where("user_id = ? AND state = ?", userID, StateActive)
}

// ListVaults returns the caller's active vaults ordered by creation time.
func (s *Service) ListVaults(ctx context.Context, userID string) ([]VaultSummary, error) {
	var rows []Vault
	if err := scopedVaults(s.db.WithContext(ctx), userID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		s.logError(opListVaults, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListVaults, "query_failed", err)
	}

	summaries := make([]VaultSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, VaultSummary{
			ID:          row.ID,
			Name:        row.Name,
			Description: row.Description,
		})
	}
	return summaries, nil
}

// ListVaultsWithCounts returns the caller's active vaults with their active chit counts.
func (s *Service) ListVaultsWithCounts(ctx context.Context, userID string) ([]VaultWithCount, error) {
	var rows []VaultWithCount
	err := s.db.WithContext(ctx).
		Model(&Vault{}).
		Select("vaults.id, vaults.name, vaults.description, vaults.is_default, vaults.is_public, vaults.created_at, COUNT(chits.id) AS chit_count").
		Joins("LEFT JOIN chits ON chits.vault_id = vaults.id AND chits.state = ?", StateActive).
		Where("vaults.user_id = ? AND vaults.state = ?", userID, StateActive).
		Group("vaults.id").
		Order("vaults.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		s.logError(opListVaultCounts, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListVaultCounts, "query_failed", err)
	}
	return rows, nil
}

// GetVaultWithChits returns one active vault and its active chits ordered by creation time.
func (s *Service) GetVaultWithChits(ctx context.Context, userID, vaultID string) (VaultDetail, error) {
	var vault Vault
	err := scopedVaults(s.db.WithContext(ctx), userID).
		Where("id = ?", vaultID).
		Take(&vault).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return VaultDetail{}, ErrVaultNotFound
	}
	if err != nil {
		s.logError(opGetVaultWithChits, "vault_select_failed", err,
			zap.String("user_id", userID), zap.String("vault_id", vaultID))
		return VaultDetail{}, newServiceError(opGetVaultWithChits, "vault_select_failed", err)
	}

	var chits []Chit
	if err := s.db.WithContext(ctx).
		Where("vault_id = ? AND state = ?", vaultID, StateActive).
		Order("created_at ASC").
		Find(&chits).Error; err != nil {
		s.logError(opGetVaultWithChits, "chit_select_failed", err,
			zap.String("user_id", userID), zap.String("vault_id", vaultID))
		return VaultDetail{}, newServiceError(opGetVaultWithChits, "chit_select_failed", err)
	}

	detail := VaultDetail{
		ID:          vault.ID,
		Name:        vault.Name,
		Description: vault.Description,
		IsDefault:   vault.IsDefault,
		IsPublic:    vault.IsPublic,
		CreatedAt:   vault.CreatedAt,
		Chits:       make([]ChitSummary, 0, len(chits)),
	}
	for _, chit := range chits {
		detail.Chits = append(detail.Chits, ChitSummary{
			ID:        chit.ID,
			Content:   chit.Content,
			CreatedAt: chit.CreatedAt,
			UpdatedAt: chit.UpdatedAt,
		})
	}
	return detail, nil
}

// CreateVault validates the input and inserts a new active, non-default vault.
func (s *Service) CreateVault(ctx context.Context, userID string, input VaultInput) (string, error) {
	validated, err := input.validate()
	if err != nil {
		return "", err
	}

	vaultID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateVault, "id_generation_failed", err, zap.String("user_id", userID))
		return "", newServiceError(opCreateVault, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	vault := Vault{
		ID:          vaultID,
		UserID:      userID,
		Name:        validated.Name,
		Description: validated.Description,
		IsPublic:    validated.IsPublic,
		IsDefault:   false,
		State:       StateActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&vault).Error; err != nil {
		s.logError(opCreateVault, "insert_failed", err, zap.String("user_id", userID))
		return "", newServiceError(opCreateVault, "insert_failed", err)
	}
	return vaultID, nil
}

// UpdateVault updates name, description and visibility of one active owned vault.
func (s *Service) UpdateVault(ctx context.Context, userID, vaultID string, input VaultInput) error {
	validated, err := input.validate()
	if err != nil {
		return err
	}

	result := scopedVaults(s.db.WithContext(ctx), userID).
		Where("id = ?", vaultID).
		Updates(map[string]interface{}{
			"name":        validated.Name,
			"description": validated.Description,
			"is_public":   validated.IsPublic,
			"updated_at":  s.clock().UTC(),
		})
	if result.Error != nil {
		s.logError(opUpdateVault, "update_failed", result.Error,
			zap.String("user_id", userID), zap.String("vault_id", vaultID))
		return newServiceError(opUpdateVault, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVaultNotFound
	}
	return nil
}

// DeleteVault soft-deletes one non-default vault and every chit filed in it.
// The guard read and both updates run in a single transaction so the cascade
// cannot leave a deleted vault with active chits behind.
func (s *Service) DeleteVault(ctx context.Context, userID, vaultID string) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var vault Vault
		err := scopedVaults(tx, userID).
			Where("id = ?", vaultID).
			Take(&vault).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVaultNotFound
		}
		if err != nil {
			s.logError(opDeleteVault, "vault_select_failed", err,
				zap.String("user_id", userID), zap.String("vault_id", vaultID))
			return newServiceError(opDeleteVault, "vault_select_failed", err)
		}
		if vault.IsDefault {
			return ErrDefaultVaultDelete
		}

		now := s.clock().UTC()
		if err := tx.Model(&Vault{}).
			Where("id = ?", vaultID).
			Updates(map[string]interface{}{"state": StateDeleted, "updated_at": now}).Error; err != nil {
			s.logError(opDeleteVault, "vault_update_failed", err,
				zap.String("user_id", userID), zap.String("vault_id", vaultID))
			return newServiceError(opDeleteVault, "vault_update_failed", err)
		}
		if err := tx.Model(&Chit{}).
			Where("vault_id = ?", vaultID).
			Updates(map[string]interface{}{"state": StateDeleted, "updated_at": now}).Error; err != nil {
			s.logError(opDeleteVault, "chit_cascade_failed", err,
				zap.String("user_id", userID), zap.String("vault_id", vaultID))
			return newServiceError(opDeleteVault, "chit_cascade_failed", err)
		}
		return nil
	})
	return txErr
}

// DeleteChit soft-deletes one active owned chit.
func (s *Service) DeleteChit(ctx context.Context, userID, chitID string) error {
	result := scopedChits(s.db.WithContext(ctx), userID).
		Where("id = ?", chitID).
		Updates(map[string]interface{}{"state": StateDeleted, "updated_at": s.clock().UTC()})
	if result.Error != nil {
		s.logError(opDeleteChit, "update_failed", result.Error,
			zap.String("user_id", userID), zap.String("chit_id", chitID))
		return newServiceError(opDeleteChit, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrChitNotFound
	}
	return nil
}

// TransferChit moves one active owned chit into another active owned vault.
func (s *Service) TransferChit(ctx context.Context, userID, chitID, targetVaultID string) error {
	var target Vault
	err := scopedVaults(s.db.WithContext(ctx), userID).
		Where("id = ?", targetVaultID).
		Take(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrVaultNotFound
	}
	if err != nil {
		s.logError(opTransferChit, "target_select_failed", err,
			zap.String("user_id", userID), zap.String("vault_id", targetVaultID))
		return newServiceError(opTransferChit, "target_select_failed", err)
	}

	result := scopedChits(s.db.WithContext(ctx), userID).
		Where("id = ?", chitID).
		Updates(map[string]interface{}{"vault_id": targetVaultID, "updated_at": s.clock().UTC()})
	if result.Error != nil {
		s.logError(opTransferChit, "update_failed", result.Error,
			zap.String("user_id", userID), zap.String("chit_id", chitID))
		return newServiceError(opTransferChit, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrChitNotFound
	}
	return nil
}

// SaveChit inserts a new active chit, filing it into the caller's default
// vault when no vault id is supplied.
func (s *Service) SaveChit(ctx context.Context, userID, content, vaultID string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyChitContent
	}

	targetVaultID := vaultID
	if targetVaultID == "" {
		var defaultVault Vault
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND is_default = ?", userID, true).
			Take(&defaultVault).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoDefaultVault
		}
		if err != nil {
			s.logError(opSaveChit, "default_vault_select_failed", err, zap.String("user_id", userID))
			return "", newServiceError(opSaveChit, "default_vault_select_failed", err)
		}
		targetVaultID = defaultVault.ID
	} else {
		var target Vault
		err := scopedVaults(s.db.WithContext(ctx), userID).
			Where("id = ?", targetVaultID).
			Take(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrVaultNotFound
		}
		if err != nil {
			s.logError(opSaveChit, "vault_select_failed", err,
				zap.String("user_id", userID), zap.String("vault_id", targetVaultID))
			return "", newServiceError(opSaveChit, "vault_select_failed", err)
		}
	}

	chitID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opSaveChit, "id_generation_failed", err, zap.String("user_id", userID))
		return "", newServiceError(opSaveChit, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	chit := Chit{
		ID:        chitID,
		UserID:    userID,
		VaultID:   targetVaultID,
		Content:   trimmed,
		State:     StateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&chit).Error; err != nil {
		s.logError(opSaveChit, "insert_failed", err,
			zap.String("user_id", userID), zap.String("vault_id", targetVaultID))
		return "", newServiceError(opSaveChit, "insert_failed", err)
	}
	return chitID, nil
}

// EnsureDefaultVault creates the "Personal Vault" for a user when none exists.
// The check and insert run in one transaction so concurrent first logins
// cannot each provision a default vault.
func (s *Service) EnsureDefaultVault(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Vault
		err := tx.Where("user_id = ? AND is_default = ?", userID, true).
			Take(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opEnsureDefaultVault, "select_failed", err, zap.String("user_id", userID))
			return newServiceError(opEnsureDefaultVault, "select_failed", err)
		}

		vaultID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opEnsureDefaultVault, "id_generation_failed", err, zap.String("user_id", userID))
			return newServiceError(opEnsureDefaultVault, "id_generation_failed", err)
		}

		now := s.clock().UTC()
		vault := Vault{
			ID:        vaultID,
			UserID:    userID,
			Name:      defaultVaultName,
			IsPublic:  false,
			IsDefault: true,
			State:     StateActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&vault).Error; err != nil {
			s.logError(opEnsureDefaultVault, "insert_failed", err, zap.String("user_id", userID))
			return newServiceError(opEnsureDefaultVault, "insert_failed", err)
		}
		return nil
	})
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("vault service error", attrs...)
}
