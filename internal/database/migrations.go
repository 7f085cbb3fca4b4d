package database

import (
	"errors"
	"time"

	"github.com/emoki-app/backend/internal/vaults"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillLifecycleStates = "2026-08-20_backfill_lifecycle_states"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillLifecycleStates, apply: backfillLifecycleStates},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillLifecycleStates normalizes rows imported before the lifecycle
// column carried a default, so the active-state scope filters see them.
func backfillLifecycleStates(db *gorm.DB) error {
	if err := db.Model(&vaults.Vault{}).
		Where("state IS NULL OR state = ''").
		Update("state", vaults.StateActive).Error; err != nil {
		return err
	}
	return db.Model(&vaults.Chit{}).
		Where("state IS NULL OR state = ''").
		Update("state", vaults.StateActive).Error
}
