package database

import (
	"path/filepath"
	"testing"

	"github.com/emoki-app/backend/internal/vaults"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsLifecycleStates(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&vaults.Vault{}, &vaults.Chit{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	vault := vaults.Vault{
		ID:     "vault-1",
		UserID: "user-1",
		Name:   "Imported",
		State:  "",
	}
	if err := database.Create(&vault).Error; err != nil {
		testContext.Fatalf("failed to insert vault: %v", err)
	}
	// The column default fills in active on insert, so blank the state
	// directly to mimic rows imported before the column existed.
	if err := database.Exec("UPDATE vaults SET state = '' WHERE id = ?", "vault-1").Error; err != nil {
		testContext.Fatalf("failed to blank lifecycle state: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored vaults.Vault
	if err := database.Where("id = ?", "vault-1").Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload vault: %v", err)
	}
	if stored.State != vaults.StateActive {
		testContext.Fatalf("expected backfilled active state, got %q", stored.State)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillLifecycleStates).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsRunsOnlyOnce(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration-repeat.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&vaults.Vault{}, &vaults.Chit{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("repeat application must be a no-op: %v", err)
	}

	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migration records: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected one migration record, got %d", count)
	}
}
