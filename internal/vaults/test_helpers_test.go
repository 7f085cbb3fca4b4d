package vaults

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

// sequenceClock hands out strictly increasing instants so creation-order
// assertions are deterministic.
type sequenceClock struct {
	current time.Time
}

func (c *sequenceClock) Now() time.Time {
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestService(t *testing.T, ids []string) (*Service, *gorm.DB) {
	t.Helper()

	databasePath := filepath.Join(t.TempDir(), "vaults.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Vault{}, &Chit{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	clock := &sequenceClock{current: time.Unix(1700000000, 0).UTC()}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &staticIDGenerator{ids: ids},
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, db
}
