package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/emoki-app/backend/internal/auth"
	"github.com/emoki-app/backend/internal/users"
	"github.com/emoki-app/backend/internal/vaults"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const testBearerToken = "valid-session-token"

type fakeTokenManager struct {
	subject string
	email   string
}

func (m *fakeTokenManager) IssueSessionToken(_ context.Context, userID, email string) (string, int64, error) {
	return testBearerToken, 1800, nil
}

func (m *fakeTokenManager) ValidateToken(token string) (auth.SessionClaims, error) {
	if token != testBearerToken {
		return auth.SessionClaims{}, errors.New("unknown token")
	}
	return auth.SessionClaims{
		UserEmail:        m.email,
		RegisteredClaims: jwt.RegisteredClaims{Subject: m.subject},
	}, nil
}

type fakeGitHubVerifier struct {
	profile auth.GitHubProfile
	err     error
}

func (v *fakeGitHubVerifier) Verify(_ context.Context, _ string) (auth.GitHubProfile, error) {
	return v.profile, v.err
}

type fakeAccountService struct {
	user users.User
	err  error
}

func (s *fakeAccountService) EnsureAccount(_ context.Context, _ auth.GitHubProfile) (users.User, error) {
	return s.user, s.err
}

type sequentialIDGenerator struct {
	prefix string
	next   int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next), nil
}

func newTestVaultService(t *testing.T) (*vaults.Service, *gorm.DB) {
	t.Helper()

	databasePath := filepath.Join(t.TempDir(), "server.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&vaults.Vault{}, &vaults.Chit{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	service, err := vaults.NewService(vaults.ServiceConfig{
		Database:   db,
		IDProvider: &sequentialIDGenerator{prefix: "id"},
	})
	if err != nil {
		t.Fatalf("failed to construct vault service: %v", err)
	}
	return service, db
}

func newTestRouter(t *testing.T, userID string) (http.Handler, *vaults.Service, *gorm.DB) {
	t.Helper()

	vaultService, db := newTestVaultService(t)
	handler, err := NewHTTPHandler(Dependencies{
		GitHubVerifier: &fakeGitHubVerifier{},
		TokenManager:   &fakeTokenManager{subject: userID, email: userID + "@example.com"},
		AccountService: &fakeAccountService{},
		VaultService:   vaultService,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return handler, vaultService, db
}
