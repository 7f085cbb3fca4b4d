package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/emoki-app/backend/internal/auth"
	"github.com/emoki-app/backend/internal/users"
	"github.com/gin-gonic/gin"
)

func TestAuthorizeRequestRejectsMissingHeader(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newTestRouter(testContext, "user-1")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/vaults", http.NoBody)
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		testContext.Fatalf("expected unauthorized status, got %d", recorder.Code)
	}
}

func TestAuthorizeRequestRejectsGarbageToken(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newTestRouter(testContext, "user-1")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/vaults", http.NoBody)
	request.Header.Set("Authorization", "Bearer not-a-session-token")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		testContext.Fatalf("expected unauthorized status, got %d", recorder.Code)
	}
}

func TestHealthCheckWithoutSession(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newTestRouter(testContext, "user-1")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", recorder.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		testContext.Fatalf("failed to decode response: %v", err)
	}
	if payload["status"] != "OK - Not authenticated" {
		testContext.Fatalf("unexpected status %q", payload["status"])
	}
}

func TestHealthCheckWithSession(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newTestRouter(testContext, "user-1")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	request.Header.Set("Authorization", "Bearer "+testBearerToken)
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", recorder.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		testContext.Fatalf("failed to decode response: %v", err)
	}
	if payload["status"] != "OK - Authenticated as user-1@example.com" {
		testContext.Fatalf("unexpected status %q", payload["status"])
	}
}

func TestGitHubAuthRejectsEmptyToken(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newTestRouter(testContext, "user-1")

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/auth/github", strings.NewReader(`{"access_token":""}`))
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		testContext.Fatalf("expected bad request status, got %d", recorder.Code)
	}
}

func TestGitHubAuthRejectsFailedVerification(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	vaultService, _ := newTestVaultService(testContext)
	handler, err := NewHTTPHandler(Dependencies{
		GitHubVerifier: &fakeGitHubVerifier{err: errors.New("token revoked")},
		TokenManager:   &fakeTokenManager{subject: "user-1"},
		AccountService: &fakeAccountService{},
		VaultService:   vaultService,
	})
	if err != nil {
		testContext.Fatalf("failed to construct handler: %v", err)
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/auth/github", strings.NewReader(`{"access_token":"gho_revoked"}`))
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		testContext.Fatalf("expected unauthorized status, got %d", recorder.Code)
	}
}

func TestGitHubAuthIssuesSessionToken(testContext *testing.T) {
	gin.SetMode(gin.TestMode)
	vaultService, _ := newTestVaultService(testContext)
	handler, err := NewHTTPHandler(Dependencies{
		GitHubVerifier: &fakeGitHubVerifier{profile: auth.GitHubProfile{Login: "octocat"}},
		TokenManager:   &fakeTokenManager{subject: "user-1"},
		AccountService: &fakeAccountService{user: users.User{ID: "user-1", Email: "octocat@example.com"}},
		VaultService:   vaultService,
	})
	if err != nil {
		testContext.Fatalf("failed to construct handler: %v", err)
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/auth/github", strings.NewReader(`{"access_token":"gho_testtoken"}`))
	request.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		testContext.Fatalf("expected ok status, got %d", recorder.Code)
	}
	var payload authResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		testContext.Fatalf("failed to decode response: %v", err)
	}
	if payload.AccessToken != testBearerToken || payload.TokenType != "Bearer" {
		testContext.Fatalf("unexpected payload: %+v", payload)
	}
}
