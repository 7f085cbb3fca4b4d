package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emoki-app/backend/internal/auth"
	"github.com/emoki-app/backend/internal/users"
	"github.com/emoki-app/backend/internal/vaults"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey    = "emoki_user_id"
	userEmailContextKey = "emoki_user_email"
)

var (
	errMissingGitHubVerifier = errors.New("github verifier dependency required")
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingAccountService = errors.New("account service dependency required")
	errMissingVaultService   = errors.New("vault service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

type GitHubVerifier interface {
	Verify(ctx context.Context, accessToken string) (auth.GitHubProfile, error)
}

type SessionTokenManager interface {
	IssueSessionToken(ctx context.Context, userID, email string) (string, int64, error)
	ValidateToken(token string) (auth.SessionClaims, error)
}

type AccountService interface {
	EnsureAccount(ctx context.Context, profile auth.GitHubProfile) (users.User, error)
}

type Dependencies struct {
	GitHubVerifier GitHubVerifier
	TokenManager   SessionTokenManager
	AccountService AccountService
	VaultService   *vaults.Service
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.GitHubVerifier == nil {
		return nil, errMissingGitHubVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.AccountService == nil {
		return nil, errMissingAccountService
	}
	if deps.VaultService == nil {
		return nil, errMissingVaultService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier: deps.GitHubVerifier,
		tokens:   deps.TokenManager,
		accounts: deps.AccountService,
		vaults:   deps.VaultService,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealthCheck)
	router.POST("/auth/github", handler.handleGitHubAuth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/vaults", handler.handleListVaults)
	protected.GET("/vaults/counts", handler.handleListVaultsWithCounts)
	protected.GET("/vaults/:id", handler.handleGetVault)
	protected.POST("/vaults", handler.handleCreateVault)
	protected.PUT("/vaults/:id", handler.handleUpdateVault)
	protected.DELETE("/vaults/:id", handler.handleDeleteVault)
	protected.POST("/chits", handler.handleSaveChit)
	protected.DELETE("/chits/:id", handler.handleDeleteChit)
	protected.POST("/chits/:id/transfer", handler.handleTransferChit)

	return router, nil
}

type httpHandler struct {
	verifier GitHubVerifier
	tokens   SessionTokenManager
	accounts AccountService
	vaults   *vaults.Service
	logger   *zap.Logger
}

func (h *httpHandler) handleHealthCheck(c *gin.Context) {
	status := "OK - Not authenticated"
	if token := bearerToken(c); token != "" {
		if claims, err := h.tokens.ValidateToken(token); err == nil {
			status = fmt.Sprintf("OK - Authenticated as %s", claims.UserEmail)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

type authRequestPayload struct {
	AccessToken string `json:"access_token"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleGitHubAuth(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.AccessToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	profile, err := h.verifier.Verify(c.Request.Context(), request.AccessToken)
	if err != nil {
		h.logger.Warn("github token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	account, err := h.accounts.EnsureAccount(c.Request.Context(), profile)
	if err != nil {
		h.logger.Error("failed to resolve account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "account_resolution_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), account.ID, account.Email)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleListVaults(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	summaries, err := h.vaults.ListVaults(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vaults": summaries})
}

func (h *httpHandler) handleListVaultsWithCounts(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	rows, err := h.vaults.ListVaultsWithCounts(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vaults": rows})
}

func (h *httpHandler) handleGetVault(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	detail, err := h.vaults.GetVaultWithChits(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type vaultRequestPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

func (h *httpHandler) handleCreateVault(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request vaultRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	vaultID, err := h.vaults.CreateVault(c.Request.Context(), userID, vaults.VaultInput{
		Name:        request.Name,
		Description: request.Description,
		IsPublic:    request.IsPublic,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "vault_id": vaultID})
}

func (h *httpHandler) handleUpdateVault(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request vaultRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err := h.vaults.UpdateVault(c.Request.Context(), userID, c.Param("id"), vaults.VaultInput{
		Name:        request.Name,
		Description: request.Description,
		IsPublic:    request.IsPublic,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleDeleteVault(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.vaults.DeleteVault(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type saveChitRequestPayload struct {
	Content string `json:"content"`
	VaultID string `json:"vault_id"`
}

func (h *httpHandler) handleSaveChit(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request saveChitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	chitID, err := h.vaults.SaveChit(c.Request.Context(), userID, request.Content, request.VaultID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "chit saved successfully", "chit_id": chitID})
}

func (h *httpHandler) handleDeleteChit(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.vaults.DeleteChit(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type transferChitRequestPayload struct {
	TargetVaultID string `json:"target_vault_id"`
}

func (h *httpHandler) handleTransferChit(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request transferChitRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.TargetVaultID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.vaults.TransferChit(c.Request.Context(), userID, c.Param("id"), request.TargetVaultID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// respondError maps domain errors onto HTTP statuses: validation and business
// rule violations to 400, not-found (indistinguishable from not-owned) to 404,
// and anything else to a generic 500 carrying only the service error code.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, vaults.ErrInvalidVaultName),
		errors.Is(err, vaults.ErrInvalidVaultDescription),
		errors.Is(err, vaults.ErrEmptyChitContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, vaults.ErrDefaultVaultDelete),
		errors.Is(err, vaults.ErrNoDefaultVault):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, vaults.ErrVaultNotFound),
		errors.Is(err, vaults.ErrChitNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("vault operation failed", zap.Error(err))
		var serviceErr *vaults.ServiceError
		if errors.As(err, &serviceErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": serviceErr.Code()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.Subject)
	c.Set(userEmailContextKey, claims.UserEmail)
	c.Next()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
