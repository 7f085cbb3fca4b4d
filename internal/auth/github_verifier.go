package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultGitHubAPIBaseURL = "https://api.github.com"
	defaultRequestTimeout   = 10 * time.Second
)

var (
	errMissingAccessToken   = errors.New("access token must not be empty")
	errMissingProfileLogin  = errors.New("profile missing login")
	errMissingAPIBaseConfig = errors.New("api base url configuration required")
	// ErrInvalidVerifierConfig indicates the verifier was constructed with unusable configuration.
	ErrInvalidVerifierConfig = errors.New("auth: invalid github verifier config")
	// ErrGitHubUnauthorized indicates GitHub rejected the supplied access token.
	ErrGitHubUnauthorized = errors.New("auth: github rejected access token")
)

// GitHubVerifierConfig bundles configuration required to instantiate a GitHubVerifier.
type GitHubVerifierConfig struct {
	APIBaseURL string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// GitHubProfile exposes the verified profile fields consumed by account provisioning.
type GitHubProfile struct {
	Login     string
	Name      string
	Email     string
	AvatarURL string
	Bio       string
}

// GitHubVerifier resolves OAuth access tokens to verified GitHub profiles.
type GitHubVerifier struct {
	config     GitHubVerifierConfig
	logger     *zap.Logger
	httpClient *http.Client
}

// NewGitHubVerifier constructs a verifier with validated configuration.
func NewGitHubVerifier(cfg GitHubVerifierConfig) (*GitHubVerifier, error) {
	apiBaseURL := strings.TrimSuffix(strings.TrimSpace(cfg.APIBaseURL), "/")
	if apiBaseURL == "" {
		apiBaseURL = defaultGitHubAPIBaseURL
	}
	if !strings.HasPrefix(apiBaseURL, "http://") && !strings.HasPrefix(apiBaseURL, "https://") {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVerifierConfig, errMissingAPIBaseConfig)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GitHubVerifier{
		config: GitHubVerifierConfig{
			APIBaseURL: apiBaseURL,
			HTTPClient: httpClient,
			Logger:     logger,
		},
		logger:     logger,
		httpClient: httpClient,
	}, nil
}

type githubUserDocument struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	Bio       string `json:"bio"`
}

// Verify resolves the provided OAuth access token against the GitHub user
// endpoint and returns the essential profile fields.
func (v *GitHubVerifier) Verify(ctx context.Context, accessToken string) (GitHubProfile, error) {
	token := strings.TrimSpace(accessToken)
	if token == "" {
		return GitHubProfile{}, errMissingAccessToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.config.APIBaseURL+"/user", nil)
	if err != nil {
		return GitHubProfile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	response, err := v.httpClient.Do(req)
	if err != nil {
		return GitHubProfile{}, err
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return GitHubProfile{}, ErrGitHubUnauthorized
	case response.StatusCode != http.StatusOK:
		v.logger.Warn("github profile request failed", zap.Int("status", response.StatusCode))
		return GitHubProfile{}, fmt.Errorf("github user request returned status %d", response.StatusCode)
	}

	var document githubUserDocument
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return GitHubProfile{}, err
	}

	if strings.TrimSpace(document.Login) == "" {
		return GitHubProfile{}, errMissingProfileLogin
	}

	return GitHubProfile{
		Login:     document.Login,
		Name:      document.Name,
		Email:     document.Email,
		AvatarURL: document.AvatarURL,
		Bio:       document.Bio,
	}, nil
}
