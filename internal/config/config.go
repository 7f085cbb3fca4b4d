package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "EMOKI"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "emoki.db"
	defaultLogLevel      = "info"
	defaultGitHubAPIBase = "https://api.github.com"
	defaultTokenTTLMin   = 30
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	SigningSecret    string
	DatabasePath     string
	GitHubClientID   string
	GitHubAPIBaseURL string
	TokenTTL         time.Duration
	LogLevel         string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("github.api_url", defaultGitHubAPIBase)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMin)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		DatabasePath:     configViper.GetString("database.path"),
		GitHubClientID:   configViper.GetString("github.client_id"),
		GitHubAPIBaseURL: configViper.GetString("github.api_url"),
		TokenTTL:         time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		LogLevel:         configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.GitHubAPIBaseURL) == "" {
		return fmt.Errorf("github.api_url is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	return nil
}
