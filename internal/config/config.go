// Package config loads board configuration and owns the durable client-side
// state file. Configuration is explicit: loaded once, handed to constructors,
// and changed only through Reconfigure entry points on the components that
// hold it.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// AuthConfig holds the identity-provider endpoints and client settings for
// the PKCE flow. The token endpoint is usually the local relay's /auth/token
// so the browser-era same-origin constraint carries over unchanged.
type AuthConfig struct {
	ClientID    string
	AuthURL     string
	TokenURL    string
	LogoutURL   string
	RedirectURL string
	Scopes      []string
}

// Config is the full client configuration.
type Config struct {
	// StoreURL is the fragment store API base, typically the relay's /api.
	StoreURL string
	// Workspace and FragmentType select which fragments belong to this board.
	Workspace    string
	FragmentType string
	// ListLimit caps how many fragments one load fetches.
	ListLimit int
	// AllowedOrigin is the single origin the embedded agent surface may use.
	AllowedOrigin string
	// PollInterval is the silent-reload cadence while the agent panel is open.
	PollInterval time.Duration
	// RelayAddr is the listen address for the local relay.
	RelayAddr string

	Auth AuthConfig
}

func defaults() *Config {
	return &Config{
		StoreURL:      "http://127.0.0.1:8137/api",
		Workspace:     "default",
		FragmentType:  "task",
		ListLimit:     250,
		AllowedOrigin: "https://agent.example.com",
		PollInterval:  20 * time.Second,
		RelayAddr:     "127.0.0.1:8137",
		Auth: AuthConfig{
			RedirectURL: "http://127.0.0.1:8954/callback",
			Scopes:      []string{"fragments:read", "fragments:write", "offline_access"},
		},
	}
}

// Load reads fragboard.yaml from basePath. A missing file returns defaults.
func Load(basePath string) (*Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigName("fragboard")
	v.SetConfigType("yaml")
	v.AddConfigPath(basePath)

	v.SetDefault("store.url", cfg.StoreURL)
	v.SetDefault("store.workspace", cfg.Workspace)
	v.SetDefault("store.fragment_type", cfg.FragmentType)
	v.SetDefault("store.list_limit", cfg.ListLimit)
	v.SetDefault("bridge.allowed_origin", cfg.AllowedOrigin)
	v.SetDefault("bridge.poll_interval", cfg.PollInterval.String())
	v.SetDefault("relay.addr", cfg.RelayAddr)
	v.SetDefault("auth.client_id", cfg.Auth.ClientID)
	v.SetDefault("auth.auth_url", cfg.Auth.AuthURL)
	v.SetDefault("auth.token_url", cfg.Auth.TokenURL)
	v.SetDefault("auth.logout_url", cfg.Auth.LogoutURL)
	v.SetDefault("auth.redirect_url", cfg.Auth.RedirectURL)
	v.SetDefault("auth.scopes", cfg.Auth.Scopes)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading fragboard.yaml: %w", err)
		}
	}

	cfg.StoreURL = v.GetString("store.url")
	cfg.Workspace = v.GetString("store.workspace")
	cfg.FragmentType = v.GetString("store.fragment_type")
	cfg.ListLimit = v.GetInt("store.list_limit")
	cfg.AllowedOrigin = v.GetString("bridge.allowed_origin")
	cfg.RelayAddr = v.GetString("relay.addr")
	cfg.Auth.ClientID = v.GetString("auth.client_id")
	cfg.Auth.AuthURL = v.GetString("auth.auth_url")
	cfg.Auth.TokenURL = v.GetString("auth.token_url")
	cfg.Auth.LogoutURL = v.GetString("auth.logout_url")
	cfg.Auth.RedirectURL = v.GetString("auth.redirect_url")
	cfg.Auth.Scopes = v.GetStringSlice("auth.scopes")

	if d, err := time.ParseDuration(v.GetString("bridge.poll_interval")); err == nil && d > 0 {
		cfg.PollInterval = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the client cannot run with.
func (c *Config) Validate() error {
	if c.StoreURL == "" {
		return fmt.Errorf("config: store.url must not be empty")
	}
	if c.Workspace == "" {
		return fmt.Errorf("config: store.workspace must not be empty")
	}
	if c.FragmentType == "" {
		return fmt.Errorf("config: store.fragment_type must not be empty")
	}
	if c.ListLimit <= 0 {
		return fmt.Errorf("config: store.list_limit must be positive, got %d", c.ListLimit)
	}
	if c.AllowedOrigin == "" {
		return fmt.Errorf("config: bridge.allowed_origin must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: bridge.poll_interval must be positive, got %s", c.PollInterval)
	}
	return nil
}
