// Package internal provides the App struct that wires all components of
// fragboard together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"fragboard/internal/auth"
	"fragboard/internal/board"
	"fragboard/internal/cli"
	"fragboard/internal/config"
	"fragboard/internal/fragment"
	"fragboard/internal/observability"
	"fragboard/internal/sortkey"
)

// App holds all service dependencies for fragboard.
type App struct {
	BasePath string

	Cfg      *config.Config
	Settings *config.SettingsStore

	Store  fragment.Store
	Auth   *auth.Manager
	Engine *board.Engine

	EventLog observability.EventLog
}

// NewApp creates and wires all components. basePath is the directory holding
// the config and settings files (typically ~/.fragboard).
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	cfg, err := config.Load(basePath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	app.Cfg = cfg

	settings, err := config.OpenSettings(basePath)
	if err != nil {
		return nil, fmt.Errorf("opening settings: %w", err)
	}
	app.Settings = settings

	// Non-fatal: disable event logging if the log can't be created.
	eventLogPath := filepath.Join(basePath, "events.jsonl")
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		app.EventLog = observability.Nop()
	}

	app.Auth = auth.NewManager(auth.Config{
		ClientID:    cfg.Auth.ClientID,
		AuthURL:     cfg.Auth.AuthURL,
		TokenURL:    cfg.Auth.TokenURL,
		LogoutURL:   cfg.Auth.LogoutURL,
		RedirectURL: cfg.Auth.RedirectURL,
		Scopes:      cfg.Auth.Scopes,
	}, settings, app.EventLog)

	// A manually configured token in settings wins over the OAuth session,
	// for stores that run without an identity provider.
	app.Store = fragment.NewClient(cfg.StoreURL, func() string {
		if conn := settings.Connection(); conn.Token != "" {
			return conn.Token
		}
		return app.Auth.AccessToken()
	})

	app.Engine = board.New(app.Store, sortkey.New(), board.Config{
		Workspace:    cfg.Workspace,
		FragmentType: cfg.FragmentType,
		ListLimit:    cfg.ListLimit,
	}, app.EventLog)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Cfg = app.Cfg
	cli.Settings = app.Settings
	cli.Engine = app.Engine
	cli.Auth = app.Auth
	cli.EventLog = app.EventLog

	return app, nil
}

// Close releases resources held by the App, such as the event log handle.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the fragboard data directory. FRAGBOARD_HOME
// wins; otherwise ~/.fragboard is used, falling back to the current
// directory when the home directory is unknown.
func ResolveBasePath() string {
	if home := os.Getenv("FRAGBOARD_HOME"); home != "" {
		return home
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".fragboard")
}
