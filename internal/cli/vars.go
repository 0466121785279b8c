package cli

import (
	"fragboard/internal/auth"
	"fragboard/internal/board"
	"fragboard/internal/config"
	"fragboard/internal/observability"
)

// Service instances, set during app initialization in internal/app.go.
var (
	BasePath string
	Cfg      *config.Config
	Settings *config.SettingsStore
	Engine   *board.Engine
	Auth     *auth.Manager
	EventLog observability.EventLog
)
