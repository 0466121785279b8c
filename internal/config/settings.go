package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// settingsFile is the durable client state filename under the state dir.
const settingsFile = "settings.yaml"

// ConnectionSettings are the user-editable connection fields persisted
// between sessions: a manually supplied store token plus the workspace and
// fragment-type identifiers.
type ConnectionSettings struct {
	Token        string `yaml:"token,omitempty"`
	Workspace    string `yaml:"workspace,omitempty"`
	FragmentType string `yaml:"fragment_type,omitempty"`
}

// Settings is everything the client persists between sessions. The access
// token is deliberately absent: it lives only in memory, so compromising
// this file yields at worst a refresh token that the provider can revoke.
type Settings struct {
	RefreshToken string `yaml:"refresh_token,omitempty"`
	// PKCEVerifier survives only the login redirect round trip and is
	// cleared on callback handling, success or not.
	PKCEVerifier string             `yaml:"pkce_verifier,omitempty"`
	CardSize     string             `yaml:"card_size,omitempty"`
	DockedPanel  bool               `yaml:"docked_panel"`
	Connection   ConnectionSettings `yaml:"connection"`
}

// SettingsStore reads and writes the settings file. All mutators persist
// immediately; there is no separate save step to forget.
type SettingsStore struct {
	mu   sync.Mutex
	path string
	data Settings
}

// OpenSettings loads (or initializes) the settings file under baseDir.
func OpenSettings(baseDir string) (*SettingsStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	s := &SettingsStore{path: filepath.Join(baseDir, settingsFile)}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.data); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	return s, nil
}

func (s *SettingsStore) save() error {
	data, err := yaml.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// RefreshToken returns the durable refresh token, empty when logged out.
func (s *SettingsStore) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.RefreshToken
}

// SetRefreshToken persists the refresh token; an empty value clears it.
func (s *SettingsStore) SetRefreshToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.RefreshToken = token
	return s.save()
}

// Verifier returns the stored PKCE verifier, if a login is in flight.
func (s *SettingsStore) Verifier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.PKCEVerifier
}

// SetVerifier persists the PKCE verifier for the redirect round trip.
func (s *SettingsStore) SetVerifier(v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.PKCEVerifier = v
	return s.save()
}

// ClearVerifier removes the PKCE verifier.
func (s *SettingsStore) ClearVerifier() error {
	return s.SetVerifier("")
}

// Preferences returns the persisted display preferences.
func (s *SettingsStore) Preferences() (cardSize string, dockedPanel bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CardSize, s.data.DockedPanel
}

// SetPreferences persists the display preferences.
func (s *SettingsStore) SetPreferences(cardSize string, dockedPanel bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.CardSize = cardSize
	s.data.DockedPanel = dockedPanel
	return s.save()
}

// Connection returns the persisted connection settings.
func (s *SettingsStore) Connection() ConnectionSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Connection
}

// SetConnection persists the connection settings.
func (s *SettingsStore) SetConnection(c ConnectionSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Connection = c
	return s.save()
}
