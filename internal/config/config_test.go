package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReturnsDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workspace != "default" {
		t.Errorf("Workspace = %q, want default", cfg.Workspace)
	}
	if cfg.ListLimit != 250 {
		t.Errorf("ListLimit = %d, want 250", cfg.ListLimit)
	}
	if cfg.PollInterval != 20*time.Second {
		t.Errorf("PollInterval = %s, want 20s", cfg.PollInterval)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `store:
  url: https://frags.example.com/api
  workspace: board-7
  fragment_type: card
  list_limit: 50
bridge:
  allowed_origin: https://chat.example.com
  poll_interval: 5s
auth:
  client_id: fragboard-web
  token_url: http://127.0.0.1:8137/auth/token
`
	if err := os.WriteFile(filepath.Join(dir, "fragboard.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StoreURL != "https://frags.example.com/api" {
		t.Errorf("StoreURL = %q", cfg.StoreURL)
	}
	if cfg.Workspace != "board-7" || cfg.FragmentType != "card" || cfg.ListLimit != 50 {
		t.Errorf("store settings = %q/%q/%d", cfg.Workspace, cfg.FragmentType, cfg.ListLimit)
	}
	if cfg.AllowedOrigin != "https://chat.example.com" {
		t.Errorf("AllowedOrigin = %q", cfg.AllowedOrigin)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %s, want 5s", cfg.PollInterval)
	}
	if cfg.Auth.ClientID != "fragboard-web" {
		t.Errorf("Auth.ClientID = %q", cfg.Auth.ClientID)
	}
}

func TestValidateRejectsEmptyOrigin(t *testing.T) {
	cfg := defaults()
	cfg.AllowedOrigin = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty allowed origin")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenSettings(dir)
	if err != nil {
		t.Fatalf("OpenSettings failed: %v", err)
	}
	if err := s.SetRefreshToken("rt-1"); err != nil {
		t.Fatalf("SetRefreshToken failed: %v", err)
	}
	if err := s.SetPreferences("compact", true); err != nil {
		t.Fatalf("SetPreferences failed: %v", err)
	}
	if err := s.SetConnection(ConnectionSettings{Token: "manual", Workspace: "w", FragmentType: "t"}); err != nil {
		t.Fatalf("SetConnection failed: %v", err)
	}

	// A fresh store must see the persisted state.
	s2, err := OpenSettings(dir)
	if err != nil {
		t.Fatalf("reopening settings failed: %v", err)
	}
	if s2.RefreshToken() != "rt-1" {
		t.Errorf("RefreshToken = %q, want rt-1", s2.RefreshToken())
	}
	size, docked := s2.Preferences()
	if size != "compact" || !docked {
		t.Errorf("Preferences = %q/%v", size, docked)
	}
	if conn := s2.Connection(); conn.Workspace != "w" {
		t.Errorf("Connection = %+v", conn)
	}
}

func TestSettingsFileMode(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSettings(dir)
	if err != nil {
		t.Fatalf("OpenSettings failed: %v", err)
	}
	if err := s.SetRefreshToken("secret"); err != nil {
		t.Fatalf("SetRefreshToken failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, settingsFile))
	if err != nil {
		t.Fatalf("stat settings: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("settings mode = %o, want 600", perm)
	}
}

func TestVerifierIsSingleUse(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSettings(dir)
	if err != nil {
		t.Fatalf("OpenSettings failed: %v", err)
	}
	if err := s.SetVerifier("pkce-verifier"); err != nil {
		t.Fatalf("SetVerifier failed: %v", err)
	}
	if s.Verifier() != "pkce-verifier" {
		t.Fatalf("Verifier = %q", s.Verifier())
	}
	if err := s.ClearVerifier(); err != nil {
		t.Fatalf("ClearVerifier failed: %v", err)
	}
	if s.Verifier() != "" {
		t.Fatal("verifier survived ClearVerifier")
	}
}
