// Package auth owns the OAuth session used against the fragment store's
// identity provider. It runs the PKCE authorization-code flow, keeps the
// access token in memory only, persists the refresh token, and re-arms a
// single refresh timer ahead of every expiry. When a refresh fails the whole
// session is torn down; the user signs in again rather than the client
// retrying with stale credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"fragboard/internal/observability"
)

// ErrAuthExpired marks a session that could not be refreshed. All token state
// has already been cleared when this is returned.
var ErrAuthExpired = errors.New("session expired")

// State is the manager's lifecycle position.
type State string

const (
	StateLoggedOut        State = "logged_out"
	StateAwaitingCallback State = "awaiting_callback"
	StateAuthenticated    State = "authenticated"
	StateRefreshing       State = "refreshing"
)

// refreshLead is subtracted from the token lifetime when arming the refresh
// timer, so the refresh lands before the store starts rejecting the token.
const (
	refreshLead     = 30 * time.Second
	minRefreshDelay = 10 * time.Second
)

// Persistence stores the long-lived pieces of the session: the refresh token
// and the in-flight PKCE verifier. The access token is deliberately never
// persisted.
type Persistence interface {
	RefreshToken() string
	SetRefreshToken(token string) error
	Verifier() string
	SetVerifier(v string) error
	ClearVerifier() error
}

// Config carries the identity provider endpoints.
type Config struct {
	ClientID    string
	AuthURL     string
	TokenURL    string
	LogoutURL   string
	RedirectURL string
	Scopes      []string
}

// Manager drives the session lifecycle. Safe for concurrent use.
type Manager struct {
	oauth     *oauth2.Config
	logoutURL string
	store     Persistence
	events    observability.EventLog

	mu          sync.Mutex
	state       State
	accessToken string
	loginState  string
	timer       *time.Timer
	onExpired   func()
}

// NewManager creates a Manager in the logged-out state. events may be nil.
func NewManager(cfg Config, store Persistence, events observability.EventLog) *Manager {
	if events == nil {
		events = observability.Nop()
	}
	return &Manager{
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		logoutURL: cfg.LogoutURL,
		store:     store,
		events:    events,
		state:     StateLoggedOut,
	}
}

// SetOnExpired registers a callback invoked after a failed refresh has torn
// the session down. Used to flip the UI back to the signed-out view.
func (m *Manager) SetOnExpired(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpired = fn
}

// LoginURL generates a fresh PKCE verifier, persists it for the callback
// leg, and returns the provider's authorization URL to open in the browser.
func (m *Manager) LoginURL() (string, error) {
	verifier := oauth2.GenerateVerifier()
	if err := m.store.SetVerifier(verifier); err != nil {
		return "", fmt.Errorf("persisting pkce verifier: %w", err)
	}

	m.mu.Lock()
	m.loginState = uuid.NewString()
	m.state = StateAwaitingCallback
	state := m.loginState
	m.mu.Unlock()

	return m.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	), nil
}

// HandleCallback inspects a redirect URL. A URL without a code parameter is
// not a login callback and returns (false, nil) so normal navigation passes
// through. Otherwise the code is exchanged for tokens; the stored verifier is
// cleared whether or not the exchange succeeds, so a code can never be
// replayed against it.
func (m *Manager) HandleCallback(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parsing callback url: %w", err)
	}
	q := u.Query()
	code := q.Get("code")
	if code == "" {
		return false, nil
	}

	verifier := m.store.Verifier()
	_ = m.store.ClearVerifier()

	m.mu.Lock()
	expected := m.loginState
	m.loginState = ""
	m.mu.Unlock()

	if got := q.Get("state"); expected != "" && got != expected {
		return true, fmt.Errorf("callback state mismatch")
	}
	if verifier == "" {
		return true, fmt.Errorf("no pending login: pkce verifier missing")
	}

	tok, err := m.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return true, fmt.Errorf("exchanging authorization code: %w", err)
	}

	m.adoptToken(tok)
	_ = m.events.Write(observability.Event{
		Level: "INFO", Type: observability.EventAuthRefreshed,
		Message: "session established",
	})
	return true, nil
}

// TryRestore attempts a silent sign-in from a persisted refresh token.
// Reports whether a session was established.
func (m *Manager) TryRestore(ctx context.Context) bool {
	if m.store.RefreshToken() == "" {
		return false
	}
	return m.Refresh(ctx) == nil
}

// Refresh exchanges the persisted refresh token for a fresh access token and
// re-arms the timer. On any failure the entire session is cleared, the state
// becomes LoggedOut, no timer is re-armed, and ErrAuthExpired is returned.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	rt := m.store.RefreshToken()
	if rt == "" {
		m.clearSessionLocked()
		m.mu.Unlock()
		return fmt.Errorf("no refresh token: %w", ErrAuthExpired)
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	tok, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		m.expire()
		return fmt.Errorf("refreshing session: %w: %v", ErrAuthExpired, err)
	}

	m.adoptToken(tok)
	_ = m.events.Write(observability.Event{
		Level: "INFO", Type: observability.EventAuthRefreshed,
		Message: "access token refreshed",
	})
	return nil
}

// Logout tears the session down locally and returns the provider URL to open
// so the provider-side session ends too. Empty when no logout URL is
// configured.
func (m *Manager) Logout() string {
	m.mu.Lock()
	m.clearSessionLocked()
	m.mu.Unlock()
	_ = m.store.SetRefreshToken("")
	_ = m.store.ClearVerifier()
	return m.logoutURL
}

// AccessToken returns the current bearer token, or "" when signed out.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessToken
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsAuthenticated reports whether an access token is held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateAuthenticated && m.accessToken != ""
}

// Claims parses the display claims from the current access token.
func (m *Manager) Claims() (*Claims, error) {
	tok := m.AccessToken()
	if tok == "" {
		return nil, errors.New("no access token")
	}
	return ParseClaims(tok)
}

// adoptToken installs a freshly issued token: access token in memory, rotated
// refresh token persisted, timer re-armed from the token's lifetime.
func (m *Manager) adoptToken(tok *oauth2.Token) {
	if tok.RefreshToken != "" {
		_ = m.store.SetRefreshToken(tok.RefreshToken)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessToken = tok.AccessToken
	m.state = StateAuthenticated
	m.scheduleRefreshLocked(tok.Expiry)
}

// scheduleRefreshLocked cancels any armed timer and arms a new one, keeping
// the at-most-one-timer invariant. Callers hold m.mu.
func (m *Manager) scheduleRefreshLocked(expiry time.Time) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if expiry.IsZero() {
		return
	}

	delay := time.Until(expiry) - refreshLead
	if delay < minRefreshDelay {
		delay = minRefreshDelay
	}
	m.timer = time.AfterFunc(delay, func() {
		_ = m.Refresh(context.Background())
	})
}

// expire clears everything after a failed refresh and notifies the UI.
func (m *Manager) expire() {
	m.mu.Lock()
	m.clearSessionLocked()
	fn := m.onExpired
	m.mu.Unlock()

	_ = m.store.SetRefreshToken("")
	_ = m.events.Write(observability.Event{
		Level: "WARN", Type: observability.EventAuthExpired,
		Message: "refresh failed, session cleared",
	})
	if fn != nil {
		fn()
	}
}

func (m *Manager) clearSessionLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.accessToken = ""
	m.loginState = ""
	m.state = StateLoggedOut
}
