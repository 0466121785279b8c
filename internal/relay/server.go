// Package relay is the small local HTTP server the browser client talks to.
// It serves the non-secret client configuration, forwards token requests to
// the identity provider so the browser never needs a CORS exemption there,
// and reverse-proxies fragment store calls under /api.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fragboard/internal/observability"
)

// Config carries the relay's upstreams and the values published to clients.
type Config struct {
	Addr          string
	StoreURL      string
	TokenURL      string
	ClientID      string
	AuthURL       string
	AllowedOrigin string
	Workspace     string
	FragmentType  string
}

// Server is the relay HTTP server.
type Server struct {
	cfg    Config
	router *gin.Engine
	events observability.EventLog
	httpc  *http.Client
	proxy  *httputil.ReverseProxy
	srv    *http.Server
}

// New builds a Server. events may be nil.
func New(cfg Config, events observability.EventLog) (*Server, error) {
	if events == nil {
		events = observability.Nop()
	}

	upstream, err := url.Parse(cfg.StoreURL)
	if err != nil {
		return nil, fmt.Errorf("parsing store url: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		events: events,
		httpc:  &http.Client{Timeout: 15 * time.Second},
	}

	s.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.URL.Path = singleJoin(upstream.Path, strings.TrimPrefix(pr.In.URL.Path, "/api"))
			// Bearer token from the browser rides through untouched.
			pr.Out.Header.Set("Authorization", pr.In.Header.Get("Authorization"))
		},
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/config", s.handleConfig)
	r.POST("/auth/token", s.handleToken)
	r.Any("/api/*path", s.handleAPI)

	s.router = r
	return s, nil
}

// Router exposes the gin handler for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("relay server: %w", err)
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	}
}

// handleConfig publishes the client configuration. Nothing secret goes here:
// the client ID and endpoints are public by design of the PKCE flow.
func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"clientId":      s.cfg.ClientID,
		"authUrl":       s.cfg.AuthURL,
		"tokenUrl":      "/auth/token",
		"allowedOrigin": s.cfg.AllowedOrigin,
		"workspace":     s.cfg.Workspace,
		"fragmentType":  s.cfg.FragmentType,
	})
}

// handleToken forwards the form-encoded token request to the provider and
// relays the response verbatim, status code included, so oauth2 error bodies
// reach the client unchanged.
func (s *Server) handleToken(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading request body"})
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, s.cfg.TokenURL, strings.NewReader(string(body)))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "building provider request"})
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpc.Do(req)
	if err != nil {
		_ = s.events.Write(observability.Event{
			Level: "ERROR", Type: observability.EventSyncFailed,
			Message: "token endpoint unreachable",
			Data:    map[string]any{"error": err.Error()},
		})
		c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider unreachable"})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "reading provider response"})
		return
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), data)
}

func (s *Server) handleAPI(c *gin.Context) {
	s.proxy.ServeHTTP(c.Writer, c.Request)
}

func singleJoin(a, b string) string {
	a = strings.TrimSuffix(a, "/")
	if !strings.HasPrefix(b, "/") {
		b = "/" + b
	}
	return a + b
}
