// Package fragment is the HTTP client for the remote fragment store. Each
// board task maps to exactly one fragment; the fragment's content field holds
// the codec-encoded task state and its tags identify the board's fragments
// within a shared workspace.
package fragment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Fragment is the store's atomic content record on the wire.
type Fragment struct {
	ID        string   `json:"id,omitempty"`
	Workspace string   `json:"workspace,omitempty"`
	Type      string   `json:"type,omitempty"`
	Title     string   `json:"title,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags,omitempty"`
}

// ListOptions filter a List call. Workspace and Type are identifiers defined
// by the store; Limit caps the result size.
type ListOptions struct {
	Workspace string
	Type      string
	Limit     int
}

// Store is the remote collaborator consumed by the sync engine. All calls
// carry a bearer token and can fail on transport or auth errors; the caller
// owns reconciliation.
type Store interface {
	List(ctx context.Context, opts ListOptions) ([]Fragment, error)
	Create(ctx context.Context, f Fragment) (*Fragment, error)
	Update(ctx context.Context, id string, f Fragment) (*Fragment, error)
	Delete(ctx context.Context, id string) error
}

// TokenSource supplies the current bearer token. An empty string sends the
// request unauthenticated and lets the store reject it.
type TokenSource func() string

// Client implements Store over the fragment store's JSON HTTP API.
type Client struct {
	baseURL string
	httpc   *http.Client
	token   TokenSource
}

// NewClient creates a Store client for the API rooted at baseURL.
func NewClient(baseURL string, token TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		token:   token,
	}
}

// listResponse is the envelope returned by the list endpoint.
type listResponse struct {
	Fragments []Fragment `json:"fragments"`
}

// List fetches fragments matching opts.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]Fragment, error) {
	q := url.Values{}
	if opts.Workspace != "" {
		q.Set("workspace", opts.Workspace)
	}
	if opts.Type != "" {
		q.Set("type", opts.Type)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	endpoint := c.baseURL + "/fragments"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	var out listResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("listing fragments: %w", err)
	}
	return out.Fragments, nil
}

// Create stores a new fragment and returns it with the server-assigned ID.
func (c *Client) Create(ctx context.Context, f Fragment) (*Fragment, error) {
	var out Fragment
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/fragments", &f, &out); err != nil {
		return nil, fmt.Errorf("creating fragment: %w", err)
	}
	return &out, nil
}

// Update replaces the stored fields of an existing fragment.
func (c *Client) Update(ctx context.Context, id string, f Fragment) (*Fragment, error) {
	var out Fragment
	endpoint := c.baseURL + "/fragments/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPut, endpoint, &f, &out); err != nil {
		return nil, fmt.Errorf("updating fragment %s: %w", id, err)
	}
	return &out, nil
}

// Delete removes a fragment. The board never calls this for tasks (tasks are
// soft-deleted via Update); it exists for workspace housekeeping.
func (c *Client) Delete(ctx context.Context, id string) error {
	endpoint := c.baseURL + "/fragments/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("deleting fragment %s: %w", id, err)
	}
	return nil
}

// do issues one JSON request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from the fragment store.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fragment store returned %d: %s", e.Status, e.Body)
}
