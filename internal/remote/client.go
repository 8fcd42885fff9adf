// Package remote talks to peer tracemon agents that evaluate the
// @agent(...) sub-formulas of local monitors.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/ir"
)

// DefaultTimeout bounds one request to a peer.
const DefaultTimeout = 10 * time.Second

// Client calls the HTTP API of one peer.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the agent called name at baseURL.
func NewClient(name, baseURL string) *Client {
	return &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Name returns the agent name the client talks to.
func (c *Client) Name() string { return c.name }

// RegisterFormula asks the peer to evaluate rf and returns the peer's
// knowledge vector.
func (c *Client) RegisterFormula(ctx context.Context, rf engine.RemoteFormula) ([]ir.KVEntry, error) {
	var out []ir.KVEntry
	if err := c.call(ctx, http.MethodPost, "/api/v1/remote/formulas", rf, &out); err != nil {
		return nil, fmt.Errorf("register formula %s on %s: %w", rf.FID, c.name, err)
	}
	return out, nil
}

// FetchKnowledge returns the peer's knowledge vector.
func (c *Client) FetchKnowledge(ctx context.Context) ([]ir.KVEntry, error) {
	var out []ir.KVEntry
	if err := c.call(ctx, http.MethodGet, "/api/v1/kv", nil, &out); err != nil {
		return nil, fmt.Errorf("fetch knowledge from %s: %w", c.name, err)
	}
	return out, nil
}

// PushEvent appends an event in text form to a trace of the peer.
// A blocked event is not an error; the Result reports it.
func (c *Client) PushEvent(ctx context.Context, traceName, event string) (engine.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/traces/"+traceName+"/events", strings.NewReader(event))
	if err != nil {
		return engine.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	var res engine.Result
	if err := c.do(req, &res, http.StatusOK, http.StatusForbidden); err != nil {
		return engine.Result{}, fmt.Errorf("push event to %s: %w", c.name, err)
	}
	return res, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out, http.StatusOK)
}

func (c *Client) do(req *http.Request, out any, accept ...int) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range accept {
		ok = ok || resp.StatusCode == code
	}
	if !ok {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// StatusError is a non-success reply from a peer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("peer returned status %d: %s", e.Code, e.Body)
}
