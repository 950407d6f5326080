package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/handheld/internal/db"
	"github.com/banshee-data/handheld/internal/httputil"
	"github.com/banshee-data/handheld/internal/network"
	"github.com/banshee-data/handheld/internal/orchestrator"
)

// Client talks to a running device's admin API.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a client for the API rooted at base, e.g.
// "http://localhost:8080". A nil hc uses http.DefaultClient.
func NewClient(base string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// State fetches the current snapshot. Fields tagged json:"-" are left zero.
func (c *Client) State(ctx context.Context) (orchestrator.Snapshot, error) {
	var snap orchestrator.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/state", nil, &snap)
	return snap, err
}

// Input injects a button press by name.
func (c *Client) Input(ctx context.Context, action string) error {
	return c.do(ctx, http.MethodPost, "/api/input", url.Values{"action": {action}}, nil)
}

// Network queues a network command by name. creds are sent only when set.
func (c *Client) Network(ctx context.Context, cmd string, creds network.Credentials) error {
	form := url.Values{"cmd": {cmd}}
	if creds.SSID != "" {
		form.Set("ssid", creds.SSID)
	}
	if creds.Password != "" {
		form.Set("password", creds.Password)
	}
	return c.do(ctx, http.MethodPost, "/api/network", form, nil)
}

// Transitions returns the newest n journaled transitions.
func (c *Client) Transitions(ctx context.Context, n int) ([]db.TransitionRecord, error) {
	var recs []db.TransitionRecord
	err := c.do(ctx, http.MethodGet, "/api/transitions?limit="+strconv.Itoa(n), nil, &recs)
	return recs, err
}
