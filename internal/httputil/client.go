// Package httputil holds the JSON response helpers of the admin API and the
// client abstraction its callers use.
package httputil

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// HTTPClient is the part of *http.Client the admin client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HandlerClient serves requests with an in-process handler instead of the
// network. Requests appear to come from RemoteAddr, or loopback if unset.
type HandlerClient struct {
	Handler    http.Handler
	RemoteAddr string

	mu       sync.Mutex
	requests []string
}

func (c *HandlerClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req.Method+" "+req.URL.RequestURI())
	c.mu.Unlock()

	req.RemoteAddr = c.RemoteAddr
	if req.RemoteAddr == "" {
		req.RemoteAddr = "127.0.0.1:0"
	}
	rec := httptest.NewRecorder()
	c.Handler.ServeHTTP(rec, req)
	return rec.Result(), nil
}

// Requests returns "METHOD /path?query" for every request served.
func (c *HandlerClient) Requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.requests...)
}
