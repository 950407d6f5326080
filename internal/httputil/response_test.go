package httputil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "unknown input")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "unknown input" {
		t.Errorf("error = %s, want 'unknown input'", resp["error"])
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"ticks": 42})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["ticks"] != 42 {
		t.Errorf("ticks = %d, want 42", resp["ticks"])
	}
}

func TestRequireMethod(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	if !RequireMethod(rec, httptest.NewRequest(http.MethodPost, "/api/input", nil), http.MethodPost) {
		t.Error("POST rejected")
	}

	rec = httptest.NewRecorder()
	if RequireMethod(rec, httptest.NewRequest(http.MethodGet, "/api/input", nil), http.MethodPost) {
		t.Error("GET accepted")
	}
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow = %q, want POST", allow)
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		write func(http.ResponseWriter, string)
		want  int
	}{
		{"bad request", BadRequest, http.StatusBadRequest},
		{"unavailable", ServiceUnavailable, http.StatusServiceUnavailable},
		{"internal", InternalServerError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		tt.write(rec, tt.name)
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestHandlerClient(t *testing.T) {
	t.Parallel()

	var remote string
	c := &HandlerClient{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remote = r.RemoteAddr
		WriteJSONOK(w, map[string]string{"path": r.URL.Path})
	})}

	req, _ := http.NewRequest(http.MethodGet, "http://device/api/state?x=1", nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || string(body) != "{\"path\":\"/api/state\"}\n" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
	if remote != "127.0.0.1:0" {
		t.Errorf("RemoteAddr = %q, want loopback", remote)
	}
	if got := c.Requests(); len(got) != 1 || got[0] != "GET /api/state?x=1" {
		t.Errorf("Requests() = %q", got)
	}
}
