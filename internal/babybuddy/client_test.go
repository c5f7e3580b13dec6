package babybuddy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

const testAPIKey = "test-api-key-0123456789"

// fakeServer is a minimal Baby Buddy API backed by httptest.
type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]http.HandlerFunc
}

type recordedRequest struct {
	Method string
	URI    string
	Auth   string
	Form   url.Values
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{handlers: make(map[string]http.HandlerFunc)}
	fs.Server = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.Close)

	fs.handle("GET /api/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"children": fs.URL + "/api/children/",
			"feedings": fs.URL + "/api/feedings/",
			"sleep":    fs.URL + "/api/sleep/",
		})
	})
	return fs
}

func (fs *fakeServer) handle(pattern string, h http.HandlerFunc) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.handlers[pattern] = h
}

func (fs *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(body))

	fs.mu.Lock()
	fs.requests = append(fs.requests, recordedRequest{
		Method: r.Method,
		URI:    r.URL.RequestURI(),
		Auth:   r.Header.Get("Authorization"),
		Form:   form,
	})
	h, ok := fs.handlers[r.Method+" "+r.URL.Path]
	fs.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	h(w, r)
}

func (fs *fakeServer) lastRequest() recordedRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.requests[len(fs.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, fs *fakeServer) *Client {
	t.Helper()
	u, err := url.Parse(fs.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	var port int
	if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return New(Config{
		Host:    u.Scheme + "://" + u.Hostname(),
		Port:    port,
		APIKey:  testAPIKey,
		Timeout: 2 * time.Second,
	})
}

func connectedClient(t *testing.T, fs *fakeServer) *Client {
	t.Helper()
	c := newTestClient(t, fs)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return c
}

// =============================================================================
// Connect
// =============================================================================

func TestConnect_PopulatesEndpointMap(t *testing.T) {
	fs := newFakeServer(t)
	c := connectedClient(t, fs)

	got := c.Endpoints()
	if len(got) != 3 {
		t.Fatalf("Endpoints() = %v, want 3 entries", got)
	}
	if got["feedings"] != fs.URL+"/api/feedings/" {
		t.Errorf("Endpoints()[feedings] = %q", got["feedings"])
	}

	req := fs.lastRequest()
	if req.URI != "/api/" {
		t.Errorf("Connect requested %q, want /api/", req.URI)
	}
	if req.Auth != "Token "+testAPIKey {
		t.Errorf("Authorization = %q, want Token header", req.Auth)
	}
}

func TestConnect_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "forbidden", status: http.StatusForbidden, wantErr: ErrAuthorization},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: ErrAuthorization},
		{name: "server error", status: http.StatusInternalServerError, wantErr: ErrConnect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeServer(t)
			fs.handle("GET /api/", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, map[string]string{"detail": "nope"})
			})

			err := newTestClient(t, fs).Connect(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Connect() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnect_Timeout(t *testing.T) {
	fs := newFakeServer(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	fs.handle("GET /api/", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	c := newTestClient(t, fs)
	c.timeout = 50 * time.Millisecond

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrConnect) {
		t.Errorf("Connect() error = %v, want ErrConnect", err)
	}
	if errors.Is(err, ErrAuthorization) {
		t.Error("timeout must not be reported as an authorization failure")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	c := New(Config{Host: "http://127.0.0.1", Port: 1, APIKey: "k", Timeout: time.Second})
	if err := c.Connect(context.Background()); !errors.Is(err, ErrConnect) {
		t.Errorf("Connect() error = %v, want ErrConnect", err)
	}
}

// =============================================================================
// Get
// =============================================================================

func TestGet_BeforeConnect(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(t, fs)

	var out RecordList
	if err := c.Get(context.Background(), "feedings", "", &out); !errors.Is(err, ErrUnknownEndpoint) {
		t.Errorf("Get() error = %v, want ErrUnknownEndpoint", err)
	}
}

func TestGet_UnknownEndpoint(t *testing.T) {
	c := connectedClient(t, newFakeServer(t))

	var out RecordList
	if err := c.Get(context.Background(), "weight", "", &out); !errors.Is(err, ErrUnknownEndpoint) {
		t.Errorf("Get() error = %v, want ErrUnknownEndpoint", err)
	}
}

func TestGet_ExactURLFromMap(t *testing.T) {
	fs := newFakeServer(t)
	// Endpoint URLs come from the server verbatim, including unusual paths.
	fs.handle("GET /api/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"feedings": fs.URL + "/custom/path/feedings-v2/",
		})
	})
	fs.handle("GET /custom/path/feedings-v2/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, RecordList{Count: 0, Results: []Record{}})
	})

	c := connectedClient(t, fs)

	var out RecordList
	if err := c.Get(context.Background(), "feedings", "?child=42&limit=1", &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	req := fs.lastRequest()
	if req.URI != "/custom/path/feedings-v2/?child=42&limit=1" {
		t.Errorf("Get() requested %q", req.URI)
	}
	if req.Auth != "Token "+testAPIKey {
		t.Errorf("Authorization = %q", req.Auth)
	}
}

func TestGet_StatusError(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle("GET /api/feedings/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"child": "Invalid pk"})
	})
	c := connectedClient(t, fs)

	var out RecordList
	err := c.Get(context.Background(), "feedings", LatestQuery(9), &out)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Get() error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", se.StatusCode)
	}
	if se.Method != http.MethodGet {
		t.Errorf("Method = %q, want GET", se.Method)
	}
	if se.Body == "" {
		t.Error("expected server body on StatusError")
	}
	if IsAuthFailure(err) {
		t.Error("400 must not be an auth failure")
	}
}

func TestLatest(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle("GET /api/feedings/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("child") == "1" {
			writeJSON(w, http.StatusOK, map[string]any{
				"count":   1,
				"results": []map[string]any{{"id": 17, "amount": 90.5}},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"count": 0, "results": []any{}})
	})
	c := connectedClient(t, fs)

	rec, err := c.Latest(context.Background(), "feedings", 1)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if id, ok := rec.ID(); !ok || id != 17 {
		t.Errorf("ID() = %d, %v, want 17", id, ok)
	}

	empty, err := c.Latest(context.Background(), "feedings", 2)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Latest() for child without records = %v, want empty record", empty)
	}
}

func TestChildren(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle("GET /api/children/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, ChildList{
			Count:   1,
			Results: []Child{{ID: 1, FirstName: "Ada", LastName: "Lovelace", BirthDate: "2026-01-05"}},
		})
	})
	c := connectedClient(t, fs)

	list, err := c.Children(context.Background())
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	if list.Count != 1 || list.Results[0].Name() != "Ada Lovelace" {
		t.Errorf("Children() = %+v", list)
	}
}

// =============================================================================
// Writes
// =============================================================================

func TestPost(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle("POST /api/children/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"id": 3, "first_name": "Grace"})
	})
	c := connectedClient(t, fs)

	created, err := c.Post(context.Background(), "children", url.Values{
		"first_name": {"Grace"},
		"last_name":  {"Hopper"},
		"birth_date": {"2026-02-01"},
	})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if id, _ := created.ID(); id != 3 {
		t.Errorf("created ID = %d, want 3", id)
	}

	req := fs.lastRequest()
	if req.Method != http.MethodPost || req.URI != "/api/children/" {
		t.Errorf("request = %s %s", req.Method, req.URI)
	}
	if req.Form.Get("last_name") != "Hopper" {
		t.Errorf("form last_name = %q", req.Form.Get("last_name"))
	}
}

func TestPost_UnexpectedStatusReturned(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle("POST /api/feedings/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"type": {"This field is required."}})
	})
	c := connectedClient(t, fs)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	_, err := c.Post(context.Background(), "feedings", url.Values{"child": {"1"}})

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("Post() error = %v, want 400 *StatusError", err)
	}
	if logger.count("error") != 1 {
		t.Errorf("expected one error log, got %d", logger.count("error"))
	}
}

func TestPatchAndDelete_RecordURL(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle("PATCH /api/sleep/12/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 12, "notes": "restless"})
	})
	fs.handle("DELETE /api/sleep/12/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := connectedClient(t, fs)
	ctx := context.Background()

	updated, err := c.Patch(ctx, "sleep", 12, url.Values{"notes": {"restless"}})
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if updated["notes"] != "restless" {
		t.Errorf("Patch() record = %v", updated)
	}
	if req := fs.lastRequest(); req.URI != "/api/sleep/12/" || req.Form.Get("notes") != "restless" {
		t.Errorf("Patch request = %+v", req)
	}

	if err := c.Delete(ctx, "sleep", 12); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if req := fs.lastRequest(); req.Method != http.MethodDelete || req.URI != "/api/sleep/12/" {
		t.Errorf("Delete request = %+v", req)
	}
}

func TestDelete_WrongStatus(t *testing.T) {
	fs := newFakeServer(t)
	fs.handle("DELETE /api/sleep/5/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{})
	})
	c := connectedClient(t, fs)

	err := c.Delete(context.Background(), "sleep", 5)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusOK {
		t.Errorf("Delete() error = %v, want *StatusError with 200", err)
	}
}

func TestWrite_TransportFailure(t *testing.T) {
	fs := newFakeServer(t)
	c := connectedClient(t, fs)
	fs.Close()

	if _, err := c.Post(context.Background(), "feedings", url.Values{}); !errors.Is(err, ErrConnect) {
		t.Errorf("Post() error = %v, want ErrConnect", err)
	}
}

// recordingLogger counts log calls per level.
type recordingLogger struct {
	mu     sync.Mutex
	counts map[string]int
}

func (l *recordingLogger) log(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[level]++
}

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[level]
}

func (l *recordingLogger) Debug(string, ...any) { l.log("debug") }
func (l *recordingLogger) Info(string, ...any)  { l.log("info") }
func (l *recordingLogger) Warn(string, ...any)  { l.log("warn") }
func (l *recordingLogger) Error(string, ...any) { l.log("error") }
