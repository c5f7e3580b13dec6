package babybuddy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds every request on its own. There is no pass-level deadline.
	DefaultTimeout = 10 * time.Second

	// maxErrorBody caps how much of an error response is kept for logs.
	maxErrorBody = 4 << 10
)

// Config identifies one Baby Buddy server.
type Config struct {
	// Host includes the scheme, e.g. "http://babybuddy.local".
	Host string
	Port int

	// APIKey is sent as "Authorization: Token {APIKey}". Never logged.
	APIKey string

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration

	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client
}

// Logger is the logging interface used by the client.
// Compatible with *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client talks to the Baby Buddy REST API.
//
// Connect must succeed before Get, Post, Patch or Delete can resolve an
// endpoint name to a URL.
//
// Thread Safety:
//   - All methods are safe for concurrent use. The endpoint map is replaced
//     as a whole by Connect.
type Client struct {
	baseURL string
	header  string
	timeout time.Duration
	http    *http.Client

	mu        sync.RWMutex
	endpoints map[string]string

	logger Logger
}

// New creates a client. No request is made until Connect.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL: fmt.Sprintf("%s:%d", strings.TrimRight(cfg.Host, "/"), cfg.Port),
		header:  "Token " + cfg.APIKey,
		timeout: timeout,
		http:    httpClient,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger. Passing nil restores the no-op logger.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// BaseURL returns "{host}:{port}".
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Connect fetches the root listing at {host}:{port}/api/ and stores it as
// the endpoint map.
//
// Returns:
//   - error: ErrAuthorization on 401/403, ErrConnect on any other failure
func (c *Client) Connect(ctx context.Context) error {
	var listing map[string]string
	err := c.getURL(ctx, c.baseURL+"/api/", &listing)
	switch {
	case err == nil:
	case IsAuthFailure(err):
		return fmt.Errorf("%w: %w", ErrAuthorization, err)
	case errors.Is(err, ErrConnect):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	c.mu.Lock()
	c.endpoints = listing
	c.mu.Unlock()

	c.logger.Debug("connected to Baby Buddy", "url", c.baseURL, "endpoints", len(listing))
	return nil
}

// Endpoints returns a copy of the endpoint map discovered by Connect.
func (c *Client) Endpoints() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.endpoints)
}

// EndpointURL resolves an endpoint name through the map discovered by Connect.
func (c *Client) EndpointURL(endpoint string) (string, error) {
	c.mu.RLock()
	u, ok := c.endpoints[endpoint]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEndpoint, endpoint)
	}
	return u, nil
}

// Get fetches {endpoint URL}{suffix} and decodes the JSON body into out.
// The suffix is appended verbatim, e.g. "?child=1&limit=1".
//
// Returns:
//   - error: ErrUnknownEndpoint, *StatusError for non-2xx, or wrapped ErrConnect
func (c *Client) Get(ctx context.Context, endpoint, suffix string, out any) error {
	u, err := c.EndpointURL(endpoint)
	if err != nil {
		return err
	}
	return c.getURL(ctx, u+suffix, out)
}

// Children lists the children on the server.
func (c *Client) Children(ctx context.Context) (*ChildList, error) {
	var list ChildList
	if err := c.Get(ctx, ChildrenEndpoint, "", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Latest returns the most recent record of endpoint for a child, or an empty
// record when the child has none.
func (c *Client) Latest(ctx context.Context, endpoint string, childID int) (Record, error) {
	var list RecordList
	if err := c.Get(ctx, endpoint, LatestQuery(childID), &list); err != nil {
		return nil, err
	}
	if len(list.Results) == 0 || list.Results[0] == nil {
		return Record{}, nil
	}
	return list.Results[0], nil
}

// LatestQuery is the query suffix selecting a child's single latest record.
func LatestQuery(childID int) string {
	return "?child=" + strconv.Itoa(childID) + "&limit=1"
}

// Post creates a record with a form-encoded body and expects 201 Created.
// The created record is returned.
//
// A failure is logged with the server-reported body and returned.
func (c *Client) Post(ctx context.Context, endpoint string, data url.Values) (Record, error) {
	u, err := c.EndpointURL(endpoint)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("POST data", "endpoint", endpoint, "fields", fieldNames(data))

	var created Record
	if err := c.write(ctx, http.MethodPost, u, data, http.StatusCreated, &created); err != nil {
		c.logger.Error("could not create record", "endpoint", endpoint, "error", err)
		return nil, err
	}
	return created, nil
}

// Patch updates {endpoint URL}{id}/ and expects 200 OK.
func (c *Client) Patch(ctx context.Context, endpoint string, id int, data url.Values) (Record, error) {
	u, err := c.EndpointURL(endpoint)
	if err != nil {
		return nil, err
	}

	var updated Record
	if err := c.write(ctx, http.MethodPatch, recordURL(u, id), data, http.StatusOK, &updated); err != nil {
		c.logger.Error("could not update record", "endpoint", endpoint, "id", id, "error", err)
		return nil, err
	}
	return updated, nil
}

// Delete removes {endpoint URL}{id}/ and expects 204 No Content.
func (c *Client) Delete(ctx context.Context, endpoint string, id int) error {
	u, err := c.EndpointURL(endpoint)
	if err != nil {
		return err
	}

	if err := c.write(ctx, http.MethodDelete, recordURL(u, id), nil, http.StatusNoContent, nil); err != nil {
		c.logger.Error("could not delete record", "endpoint", endpoint, "id", id, "error", err)
		return err
	}
	return nil
}

func recordURL(endpointURL string, id int) string {
	return endpointURL + strconv.Itoa(id) + "/"
}

func (c *Client) getURL(ctx context.Context, u string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", u, err)
	}
	return nil
}

func (c *Client) write(ctx context.Context, method, u string, data url.Values, want int, out any) error {
	var body io.Reader
	if data != nil {
		body = strings.NewReader(data.Encode())
	}

	resp, err := c.do(ctx, method, u, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s: %w", u, err)
	}
	return nil
}

// do sends one request bounded by the client timeout. Transport errors and
// timeouts are wrapped in ErrConnect. The response body is fully read before
// the timeout context is released.
func (c *Client) do(ctx context.Context, method, u string, body io.Reader) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: building %s request: %w", ErrConnect, method, err)
	}
	req.Header.Set("Authorization", c.header)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %s %s: %w", ErrConnect, method, u, err)
	}

	buf, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %w", ErrConnect, u, err)
	}
	resp.Body = io.NopCloser(strings.NewReader(string(buf)))
	return resp, nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // body is already buffered
	se := &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	if resp.Request != nil {
		se.Method = resp.Request.Method
		se.URL = resp.Request.URL.String()
	}
	return se
}

// fieldNames lists form keys without values; values may contain notes.
func fieldNames(data url.Values) []string {
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	return names
}
