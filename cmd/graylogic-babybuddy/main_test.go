package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/logging"
)

const testSecret = "test-secret-for-development-only-0123456789"

// writeConfig writes a valid configuration with one entry and returns its path.
func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	configContent := fmt.Sprintf(`
site:
  id: test-site
  timezone: Europe/London

database:
  path: %q
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"
  qos: 1

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  enabled: true
  host: "127.0.0.1"
  port: 8090

security:
  jwt:
    secret: %q

babybuddy:
  entries:
    - id: nursery
      host: "http://babybuddy.local"
      port: 8000
      api_key: "test-key"
`, dbPath, testSecret)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

// ─── run ───────────────────────────────────────────────────────────

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want loading config failure", err)
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, writeConfig(t, ""))
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// ─── Config path ───────────────────────────────────────────────────

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"default", "", "", defaultConfigPath},
		{"env override", "", "/custom/path/config.yaml", "/custom/path/config.yaml"},
		{"flag wins", "/flag/config.yaml", "/custom/path/config.yaml", "/flag/config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GRAYLOGIC_CONFIG", tt.env)
			if got := resolveConfigPath(tt.flag); got != tt.want {
				t.Errorf("resolveConfigPath(%q) = %q, want %q", tt.flag, got, tt.want)
			}
		})
	}
}

// ─── Commands ──────────────────────────────────────────────────────

func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, version) {
		t.Errorf("output = %q, want prefix %q", out, version)
	}
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("GRAYLOGIC_JWT_SECRET", "")
	configPath := writeConfig(t, filepath.Join(t.TempDir(), "bb.db"))

	out, err := executeCmd(t, "token", "--config", configPath, "--subject", "dashboard", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	if err != nil {
		t.Fatalf("printed token does not verify: %v", err)
	}
	if claims.Subject != "dashboard" {
		t.Errorf("subject = %q, want dashboard", claims.Subject)
	}
	if claims.ExpiresAt == nil {
		t.Error("expected an expiry for a 1h ttl")
	}
}

func TestTokenCmd_BadConfig(t *testing.T) {
	if _, err := executeCmd(t, "token", "--config", "/nonexistent/config.yaml"); err == nil {
		t.Error("token should fail without a loadable config")
	}
}

// ─── Entry setup ───────────────────────────────────────────────────

// mockHost records SetupEntry calls and answers from a scripted error list.
type mockHost struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	called chan struct{}
}

func (m *mockHost) SetupEntry(_ context.Context, _ config.BabyBuddyEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var err error
	if m.calls < len(m.errs) {
		err = m.errs[m.calls]
	}
	m.calls++
	if m.called != nil {
		select {
		case m.called <- struct{}{}:
		default:
		}
	}
	return err
}

func (m *mockHost) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestEntrySetup(t *testing.T) {
	notReady := fmt.Errorf("%w: dial tcp: refused", coordinator.ErrNotReady)

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
	}{
		{"first attempt succeeds", nil, 1},
		{"retries until ready", []error{notReady, notReady}, 3},
		{"auth failure is terminal", []error{coordinator.ErrAuthFailed}, 1},
		{"other errors are terminal", []error{errors.New("boom")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &mockHost{errs: tt.errs}
			setup := newEntrySetup(host, testLogger())
			setup.initialDelay = time.Millisecond
			setup.maxDelay = 2 * time.Millisecond

			setup.Start(context.Background(), []config.BabyBuddyEntry{{ID: "nursery"}})
			setup.Wait()

			if got := host.callCount(); got != tt.wantCalls {
				t.Errorf("SetupEntry calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestEntrySetup_StopsOnCancel(t *testing.T) {
	notReady := fmt.Errorf("%w: timeout", coordinator.ErrNotReady)
	host := &mockHost{
		errs:   []error{notReady, notReady, notReady, notReady},
		called: make(chan struct{}, 1),
	}
	setup := newEntrySetup(host, testLogger())
	setup.initialDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	setup.Start(ctx, []config.BabyBuddyEntry{{ID: "nursery"}})

	select {
	case <-host.called:
	case <-time.After(time.Second):
		t.Fatal("SetupEntry was not called")
	}
	cancel()

	done := make(chan struct{})
	go func() {
		setup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("setup did not stop after cancel")
	}

	if got := host.callCount(); got != 1 {
		t.Errorf("SetupEntry calls = %d, want 1", got)
	}
}

func TestEntrySetup_AllEntries(t *testing.T) {
	host := &mockHost{}
	setup := newEntrySetup(host, testLogger())

	setup.Start(context.Background(), []config.BabyBuddyEntry{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	setup.Wait()

	if got := host.callCount(); got != 3 {
		t.Errorf("SetupEntry calls = %d, want 3", got)
	}
}
