package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/config"
)

// testConfig targets a local Mosquitto broker at 127.0.0.1:1883.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker or skips the test.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	client, err := Connect(testConfig(clientID))
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // test cleanup
	return client
}

// =============================================================================
// Offline behaviour
// =============================================================================

func TestPublish_ValidationBeforeConnection(t *testing.T) {
	c := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{name: "empty topic", topic: "", qos: 1, wantErr: ErrInvalidTopic},
		{name: "invalid qos", topic: "graylogic/x", qos: 3, wantErr: ErrInvalidQoS},
		{name: "oversized payload", topic: "graylogic/x", qos: 1, payload: make([]byte, maxPayloadSize+1), wantErr: ErrPublishFailed},
		{name: "not connected", topic: "graylogic/x", qos: 1, wantErr: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishJSON_EncodingError(t *testing.T) {
	c := &Client{}
	err := c.PublishJSON("graylogic/x", map[string]any{"bad": make(chan int)}, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_ValidationBeforeConnection(t *testing.T) {
	c := &Client{}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: error = %v", err)
	}
	if err := c.Subscribe("t", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos: error = %v", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: error = %v", err)
	}
	if err := c.Subscribe("t", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("offline: error = %v", err)
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("unsubscribe empty topic: error = %v", err)
	}
}

func TestHealthCheck_Offline(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if (&Client{}).Close() != nil {
		t.Error("Close() on unconnected client should be nil")
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig("graylogic-babybuddy-refused")
	cfg.Broker.Port = 19999

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestStatusMessage(t *testing.T) {
	raw, err := statusMessage("bridge-1", "offline", "graceful_shutdown")
	if err != nil {
		t.Fatalf("statusMessage() error = %v", err)
	}

	var got statusPayload
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != "offline" || got.ClientID != "bridge-1" || got.Reason != "graceful_shutdown" {
		t.Errorf("statusMessage() = %+v", got)
	}
	if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339", got.Timestamp)
	}
}

// =============================================================================
// Topics
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ChildState", topics.ChildState("nursery", 1), "graylogic/state/babybuddy/nursery-1"},
		{"Command", topics.Command("add_feeding"), "graylogic/command/babybuddy/add_feeding"},
		{"Ack", topics.Ack("add_feeding"), "graylogic/ack/babybuddy/add_feeding"},
		{"Health", topics.Health(), "graylogic/health/babybuddy"},
		{"SystemStatus", topics.SystemStatus(), "graylogic/system/status"},
		{"AllCommands", topics.AllCommands(), "graylogic/command/babybuddy/+"},
		{"AllChildStates", topics.AllChildStates(), "graylogic/state/babybuddy/+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestServiceFromTopic(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"graylogic/command/babybuddy/add_child", "add_child", true},
		{"graylogic/command/babybuddy/", "", false},
		{"graylogic/command/babybuddy/a/b", "", false},
		{"graylogic/command/knx/add_child", "", false},
		{"graylogic/ack/babybuddy/add_child", "", false},
	}

	for _, tt := range tests {
		got, ok := ServiceFromTopic(tt.topic)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ServiceFromTopic(%q) = (%q, %v), want (%q, %v)", tt.topic, got, ok, tt.want, tt.wantOK)
		}
	}
}

// =============================================================================
// Broker round trips (skipped without a local broker)
// =============================================================================

func TestPublishSubscribeRoundtrip(t *testing.T) {
	sub := connectOrSkip(t, "graylogic-babybuddy-test-sub")
	pub := connectOrSkip(t, "graylogic-babybuddy-test-pub")

	topic := Topics{}.Command(fmt.Sprintf("roundtrip_%d", time.Now().UnixNano()))
	received := make(chan []byte, 1)

	wildcard := Topics{}.AllCommands()
	err := sub.Subscribe(wildcard, 1, func(got string, payload []byte) error {
		if got == topic {
			received <- payload
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(wildcard) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishJSON(topic, map[string]string{"entry": "nursery"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != `{"entry":"nursery"}` {
			t.Errorf("payload = %s", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	if err := sub.Unsubscribe(wildcard); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if sub.HasSubscription(wildcard) {
		t.Error("HasSubscription() = true after Unsubscribe")
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	client := connectOrSkip(t, "graylogic-babybuddy-test-panic")
	logger := &recordingLogger{}
	client.SetLogger(logger)

	topic := Topics{}.Ack(fmt.Sprintf("panic_%d", time.Now().UnixNano()))
	done := make(chan struct{})
	err := client.Subscribe(topic, 1, func(string, []byte) error {
		defer close(done)
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := client.Publish(topic, []byte("x"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}
	time.Sleep(50 * time.Millisecond)
	if logger.errorCount() == 0 {
		t.Error("expected recovered panic to be logged")
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}
