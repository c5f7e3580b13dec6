package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
)

type fakeStatuses []coordinator.Status

func (f fakeStatuses) Statuses() []coordinator.Status { return f }

type fakeCounter int

func (f fakeCounter) GetDeviceCount() int { return int(f) }

func TestHealthReporter_Evaluate(t *testing.T) {
	polling := coordinator.StatePolling.String()
	unauth := coordinator.StateUnauthenticated.String()

	tests := []struct {
		name       string
		connected  bool
		statuses   fakeStatuses
		wantStatus HealthStatus
		wantReason string
	}{
		{
			name:       "mqtt down",
			connected:  false,
			statuses:   fakeStatuses{{EntryID: "nursery", State: polling}},
			wantStatus: HealthDegraded,
			wantReason: "MQTT disconnected",
		},
		{
			name:       "no entries",
			connected:  true,
			wantStatus: HealthDegraded,
			wantReason: "no Baby Buddy entries set up",
		},
		{
			name:       "all polling",
			connected:  true,
			statuses:   fakeStatuses{{EntryID: "a", State: polling}, {EntryID: "b", State: polling}},
			wantStatus: HealthHealthy,
		},
		{
			name:       "last pass failed",
			connected:  true,
			statuses:   fakeStatuses{{EntryID: "a", State: polling, LastError: "timeout"}},
			wantStatus: HealthDegraded,
			wantReason: "entry a: timeout",
		},
		{
			name:      "unauthenticated wins over failed pass",
			connected: true,
			statuses: fakeStatuses{
				{EntryID: "a", State: polling, LastError: "timeout"},
				{EntryID: "b", State: unauth, LastError: "denied"},
			},
			wantStatus: HealthUnhealthy,
			wantReason: "entry b: authorization failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewMockMQTTClient()
			client.connected = tt.connected
			h := NewHealthReporter(HealthReporterConfig{Publisher: client, Statuses: tt.statuses})

			status, reason := h.Evaluate()
			if status != tt.wantStatus || reason != tt.wantReason {
				t.Errorf("Evaluate() = %q, %q; want %q, %q", status, reason, tt.wantStatus, tt.wantReason)
			}
		})
	}
}

func TestHealthReporter_PublishNow(t *testing.T) {
	client := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{
		Version:   "1.2.3",
		Publisher: client,
		Statuses:  fakeStatuses{{EntryID: "nursery", State: "polling", Children: 2}},
		Devices:   fakeCounter(2),
	})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow: %v", err)
	}

	msgs := client.PublishedTo("graylogic/health/babybuddy")
	if len(msgs) != 1 {
		t.Fatalf("health messages = %d, want 1", len(msgs))
	}
	if !msgs[0].Retained {
		t.Error("health must be retained")
	}

	var msg HealthMessage
	if err := json.Unmarshal(msgs[0].Payload, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Bridge != "babybuddy" || msg.Version != "1.2.3" || msg.Status != HealthHealthy {
		t.Errorf("msg = %+v", msg)
	}
	if msg.DevicesManaged != 2 || len(msg.Entries) != 1 || msg.Entries[0].Children != 2 {
		t.Errorf("msg = %+v", msg)
	}
}

func TestHealthReporter_StartStop(t *testing.T) {
	client := NewMockMQTTClient()
	h := NewHealthReporter(HealthReporterConfig{
		Interval:  10 * time.Millisecond,
		Publisher: client,
		Statuses:  fakeStatuses{{EntryID: "nursery", State: "polling"}},
	})

	h.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for len(client.PublishedTo("graylogic/health/babybuddy")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no periodic health published")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Stop()
	h.Stop()

	msgs := client.PublishedTo("graylogic/health/babybuddy")
	var last HealthMessage
	if err := json.Unmarshal(msgs[len(msgs)-1].Payload, &last); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if last.Status != HealthStopping {
		t.Errorf("last status = %q, want stopping", last.Status)
	}
}

func TestHealthReporter_NilPublisher(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{})
	if err := h.PublishNow(); err != nil {
		t.Errorf("PublishNow without publisher: %v", err)
	}
	if status, _ := h.Evaluate(); status != HealthDegraded {
		t.Errorf("status = %q, want degraded", status)
	}
}
