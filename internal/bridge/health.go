package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/mqtt"
)

// DefaultHealthInterval is how often health is published when no interval is configured.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatusSource reports the status of every configured entry.
// Implemented by *integration.Host.
type StatusSource interface {
	Statuses() []coordinator.Status
}

// DeviceCounter reports the number of registered devices.
// Implemented by *device.Registry.
type DeviceCounter interface {
	GetDeviceCount() int
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the bridge software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Statuses provides per-entry coordinator status.
	Statuses StatusSource

	// Devices provides the managed device count. May be nil.
	Devices DeviceCounter
}

// HealthReporter publishes bridge health at regular intervals.
//
// The status is derived from the entries:
//   - unhealthy when any entry has lost authorization
//   - degraded when there are no entries, MQTT is down, or the last pass of an entry failed
//   - healthy otherwise
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	statuses  StatusSource
	devices   DeviceCounter
	topics    mqtt.Topics

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}

	return &HealthReporter{
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		statuses:  cfg.Statuses,
		devices:   cfg.Devices,
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for this reporter. Passing nil disables logging.
func (h *HealthReporter) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

func (h *HealthReporter) getLogger() Logger {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	return h.logger
}

// Start begins periodic health reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		if err := h.publishStatus(HealthStopping, "bridge stopping"); err != nil {
			h.getLogger().Debug("publishing stopping status failed", "error", err)
		}
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.Evaluate()
	return h.publishStatus(status, reason)
}

// Evaluate derives the bridge status and the reason for it.
func (h *HealthReporter) Evaluate() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	statuses := h.entryStatuses()
	if len(statuses) == 0 {
		return HealthDegraded, "no Baby Buddy entries set up"
	}

	for _, st := range statuses {
		if st.State == coordinator.StateUnauthenticated.String() {
			return HealthUnhealthy, fmt.Sprintf("entry %s: authorization failed", st.EntryID)
		}
	}
	for _, st := range statuses {
		if st.LastError != "" {
			return HealthDegraded, fmt.Sprintf("entry %s: %s", st.EntryID, st.LastError)
		}
	}
	return HealthHealthy, ""
}

// Message builds a health message with the given status.
func (h *HealthReporter) Message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:        mqtt.Protocol,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Entries:       h.entryStatuses(),
		Reason:        reason,
	}
	if h.devices != nil {
		msg.DevicesManaged = h.devices.GetDeviceCount()
	}
	return msg
}

func (h *HealthReporter) entryStatuses() []coordinator.Status {
	if h.statuses == nil {
		return nil
	}
	return h.statuses.Statuses()
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.getLogger().Warn("publishing health failed", "error", err)
			}
		}
	}
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.Message(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topics.Health(), payload, qosAtLeastOnce, true)
}
