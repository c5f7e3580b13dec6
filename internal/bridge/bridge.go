package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-babybuddy/internal/audit"
	"github.com/nerrad567/gray-logic-babybuddy/internal/babybuddy"
	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
	"github.com/nerrad567/gray-logic-babybuddy/internal/device"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/mqtt"
)

const (
	// commandTimeout bounds one service call made on behalf of an MQTT command.
	commandTimeout = 30 * time.Second

	// lookupTimeout bounds the device lookup made while publishing state.
	lookupTimeout = 5 * time.Second

	qosAtLeastOnce byte = 1
)

// MQTTClient is the subset of *mqtt.Client the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// ServiceCaller invokes a named service. Implemented by *integration.Host.
type ServiceCaller interface {
	Call(ctx context.Context, service string, data map[string]any) (babybuddy.Record, error)
	EntryFor(data map[string]any) string
}

// DeviceLookup resolves a child to its registry device. Implemented by *device.Registry.
type DeviceLookup interface {
	GetDeviceByIdentifier(ctx context.Context, entryID, identifier string) (*device.Device, error)
}

// CallRecorder logs executed commands. Implemented by *audit.Recorder.
type CallRecorder interface {
	Record(call *audit.Call)
}

// Logger is the logging interface used by the bridge.
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

// Config holds the bridge's collaborators.
type Config struct {
	// MQTT is the broker connection. Required.
	MQTT MQTTClient

	// Services executes commands received on the command topics. Required.
	Services ServiceCaller

	// Devices fills device_id in state messages. May be nil.
	Devices DeviceLookup

	// Health publishes bridge health. May be nil.
	Health *HealthReporter

	// Audit records every executed command. May be nil.
	Audit CallRecorder

	Logger Logger
}

// Stats counts bridge activity since creation.
type Stats struct {
	StatesPublished  uint64 `json:"states_published"`
	StatesCleared    uint64 `json:"states_cleared"`
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
}

// Bridge connects the integration to the MQTT bus.
// It handles:
//   - Publishing each child's latest records as retained state after every pass
//   - Clearing the retained state of children that disappear
//   - Executing service calls received on command topics and acknowledging them
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt     MQTTClient
	services ServiceCaller
	devices  DeviceLookup
	health   *HealthReporter
	audit    CallRecorder
	topics   mqtt.Topics
	logger   Logger

	// Children published per entry, for clearing retained state.
	published   map[string]map[int]struct{}
	publishedMu sync.Mutex

	statesPublished  atomic.Uint64
	statesCleared    atomic.Uint64
	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64

	// Shutdown coordination
	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	stopMu    sync.Mutex
	stopped   bool
	stopOnce  sync.Once
}

// New creates a bridge. Call Start to begin receiving commands.
func New(cfg Config) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		mqtt:      cfg.MQTT,
		services:  cfg.Services,
		devices:   cfg.Devices,
		health:    cfg.Health,
		audit:     cfg.Audit,
		logger:    cfg.Logger,
		published: make(map[string]map[int]struct{}),
		ctx:       ctx,
		ctxCancel: cancel,
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	return b
}

// Start publishes the starting status, subscribes to the command topics and
// starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if b.health != nil {
		if err := b.health.PublishStarting(); err != nil {
			b.logger.Warn("publishing starting status failed", "error", err)
		}
	}

	topic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(topic, qosAtLeastOnce, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)

	if b.health != nil {
		b.health.Start(ctx)
		if err := b.health.PublishNow(); err != nil {
			b.logger.Warn("publishing health failed", "error", err)
		}
	}

	b.logger.Info("bridge started")
	return nil
}

// Stop unsubscribes, aborts in-flight commands and waits for them.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if err := b.mqtt.Unsubscribe(b.topics.AllCommands()); err != nil {
			b.logger.Debug("unsubscribing from commands failed", "error", err)
		}

		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()

		b.ctxCancel()
		b.wg.Wait()

		if b.health != nil {
			b.health.Stop()
		}
		b.logger.Info("bridge stopped")
	})
}

// Stats returns activity counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		StatesPublished:  b.statesPublished.Load(),
		StatesCleared:    b.statesCleared.Load(),
		CommandsReceived: b.commandsReceived.Load(),
		CommandsFailed:   b.commandsFailed.Load(),
	}
}

// PublishSnapshot publishes one retained state message per child of snap and
// clears the state of children published earlier but absent now.
// It has the coordinator.Listener signature.
func (b *Bridge) PublishSnapshot(snap *coordinator.Snapshot) {
	if snap == nil {
		return
	}

	current := make(map[int]struct{}, len(snap.Children))
	for _, child := range snap.Children {
		current[child.ID] = struct{}{}

		msg := NewStateMessage(snap, child, b.deviceID(snap.EntryID, child.ID))
		payload, err := json.Marshal(msg)
		if err != nil {
			b.logger.Error("marshalling state failed", "entry", snap.EntryID, "child_id", child.ID, "error", err)
			continue
		}
		topic := b.topics.ChildState(snap.EntryID, child.ID)
		if err := b.mqtt.Publish(topic, payload, qosAtLeastOnce, true); err != nil {
			b.logger.Error("publishing state failed", "topic", topic, "error", err)
			continue
		}
		b.statesPublished.Add(1)
	}

	b.publishedMu.Lock()
	previous := b.published[snap.EntryID]
	b.published[snap.EntryID] = current
	b.publishedMu.Unlock()

	for id := range previous {
		if _, ok := current[id]; ok {
			continue
		}
		// An empty retained payload deletes the retained message.
		topic := b.topics.ChildState(snap.EntryID, id)
		if err := b.mqtt.Publish(topic, nil, qosAtLeastOnce, true); err != nil {
			b.logger.Error("clearing state failed", "topic", topic, "error", err)
			continue
		}
		b.statesCleared.Add(1)
		b.logger.Debug("cleared state of removed child", "entry", snap.EntryID, "child_id", id)
	}
}

func (b *Bridge) deviceID(entryID string, childID int) string {
	if b.devices == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(b.ctx, lookupTimeout)
	defer cancel()
	d, err := b.devices.GetDeviceByIdentifier(ctx, entryID, strconv.Itoa(childID))
	if err != nil {
		return ""
	}
	return d.ID
}

// handleCommand parses a command and runs it in the background. Malformed
// commands are dropped; every parsed command gets an acknowledgment.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	service, ok := mqtt.ServiceFromTopic(topic)
	if !ok {
		return fmt.Errorf("not a command topic: %s", topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("parse command: %w", err)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	b.commandsReceived.Add(1)

	b.stopMu.Lock()
	if b.stopped {
		b.stopMu.Unlock()
		return nil
	}
	b.wg.Add(1)
	b.stopMu.Unlock()

	go func() {
		defer b.wg.Done()
		b.executeCommand(service, cmd)
	}()
	return nil
}

func (b *Bridge) executeCommand(service string, cmd CommandMessage) {
	b.logger.Info("received command",
		"command_id", cmd.ID,
		"service", service,
		"entry", cmd.Entry,
		"source", cmd.Source)

	data := make(map[string]any, len(cmd.Data)+1)
	for k, v := range cmd.Data {
		data[k] = v
	}
	if cmd.Entry != "" {
		data["entry"] = cmd.Entry
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	rec, err := b.services.Call(ctx, service, data)
	if b.audit != nil {
		b.audit.Record(audit.NewCall(service, b.services.EntryFor(data), data, audit.SourceMQTT, cmd.Source, rec, err))
	}
	if err != nil {
		b.commandsFailed.Add(1)
		b.logger.Warn("command failed", "command_id", cmd.ID, "service", service, "error", err)
		b.publishAck(NewAckError(cmd, service, err))
		return
	}
	b.publishAck(NewAckMessage(cmd, service, rec))
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("marshalling ack failed", "command_id", ack.CommandID, "error", err)
		return
	}
	topic := b.topics.Ack(ack.Service)
	if err := b.mqtt.Publish(topic, payload, qosAtLeastOnce, false); err != nil {
		b.logger.Error("publishing ack failed", "topic", topic, "error", err)
	}
}
