package bridge

import (
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/babybuddy"
	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
	"github.com/nerrad567/gray-logic-babybuddy/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-babybuddy/internal/integration"
)

// StateMessage is the retained state of one child.
// Topic: graylogic/state/babybuddy/{entry}-{child_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// DeviceID is the registry id of the child's device, when known.
	DeviceID string `json:"device_id,omitempty"`

	// Timestamp is when the snapshot was fetched (UTC).
	Timestamp time.Time `json:"timestamp"`

	// State holds the child's details and the latest record per endpoint:
	//   {"name": "Ada Lovelace", "birth_date": "2025-12-01",
	//    "feedings": {"id": 7, "start": "...", ...}, ...}
	State map[string]any `json:"state"`

	// Protocol is always "babybuddy".
	Protocol string `json:"protocol"`

	// Address is "{entry}-{child_id}".
	Address string `json:"address"`
}

// CommandMessage asks the bridge to invoke a service.
// Topic: graylogic/command/babybuddy/{service}
type CommandMessage struct {
	// ID correlates the command with its acknowledgment.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// Entry selects the Baby Buddy server. Optional with a single entry.
	Entry string `json:"entry,omitempty"`

	// Data holds the service fields, e.g. {"child": 1, "type": "formula"}.
	Data map[string]any `json:"data"`

	// Source indicates where the command originated ("api", "automation", "voice").
	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted indicates the server accepted the write.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage reports the outcome of a command.
// Topic: graylogic/ack/babybuddy/{service}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Entry     string    `json:"entry,omitempty"`
	Status    AckStatus `json:"status"`

	// Record is the record the server created or updated.
	Record babybuddy.Record `json:"record,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeUnknownService    = "UNKNOWN_SERVICE"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeNoRecord          = "NO_RECORD"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeServerError       = "SERVER_ERROR"
	ErrCodeServerUnreachable = "SERVER_UNREACHABLE"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// ErrorCode maps a service call error to an ack error code.
func ErrorCode(err error) string {
	var statusErr *babybuddy.StatusError
	switch {
	case errors.Is(err, integration.ErrInvalidCall),
		errors.Is(err, babybuddy.ErrValidation):
		return ErrCodeInvalidParameters
	case errors.Is(err, integration.ErrUnknownService),
		errors.Is(err, babybuddy.ErrUnknownEndpoint):
		return ErrCodeUnknownService
	case errors.Is(err, integration.ErrUnknownEntry),
		errors.Is(err, integration.ErrEntryRequired):
		return ErrCodeNotConfigured
	case errors.Is(err, integration.ErrNoRecord):
		return ErrCodeNoRecord
	case babybuddy.IsAuthFailure(err), errors.Is(err, coordinator.ErrAuthFailed):
		return ErrCodeAuthFailed
	case errors.As(err, &statusErr):
		return ErrCodeServerError
	case errors.Is(err, babybuddy.ErrConnect):
		return ErrCodeServerUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// NewAckMessage creates a success acknowledgment.
func NewAckMessage(cmd CommandMessage, service string, rec babybuddy.Record) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Service:   service,
		Entry:     cmd.Entry,
		Status:    AckAccepted,
		Record:    rec,
	}
}

// NewAckError creates a failure acknowledgment.
func NewAckError(cmd CommandMessage, service string, err error) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Service:   service,
		Entry:     cmd.Entry,
		Status:    AckFailed,
		Error: &AckError{
			Code:    ErrorCode(err),
			Message: err.Error(),
		},
	}
}

// NewStateMessage builds the state message for one child of a snapshot.
func NewStateMessage(snap *coordinator.Snapshot, child babybuddy.Child, deviceID string) StateMessage {
	state := map[string]any{
		"name":       child.Name(),
		"first_name": child.FirstName,
		"last_name":  child.LastName,
		"birth_date": child.BirthDate,
	}
	for key, rec := range snap.Records[child.ID] {
		state[key] = rec
	}
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: snap.FetchedAt.UTC(),
		State:     state,
		Protocol:  mqtt.Protocol,
		Address:   mqtt.ChildAddress(snap.EntryID, child.ID),
	}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthStarting  HealthStatus = "starting"
	HealthStopping  HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/babybuddy
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string       `json:"bridge"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Entries holds one status per configured server.
	Entries []coordinator.Status `json:"entries"`

	DevicesManaged int `json:"devices_managed"`

	// Reason explains a degraded or unhealthy status.
	Reason string `json:"reason,omitempty"`
}
