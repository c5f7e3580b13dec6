package audit

import (
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/babybuddy"
)

// Sources of a service call.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

// Status is the outcome of a service call.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Call is one service invocation.
type Call struct {
	ID       string `json:"id"`
	Service  string `json:"service"`
	EntryID  string `json:"entry_id,omitempty"`
	Source   string `json:"source"`
	Actor    string `json:"actor,omitempty"`
	Status   Status `json:"status"`
	RecordID int    `json:"record_id,omitempty"`
	Error    string `json:"error,omitempty"`

	// Data is the service data without the "entry" key.
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewCall describes the result of calling service with data.
//
// Parameters:
//   - service: service name
//   - entryID: the entry the call ran against; when empty, a string
//     "entry" in data is used
//   - data: service data as passed to the call, stored without "entry"
//   - source: SourceAPI or SourceMQTT
//   - actor: token subject or command source, may be empty
//   - rec: record returned by the call, may be nil
//   - err: call error; nil means StatusOK
func NewCall(service, entryID string, data map[string]any, source, actor string, rec babybuddy.Record, err error) *Call {
	call := &Call{
		Service: service,
		EntryID: entryID,
		Source:  source,
		Actor:   actor,
		Status:  StatusOK,

		CreatedAt: time.Now().UTC(),
	}

	if len(data) > 0 {
		call.Data = make(map[string]any, len(data))
		for k, v := range data {
			if k == "entry" {
				if s, ok := v.(string); ok && call.EntryID == "" {
					call.EntryID = s
				}
				continue
			}
			call.Data[k] = v
		}
	}

	if id, ok := rec.ID(); ok {
		call.RecordID = id
	}
	if err != nil {
		call.Status = StatusFailed
		call.Error = err.Error()
	}
	return call
}
