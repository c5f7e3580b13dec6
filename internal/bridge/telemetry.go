package bridge

import (
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-babybuddy/internal/babybuddy"
	"github.com/nerrad567/gray-logic-babybuddy/internal/coordinator"
)

// PointWriter queues one record's numeric values. Implemented by *influxdb.Client.
type PointWriter interface {
	WriteRecord(entryID string, childID int, endpoint string, values map[string]float64, ts time.Time)
}

// Telemetry writes the numeric fields of each snapshot's records to a time
// series store. A record is written once; later passes that return the same
// record id for the same slot are skipped.
//
// Thread Safety: Write is safe for concurrent use.
type Telemetry struct {
	writer PointWriter

	mu      sync.Mutex
	written map[string]int
}

// NewTelemetry creates a telemetry writer.
func NewTelemetry(w PointWriter) *Telemetry {
	return &Telemetry{
		writer:  w,
		written: make(map[string]int),
	}
}

// Write exports every new record in snap.
// It has the coordinator.Listener signature.
func (t *Telemetry) Write(snap *coordinator.Snapshot) {
	if snap == nil {
		return
	}

	for _, childID := range snap.ChildIDs() {
		for _, ep := range babybuddy.Endpoints() {
			rec, ok := snap.Latest(childID, ep.Key)
			if !ok {
				continue
			}
			values := ep.Telemetry(rec)
			if len(values) == 0 {
				continue
			}
			if id, ok := rec.ID(); ok && !t.markWritten(slotKey(snap.EntryID, childID, ep.Key), id) {
				continue
			}
			t.writer.WriteRecord(snap.EntryID, childID, ep.Key, values, ep.Timestamp(rec, snap.FetchedAt))
		}
	}
}

// markWritten records id for slot and reports whether it is new.
func (t *Telemetry) markWritten(slot string, id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.written[slot]; ok && prev == id {
		return false
	}
	t.written[slot] = id
	return true
}

func slotKey(entryID string, childID int, endpoint string) string {
	return entryID + "/" + strconv.Itoa(childID) + "/" + endpoint
}
