package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement every Baby Buddy record is written to.
const Measurement = "babybuddy_record"

// RecordPoint builds the point for one child's latest record of one type.
//
// Tags are low cardinality (entry, child, endpoint); the numeric values are
// fields. The timestamp should be the record's own time when the server
// reports one, so re-polling the same record overwrites rather than duplicates.
func RecordPoint(entryID string, childID int, endpoint string, values map[string]float64, ts time.Time) *write.Point {
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}

	return write.NewPoint(
		Measurement,
		map[string]string{
			"entry":    entryID,
			"child_id": strconv.Itoa(childID),
			"endpoint": endpoint,
		},
		fields,
		ts,
	)
}

// WriteRecord queues a record point for writing. Records with no numeric
// values are skipped, as is everything while disconnected.
//
// Example:
//
//	client.WriteRecord("nursery", 1, "weight", map[string]float64{"weight": 4.2}, takenAt)
func (c *Client) WriteRecord(entryID string, childID int, endpoint string, values map[string]float64, ts time.Time) {
	if len(values) == 0 || !c.IsConnected() {
		return
	}
	c.writer.WritePoint(RecordPoint(entryID, childID, endpoint, values, ts))
}
