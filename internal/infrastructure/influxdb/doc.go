// Package influxdb writes Baby Buddy record telemetry to InfluxDB v2.
//
// After each successful poll the numeric fields of every child's latest
// record (feeding amount, weight, temperature, sleep duration and so on) are
// written as one point per record:
//
//	babybuddy_record,entry=nursery,child_id=1,endpoint=weight weight=4.2
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry is optional
//	}
//	defer client.Close()
//
//	client.WriteRecord("nursery", 1, "weight", map[string]float64{"weight": 4.2}, takenAt)
//
// Writes are batched and non-blocking; register SetOnError to log failures.
package influxdb
