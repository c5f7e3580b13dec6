package influxdb

import "errors"

// Sentinel errors for InfluxDB operations. Check with errors.Is:
//
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry switched off in config.yaml
//	}
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps asynchronous write errors delivered to SetOnError.
	ErrWriteFailed = errors.New("influxdb: write failed")

	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
