// Package bridge connects the Baby Buddy integration to the Gray Logic MQTT bus
// and time series store.
//
// # Architecture
//
//	┌─────────────────┐   MQTT   ┌─────────────────┐   HTTP   ┌─────────────┐
//	│   Gray Logic    │◄────────►│     bridge      │◄────────►│ Baby Buddy  │
//	│      Core       │          │  (this pkg)     │          │   server    │
//	└─────────────────┘          └────────┬────────┘          └─────────────┘
//	                                      │
//	                                      ▼
//	                                  InfluxDB
//
// # Key Responsibilities
//
//   - Publish each child's latest records as retained state after every pass
//   - Execute service calls received on command topics and acknowledge them
//   - Publish bridge health derived from the coordinators' status
//   - Export numeric record fields as telemetry
//
// # Topics
//
//	graylogic/state/babybuddy/{entry}-{child_id}   retained child state
//	graylogic/command/babybuddy/{service}          service calls
//	graylogic/ack/babybuddy/{service}              call results
//	graylogic/health/babybuddy                     retained bridge health
//
// # Usage
//
//	b := bridge.New(bridge.Config{MQTT: mqttClient, Services: host, Devices: registry})
//	host.AddListener(b.PublishSnapshot)
//	if err := b.Start(ctx); err != nil {
//	    return err
//	}
//	defer b.Stop()
package bridge
