// Package mqtt connects the Baby Buddy bridge to the Gray Logic MQTT bus.
//
// The bridge publishes one retained state message per child, a retained
// health message, and acknowledgements for service calls received on the
// command topics:
//
//	graylogic/state/babybuddy/{entry}-{child_id}   retained, QoS 1
//	graylogic/health/babybuddy                      retained
//	graylogic/command/babybuddy/{service}           subscribed
//	graylogic/ack/babybuddy/{service}               published
//	graylogic/system/status                         online/offline, Last Will
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.ChildState("nursery", 1), state, true)
//
// TLS should be enabled (cfg.Broker.TLS) whenever the broker is not on the
// same host, because state payloads carry children's names.
package mqtt
