package mqtt

import (
	"fmt"
	"strings"
)

const (
	// TopicPrefix is the root of every topic the bridge uses.
	TopicPrefix = "graylogic"

	// Protocol is the bridge name used in the second topic level.
	Protocol = "babybuddy"
)

// Topics builds the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.ChildState("nursery", 1) // graylogic/state/babybuddy/nursery-1
type Topics struct{}

// ChildState returns the retained state topic for one child of an entry.
//
// Example: graylogic/state/babybuddy/nursery-1
func (Topics) ChildState(entryID string, childID int) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, ChildAddress(entryID, childID))
}

// Command returns the topic a service call is published on.
//
// Example: graylogic/command/babybuddy/add_feeding
func (Topics) Command(service string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, service)
}

// Ack returns the topic the result of a service call is published on.
//
// Example: graylogic/ack/babybuddy/add_feeding
func (Topics) Ack(service string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, service)
}

// Health returns the retained bridge health topic.
//
// Example: graylogic/health/babybuddy
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// SystemStatus returns the retained online/offline topic (also the Last Will).
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllCommands matches every service call topic.
//
// Pattern: graylogic/command/babybuddy/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// AllChildStates matches every child state topic.
//
// Pattern: graylogic/state/babybuddy/+
func (Topics) AllChildStates() string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, Protocol)
}

// ChildAddress is the per-child address segment: "{entry}-{child_id}".
func ChildAddress(entryID string, childID int) string {
	return fmt.Sprintf("%s-%d", entryID, childID)
}

// ServiceFromTopic extracts the service name from a command topic.
// It returns false for topics outside graylogic/command/babybuddy/.
func ServiceFromTopic(topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/command/%s/", TopicPrefix, Protocol)
	service, ok := strings.CutPrefix(topic, prefix)
	if !ok || service == "" || strings.Contains(service, "/") {
		return "", false
	}
	return service, true
}
