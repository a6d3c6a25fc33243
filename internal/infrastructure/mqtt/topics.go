package mqtt

import "strings"

// DefaultTopicPrefix is the root of every topic when none is configured.
const DefaultTopicPrefix = "graylogic"

// Protocol is the protocol segment used by the mini-split bridge.
const Protocol = "tuya"

// Topics builds bridge topics under a common prefix.
//
// The layout is flat: {prefix}/{category}/{protocol}/{id}
//
//	topics := mqtt.NewTopics("graylogic")
//	topics.Command("tuya", "living-room")
//	// Returns: "graylogic/command/tuya/living-room"
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for prefix, trimming stray slashes. An empty
// prefix selects DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

func (t Topics) join(parts ...string) string {
	return t.prefix() + "/" + strings.Join(parts, "/")
}

// Command is where clients send commands to a bridge instance.
//
// Example: graylogic/command/tuya/minisplit
func (t Topics) Command(protocol, id string) string {
	return t.join("command", protocol, id)
}

// Ack is where a bridge acknowledges each command.
//
// Example: graylogic/ack/tuya/minisplit
func (t Topics) Ack(protocol, id string) string {
	return t.join("ack", protocol, id)
}

// State carries the retained canonical state of a bridge instance.
//
// Example: graylogic/state/tuya/minisplit
func (t Topics) State(protocol, id string) string {
	return t.join("state", protocol, id)
}

// Health carries the retained health report for a protocol.
//
// Example: graylogic/health/tuya
func (t Topics) Health(protocol string) string {
	return t.join("health", protocol)
}

// SystemStatus carries the online/offline status of MQTT clients.
//
// Example: graylogic/system/status
func (t Topics) SystemStatus() string {
	return t.join("system", "status")
}

// AllStates matches every bridge state topic.
//
// Pattern: graylogic/state/+/+
func (t Topics) AllStates() string {
	return t.join("state", "+", "+")
}

// AllCommands matches every bridge command topic.
//
// Pattern: graylogic/command/+/+
func (t Topics) AllCommands() string {
	return t.join("command", "+", "+")
}
