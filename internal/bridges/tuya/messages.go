package tuya

import (
	"encoding/json"
	"errors"
	"time"
)

// MQTT message types exchanged with the rest of Gray Logic.

// CommandMessage asks the bridge to apply one command.
// Topic: graylogic/command/tuya/{bridge_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgment.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`

	// Command is a datapoint name from the table (e.g. "power", "mode").
	// Ignored when Index is set.
	Command string `json:"command"`

	// Index writes Value to a datapoint directly, bypassing translation.
	Index int `json:"dp,omitempty"`

	// Value is the command argument in the bridge's vocabulary.
	Value json.RawMessage `json:"value"`

	// Source indicates where the command originated. Defaults to "mqtt".
	Source string `json:"source,omitempty"`
}

// DecodeValue returns Value as a generic JSON value, nil when absent.
func (c CommandMessage) DecodeValue() (any, error) {
	if len(c.Value) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(c.Value, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the device took the write.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command was rejected or could not be sent.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/tuya/{bridge_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`

	Command string `json:"command,omitempty"`
	Index   int    `json:"dp,omitempty"`

	// Value is the device-native value written.
	Value any `json:"value,omitempty"`

	// State is the refreshed status after an accepted write.
	State *CanonicalStatus `json:"state,omitempty"`

	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g., "DEVICE_UNREACHABLE", "INVALID_COMMAND").
	Code string `json:"code"`

	Message string `json:"message"`

	// ValidValues lists the accepted values for an enumeration rejection.
	ValidValues []string `json:"valid_values,omitempty"`
}

// Error codes for command failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeReadOnly          = "READ_ONLY"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// StateMessage carries the canonical status of the device.
// Topic: graylogic/state/tuya/{bridge_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string          `json:"device_id"`
	Timestamp time.Time       `json:"timestamp"`
	Protocol  string          `json:"protocol"`
	Unit      TemperatureUnit `json:"unit"`
	State     CanonicalStatus `json:"state"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates MQTT and the device are both reachable.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge runs but MQTT or the device is down.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/tuya
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string        `json:"bridge"`
	Timestamp     time.Time     `json:"timestamp"`
	Status        HealthStatus  `json:"status"`
	Version       string        `json:"version"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	DeviceID      string        `json:"device_id"`
	Statistics    *ManagerStats `json:"statistics,omitempty"`

	// Reason explains a degraded or transitional status.
	Reason string `json:"reason,omitempty"`
}

// NewAckMessage builds an accepted acknowledgment from a command result.
func NewAckMessage(cmd CommandMessage, deviceID string, res *CommandResult) AckMessage {
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    AckAccepted,
		Protocol:  ProtocolName,
		Command:   res.Command,
		Index:     res.Index,
		Value:     res.Value,
	}
	st := res.Status
	ack.State = &st
	return ack
}

// NewAckError builds a failed acknowledgment, classifying err into an
// error code.
func NewAckError(cmd CommandMessage, deviceID string, err error) AckMessage {
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Status:    AckFailed,
		Protocol:  ProtocolName,
		Command:   cmd.Command,
		Index:     cmd.Index,
		Error:     &AckError{Code: ackErrorCode(err), Message: err.Error()},
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		ack.Error.ValidValues = ve.Valid
	}
	return ack
}

func ackErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return ErrCodeInvalidCommand
	case errors.Is(err, ErrReadOnly):
		return ErrCodeReadOnly
	case errors.Is(err, ErrInvalidValue):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrWriteFailed):
		return ErrCodeDeviceUnreachable
	default:
		return ErrCodeBridgeError
	}
}

// NewStateMessage wraps a status for the state topic.
func NewStateMessage(deviceID string, unit TemperatureUnit, st CanonicalStatus) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Protocol:  ProtocolName,
		Unit:      unit,
		State:     st,
	}
}

// NewHealthMessage creates a health report.
func NewHealthMessage(bridgeID, version, deviceID string, status HealthStatus, stats ManagerStats, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		DeviceID:      deviceID,
		Statistics:    &stats,
	}
}
