package mqtt

import "errors"

var (
	// ErrNotConnected means the broker link is down. The bridge keeps
	// polling the device and retries on the next tick.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed is returned by Connect when the broker cannot be reached.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed   = errors.New("mqtt: publish failed")
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrPayloadTooLarge is returned for payloads over 1MB.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")

	ErrInvalidQoS   = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
