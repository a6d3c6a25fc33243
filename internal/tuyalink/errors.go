package tuyalink

import "errors"

// Domain errors for the tuyalink package.
var (
	// ErrUnsupportedVersion is returned for any protocol version other than 3.3.
	ErrUnsupportedVersion = errors.New("tuyalink: unsupported protocol version")

	// ErrInvalidKey is returned when the local key is not 16 bytes.
	ErrInvalidKey = errors.New("tuyalink: local key must be 16 bytes")

	// ErrConnectionFailed is returned when the device cannot be dialled.
	ErrConnectionFailed = errors.New("tuyalink: connection failed")

	// ErrInvalidFrame is returned for malformed frames (prefix, suffix, length, CRC).
	ErrInvalidFrame = errors.New("tuyalink: invalid frame")

	// ErrDecrypt is returned when a payload cannot be decrypted or unpadded.
	ErrDecrypt = errors.New("tuyalink: decryption failed")

	// ErrDeviceError is returned when the device answers with a non-zero
	// return code or a plain-text error.
	ErrDeviceError = errors.New("tuyalink: device reported an error")

	// ErrClosed is returned for calls on a closed session.
	ErrClosed = errors.New("tuyalink: session closed")
)
