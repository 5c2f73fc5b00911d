package g32

import "errors"

// Domain errors for the G32 bridge package.
var (
	// ErrInvalidPacket is returned when a frame cannot be decoded.
	ErrInvalidPacket = errors.New("g32: invalid packet")

	// ErrConnectionFailed is returned when the relay connection fails or
	// breaks with an I/O error.
	ErrConnectionFailed = errors.New("g32: relay connection failed")

	// ErrHandshakeTimeout is returned when the relay sends nothing within
	// the heartbeat timeout after the subscribe message.
	ErrHandshakeTimeout = errors.New("g32: no data from relay before heartbeat timeout")

	// ErrSessionClosed is returned when the relay closes the stream.
	ErrSessionClosed = errors.New("g32: relay closed the connection")

	// ErrUnknownGrill is returned for a serial the manager does not know.
	ErrUnknownGrill = errors.New("g32: unknown grill")

	// ErrUnknownCounter is returned when a counter name is not recognised.
	ErrUnknownCounter = errors.New("g32: unknown counter")

	// ErrManagerClosed is returned by control calls after Close.
	ErrManagerClosed = errors.New("g32: manager closed")

	// ErrInvalidCommand is returned for an unrecognised MQTT command payload.
	ErrInvalidCommand = errors.New("g32: invalid command")
)
