package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrGrillNotFound) {
//	    // handle not found case
//	}
var (
	// ErrGrillNotFound is returned when a serial is not in the registry.
	ErrGrillNotFound = errors.New("device: grill not found")

	// ErrInvalidGrill is returned when grill validation fails.
	ErrInvalidGrill = errors.New("device: invalid grill")
)
