package cloud

import "errors"

// Domain errors for the cloud package.
var (
	// ErrAuthFailed is returned when the account API rejects the
	// credentials or returns no access token.
	ErrAuthFailed = errors.New("cloud: authentication failed")

	// ErrRequestFailed is returned for transport errors and unexpected
	// HTTP responses.
	ErrRequestFailed = errors.New("cloud: request failed")

	// ErrInvalidResponse is returned when a response body cannot be decoded.
	ErrInvalidResponse = errors.New("cloud: invalid response")
)
