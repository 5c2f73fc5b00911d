package g32

import (
	"context"
	"fmt"
	"time"
)

// Counter names a diagnostic counter.
type Counter string

// Diagnostic counters. Login and grill-list calls are account wide; the
// TCP counters are kept per grill.
const (
	CounterLoginCalls         Counter = "api_login_calls"
	CounterGrillsCalls        Counter = "api_grills_calls"
	CounterConnectionAttempts Counter = "tcp_connection_attempts"
	CounterReconnects         Counter = "tcp_reconnect_counter"
)

// GlobalKey is the bus key for account-wide diagnostics.
const GlobalKey = ""

// Global reports whether c is an account-wide counter.
func (c Counter) Global() bool {
	return c == CounterLoginCalls || c == CounterGrillsCalls
}

// ParseCounter validates a counter name.
func ParseCounter(s string) (Counter, error) {
	switch c := Counter(s); c {
	case CounterLoginCalls, CounterGrillsCalls, CounterConnectionAttempts, CounterReconnects:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCounter, s)
	}
}

// CounterValue is a persisted counter. Serial is empty for global
// counters.
type CounterValue struct {
	Serial  string
	Counter Counter
	Value   uint64
}

// CounterLoader supplies counter values persisted by a previous run.
// The manager calls it once at startup.
type CounterLoader interface {
	LoadCounters(ctx context.Context) ([]CounterValue, error)
}

// Diagnostics is a snapshot of the counters visible for one grill,
// including the account-wide counters. For GlobalKey snapshots Serial is
// empty and the per-grill fields are zero.
type Diagnostics struct {
	Serial string `json:"serial,omitempty"`

	APILoginCalls  uint64 `json:"api_login_calls"`
	APIGrillsCalls uint64 `json:"api_grills_calls"`

	ConnectionAttempts uint64 `json:"tcp_connection_attempts"`
	Reconnects         uint64 `json:"tcp_reconnect_counter"`
	DecodeErrors       uint64 `json:"decode_errors"`

	// NextAttempt is when the next connection attempt is due, nil unless
	// waiting between attempts.
	NextAttempt *time.Time `json:"next_connection_attempt"`

	// LastDataReceived is when the last packet arrived, nil before the first.
	LastDataReceived *time.Time `json:"last_data_received"`

	Retry RetryState `json:"retry"`
}

// CounterValues returns the persistable counters in d.
func (d Diagnostics) CounterValues() []CounterValue {
	if d.Serial == GlobalKey {
		return []CounterValue{
			{Counter: CounterLoginCalls, Value: d.APILoginCalls},
			{Counter: CounterGrillsCalls, Value: d.APIGrillsCalls},
		}
	}
	return []CounterValue{
		{Serial: d.Serial, Counter: CounterConnectionAttempts, Value: d.ConnectionAttempts},
		{Serial: d.Serial, Counter: CounterReconnects, Value: d.Reconnects},
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
