package g32

import "time"

// Default retry policy values.
const (
	DefaultRapidAttempts = 5
	DefaultRapidDelay    = 2 * time.Second
	DefaultInitialDelay  = 30 * time.Second
	DefaultMaxDelay      = 300 * time.Second
	DefaultGiveUpAfter   = 30 * time.Minute
)

// maxBackoffShift keeps InitialDelay << attempt from overflowing.
const maxBackoffShift = 16

// Action is what the manager does after a failed session.
type Action string

const (
	// ActionRetry waits Decision.Delay and connects again.
	ActionRetry Action = "retry"

	// ActionGiveUp disables the grill until it is re-enabled externally.
	ActionGiveUp Action = "give_up"
)

// Tier identifies which retry tier classified a failure.
type Tier string

const (
	TierRapid   Tier = "rapid"
	TierBackoff Tier = "backoff"
)

// Decision is the outcome of evaluating the retry policy.
type Decision struct {
	Action Action
	Delay  time.Duration
	Tier   Tier
}

// RetryState is the failure history of one grill.
//
// RapidAttempts counts failures in the rapid tier and is cleared when the
// backoff tier starts. BackoffAttempts and BackoffSince are only set while
// in the backoff tier.
type RetryState struct {
	RapidAttempts   int       `json:"rapid_attempts"`
	BackoffAttempts int       `json:"backoff_attempts"`
	BackoffSince    time.Time `json:"backoff_since,omitzero"`
}

// InBackoff reports whether the backoff tier has started.
func (s RetryState) InBackoff() bool {
	return !s.BackoffSince.IsZero()
}

// Reset clears all failure history. Called on the first data from the
// relay and on an explicit enable.
func (s RetryState) Reset() RetryState {
	return RetryState{}
}

// Policy decides how long to wait after a failed session.
//
// Failures 1..RapidAttempts retry after RapidDelay. Later failures wait
// min(MaxDelay, InitialDelay × 2^k) with k counting from 0, and the first
// of them records the backoff epoch. Once more than GiveUpAfter has passed
// since the epoch the policy gives up.
type Policy struct {
	RapidAttempts int
	RapidDelay    time.Duration
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	GiveUpAfter   time.Duration
}

// DefaultPolicy returns the policy used against the vendor relay.
func DefaultPolicy() Policy {
	return Policy{
		RapidAttempts: DefaultRapidAttempts,
		RapidDelay:    DefaultRapidDelay,
		InitialDelay:  DefaultInitialDelay,
		MaxDelay:      DefaultMaxDelay,
		GiveUpAfter:   DefaultGiveUpAfter,
	}
}

// Next classifies one failure and returns the decision with the updated
// state. It does not mutate s.
//
// Parameters:
//   - s: Failure history before this failure
//   - now: Time of the failure
//
// Returns:
//   - Decision: Retry with a delay, or give up
//   - RetryState: History including this failure
func (p Policy) Next(s RetryState, now time.Time) (Decision, RetryState) {
	if !s.InBackoff() && s.RapidAttempts < p.RapidAttempts {
		s.RapidAttempts++
		return Decision{Action: ActionRetry, Delay: p.RapidDelay, Tier: TierRapid}, s
	}

	if !s.InBackoff() {
		s.BackoffSince = now
		s.RapidAttempts = 0
	}

	if now.Sub(s.BackoffSince) > p.GiveUpAfter {
		return Decision{Action: ActionGiveUp, Tier: TierBackoff}, s
	}

	delay := p.backoffDelay(s.BackoffAttempts)
	s.BackoffAttempts++
	return Decision{Action: ActionRetry, Delay: delay, Tier: TierBackoff}, s
}

// backoffDelay returns min(MaxDelay, InitialDelay << attempt).
func (p Policy) backoffDelay(attempt int) time.Duration {
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	delay := p.InitialDelay << attempt
	if delay > p.MaxDelay || delay <= 0 {
		return p.MaxDelay
	}
	return delay
}
