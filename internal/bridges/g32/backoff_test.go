package g32

import (
	"testing"
	"time"
)

func TestPolicy_Schedule(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)

	want := []struct {
		delay time.Duration
		tier  Tier
	}{
		{2 * time.Second, TierRapid},
		{2 * time.Second, TierRapid},
		{2 * time.Second, TierRapid},
		{2 * time.Second, TierRapid},
		{2 * time.Second, TierRapid},
		{30 * time.Second, TierBackoff},
		{60 * time.Second, TierBackoff},
		{120 * time.Second, TierBackoff},
		{240 * time.Second, TierBackoff},
		{300 * time.Second, TierBackoff},
		{300 * time.Second, TierBackoff},
	}

	var s RetryState
	for i, w := range want {
		var d Decision
		d, s = p.Next(s, now)
		if d.Action != ActionRetry {
			t.Fatalf("failure %d: Action = %s, want retry", i+1, d.Action)
		}
		if d.Delay != w.delay || d.Tier != w.tier {
			t.Errorf("failure %d: got %v/%s, want %v/%s", i+1, d.Delay, d.Tier, w.delay, w.tier)
		}
	}
}

func TestPolicy_EnteringBackoffClearsRapidCount(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)

	s := RetryState{RapidAttempts: p.RapidAttempts}
	d, s := p.Next(s, now)

	if d.Tier != TierBackoff {
		t.Fatalf("Tier = %s, want backoff", d.Tier)
	}
	if s.RapidAttempts != 0 {
		t.Errorf("RapidAttempts = %d, want 0", s.RapidAttempts)
	}
	if !s.BackoffSince.Equal(now) {
		t.Errorf("BackoffSince = %v, want %v", s.BackoffSince, now)
	}
	if s.BackoffAttempts != 1 {
		t.Errorf("BackoffAttempts = %d, want 1", s.BackoffAttempts)
	}
}

func TestPolicy_GiveUp(t *testing.T) {
	p := DefaultPolicy()
	epoch := time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)
	s := RetryState{BackoffAttempts: 7, BackoffSince: epoch}

	tests := []struct {
		name    string
		elapsed time.Duration
		want    Action
	}{
		{name: "inside window", elapsed: 29 * time.Minute, want: ActionRetry},
		{name: "exactly at window", elapsed: 30 * time.Minute, want: ActionRetry},
		{name: "past window", elapsed: 30*time.Minute + time.Second, want: ActionGiveUp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := p.Next(s, epoch.Add(tt.elapsed))
			if d.Action != tt.want {
				t.Errorf("Action = %s, want %s", d.Action, tt.want)
			}
		})
	}
}

func TestPolicy_Next_DoesNotMutateInput(t *testing.T) {
	p := DefaultPolicy()
	s := RetryState{RapidAttempts: 2}
	_, next := p.Next(s, time.Now())

	if s.RapidAttempts != 2 {
		t.Errorf("input RapidAttempts = %d, want 2", s.RapidAttempts)
	}
	if next.RapidAttempts != 3 {
		t.Errorf("next RapidAttempts = %d, want 3", next.RapidAttempts)
	}
}

func TestRetryState_Reset(t *testing.T) {
	s := RetryState{RapidAttempts: 3, BackoffAttempts: 4, BackoffSince: time.Now()}
	s = s.Reset()
	if s != (RetryState{}) {
		t.Errorf("Reset() = %+v, want zero", s)
	}
	if s.InBackoff() {
		t.Error("InBackoff() = true after Reset")
	}
}

func TestPolicy_BackoffDelayCapped(t *testing.T) {
	p := DefaultPolicy()
	for _, attempt := range []int{5, 16, 17, 64, 1 << 20} {
		if got := p.backoffDelay(attempt); got != p.MaxDelay {
			t.Errorf("backoffDelay(%d) = %v, want %v", attempt, got, p.MaxDelay)
		}
	}
}
