package g32

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DebugLogCapacity is the number of entries kept by a DebugLog.
const DebugLogCapacity = 50

// debugLogKey is the bus key debug snapshots are published on.
const debugLogKey = "debug"

// DebugEntry is one line of the debug log.
type DebugEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String formats the entry as "[15:04:05] message".
func (e DebugEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format(time.TimeOnly), e.Message)
}

// DebugLog is a bounded, newest-first log of connection events intended
// for display to the user. It records nothing while disabled, and
// disabling it discards the buffer.
//
// Thread Safety: All methods are safe for concurrent use.
type DebugLog struct {
	mu      sync.Mutex
	enabled bool
	entries []DebugEntry
	now     func() time.Time
	bus     *Bus[[]DebugEntry]
}

// NewDebugLog creates a disabled debug log.
func NewDebugLog(now func() time.Time) *DebugLog {
	if now == nil {
		now = time.Now
	}
	return &DebugLog{
		entries: make([]DebugEntry, 0, DebugLogCapacity),
		now:     now,
		bus:     NewBus[[]DebugEntry](nil),
	}
}

// Addf records a formatted message if the log is enabled.
func (d *DebugLog) Addf(format string, args ...any) {
	d.mu.Lock()
	if !d.enabled {
		d.mu.Unlock()
		return
	}
	d.push(fmt.Sprintf(format, args...))
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.bus.Publish(debugLogKey, snapshot)
}

// SetEnabled switches debug mode. Disabling clears all entries.
func (d *DebugLog) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	if enabled {
		d.push("debug mode enabled")
	} else {
		d.entries = d.entries[:0]
	}
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.bus.Publish(debugLogKey, snapshot)
}

// Enabled reports whether debug mode is on.
func (d *DebugLog) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Entries returns a copy of the log, newest first.
func (d *DebugLog) Entries() []DebugEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// String renders the log one entry per line, newest first, or a short
// notice when the log is off or empty.
func (d *DebugLog) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.enabled {
		return "debug log is disabled"
	}
	if len(d.entries) == 0 {
		return "no debug messages yet"
	}

	lines := make([]string, len(d.entries))
	for i, e := range d.entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Subscribe registers fn to receive a snapshot after every change.
func (d *DebugLog) Subscribe(fn func([]DebugEntry)) (unsubscribe func()) {
	return d.bus.Subscribe(debugLogKey, fn)
}

// push prepends an entry, dropping the oldest beyond capacity.
func (d *DebugLog) push(msg string) {
	entry := DebugEntry{Time: d.now(), Message: msg}
	if len(d.entries) < DebugLogCapacity {
		d.entries = append(d.entries, DebugEntry{})
	}
	copy(d.entries[1:], d.entries[:len(d.entries)-1])
	d.entries[0] = entry
}

func (d *DebugLog) snapshotLocked() []DebugEntry {
	out := make([]DebugEntry, len(d.entries))
	copy(out, d.entries)
	return out
}
