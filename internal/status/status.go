// Package status provides a thread-safe run summary for the bat-detector daemon.
// It is written by the dispatch loop (as a burst reporter) and read by the
// heartbeat and shutdown logging.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/bat-detector/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Chip          string
	QuietTicks    uint32
	QueueCapacity int
	HeartbeatMs   int64
	Pins          []int
}

// PinStats summarises the bursts seen on one input.
type PinStats struct {
	Pin       int
	Bursts    uint64
	Clicks    uint64
	LastBurst *logic.Burst
	LastAt    time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Pins       []PinStats
	QueueDepth int
	Dropped    uint64
	StartTime  time.Time
	Now        time.Time
	Config     Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// TotalBursts returns the bursts reported across all pins.
func (s Snapshot) TotalBursts() uint64 {
	var n uint64
	for _, p := range s.Pins {
		n += p.Bursts
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	now   func() time.Time
	start time.Time
	cfg   Config
	pins  map[int]*PinStats

	queueDepth int
	dropped    uint64
}

// NewTracker creates a Tracker with the given start time and config. Every
// pin in cfg.Pins is listed in snapshots, even before its first burst.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	t := &Tracker{
		now:   time.Now,
		start: startTime,
		cfg:   cfg,
		pins:  make(map[int]*PinStats),
	}
	for _, pin := range cfg.Pins {
		t.pins[pin] = &PinStats{Pin: pin}
	}
	return t
}

// Report records a completed burst. It satisfies report.Reporter.
func (t *Tracker) Report(b logic.Burst) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps, ok := t.pins[b.Pin]
	if !ok {
		ps = &PinStats{Pin: b.Pin}
		t.pins[b.Pin] = ps
	}
	ps.Bursts++
	ps.Clicks += uint64(b.Clicks)
	last := b
	ps.LastBurst = &last
	ps.LastAt = t.now()
	return nil
}

// SetQueue records the edge queue depth and the total of dropped edges.
func (t *Tracker) SetQueue(depth int, dropped uint64) {
	t.mu.Lock()
	t.queueDepth = depth
	t.dropped = dropped
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state, pins ordered
// ascending. The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := Snapshot{
		Pins:       make([]PinStats, 0, len(t.pins)),
		QueueDepth: t.queueDepth,
		Dropped:    t.dropped,
		StartTime:  t.start,
		Config:     t.cfg,
	}
	for _, ps := range t.pins {
		cp := *ps
		if ps.LastBurst != nil {
			lb := *ps.LastBurst
			cp.LastBurst = &lb
		}
		s.Pins = append(s.Pins, cp)
	}
	t.mu.RUnlock()

	sort.Slice(s.Pins, func(i, j int) bool { return s.Pins[i].Pin < s.Pins[j].Pin })
	s.Now = t.now()
	return s
}
