// Package logic contains the pure burst-grouping logic for click detection.
// This package has NO external dependencies (no GPIO, OS, goroutines or wall-clock time).
// Time is always injected as hardware ticks.
package logic

import (
	"fmt"

	"github.com/sweeney/bat-detector/internal/tick"
)

// Phase is the state of an aggregator's current burst.
type Phase int

const (
	// PhaseIdle means no click has been seen since the last restart.
	PhaseIdle Phase = iota
	// PhaseActive means a burst is open.
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseActive:
		return "ACTIVE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Record is one falling edge as seen by an edge source. It is created in the
// edge handler and consumed exactly once by the dispatch loop.
type Record struct {
	// Tick is the counter value at the edge.
	Tick tick.Tick
	// Pin is the BCM offset of the input line.
	Pin int
	// Interval is the tick difference since the previous edge on the same pin.
	Interval uint32
	// Level is the source's toggle state after this edge (0 or 1).
	Level int
}

// Burst is a completed group of clicks on one pin.
type Burst struct {
	Pin int
	// Clicks includes the click whose gap closed the burst.
	Clicks uint32
	// Duration is the sum of the inter-click gaps inside the burst, in ticks.
	// The closing gap is not included.
	Duration uint64
	// Start is the tick of the first click of the burst.
	Start tick.Tick
	// End is the tick of the click that closed the burst.
	End tick.Tick
}
