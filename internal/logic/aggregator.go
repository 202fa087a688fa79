package logic

import "github.com/sweeney/bat-detector/internal/tick"

// Aggregator groups the clicks of a single input line into bursts separated
// by a quiet interval. It is not safe for concurrent use; the dispatch loop
// is its only caller.
type Aggregator struct {
	pin   int
	quiet uint32

	phase     Phase
	startTick tick.Tick
	lastTick  tick.Tick
	clicks    uint32
	duration  uint64
}

// NewAggregator creates an idle aggregator for pin. A gap strictly greater
// than quiet ticks closes the current burst.
func NewAggregator(pin int, quiet uint32) *Aggregator {
	return &Aggregator{
		pin:   pin,
		quiet: quiet,
	}
}

// Count records a click at t and reports whether the gap since the previous
// click exceeded the quiet interval.
//
// When Count returns true the burst is closed: Clicks and Duration describe it
// (the closing click is counted, its gap is not summed) and the caller must
// Restart the aggregator at t before counting further clicks.
func (a *Aggregator) Count(t tick.Tick) bool {
	if a.phase == PhaseIdle {
		a.startTick = t
		a.lastTick = t
		a.phase = PhaseActive
	}

	a.clicks++
	gap := tick.Diff(a.lastTick, t)
	a.lastTick = t

	if gap > a.quiet {
		return true
	}
	a.duration += uint64(gap)
	return false
}

// Restart returns the aggregator to the idle baseline at t.
func (a *Aggregator) Restart(t tick.Tick) {
	a.startTick = t
	a.lastTick = t
	a.clicks = 0
	a.duration = 0
	a.phase = PhaseIdle
}

// Burst returns the current burst figures. After Count returns true this is
// the completed burst; otherwise it describes the burst still open.
func (a *Aggregator) Burst() Burst {
	return Burst{
		Pin:      a.pin,
		Clicks:   a.clicks,
		Duration: a.duration,
		Start:    a.startTick,
		End:      a.lastTick,
	}
}

// Pin returns the input line this aggregator belongs to.
func (a *Aggregator) Pin() int { return a.pin }

// Quiet returns the quiet interval in ticks.
func (a *Aggregator) Quiet() uint32 { return a.quiet }

// Phase returns the current phase.
func (a *Aggregator) Phase() Phase { return a.phase }

// Clicks returns the clicks counted since the last restart.
func (a *Aggregator) Clicks() uint32 { return a.clicks }

// Duration returns the summed in-burst gaps since the last restart.
func (a *Aggregator) Duration() uint64 { return a.duration }
