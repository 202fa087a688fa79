// Package tick models the 32-bit microsecond counter used to timestamp edges.
// The counter wraps roughly every 71.6 minutes, so elapsed time between two
// ticks must always be computed with Diff, never by comparing raw values.
package tick

import "time"

// Tick is a reading of the free-running 32-bit microsecond counter.
type Tick uint32

// Diff returns the number of ticks elapsed from earlier to later, modulo 2^32.
// The result is correct across a single wraparound of the counter.
func Diff(earlier, later Tick) uint32 {
	return uint32(later - earlier)
}

// FromDuration converts a monotonic timestamp (such as a GPIO line event
// timestamp measured from boot) into a Tick. Microseconds beyond 32 bits are
// discarded, which is what makes the counter wrap.
func FromDuration(d time.Duration) Tick {
	return Tick(uint64(d / time.Microsecond))
}
