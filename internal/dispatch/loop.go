// Package dispatch runs the single consumer that routes edge records to the
// per-pin aggregators and reports completed bursts.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/sweeney/bat-detector/internal/gpio"
	"github.com/sweeney/bat-detector/internal/logic"
	"github.com/sweeney/bat-detector/internal/report"
)

var (
	// ErrUnknownPin means a record arrived for a pin with no aggregator.
	// It indicates a wiring fault and stops the loop.
	ErrUnknownPin = errors.New("dispatch: record for unregistered pin")

	// ErrDuplicatePin is returned when registering a second aggregator for a pin.
	ErrDuplicatePin = errors.New("dispatch: pin already registered")
)

// Source is the consumer side of the edge queue.
type Source interface {
	Pop(ctx context.Context) (logic.Record, error)
	TryPop() (logic.Record, bool)
}

type route struct {
	agg *logic.Aggregator
	led int
}

// Loop owns the aggregators. Only the goroutine running Run or Drain may
// touch them.
type Loop struct {
	queue    Source
	out      gpio.Writer
	reporter report.Reporter
	routes   map[int]*route
}

// New creates a loop reading from q, driving indicators through out and
// delivering bursts to reporter.
func New(q Source, out gpio.Writer, reporter report.Reporter) *Loop {
	return &Loop{
		queue:    q,
		out:      out,
		reporter: reporter,
		routes:   make(map[int]*route),
	}
}

// Register routes records for agg.Pin() to agg. led is the line's
// indicator output, gpio.NoOutput for none.
func (l *Loop) Register(agg *logic.Aggregator, led int) error {
	if _, ok := l.routes[agg.Pin()]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicatePin, agg.Pin())
	}
	l.routes[agg.Pin()] = &route{agg: agg, led: led}
	return nil
}

// Run processes records until ctx is cancelled (returning nil) or a record
// cannot be routed (returning an error wrapping ErrUnknownPin).
func (l *Loop) Run(ctx context.Context) error {
	for {
		rec, err := l.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pop record: %w", err)
		}
		if err := l.Process(rec); err != nil {
			return err
		}
	}
}

// Drain processes every record still queued without blocking and returns
// how many it handled. Used at shutdown after all sources are cancelled.
func (l *Loop) Drain() (int, error) {
	n := 0
	for {
		rec, ok := l.queue.TryPop()
		if !ok {
			return n, nil
		}
		if err := l.Process(rec); err != nil {
			return n, err
		}
		n++
	}
}

// Process handles one record: indicator, aggregation and, when the record
// closes a burst, reporting followed by a restart at the record's tick.
func (l *Loop) Process(rec logic.Record) error {
	r, ok := l.routes[rec.Pin]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPin, rec.Pin)
	}

	if r.led != gpio.NoOutput {
		if err := l.out.Write(r.led, rec.Level); err != nil {
			log.Printf("dispatch: indicator pin %d: %v", r.led, err)
		}
	}

	if !r.agg.Count(rec.Tick) {
		return nil
	}

	b := r.agg.Burst()
	if err := l.reporter.Report(b); err != nil {
		// Don't stop detection on a sink failure
		log.Printf("dispatch: report pin %d: %v", b.Pin, err)
	}
	r.agg.Restart(rec.Tick)
	return nil
}

// Pending returns the bursts still open, ordered by pin.
func (l *Loop) Pending() []logic.Burst {
	var out []logic.Burst
	for _, r := range l.routes {
		if r.agg.Phase() == logic.PhaseActive {
			out = append(out, r.agg.Burst())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pin < out[j].Pin })
	return out
}

// Pins returns the registered pins in ascending order.
func (l *Loop) Pins() []int {
	pins := make([]int, 0, len(l.routes))
	for pin := range l.routes {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}
