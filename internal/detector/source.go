// Package detector turns falling edges on a detector input into edge records.
package detector

import (
	"fmt"

	"github.com/sweeney/bat-detector/internal/gpio"
	"github.com/sweeney/bat-detector/internal/logic"
	"github.com/sweeney/bat-detector/internal/tick"
)

// Enqueuer accepts records without blocking. Push returns false if the
// record was dropped.
type Enqueuer interface {
	Push(r logic.Record) bool
}

// Counter is incremented from the edge handler. It must be lock-free;
// Prometheus counters qualify.
type Counter interface {
	Inc()
}

type nopCounter struct{}

func (nopCounter) Inc() {}

// Option configures a Source.
type Option func(*Source)

// WithIndicator drives pin to the source's toggle state on every edge.
// gpio.NoOutput disables it.
func WithIndicator(pin int) Option {
	return func(s *Source) { s.indicator = pin }
}

// WithCounters sets the counters bumped for each edge seen and each edge
// the queue refused.
func WithCounters(edges, dropped Counter) Option {
	return func(s *Source) {
		if edges != nil {
			s.edges = edges
		}
		if dropped != nil {
			s.dropped = dropped
		}
	}
}

// Source watches one detector input. Its handler runs on the chip's event
// goroutine and only touches the source's own fields plus the queue.
type Source struct {
	pin       int
	indicator int
	queue     Enqueuer
	out       gpio.Writer

	edges   Counter
	dropped Counter

	lastTick tick.Tick
	level    int

	watch gpio.Watch
}

// Start registers a falling-edge watch on pin and returns the running source.
func Start(chip gpio.Chip, pin int, q Enqueuer, opts ...Option) (*Source, error) {
	s := &Source{
		pin:       pin,
		indicator: gpio.NoOutput,
		queue:     q,
		out:       chip,
		edges:     nopCounter{},
		dropped:   nopCounter{},
	}
	for _, opt := range opts {
		opt(s)
	}

	w, err := chip.WatchFallingEdge(pin, s.handle)
	if err != nil {
		return nil, fmt.Errorf("watch detector pin %d: %w", pin, err)
	}
	s.watch = w
	return s, nil
}

// handle is the edge callback. It never blocks on the consumer.
func (s *Source) handle(pin, level int, t tick.Tick) {
	interval := tick.Diff(s.lastTick, t)
	s.lastTick = t
	s.level ^= 1

	s.edges.Inc()
	if !s.queue.Push(logic.Record{Tick: t, Pin: s.pin, Interval: interval, Level: s.level}) {
		s.dropped.Inc()
	}

	if s.indicator != gpio.NoOutput {
		// Indicator writes are best effort; there is nobody to report to here.
		_ = s.out.Write(s.indicator, s.level)
	}
}

// Cancel deregisters the edge watch. Records already queued stay queued.
func (s *Source) Cancel() error {
	if err := s.watch.Cancel(); err != nil {
		return fmt.Errorf("cancel detector pin %d: %w", s.pin, err)
	}
	return nil
}

// Pin returns the watched input pin.
func (s *Source) Pin() int { return s.pin }
