//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/bat-detector/internal/tick"
)

const consumer = "bat-detector"

// RealChip drives actual hardware through the Linux GPIO character device.
type RealChip struct {
	chip *gpiocdev.Chip

	mu      sync.Mutex
	outputs map[int]*gpiocdev.Line
	watches map[int]*lineWatch
}

// NewRealChip opens the named gpiochip (e.g. "gpiochip0").
func NewRealChip(name string) (*RealChip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &RealChip{
		chip:    chip,
		outputs: make(map[int]*gpiocdev.Line),
		watches: make(map[int]*lineWatch),
	}, nil
}

// WatchFallingEdge requests pin as an input with pull-up and falling-edge
// detection. Event timestamps come from the kernel's monotonic clock and are
// converted to 32-bit microsecond ticks.
func (c *RealChip) WatchFallingEdge(pin int, h EdgeHandler) (Watch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.watches[pin]; ok {
		return nil, fmt.Errorf("pin %d already watched", pin)
	}

	line, err := c.chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if evt.Type != gpiocdev.LineEventFallingEdge {
				return
			}
			h(evt.Offset, 0, tick.FromDuration(evt.Timestamp))
		}))
	if err != nil {
		return nil, fmt.Errorf("request edge pin %d: %w", pin, err)
	}

	w := &lineWatch{chip: c, pin: pin, line: line}
	c.watches[pin] = w
	return w, nil
}

// Write sets an output pin, requesting the line as an output on first use.
func (c *RealChip) Write(pin, value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, ok := c.outputs[pin]
	if !ok {
		var err error
		line, err = c.chip.RequestLine(pin, gpiocdev.AsOutput(value))
		if err != nil {
			return fmt.Errorf("request output pin %d: %w", pin, err)
		}
		c.outputs[pin] = line
		return nil
	}

	if err := line.SetValue(value); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Read samples an input pin. Lines already watched for edges are read in
// place; others are requested as pulled-up inputs for the duration of the read.
func (c *RealChip) Read(pin int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.watches[pin]; ok {
		v, err := w.line.Value()
		if err != nil {
			return 0, fmt.Errorf("read pin %d: %w", pin, err)
		}
		return v, nil
	}

	line, err := c.chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return 0, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	defer line.Close()

	v, err := line.Value()
	if err != nil {
		return 0, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v, nil
}

// Close releases GPIO resources.
// Outputs are driven low and every line is reconfigured to input with
// pull-down (matching Pi boot defaults) before closing, so LEDs are left off
// and the header is in a clean state for shutdown/reboot.
func (c *RealChip) Close() error {
	var errs []error

	// Edge lines are closed without holding c.mu: closing waits for the
	// line's handler, which may itself be blocked in Write.
	c.mu.Lock()
	watches := make([]*lineWatch, 0, len(c.watches))
	for _, w := range c.watches {
		watches = append(watches, w)
	}
	c.mu.Unlock()
	for _, w := range watches {
		if err := w.Cancel(); err != nil {
			errs = append(errs, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for pin, line := range c.outputs {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear output pin %d: %w", pin, err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure output pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pin %d: %w", pin, err))
		}
		delete(c.outputs, pin)
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

type lineWatch struct {
	chip *RealChip
	pin  int
	line *gpiocdev.Line
	once sync.Once
}

// Cancel closes the line, which stops its event watcher goroutine.
func (w *lineWatch) Cancel() error {
	var err error
	w.once.Do(func() {
		w.chip.mu.Lock()
		delete(w.chip.watches, w.pin)
		w.chip.mu.Unlock()
		if cerr := w.line.Close(); cerr != nil {
			err = fmt.Errorf("close edge pin %d: %w", w.pin, cerr)
		}
	})
	return err
}
