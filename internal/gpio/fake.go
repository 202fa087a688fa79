package gpio

import (
	"fmt"
	"sync"

	"github.com/sweeney/bat-detector/internal/tick"
)

// OutputWrite is one recorded call to FakeChip.Write.
type OutputWrite struct {
	Pin   int
	Value int
}

// FakeChip is a test double that lets tests fire edges by hand and records
// output writes. It is safe for concurrent use.
type FakeChip struct {
	mu sync.Mutex

	handlers map[int]EdgeHandler
	cancels  map[int]int
	writes   []OutputWrite
	outputs  map[int]int

	// Levels holds the values returned by Read. Unset pins read as 1
	// (pulled up, idle).
	Levels map[int]int

	// WatchError, if set, is returned by WatchFallingEdge.
	WatchError error

	// WriteError, if set, is returned by Write (the write is still recorded).
	WriteError error

	// ReadError, if set, is returned by Read.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeChip creates an empty FakeChip.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		handlers: make(map[int]EdgeHandler),
		cancels:  make(map[int]int),
		outputs:  make(map[int]int),
		Levels:   make(map[int]int),
	}
}

// WatchFallingEdge registers h for pin.
func (f *FakeChip) WatchFallingEdge(pin int, h EdgeHandler) (Watch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WatchError != nil {
		return nil, f.WatchError
	}
	if _, ok := f.handlers[pin]; ok {
		return nil, fmt.Errorf("pin %d already watched", pin)
	}
	f.handlers[pin] = h
	return &fakeWatch{chip: f, pin: pin}, nil
}

// Edge delivers a falling edge on pin at t, calling the registered handler
// synchronously. It returns false if nothing is watching pin.
func (f *FakeChip) Edge(pin int, t tick.Tick) bool {
	f.mu.Lock()
	h, ok := f.handlers[pin]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(pin, 0, t)
	return true
}

// Watching reports whether pin currently has a handler.
func (f *FakeChip) Watching(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[pin]
	return ok
}

// Cancels returns how many times the watch on pin was cancelled.
func (f *FakeChip) Cancels(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels[pin]
}

// Write records the output write.
func (f *FakeChip) Write(pin, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, OutputWrite{Pin: pin, Value: value})
	f.outputs[pin] = value
	return f.WriteError
}

// Writes returns a copy of all recorded output writes in order.
func (f *FakeChip) Writes() []OutputWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]OutputWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

// WritesTo returns the values written to pin in order.
func (f *FakeChip) WritesTo(pin int) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, w := range f.writes {
		if w.Pin == pin {
			out = append(out, w.Value)
		}
	}
	return out
}

// Output returns the last value written to pin and whether it was ever written.
func (f *FakeChip) Output(pin int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.outputs[pin]
	return v, ok
}

// Read returns the scripted level for pin.
func (f *FakeChip) Read(pin int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if v, ok := f.Levels[pin]; ok {
		return v, nil
	}
	return 1, nil
}

// Close marks the chip as closed and drops every handler.
func (f *FakeChip) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.handlers = make(map[int]EdgeHandler)
	return nil
}

// Reset clears recorded writes and errors.
func (f *FakeChip) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
	f.outputs = make(map[int]int)
	f.WatchError = nil
	f.WriteError = nil
	f.ReadError = nil
	f.Closed = false
}

type fakeWatch struct {
	chip *FakeChip
	pin  int
}

func (w *fakeWatch) Cancel() error {
	w.chip.mu.Lock()
	defer w.chip.mu.Unlock()
	if _, ok := w.chip.handlers[w.pin]; !ok {
		return nil
	}
	delete(w.chip.handlers, w.pin)
	w.chip.cancels[w.pin]++
	return nil
}
