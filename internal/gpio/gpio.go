// Package gpio provides edge interrupts and digital outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "github.com/sweeney/bat-detector/internal/tick"

// EdgeHandler is called once per falling edge with the line offset, the
// line level after the edge and the edge timestamp. It runs on the
// interrupt delivery goroutine and must return quickly.
type EdgeHandler func(pin, level int, t tick.Tick)

// Watch is an active edge registration.
type Watch interface {
	// Cancel deregisters the handler. No further calls are made once
	// Cancel returns.
	Cancel() error
}

// Writer drives digital outputs.
type Writer interface {
	// Write sets output pin to value (0 or 1).
	Write(pin, value int) error
}

// Chip is the GPIO controller the detector runs against.
type Chip interface {
	Writer

	// WatchFallingEdge requests pin as a pulled-up input and calls h on
	// every falling edge until the returned Watch is cancelled.
	WatchFallingEdge(pin int, h EdgeHandler) (Watch, error)

	// Read returns the current level of an input pin.
	Read(pin int) (int, error)

	// Close releases every line held by the chip.
	Close() error
}

// NoOutput is the pin value meaning "no indicator configured".
const NoOutput = -1

// Default pin assignments (BCM numbering)
const (
	DefaultPinDetector1 = 17
	DefaultPinDetector2 = 27
	DefaultPinDetector3 = 22

	DefaultPinGreenLED  = 23
	DefaultPinRedLED    = 24
	DefaultPinYellowLED = 25
	DefaultPinBlueLED   = 5
)

// DefaultChip is the gpiochip carrying the Raspberry Pi header pins.
const DefaultChip = "gpiochip0"
