//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// NewRealChip returns an error on non-Linux platforms.
func NewRealChip(name string) (*RealChip, error) {
	return nil, errUnsupported
}

// WatchFallingEdge is not implemented on non-Linux platforms.
func (c *RealChip) WatchFallingEdge(pin int, h EdgeHandler) (Watch, error) {
	return nil, errUnsupported
}

// Write is not implemented on non-Linux platforms.
func (c *RealChip) Write(pin, value int) error {
	return errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (c *RealChip) Read(pin int) (int, error) {
	return 0, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (c *RealChip) Close() error {
	return nil
}
