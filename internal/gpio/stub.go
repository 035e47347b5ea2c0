//go:build !linux

package gpio

import (
	"errors"
	"time"
)

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(chipName string) (*RealDriver, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// OpenIndicator is not implemented on non-Linux platforms.
func (d *RealDriver) OpenIndicator(offset int, on bool) (Indicator, error) {
	return nil, errors.New("gpio: not supported")
}

// OpenEdgeSource is not implemented on non-Linux platforms.
func (d *RealDriver) OpenEdgeSource(offset int, edge Edge, debounce time.Duration, handler func()) (EdgeSource, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *RealDriver) Close() error {
	return nil
}
