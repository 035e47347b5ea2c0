// Package gpio provides the meter's pulse input and indicator output with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"time"
)

// Edge is the input transition polarity that counts as a pulse.
type Edge string

const (
	EdgeRising  Edge = "rising"
	EdgeFalling Edge = "falling"
)

// ParseEdge converts a config value to an Edge. Empty means rising.
func ParseEdge(s string) (Edge, error) {
	switch Edge(s) {
	case "", EdgeRising:
		return EdgeRising, nil
	case EdgeFalling:
		return EdgeFalling, nil
	}
	return "", fmt.Errorf("unknown edge %q (want rising or falling)", s)
}

// Pin definitions (BCM numbering)
const (
	DefaultChip         = "gpiochip0"
	DefaultPinMeter     = 17 // meter pulse input
	DefaultPinIndicator = 27 // LED
)

// EdgeSource is an input line that calls the handler bound at open time once
// per qualifying transition. Handler calls are never concurrent.
type EdgeSource interface {
	// SetDebounce programs the line's debounce window; 0 disables filtering.
	SetDebounce(window time.Duration) error

	// Level returns the current raw line level.
	Level() (int, error)

	// Close stops event delivery and releases the line.
	Close() error
}

// Indicator is a binary output toggled on each counted pulse.
type Indicator interface {
	Set(on bool) error
	Close() error
}

// Driver acquires lines from a GPIO chip.
type Driver interface {
	OpenIndicator(offset int, on bool) (Indicator, error)
	OpenEdgeSource(offset int, edge Edge, debounce time.Duration, handler func()) (EdgeSource, error)
	Close() error
}

func boolToValue(on bool) int {
	if on {
		return 1
	}
	return 0
}
