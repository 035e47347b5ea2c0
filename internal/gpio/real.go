//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

const consumer = "pulse-meter"

// RealDriver opens lines on an actual GPIO chip using the Linux GPIO
// character device.
type RealDriver struct {
	chip *gpiocdev.Chip
}

// NewRealDriver opens the named chip, e.g. "gpiochip0".
func NewRealDriver(chipName string) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &RealDriver{chip: chip}, nil
}

// OpenIndicator requests the line as an output driven to the given state.
func (d *RealDriver) OpenIndicator(offset int, on bool) (Indicator, error) {
	line, err := d.chip.RequestLine(offset, gpiocdev.AsOutput(boolToValue(on)))
	if err != nil {
		return nil, fmt.Errorf("request indicator pin %d: %w", offset, err)
	}
	return &realIndicator{line: line}, nil
}

// OpenEdgeSource requests the line as an input with edge detection. gpiocdev
// runs the event handler from a single goroutine per request, so handler is
// never reentered.
func (d *RealDriver) OpenEdgeSource(offset int, edge Edge, debounce time.Duration, handler func()) (EdgeSource, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { handler() }),
	}
	if edge == EdgeFalling {
		opts = append(opts, gpiocdev.WithFallingEdge)
	} else {
		opts = append(opts, gpiocdev.WithRisingEdge)
	}
	if debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(debounce))
	}

	line, err := d.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request meter pin %d: %w", offset, err)
	}
	return &realEdgeSource{line: line}, nil
}

// Close releases the chip. Lines must be closed first.
func (d *RealDriver) Close() error {
	if d.chip == nil {
		return nil
	}
	if err := d.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

type realEdgeSource struct {
	line *gpiocdev.Line
}

// SetDebounce reconfigures the debounce attribute in a single ioctl, so
// later edges see either the old or the new window.
func (s *realEdgeSource) SetDebounce(window time.Duration) error {
	if err := s.line.Reconfigure(gpiocdev.WithDebounce(window)); err != nil {
		return fmt.Errorf("set debounce %v: %w", window, err)
	}
	return nil
}

func (s *realEdgeSource) Level() (int, error) {
	v, err := s.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read meter pin: %w", err)
	}
	return v, nil
}

func (s *realEdgeSource) Close() error {
	if err := s.line.Close(); err != nil {
		return fmt.Errorf("close meter pin: %w", err)
	}
	return nil
}

type realIndicator struct {
	line *gpiocdev.Line
}

func (i *realIndicator) Set(on bool) error {
	if err := i.line.SetValue(boolToValue(on)); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	return nil
}

// Close reconfigures the pin to input with pull-down (the Pi boot default)
// before releasing it.
func (i *realIndicator) Close() error {
	var err error
	if rerr := i.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); rerr != nil {
		err = multierr.Append(err, fmt.Errorf("reconfigure indicator pin: %w", rerr))
	}
	if cerr := i.line.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("close indicator pin: %w", cerr))
	}
	return err
}
