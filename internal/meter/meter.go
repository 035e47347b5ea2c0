package meter

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/sweeney/pulse-meter/internal/gpio"
	"github.com/sweeney/pulse-meter/internal/logging"
)

// Config is the meter's initialization input.
type Config struct {
	MeterPin        int
	IndicatorPin    int
	Edge            gpio.Edge
	DebounceEnabled bool
	DebounceWindow  time.Duration // 0 means DefaultDebounceWindow
}

// Meter owns the driver, the input and indicator lines, and the state built
// on them.
type Meter struct {
	counter   *Counter
	debounce  *Debounce
	driver    gpio.Driver
	src       gpio.EdgeSource
	indicator gpio.Indicator
	logger    logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open acquires the indicator and the meter input and starts counting.
// Open takes ownership of driver: on failure everything acquired so far,
// including the driver, is released and the error wraps
// ErrResourceUnavailable.
func Open(driver gpio.Driver, cfg Config, clk clock.Clock, logger logging.Logger) (*Meter, error) {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}

	indicator, err := driver.OpenIndicator(cfg.IndicatorPin, true)
	if err != nil {
		err = fmt.Errorf("%w: indicator: %w", ErrResourceUnavailable, err)
		return nil, multierr.Append(err, driver.Close())
	}

	counter := NewCounter(clk, indicator, logger)

	var window time.Duration
	if cfg.DebounceEnabled {
		window = cfg.DebounceWindow
	}
	src, err := driver.OpenEdgeSource(cfg.MeterPin, cfg.Edge, window, func() { counter.OnEdge() })
	if err != nil {
		err = fmt.Errorf("%w: meter input: %w", ErrResourceUnavailable, err)
		err = multierr.Append(err, indicator.Close())
		return nil, multierr.Append(err, driver.Close())
	}

	if level, err := src.Level(); err != nil {
		logger.Warnf("read meter line: %v", err)
	} else {
		logger.Infof("meter line is currently %d", level)
	}
	logger.Infof("counting %s edges on pin %d, indicator on pin %d, debounce=%v",
		cfg.Edge, cfg.MeterPin, cfg.IndicatorPin, window)

	return &Meter{
		counter:   counter,
		debounce:  NewDebounce(src, cfg.DebounceWindow, cfg.DebounceEnabled, logger),
		driver:    driver,
		src:       src,
		indicator: indicator,
		logger:    logger,
	}, nil
}

// Counter returns the pulse counter.
func (m *Meter) Counter() *Counter {
	return m.counter
}

// Debounce returns the debounce policy.
func (m *Meter) Debounce() *Debounce {
	return m.debounce
}

// Close logs the final count, turns the indicator off, and releases the
// input, the indicator and the driver, in that order. Every step runs even
// if an earlier one fails; failures are logged and combined. Later calls
// return the first result.
func (m *Meter) Close() error {
	m.closeOnce.Do(func() { m.closeErr = m.close() })
	return m.closeErr
}

func (m *Meter) close() error {
	m.logger.Infof("meter counted %d pulses", m.counter.Count())

	var errs error
	step := func(what string, err error) {
		if err != nil {
			m.logger.Warnf("%s: %v", what, err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}
	step("indicator off", m.indicator.Set(false))
	step("release meter input", m.src.Close())
	step("release indicator", m.indicator.Close())
	step("close driver", m.driver.Close())
	return errs
}
