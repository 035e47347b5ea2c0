// Package meter implements the pulse counting state machine for a pulse-output
// utility meter, the debounce policy for its input line, and the lifecycle of
// the lines it owns.
package meter

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"

	"github.com/sweeney/pulse-meter/internal/gpio"
	"github.com/sweeney/pulse-meter/internal/logging"
)

// State is a point-in-time view of the counter.
type State struct {
	Count         uint64
	IndicatorOn   bool
	LastPulseTime time.Time
	LastInterval  time.Duration
}

// Counter counts qualifying edges and tracks the time between them.
//
// OnEdge is the only mutator of the pulse fields and must not be called
// concurrently with itself. Each field is stored atomically, so the
// single-field getters never block. A reader may see fields from two
// different pulses; use Snapshot for a consistent view.
type Counter struct {
	clock     clock.Clock
	indicator gpio.Indicator
	logger    logging.Logger
	pulses    chan struct{}

	// mu serializes OnEdge, SetCount and Snapshot.
	mu           sync.Mutex
	count        atomic.Uint64
	indicatorOn  atomic.Bool
	lastPulse    atomic.Time
	lastInterval atomic.Duration
}

// NewCounter creates a counter with count 0, indicator on, and the last
// pulse time set to now so the first interval is measured from startup.
// indicator may be nil.
func NewCounter(clk clock.Clock, indicator gpio.Indicator, logger logging.Logger) *Counter {
	c := &Counter{
		clock:     clk,
		indicator: indicator,
		logger:    logger,
		pulses:    make(chan struct{}, 1),
	}
	c.indicatorOn.Store(true)
	c.lastPulse.Store(clk.Now())
	return c
}

// OnEdge handles one qualifying edge. It always reports the edge as handled.
func (c *Counter) OnEdge() bool {
	c.mu.Lock()
	on := !c.indicatorOn.Load()
	c.indicatorOn.Store(on)
	now := c.clock.Now()
	interval := now.Sub(c.lastPulse.Load())
	if interval < 0 {
		interval = 0
	}
	c.lastInterval.Store(interval)
	c.lastPulse.Store(now)
	n := c.count.Inc()
	c.mu.Unlock()

	// Drive the LED outside the lock.
	if c.indicator != nil {
		if err := c.indicator.Set(on); err != nil {
			c.logger.Warnf("indicator write failed: %v", err)
		}
	}
	c.logger.Debugf("pulse %d interval=%v", n, interval)

	select {
	case c.pulses <- struct{}{}:
	default:
	}
	return true
}

// Count returns the number of counted pulses (plus any written seed).
func (c *Counter) Count() uint64 {
	return c.count.Load()
}

// IndicatorOn returns the logical indicator state.
func (c *Counter) IndicatorOn() bool {
	return c.indicatorOn.Load()
}

// LastPulseTime returns the time of the most recent pulse, or the startup
// time if none has been counted.
func (c *Counter) LastPulseTime() time.Time {
	return c.lastPulse.Load()
}

// LastInterval returns the time between the two most recent pulses.
func (c *Counter) LastInterval() time.Duration {
	return c.lastInterval.Load()
}

// SetCount replaces the count. The other fields are untouched.
func (c *Counter) SetCount(v uint64) {
	c.mu.Lock()
	c.count.Store(v)
	c.mu.Unlock()
}

// Snapshot returns all four fields as of the same pulse.
func (c *Counter) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Count:         c.count.Load(),
		IndicatorOn:   c.indicatorOn.Load(),
		LastPulseTime: c.lastPulse.Load(),
		LastInterval:  c.lastInterval.Load(),
	}
}

// Pulses returns a channel that receives after pulses are counted. Bursts
// are coalesced: one receive may stand for several pulses.
func (c *Counter) Pulses() <-chan struct{} {
	return c.pulses
}
