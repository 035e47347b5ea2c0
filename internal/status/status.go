// Package status provides a thread-safe status tracker for the pulse-meter daemon.
// It is read by HTTP handlers and used to build MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/pulse-meter/internal/meter"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Chip             string
	Pin              int
	IndicatorPin     int
	Edge             string
	DebounceWindowMs int64
	Scale            float64
	HeartbeatMs      int64
	Broker           string
	HTTPAddr         string
	ReportAddr       string
}

// Counter is the source of pulse state.
type Counter interface {
	Snapshot() meter.State
}

// Debouncer is the source of the debounce flag.
type Debouncer interface {
	Enabled() bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Meter           meter.State
	DebounceEnabled bool
	PowerW          float64
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex and reads meter
// state on demand.
type Tracker struct {
	clock    clock.Clock
	counter  Counter
	debounce Debouncer

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker. Start time is taken from clk.
func NewTracker(clk clock.Clock, cfg Config, counter Counter, debounce Debouncer) *Tracker {
	return &Tracker{
		clock:    clk,
		counter:  counter,
		debounce: debounce,
		snap: Snapshot{
			StartTime: clk.Now(),
			Config:    cfg,
		},
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state, including a
// consistent meter snapshot. Now is set at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()

	s.Meter = t.counter.Snapshot()
	s.DebounceEnabled = t.debounce.Enabled()
	scale := s.Config.Scale
	if scale == 0 {
		scale = meter.DefaultScale
	}
	s.PowerW = meter.Power(s.Meter.LastInterval, scale)
	s.Now = t.clock.Now()
	return s
}
