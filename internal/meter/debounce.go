package meter

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/sweeney/pulse-meter/internal/gpio"
	"github.com/sweeney/pulse-meter/internal/logging"
)

// DefaultDebounceWindow is the debounce window applied while debouncing is
// enabled.
const DefaultDebounceWindow = 200 * time.Millisecond

// Debounce maps an enabled flag onto the edge source's debounce window.
type Debounce struct {
	src    gpio.EdgeSource
	window time.Duration
	logger logging.Logger

	// mu keeps the flag and the programmed window in agreement.
	mu      sync.Mutex
	enabled atomic.Bool
}

// NewDebounce wraps src, which must already be programmed for enabled.
func NewDebounce(src gpio.EdgeSource, window time.Duration, enabled bool, logger logging.Logger) *Debounce {
	d := &Debounce{src: src, window: window, logger: logger}
	d.enabled.Store(enabled)
	return d
}

// SetEnabled programs the window (or 0) into the edge source. The flag only
// changes if the edge source accepts the new window.
func (d *Debounce) SetEnabled(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var w time.Duration
	if on {
		w = d.window
	}
	if err := d.src.SetDebounce(w); err != nil {
		return fmt.Errorf("set debounce: %w", err)
	}
	d.enabled.Store(on)

	if on {
		d.logger.Infof("debounce on (%v)", w)
	} else {
		d.logger.Infof("debounce off")
	}
	return nil
}

// Enabled reports the last accepted setting.
func (d *Debounce) Enabled() bool {
	return d.enabled.Load()
}

// Window returns the window used while enabled.
func (d *Debounce) Window() time.Duration {
	return d.window
}
