package meter

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/pulse-meter/internal/gpio"
	"github.com/sweeney/pulse-meter/internal/logging"
	"github.com/sweeney/pulse-meter/internal/logging/logtest"
)

func testConfig() Config {
	return Config{
		MeterPin:        gpio.DefaultPinMeter,
		IndicatorPin:    gpio.DefaultPinIndicator,
		Edge:            gpio.EdgeFalling,
		DebounceEnabled: true,
	}
}

func TestOpen(t *testing.T) {
	driver := gpio.NewFakeDriver()
	m, err := Open(driver, testConfig(), clock.NewMock(), logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if driver.Indicator == nil || !driver.Indicator.On() {
		t.Error("expected indicator opened in the on state")
	}
	if driver.Indicator.Offset != gpio.DefaultPinIndicator {
		t.Errorf("indicator pin: got %d, want %d", driver.Indicator.Offset, gpio.DefaultPinIndicator)
	}
	if driver.Edge.Offset != gpio.DefaultPinMeter {
		t.Errorf("meter pin: got %d, want %d", driver.Edge.Offset, gpio.DefaultPinMeter)
	}
	if driver.Edge.Edge != gpio.EdgeFalling {
		t.Errorf("edge: got %q, want falling", driver.Edge.Edge)
	}
	if driver.Edge.Window() != DefaultDebounceWindow {
		t.Errorf("window: got %v, want %v", driver.Edge.Window(), DefaultDebounceWindow)
	}
	if !m.Debounce().Enabled() {
		t.Error("expected debounce enabled")
	}

	driver.Edge.Fire()
	if m.Counter().Count() != 1 {
		t.Errorf("Count: got %d, want 1", m.Counter().Count())
	}
}

func TestOpenDebounceDisabled(t *testing.T) {
	driver := gpio.NewFakeDriver()
	cfg := testConfig()
	cfg.DebounceEnabled = false
	cfg.DebounceWindow = 50 * time.Millisecond

	m, err := Open(driver, cfg, clock.NewMock(), logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if driver.Edge.Window() != 0 {
		t.Errorf("window: got %v, want 0", driver.Edge.Window())
	}
	if m.Debounce().Enabled() {
		t.Error("expected debounce disabled")
	}
	if m.Debounce().Window() != 50*time.Millisecond {
		t.Errorf("configured window: got %v, want 50ms", m.Debounce().Window())
	}
}

func TestOpenIndicatorUnavailable(t *testing.T) {
	driver := gpio.NewFakeDriver()
	driver.IndicatorError = errors.New("device busy")

	_, err := Open(driver, testConfig(), clock.NewMock(), logging.NewNop())
	if !errors.Is(err, ErrResourceUnavailable) {
		t.Fatalf("expected ErrResourceUnavailable, got %v", err)
	}
	if driver.Edge != nil {
		t.Error("edge source should not be opened after indicator failure")
	}
	if !driver.Closed {
		t.Error("driver should be released")
	}
}

func TestOpenEdgeSourceUnavailable(t *testing.T) {
	driver := gpio.NewFakeDriver()
	driver.EdgeError = errors.New("device busy")

	_, err := Open(driver, testConfig(), clock.NewMock(), logging.NewNop())
	if !errors.Is(err, ErrResourceUnavailable) {
		t.Fatalf("expected ErrResourceUnavailable, got %v", err)
	}
	if !driver.Indicator.Closed() {
		t.Error("indicator should be released")
	}
	if !driver.Closed {
		t.Error("driver should be released")
	}
}

func TestOpenLogsLineLevel(t *testing.T) {
	logger, logs := logtest.NewObservedLogger()
	if _, err := Open(gpio.NewFakeDriver(), testConfig(), clock.NewMock(), logger); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if logs.FilterMessage("meter line is currently 0").Len() != 1 {
		t.Error("expected startup line level log")
	}
}

func TestClose(t *testing.T) {
	driver := gpio.NewFakeDriver()
	logger, logs := logtest.NewObservedLogger()
	m, err := Open(driver, testConfig(), clock.NewMock(), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	driver.Edge.Fire()
	driver.Edge.Fire()
	driver.Edge.Fire()

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if logs.FilterMessage("meter counted 3 pulses").Len() != 1 {
		t.Error("expected final count log")
	}
	if driver.Indicator.On() {
		t.Error("indicator should be off after Close")
	}
	if !driver.Edge.Closed() {
		t.Error("edge source should be closed")
	}
	if !driver.Indicator.Closed() {
		t.Error("indicator should be closed")
	}
	if !driver.Closed {
		t.Error("driver should be closed")
	}
	if err := driver.Edge.Fire(); !errors.Is(err, gpio.ErrNotOpen) {
		t.Errorf("fire after close: got %v, want ErrNotOpen", err)
	}
}

func TestCloseContinuesAfterFailures(t *testing.T) {
	driver := gpio.NewFakeDriver()
	logger, logs := logtest.NewObservedLogger()
	m, err := Open(driver, testConfig(), clock.NewMock(), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	driver.Indicator.FailWith(errors.New("stuck"))
	driver.Edge.CloseError = errors.New("ebusy")

	err = m.Close()
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !driver.Indicator.Closed() {
		t.Error("indicator should still be released")
	}
	if !driver.Closed {
		t.Error("driver should still be closed")
	}
	if n := logs.FilterMessageSnippet("indicator off").Len(); n != 1 {
		t.Errorf("indicator off failure logs: got %d, want 1", n)
	}
	if n := logs.FilterMessageSnippet("release meter input").Len(); n != 1 {
		t.Errorf("meter input failure logs: got %d, want 1", n)
	}
}

func TestCloseTwice(t *testing.T) {
	driver := gpio.NewFakeDriver()
	logger, logs := logtest.NewObservedLogger()
	m, err := Open(driver, testConfig(), clock.NewMock(), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	driver.Edge.CloseError = errors.New("ebusy")

	first := m.Close()
	second := m.Close()
	if first == nil || second != first {
		t.Errorf("second Close: got %v, want first result %v", second, first)
	}
	if n := logs.FilterMessageSnippet("meter counted").Len(); n != 1 {
		t.Errorf("final count logs: got %d, want 1", n)
	}
}

func TestPower(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     float64
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Second, 3600},
		{3600 * time.Millisecond, 1000},
		{700 * time.Millisecond, 3600 / 0.7},
	}
	for _, tt := range tests {
		got := Power(tt.interval, DefaultScale)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Power(%v): got %v, want %v", tt.interval, got, tt.want)
		}
	}
}
