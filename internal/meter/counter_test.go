package meter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/pulse-meter/internal/gpio"
	"github.com/sweeney/pulse-meter/internal/logging"
	"github.com/sweeney/pulse-meter/internal/logging/logtest"
)

var testStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestCounter(t *testing.T) (*Counter, *clock.Mock, *gpio.FakeIndicator) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(testStart)
	d := gpio.NewFakeDriver()
	d.OpenIndicator(gpio.DefaultPinIndicator, true)
	return NewCounter(mock, d.Indicator, logging.NewNop()), mock, d.Indicator
}

func TestNewCounterInitialState(t *testing.T) {
	c, _, _ := newTestCounter(t)

	if c.Count() != 0 {
		t.Errorf("Count: got %d, want 0", c.Count())
	}
	if !c.IndicatorOn() {
		t.Error("expected IndicatorOn=true at startup")
	}
	if !c.LastPulseTime().Equal(testStart) {
		t.Errorf("LastPulseTime: got %v, want %v", c.LastPulseTime(), testStart)
	}
	if c.LastInterval() != 0 {
		t.Errorf("LastInterval: got %v, want 0", c.LastInterval())
	}
}

func TestOnEdgeThreePulses(t *testing.T) {
	c, mock, ind := newTestCounter(t)

	// Edges at t=0s, t=0.5s, t=1.2s.
	if !c.OnEdge() {
		t.Error("OnEdge should report handled")
	}
	mock.Add(500 * time.Millisecond)
	c.OnEdge()
	mock.Add(700 * time.Millisecond)
	c.OnEdge()

	if c.Count() != 3 {
		t.Errorf("Count: got %d, want 3", c.Count())
	}
	if c.IndicatorOn() {
		t.Error("expected IndicatorOn=false after 3 toggles from true")
	}
	if ind.On() {
		t.Error("expected physical indicator off after 3 toggles")
	}
	want := testStart.Add(1200 * time.Millisecond)
	if !c.LastPulseTime().Equal(want) {
		t.Errorf("LastPulseTime: got %v, want %v", c.LastPulseTime(), want)
	}
	if c.LastInterval() != 700*time.Millisecond {
		t.Errorf("LastInterval: got %v, want 700ms", c.LastInterval())
	}
}

func TestFirstIntervalMeasuredFromStartup(t *testing.T) {
	c, mock, _ := newTestCounter(t)

	mock.Add(3 * time.Second)
	c.OnEdge()

	if c.LastInterval() != 3*time.Second {
		t.Errorf("LastInterval: got %v, want 3s", c.LastInterval())
	}
}

func TestIntervalStableBetweenPulses(t *testing.T) {
	c, mock, _ := newTestCounter(t)

	c.OnEdge()
	mock.Add(2 * time.Second)
	c.OnEdge()

	mock.Add(time.Hour)
	if c.LastInterval() != 2*time.Second {
		t.Errorf("LastInterval changed without a pulse: got %v", c.LastInterval())
	}
}

func TestIntervalNeverNegative(t *testing.T) {
	c, mock, _ := newTestCounter(t)

	c.OnEdge()
	mock.Set(testStart.Add(-time.Second))
	c.OnEdge()

	if c.LastInterval() != 0 {
		t.Errorf("LastInterval after clock step back: got %v, want 0", c.LastInterval())
	}
}

func TestIndicatorParity(t *testing.T) {
	for n := 0; n < 6; n++ {
		c, _, ind := newTestCounter(t)
		for i := 0; i < n; i++ {
			c.OnEdge()
		}
		want := n%2 == 0
		if c.IndicatorOn() != want {
			t.Errorf("after %d edges: IndicatorOn got %v, want %v", n, c.IndicatorOn(), want)
		}
		if n > 0 && ind.On() != want {
			t.Errorf("after %d edges: physical indicator got %v, want %v", n, ind.On(), want)
		}
	}
}

func TestSetCountThenEdge(t *testing.T) {
	c, _, _ := newTestCounter(t)

	c.SetCount(100)
	c.OnEdge()

	if c.Count() != 101 {
		t.Errorf("Count: got %d, want 101", c.Count())
	}
}

func TestSetCountLeavesOtherFields(t *testing.T) {
	c, mock, _ := newTestCounter(t)

	c.OnEdge()
	mock.Add(time.Second)
	c.OnEdge()
	mock.Add(time.Second)
	c.OnEdge()
	before := c.Snapshot()

	c.SetCount(0)

	after := c.Snapshot()
	if after.Count != 0 {
		t.Errorf("Count: got %d, want 0", after.Count)
	}
	if after.IndicatorOn != before.IndicatorOn {
		t.Error("SetCount changed IndicatorOn")
	}
	if !after.LastPulseTime.Equal(before.LastPulseTime) {
		t.Error("SetCount changed LastPulseTime")
	}
	if after.LastInterval != before.LastInterval {
		t.Error("SetCount changed LastInterval")
	}
}

func TestReadsAreIdempotent(t *testing.T) {
	c, mock, _ := newTestCounter(t)
	c.OnEdge()
	mock.Add(1500 * time.Millisecond)
	c.OnEdge()

	first := c.Snapshot()
	second := c.Snapshot()
	if first != second {
		t.Errorf("snapshots differ without an edge: %+v vs %+v", first, second)
	}
	if c.Count() != c.Count() || c.LastInterval() != c.LastInterval() {
		t.Error("getters differ without an edge")
	}
}

func TestIndicatorFailureDoesNotStopCounting(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(testStart)
	d := gpio.NewFakeDriver()
	d.OpenIndicator(gpio.DefaultPinIndicator, true)
	d.Indicator.FailWith(errors.New("simulated error"))
	logger, logs := logtest.NewObservedLogger()
	c := NewCounter(mock, d.Indicator, logger)

	mock.Add(time.Second)
	c.OnEdge()
	mock.Add(time.Second)
	c.OnEdge()

	if c.Count() != 2 {
		t.Errorf("Count: got %d, want 2", c.Count())
	}
	if c.LastInterval() != time.Second {
		t.Errorf("LastInterval: got %v, want 1s", c.LastInterval())
	}
	if !c.IndicatorOn() {
		t.Error("logical indicator should still toggle")
	}
	if n := logs.FilterMessageSnippet("indicator write failed").Len(); n != 2 {
		t.Errorf("indicator failure logs: got %d, want 2", n)
	}
}

func TestNilIndicator(t *testing.T) {
	c := NewCounter(clock.NewMock(), nil, logging.NewNop())
	c.OnEdge()
	if c.Count() != 1 {
		t.Errorf("Count: got %d, want 1", c.Count())
	}
}

func TestPulsesNotification(t *testing.T) {
	c, _, _ := newTestCounter(t)

	select {
	case <-c.Pulses():
		t.Fatal("unexpected notification before any edge")
	default:
	}

	// A burst is coalesced into one pending notification and never blocks.
	for i := 0; i < 5; i++ {
		c.OnEdge()
	}

	select {
	case <-c.Pulses():
	default:
		t.Fatal("expected notification after edges")
	}
	select {
	case <-c.Pulses():
		t.Fatal("expected burst to be coalesced")
	default:
	}
}

func TestConcurrentEdgesAndReaders(t *testing.T) {
	c, mock, _ := newTestCounter(t)
	const edges = 300

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Single producer, as the edge source guarantees.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < edges; i++ {
			mock.Add(time.Millisecond)
			c.OnEdge()
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				n := c.Count()
				if n < last {
					t.Errorf("count went backwards: %d -> %d", last, n)
					return
				}
				last = n
				_ = c.IndicatorOn()
				_ = c.LastPulseTime()
				if c.LastInterval() < 0 {
					t.Error("negative interval observed")
					return
				}
			}
		}()
	}

	wg.Wait()
	if c.Count() != edges {
		t.Errorf("Count: got %d, want %d", c.Count(), edges)
	}
}

func TestSnapshotIsConsistent(t *testing.T) {
	// Single-field getters may mix fields from different pulses; Snapshot
	// must not. With no count writes, indicator parity always matches count.
	c, _, _ := newTestCounter(t)
	const edges = 2000

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < edges; i++ {
			c.OnEdge()
		}
		close(stop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			s := c.Snapshot()
			if s.IndicatorOn != (s.Count%2 == 0) {
				t.Errorf("torn snapshot: count=%d indicatorOn=%v", s.Count, s.IndicatorOn)
				return
			}
		}
	}()

	wg.Wait()
}

func TestSetCountRacingWithEdges(t *testing.T) {
	c, _, _ := newTestCounter(t)
	const edges = 1000
	const seed = 1000000

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < edges; i++ {
			c.OnEdge()
		}
	}()
	go func() {
		defer wg.Done()
		c.SetCount(seed)
	}()
	wg.Wait()

	// The write lands between two increments: everything after it is kept,
	// and the write itself is never lost.
	got := c.Count()
	if got < seed || got > seed+edges {
		t.Errorf("Count: got %d, want in [%d, %d]", got, seed, seed+edges)
	}
}
