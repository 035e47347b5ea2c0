package gpio

import (
	"errors"
	"sync"
	"time"
)

// ErrNotOpen is returned by FakeEdgeSource.Fire before a handler is bound.
var ErrNotOpen = errors.New("edge source not open")

// FakeDriver is a test double that hands out FakeIndicator and
// FakeEdgeSource instances.
type FakeDriver struct {
	// Indicator and Edge are the lines handed out by the last Open call.
	Indicator *FakeIndicator
	Edge      *FakeEdgeSource

	// IndicatorError and EdgeError, if set, are returned by the Open calls.
	IndicatorError error
	EdgeError      error

	// CloseError, if set, is returned by Close.
	CloseError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDriver creates a FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// OpenIndicator returns a FakeIndicator in the given state.
func (d *FakeDriver) OpenIndicator(offset int, on bool) (Indicator, error) {
	if d.IndicatorError != nil {
		return nil, d.IndicatorError
	}
	d.Indicator = &FakeIndicator{Offset: offset, on: on}
	return d.Indicator, nil
}

// OpenEdgeSource returns a FakeEdgeSource bound to handler.
func (d *FakeDriver) OpenEdgeSource(offset int, edge Edge, debounce time.Duration, handler func()) (EdgeSource, error) {
	if d.EdgeError != nil {
		return nil, d.EdgeError
	}
	d.Edge = &FakeEdgeSource{
		Offset:  offset,
		Edge:    edge,
		handler: handler,
		window:  debounce,
		history: []time.Duration{debounce},
	}
	return d.Edge, nil
}

// Close marks the driver as closed.
func (d *FakeDriver) Close() error {
	d.Closed = true
	return d.CloseError
}

// FakeEdgeSource delivers scripted edges to its handler.
// Safe for concurrent use; Fire calls are serialized like real line events.
type FakeEdgeSource struct {
	Offset int
	Edge   Edge

	// SetDebounceError, if set, is returned by SetDebounce.
	SetDebounceError error

	// CloseError, if set, is returned by Close.
	CloseError error

	fireMu  sync.Mutex
	mu      sync.Mutex
	handler func()
	window  time.Duration
	history []time.Duration
	level   int
	closed  bool
}

// Fire delivers one qualifying edge to the handler.
func (s *FakeEdgeSource) Fire() error {
	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	s.mu.Lock()
	h, closed := s.handler, s.closed
	s.mu.Unlock()
	if h == nil || closed {
		return ErrNotOpen
	}
	h()
	return nil
}

// SetDebounce records the programmed window.
func (s *FakeEdgeSource) SetDebounce(window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetDebounceError != nil {
		return s.SetDebounceError
	}
	s.window = window
	s.history = append(s.history, window)
	return nil
}

// Window returns the currently programmed debounce window.
func (s *FakeEdgeSource) Window() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// History returns every window programmed, starting with the one at open.
func (s *FakeEdgeSource) History() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.history...)
}

// SetLevel sets the value returned by Level.
func (s *FakeEdgeSource) SetLevel(v int) {
	s.mu.Lock()
	s.level = v
	s.mu.Unlock()
}

// Level returns the scripted line level.
func (s *FakeEdgeSource) Level() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, nil
}

// Close stops delivery; later Fire calls return ErrNotOpen.
func (s *FakeEdgeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.CloseError
}

// Closed reports whether Close was called.
func (s *FakeEdgeSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakeIndicator records indicator writes.
type FakeIndicator struct {
	Offset int

	mu       sync.Mutex
	on       bool
	writes   int
	setErr   error
	closeErr error
	closed   bool
}

// Set records the new state unless a failure is scripted.
func (i *FakeIndicator) Set(on bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.setErr != nil {
		return i.setErr
	}
	i.on = on
	i.writes++
	return nil
}

// FailWith makes subsequent Set calls return err; nil clears it.
func (i *FakeIndicator) FailWith(err error) {
	i.mu.Lock()
	i.setErr = err
	i.mu.Unlock()
}

// FailCloseWith makes Close return err.
func (i *FakeIndicator) FailCloseWith(err error) {
	i.mu.Lock()
	i.closeErr = err
	i.mu.Unlock()
}

// On returns the last successfully written state.
func (i *FakeIndicator) On() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.on
}

// Writes returns the number of successful Set calls.
func (i *FakeIndicator) Writes() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writes
}

// Close marks the indicator as closed.
func (i *FakeIndicator) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	return i.closeErr
}

// Closed reports whether Close was called.
func (i *FakeIndicator) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}
