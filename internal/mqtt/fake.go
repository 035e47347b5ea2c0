package mqtt

import (
	"sync"

	"github.com/sweeney/pulse-meter/internal/logging"
)

// FakePublisher records published messages for test assertions.
// Safe for concurrent use; configure the error fields before use.
type FakePublisher struct {
	// PublishError, if set, will be returned by PublishReading.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// Connected controls the return value of IsConnected.
	Connected bool

	mu             sync.Mutex
	readings       []Reading
	payloads       [][]byte
	systemEvents   []SystemEvent
	systemPayloads [][]byte
	writer         AttributeWriter
	closed         bool
	topics         Topics
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{topics: NewTopics(DefaultPrefix)}
}

// PublishReading records the reading.
func (f *FakePublisher) PublishReading(r Reading) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(r)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, r)
	f.payloads = append(f.payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// Subscribe records w as the command target.
func (f *FakePublisher) Subscribe(w AttributeWriter) error {
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.mu.Lock()
	f.writer = w
	f.mu.Unlock()
	return nil
}

// Deliver simulates an incoming message on topic. It reports false if
// nothing is subscribed.
func (f *FakePublisher) Deliver(topic string, payload []byte, logger logging.Logger) bool {
	f.mu.Lock()
	w := f.writer
	f.mu.Unlock()
	if w == nil {
		return false
	}
	HandleCommand(f.topics, w, topic, payload, logger)
	return true
}

// Readings returns a copy of the published readings.
func (f *FakePublisher) Readings() []Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Reading(nil), f.readings...)
}

// Payloads returns a copy of the reading payloads.
func (f *FakePublisher) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

// SystemEvents returns a copy of the published system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns a copy of the system event payloads.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = nil
	f.payloads = nil
	f.systemEvents = nil
	f.systemPayloads = nil
	f.closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.SubscribeError = nil
	f.Connected = false
}
