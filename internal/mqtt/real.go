package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/pulse-meter/internal/logging"
)

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	Prefix         string
	BufferSize     int
	ConnectTimeout time.Duration
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and flushed when paho reconnects.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger logging.Logger

	mu     sync.Mutex
	buffer *backlog
	writer AttributeWriter
}

// NewRealPublisher creates a publisher for the given broker. It does not fail
// when the broker is unreachable; paho keeps retrying in the background.
func NewRealPublisher(opts Options, logger logging.Logger) *RealPublisher {
	if opts.ClientID == "" {
		opts.ClientID = "pulse-meter"
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	p := &RealPublisher{
		topics: NewTopics(opts.Prefix),
		logger: logger,
		buffer: newBacklog(opts.BufferSize, logger),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	o := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warnf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(o)
	token := p.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		logger.Warnf("mqtt: %s not reachable yet, buffering until connected", opts.Broker)
	} else if err := token.Error(); err != nil {
		logger.Warnf("mqtt: connect to %s: %v", opts.Broker, err)
	}

	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.logger.Infof("mqtt: connected")

	p.mu.Lock()
	w := p.writer
	pending, dropped := p.buffer.take()
	p.mu.Unlock()

	if w != nil {
		if err := p.subscribe(w); err != nil {
			p.logger.Warnf("mqtt: resubscribe: %v", err)
		}
	}

	p.flush(c, pending, dropped)
}

// flush publishes messages taken from the backlog, oldest first.
func (p *RealPublisher) flush(c paho.Client, pending []queuedMsg, dropped int) {
	if dropped > 0 {
		p.logger.Warnf("mqtt: %d messages were dropped while disconnected", dropped)
	}
	if len(pending) > 0 {
		p.logger.Infof("mqtt: flushing %d buffered messages", len(pending))
	}
	for _, msg := range pending {
		token := c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			p.logger.Warnf("mqtt: flush to %s failed", msg.topic)
		}
	}
}

// Subscribe routes messages on the set topics to w. If the client is
// connected the subscription is made now and its error returned; otherwise
// it is made on connect.
func (p *RealPublisher) Subscribe(w AttributeWriter) error {
	p.mu.Lock()
	p.writer = w
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return nil
	}
	return p.subscribe(w)
}

func (p *RealPublisher) subscribe(w AttributeWriter) error {
	token := p.client.Subscribe(p.topics.Set, 1, func(_ paho.Client, m paho.Message) {
		HandleCommand(p.topics, w, m.Topic(), m.Payload(), p.logger)
	})
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", p.topics.Set, err)
	}
	return nil
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.add(queuedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		// A reconnect may have taken the backlog between the check above and
		// the add; if so, nothing else will flush this message.
		var pending []queuedMsg
		var dropped int
		if p.client.IsConnectionOpen() {
			pending, dropped = p.buffer.take()
		}
		p.mu.Unlock()
		p.flush(p.client, pending, dropped)
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("publish timeout")
	}
	return token.Error()
}

// PublishReading sends a meter reading to the MQTT broker.
func (p *RealPublisher) PublishReading(r Reading) error {
	payload, err := FormatPayload(r)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	if err := p.publish(p.topics.Reading, 0, false, payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	if err := p.publish(p.topics.System, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
