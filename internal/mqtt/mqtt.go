// Package mqtt provides MQTT publishing and attribute commands with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/pulse-meter/internal/attr"
	"github.com/sweeney/pulse-meter/internal/logging"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "energy/meter/main"

// Topic suffixes under the configured prefix.
const (
	suffixReading = "/reading"
	suffixSystem  = "/system"
	suffixSet     = "/set/"
)

// Topics holds the topics for one meter.
type Topics struct {
	Reading string
	System  string
	Set     string // subscription filter, e.g. "energy/meter/main/set/+"
	prefix  string
}

// NewTopics derives the topic set from a prefix like "energy/meter/main".
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Reading: prefix + suffixReading,
		System:  prefix + suffixSystem,
		Set:     prefix + suffixSet + "+",
		prefix:  prefix,
	}
}

// AttributeFromTopic returns the attribute name addressed by a set topic.
func (t Topics) AttributeFromTopic(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.prefix+suffixSet)
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// Publisher publishes meter readings and system events to MQTT.
type Publisher interface {
	// PublishReading sends a meter reading to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishReading(r Reading) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// AttributeWriter applies an attribute write. attr.Set satisfies it.
type AttributeWriter interface {
	Write(name, value string) error
}

// Reading is one meter reading.
type Reading struct {
	Timestamp     time.Time
	Count         uint64
	Interval      time.Duration
	PowerW        float64
	LastPulseTime time.Time
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for a reading.
type Payload struct {
	Meter MeterPayload `json:"meter"`
}

// MeterPayload contains the reading details.
type MeterPayload struct {
	Timestamp     string  `json:"timestamp"`
	Count         uint64  `json:"count"`
	Interval      string  `json:"interval"`
	PowerW        float64 `json:"power_w"`
	LastPulseTime string  `json:"last_pulse_time"`
}

// FormatPayload creates the JSON payload for a reading.
func FormatPayload(r Reading) ([]byte, error) {
	payload := Payload{
		Meter: MeterPayload{
			Timestamp:     r.Timestamp.UTC().Format(time.RFC3339),
			Count:         r.Count,
			Interval:      attr.FormatInterval(r.Interval),
			PowerW:        r.PowerW,
			LastPulseTime: r.LastPulseTime.UTC().Format(time.RFC3339Nano),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// HandleCommand routes a message on a set topic to w. Unknown topics,
// unknown attributes and read-only attributes are logged and dropped.
func HandleCommand(topics Topics, w AttributeWriter, topic string, payload []byte, logger logging.Logger) {
	name, ok := topics.AttributeFromTopic(topic)
	if !ok {
		logger.Warnf("mqtt: ignoring command on %s", topic)
		return
	}
	if err := w.Write(name, string(payload)); err != nil {
		logger.Warnf("mqtt: command %s: %v", name, err)
		return
	}
	logger.Infof("mqtt: set %s=%q", name, strings.TrimSpace(string(payload)))
}
