package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pulse-meter/internal/attr"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Meter         MeterJSON    `json:"meter"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MeterJSON is the JSON representation of the pulse counter.
type MeterJSON struct {
	Count           uint64  `json:"count"`
	IndicatorOn     bool    `json:"indicator_on"`
	LastPulseTime   string  `json:"last_pulse_time"`
	LastPulseClock  string  `json:"last_pulse_clock"`
	LastInterval    string  `json:"last_interval"`
	PowerW          float64 `json:"power_w"`
	DebounceEnabled bool    `json:"debounce_enabled"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip             string  `json:"chip"`
	Pin              int     `json:"pin"`
	IndicatorPin     int     `json:"indicator_pin"`
	Edge             string  `json:"edge"`
	DebounceWindowMs int64   `json:"debounce_window_ms"`
	Scale            float64 `json:"scale"`
	HeartbeatMs      int64   `json:"heartbeat_ms"`
	Broker           string  `json:"broker"`
	HTTPAddr         string  `json:"http_addr"`
	ReportAddr       string  `json:"report_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		Meter: MeterJSON{
			Count:           snap.Meter.Count,
			IndicatorOn:     snap.Meter.IndicatorOn,
			LastPulseTime:   snap.Meter.LastPulseTime.UTC().Format(time.RFC3339Nano),
			LastPulseClock:  attr.FormatPulseTime(snap.Meter.LastPulseTime),
			LastInterval:    attr.FormatInterval(snap.Meter.LastInterval),
			PowerW:          snap.PowerW,
			DebounceEnabled: snap.DebounceEnabled,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Chip:             snap.Config.Chip,
			Pin:              snap.Config.Pin,
			IndicatorPin:     snap.Config.IndicatorPin,
			Edge:             snap.Config.Edge,
			DebounceWindowMs: snap.Config.DebounceWindowMs,
			Scale:            snap.Config.Scale,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
			ReportAddr:       snap.Config.ReportAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
