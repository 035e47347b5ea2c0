// Command pulse-meter counts utility meter pulses on a GPIO line and exposes
// the derived state over HTTP, MQTT and a fixed-record TCP report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bep/debounce"

	"github.com/sweeney/pulse-meter/internal/attr"
	"github.com/sweeney/pulse-meter/internal/config"
	"github.com/sweeney/pulse-meter/internal/gpio"
	"github.com/sweeney/pulse-meter/internal/logging"
	"github.com/sweeney/pulse-meter/internal/meter"
	"github.com/sweeney/pulse-meter/internal/mqtt"
	"github.com/sweeney/pulse-meter/internal/report"
	"github.com/sweeney/pulse-meter/internal/status"
	"github.com/sweeney/pulse-meter/internal/web"
)

// newDriver opens the GPIO chip. Replaced in tests.
var newDriver = func(chip string) (gpio.Driver, error) {
	d, err := gpio.NewRealDriver(chip)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func main() {
	cfg, printState, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.NewLogger("pulse-meter", cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, printState, os.Stdout, logger); err != nil {
		logger.Errorf("fatal: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

// parseFlags loads the config file, if any, and applies the flags that were
// set explicitly on top of it.
func parseFlags(args []string) (*config.Config, bool, error) {
	fs := flag.NewFlagSet("pulse-meter", flag.ContinueOnError)
	d := config.Default()

	configPath := fs.String("config", "", "YAML config file (built-in defaults when empty)")
	chip := fs.String("chip", d.Meter.Chip, "GPIO chip name")
	pin := fs.Int("pin", d.Meter.Pin, "line offset of the meter pulse input")
	indicatorPin := fs.Int("indicator-pin", d.Meter.IndicatorPin, "line offset of the indicator LED")
	edge := fs.String("edge", d.Meter.Edge, "pulse edge to count (rising or falling)")
	noDebounce := fs.Bool("no-debounce", false, "start with debounce disabled")
	debounceWindow := fs.Duration("debounce-window", d.Meter.DebounceWindow, "debounce window")
	broker := fs.String("broker", d.MQTT.Broker, `MQTT broker address ("" disables)`)
	heartbeat := fs.Duration("heartbeat", d.MQTT.Heartbeat, "heartbeat interval (0 to disable)")
	httpAddr := fs.String("http", d.HTTP.Addr, "HTTP attribute/status address (empty to disable)")
	reportAddr := fs.String("report", d.Report.Addr, "power report address (empty to disable)")
	debug := fs.Bool("debug", false, "debug logging (logs every pulse)")
	printState := fs.Bool("print-state", false, "print the attributes and exit")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	cfg := d
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, false, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "chip":
			cfg.Meter.Chip = *chip
		case "pin":
			cfg.Meter.Pin = *pin
		case "indicator-pin":
			cfg.Meter.IndicatorPin = *indicatorPin
		case "edge":
			cfg.Meter.Edge = *edge
		case "no-debounce":
			on := !*noDebounce
			cfg.Meter.Debounce = &on
		case "debounce-window":
			cfg.Meter.DebounceWindow = *debounceWindow
		case "broker":
			cfg.MQTT.Broker = *broker
		case "heartbeat":
			cfg.MQTT.Heartbeat = *heartbeat
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "report":
			cfg.Report.Addr = *reportAddr
		case "debug":
			cfg.Debug = *debug
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, *printState, nil
}

func meterConfig(c config.MeterConfig) meter.Config {
	edge, _ := gpio.ParseEdge(c.Edge)
	return meter.Config{
		MeterPin:        c.Pin,
		IndicatorPin:    c.IndicatorPin,
		Edge:            edge,
		DebounceEnabled: c.DebounceEnabled(),
		DebounceWindow:  c.DebounceWindow,
	}
}

func statusConfig(c *config.Config) status.Config {
	return status.Config{
		Chip:             c.Meter.Chip,
		Pin:              c.Meter.Pin,
		IndicatorPin:     c.Meter.IndicatorPin,
		Edge:             c.Meter.Edge,
		DebounceWindowMs: c.Meter.DebounceWindow.Milliseconds(),
		Scale:            c.Meter.Scale,
		HeartbeatMs:      c.MQTT.Heartbeat.Milliseconds(),
		Broker:           c.MQTT.Broker,
		HTTPAddr:         c.HTTP.Addr,
		ReportAddr:       c.Report.Addr,
	}
}

func run(cfg *config.Config, printState bool, out io.Writer, logger logging.Logger) error {
	driver, err := newDriver(cfg.Meter.Chip)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", meter.ErrResourceUnavailable, cfg.Meter.Chip, err)
	}

	clk := clock.New()
	m, err := meter.Open(driver, meterConfig(cfg.Meter), clk, logger)
	if err != nil {
		return fmt.Errorf("open meter: %w", err)
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			logger.Warnf("close meter: %v", cerr)
		}
	}()

	attrs := attr.New(m.Counter(), m.Debounce(), logger)

	// Print state mode
	if printState {
		for _, name := range attrs.Names() {
			v, _ := attrs.Read(name)
			fmt.Fprintf(out, "%s: %s\n", name, v)
		}
		return nil
	}

	tracker := status.NewTracker(clk, statusConfig(cfg), m.Counter(), m.Debounce())
	if ni := readNetworkInfo(); ni != nil {
		tracker.SetNetwork(ni)
	}

	// Start HTTP attribute server
	if cfg.HTTP.Addr != "" {
		ln, err := net.Listen("tcp", cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("%w: http: %w", meter.ErrAttributeInterfaceUnavailable, err)
		}
		srv := web.New(cfg.HTTP.Addr, tracker, attrs, logger)
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warnf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Infof("http attribute server listening on %s", cfg.HTTP.Addr)
	}

	// Initialize MQTT
	var publisher mqtt.Publisher = nopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Prefix:   cfg.MQTT.Prefix,
		}, logger)
		defer p.Close()
		if err := p.Subscribe(attrs); err != nil {
			return fmt.Errorf("%w: mqtt: %w", meter.ErrAttributeInterfaceUnavailable, err)
		}
		publisher, mqttStatus = p, p
		tracker.SetMQTTConnected(p.IsConnected())
	}

	// Start power report server
	if cfg.Report.Addr != "" {
		rs := report.NewServer(cfg.Report.Addr, attrs, cfg.Meter.Scale, logger)
		ln, err := rs.Listen()
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		go rs.Serve(ln)
		defer rs.Close()
		logger.Infof("power report listening on %s", cfg.Report.Addr)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Warnf("failed to publish startup event: %v", err)
	} else {
		logger.Infof("published startup event")
	}

	logger.Infof("started: chip=%s pin=%d edge=%s broker=%s heartbeat=%v",
		cfg.Meter.Chip, cfg.Meter.Pin, cfg.Meter.Edge, cfg.MQTT.Broker, cfg.MQTT.Heartbeat)

	var tick <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		ticker := clk.Ticker(cfg.MQTT.Heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(m.Counter(), publisher, mqttStatus, tracker, cfg.Meter.Scale, cfg.MQTT.Coalesce, clk, tick, sigCh, logger)
}

// newReading builds a reading from a consistent counter snapshot.
func newReading(s meter.State, scale float64, now time.Time) mqtt.Reading {
	return mqtt.Reading{
		Timestamp:     now,
		Count:         s.Count,
		Interval:      s.LastInterval,
		PowerW:        meter.Power(s.LastInterval, scale),
		LastPulseTime: s.LastPulseTime,
	}
}

func runLoop(counter *meter.Counter, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, scale float64, coalesce time.Duration, clk clock.Clock, tick <-chan time.Time, sig <-chan os.Signal, logger logging.Logger) error {
	publishReading := func() {
		r := newReading(counter.Snapshot(), scale, clk.Now())
		if err := publisher.PublishReading(r); err != nil {
			logger.Warnf("publish error: %v", err)
		}
	}
	// The coalesce window runs on wall-clock time, not on clk.
	coalesced := debounce.New(coalesce)

	for {
		select {
		case s := <-sig:
			logger.Infof("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			// Replace any pending coalesced publish and send the final reading now.
			coalesced(func() {})
			publishReading()

			event := mqtt.SystemEvent{
				Timestamp: clk.Now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				logger.Warnf("failed to publish shutdown event: %v", err)
			} else {
				logger.Infof("published shutdown event")
			}
			return nil

		case <-counter.Pulses():
			coalesced(publishReading)

		case <-tick:
			hbEvent := mqtt.SystemEvent{
				Timestamp: clk.Now(),
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				// Refresh network info for heartbeat
				if ni := readNetworkInfo(); ni != nil {
					tracker.SetNetwork(ni)
				}
				snap := tracker.Snapshot()
				logger.Infof("heartbeat: uptime=%v count=%d", snap.Uptime().Truncate(time.Second), snap.Meter.Count)
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				logger.Warnf("heartbeat publish error: %v", err)
			}
		}
	}
}

// nopPublisher stands in when MQTT is disabled.
type nopPublisher struct{}

func (nopPublisher) PublishReading(mqtt.Reading) error { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (nopPublisher) Close() error { return nil }

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
