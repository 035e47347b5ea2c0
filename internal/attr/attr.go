// Package attr exposes meter state as a fixed set of named text attributes.
// Each attribute is read and written independently; transports (HTTP, MQTT,
// the power report) sit on top of Set.
package attr

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/sweeney/pulse-meter/internal/logging"
)

// Attribute names.
const (
	Count           = "count"
	IndicatorOn     = "indicatorOn"
	LastPulseTime   = "lastPulseTime"
	LastInterval    = "lastInterval"
	DebounceEnabled = "debounceEnabled"
)

var (
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrReadOnly         = errors.New("attribute is read-only")
	ErrMalformedWrite   = errors.New("malformed write")
)

// Permission bits, as sysfs would show them.
const (
	ModeReadOnly  fs.FileMode = 0o444
	ModeReadWrite fs.FileMode = 0o664
)

// Counter is the pulse state behind the attributes.
type Counter interface {
	Count() uint64
	IndicatorOn() bool
	LastPulseTime() time.Time
	LastInterval() time.Duration
	SetCount(v uint64)
}

// Debouncer is the debounce policy behind debounceEnabled.
type Debouncer interface {
	Enabled() bool
	SetEnabled(on bool) error
}

// Attribute is one named endpoint.
type Attribute struct {
	Name  string
	Mode  fs.FileMode
	show  func() string
	store func(string) error
}

// Writable reports whether the attribute accepts writes.
func (a Attribute) Writable() bool {
	return a.Mode&0o222 != 0
}

// Set is the attribute table for one meter.
type Set struct {
	attrs  []Attribute
	byName map[string]int
	logger logging.Logger
}

// New builds the five meter attributes over c and d.
func New(c Counter, d Debouncer, logger logging.Logger) *Set {
	s := &Set{logger: logger}
	s.attrs = []Attribute{
		{
			Name: Count,
			Mode: ModeReadWrite,
			show: func() string { return FormatCount(c.Count()) },
			store: func(v string) error {
				n, err := ParseCount(v)
				if err != nil {
					return err
				}
				c.SetCount(n)
				return nil
			},
		},
		{
			Name: IndicatorOn,
			Mode: ModeReadOnly,
			show: func() string { return FormatBool(c.IndicatorOn()) },
		},
		{
			Name: LastPulseTime,
			Mode: ModeReadOnly,
			show: func() string { return FormatPulseTime(c.LastPulseTime()) },
		},
		{
			Name: LastInterval,
			Mode: ModeReadOnly,
			show: func() string { return FormatInterval(c.LastInterval()) },
		},
		{
			Name: DebounceEnabled,
			Mode: ModeReadWrite,
			show: func() string { return FormatBool(d.Enabled()) },
			store: func(v string) error {
				on, err := ParseBool(v)
				if err != nil {
					return err
				}
				return d.SetEnabled(on)
			},
		},
	}
	s.byName = make(map[string]int, len(s.attrs))
	for i, a := range s.attrs {
		s.byName[a.Name] = i
	}
	return s
}

// Names returns the attribute names in table order.
func (s *Set) Names() []string {
	names := make([]string, len(s.attrs))
	for i, a := range s.attrs {
		names[i] = a.Name
	}
	return names
}

// Lookup returns the named attribute.
func (s *Set) Lookup(name string) (Attribute, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Attribute{}, false
	}
	return s.attrs[i], true
}

// Read returns the attribute's current text value.
func (s *Set) Read(name string) (string, error) {
	a, ok := s.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	return a.show(), nil
}

// Write applies value to a writable attribute. Malformed values are logged
// and ignored; the call still returns nil.
func (s *Set) Write(name, value string) error {
	a, ok := s.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	if !a.Writable() {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	err := a.store(value)
	if errors.Is(err, ErrMalformedWrite) {
		s.logger.Warnf("%s: ignoring %v", name, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadAll returns every attribute's value keyed by name.
func (s *Set) ReadAll() map[string]string {
	out := make(map[string]string, len(s.attrs))
	for _, a := range s.attrs {
		out[a.Name] = a.show()
	}
	return out
}
