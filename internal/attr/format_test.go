package attr

import (
	"errors"
	"testing"
	"time"
)

func TestParseCount(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"0", 0, false},
		{"42", 42, false},
		{"42\n", 42, false},
		{"  7", 7, false},
		{"+9", 9, false},
		{"12abc", 12, false},
		{"18446744073709551615", 18446744073709551615, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-5", 0, true},
		{"\n", 0, true},
		{"99999999999999999999", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCount(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCount(%q): err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrMalformedWrite) {
			t.Errorf("ParseCount(%q): expected ErrMalformedWrite, got %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseCount(%q): got %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"1", true, false},
		{"0", false, false},
		{"000", false, false},
		{"2", true, false},
		{"-1", true, false},
		{"1\n", true, false},
		{"true", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		got, err := ParseBool(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBool(%q): err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBool(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatBool(t *testing.T) {
	if FormatBool(true) != "1" || FormatBool(false) != "0" {
		t.Errorf("FormatBool: got %q/%q, want 1/0", FormatBool(true), FormatBool(false))
	}
}

func TestFormatPulseTime(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2026, 1, 1, 12, 34, 56, 789, time.UTC), "12:34:56.000000789"},
		{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "00:00:00.000000000"},
		{time.Date(2026, 1, 1, 23, 59, 59, 999999999, time.UTC), "23:59:59.999999999"},
		// Local zone is ignored: same instant, same text.
		{time.Date(2026, 1, 1, 14, 34, 56, 5, time.FixedZone("X", 2*3600)), "12:34:56.000000005"},
	}
	for _, tt := range tests {
		if got := FormatPulseTime(tt.in); got != tt.want {
			t.Errorf("FormatPulseTime(%v): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0.000000000"},
		{700 * time.Millisecond, "0.700000000"},
		{3*time.Second + 5, "3.000000005"},
		{125 * time.Second, "125.000000000"},
	}
	for _, tt := range tests {
		if got := FormatInterval(tt.in); got != tt.want {
			t.Errorf("FormatInterval(%v): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIntervalRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{0, 1, 700 * time.Millisecond, 3*time.Second + 123456789, time.Hour} {
		got, err := ParseInterval(FormatInterval(d))
		if err != nil {
			t.Errorf("ParseInterval(FormatInterval(%v)): %v", d, err)
			continue
		}
		if got != d {
			t.Errorf("round trip: got %v, want %v", got, d)
		}
	}
}

func TestParseIntervalLenientForms(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"0.7", 700 * time.Millisecond, false},
		{"2", 2 * time.Second, false},
		{"1.500000000\n", 1500 * time.Millisecond, false},
		{"", 0, true},
		{".5", 0, true},
		{"1.0000000001", 0, true},
		{"x.1", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseInterval(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseInterval(%q): err=%v, wantErr=%v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInterval(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCountRoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 1, 101, 1 << 40} {
		got, err := ParseCount(FormatCount(n))
		if err != nil || got != n {
			t.Errorf("round trip %d: got %d, %v", n, got, err)
		}
	}
}
