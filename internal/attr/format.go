package attr

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// FormatCount renders a pulse count in decimal.
func FormatCount(n uint64) string {
	return strconv.FormatUint(n, 10)
}

// ParseCount reads a count the way a C "%d" scan would: leading whitespace
// is skipped and anything after the leading digits is ignored. Input with
// no leading digits, or a negative value, is ErrMalformedWrite.
func ParseCount(s string) (uint64, error) {
	digits, neg, ok := scanInt(s)
	if !ok || neg {
		return 0, fmt.Errorf("%w: %q", ErrMalformedWrite, s)
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedWrite, s)
	}
	return n, nil
}

// FormatBool renders a flag as "1" or "0".
func FormatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ParseBool reads an integer with the same leniency as ParseCount; any
// non-zero value is true.
func ParseBool(s string) (bool, error) {
	digits, _, ok := scanInt(s)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrMalformedWrite, s)
	}
	return strings.Trim(digits, "0") != "", nil
}

// FormatPulseTime renders t as HH:MM:SS.nnnnnnnnn from its Unix seconds,
// wrapping every 24 hours. No time zone or locale is applied.
func FormatPulseTime(t time.Time) string {
	sec := t.Unix()
	return fmt.Sprintf("%02d:%02d:%02d.%09d", (sec/3600)%24, (sec/60)%60, sec%60, t.Nanosecond())
}

// FormatInterval renders d as seconds with nine fractional digits.
func FormatInterval(d time.Duration) string {
	return fmt.Sprintf("%d.%09d", d/time.Second, d%time.Second)
}

// ParseInterval is the inverse of FormatInterval. It also accepts fewer
// fractional digits ("0.7") and a trailing newline.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || len(frac) > 9 {
		return 0, fmt.Errorf("parse interval %q", s)
	}
	secs, err := strconv.ParseUint(whole, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse interval %q: %w", s, err)
	}
	var nanos uint64
	if frac != "" {
		nanos, err = strconv.ParseUint(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse interval %q: %w", s, err)
		}
	}
	return time.Duration(secs)*time.Second + time.Duration(nanos), nil
}

// scanInt returns the leading optionally-signed run of digits in s.
func scanInt(s string) (digits string, neg bool, ok bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", false, false
	}
	return s[:end], neg, true
}
