// Package report serves the power report: a TCP listener that writes one
// fixed-size record per accepted connection and then closes it.
package report

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/pulse-meter/internal/meter"
)

// RecordSize is the encoded size of a Record.
const RecordSize = 8

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":9123"

var ErrShortRecord = errors.New("short record")

// Record is the wire record: current power in watts and accumulated
// energy in watt-hours, both little-endian uint32.
type Record struct {
	W  uint32
	Wh uint32
}

// MarshalBinary encodes r in wire order.
func (r Record) MarshalBinary() ([]byte, error) {
	b := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(b[0:4], r.W)
	binary.LittleEndian.PutUint32(b[4:8], r.Wh)
	return b, nil
}

// UnmarshalBinary decodes a record.
func (r *Record) UnmarshalBinary(b []byte) error {
	if len(b) < RecordSize {
		return fmt.Errorf("%w: %d bytes", ErrShortRecord, len(b))
	}
	r.W = binary.LittleEndian.Uint32(b[0:4])
	r.Wh = binary.LittleEndian.Uint32(b[4:8])
	return nil
}

// NewRecord builds a record from an interval and a pulse count. Power is
// truncated to whole watts; both fields saturate at MaxUint32.
func NewRecord(interval time.Duration, count uint64, scale float64) Record {
	w := meter.Power(interval, scale)
	var r Record
	switch {
	case w >= math.MaxUint32:
		r.W = math.MaxUint32
	case w > 0:
		r.W = uint32(w)
	}
	if count > math.MaxUint32 {
		r.Wh = math.MaxUint32
	} else {
		r.Wh = uint32(count)
	}
	return r
}
