package meter

import "time"

// DefaultScale converts a pulse interval in seconds to watts for a meter
// emitting one pulse per watt-hour (3600 J per pulse).
const DefaultScale = 3600.0

// Power returns the instantaneous power implied by interval. A zero interval
// (no pulse yet) reports 0 rather than infinity.
func Power(interval time.Duration, scale float64) float64 {
	if interval <= 0 {
		return 0
	}
	return scale / interval.Seconds()
}
