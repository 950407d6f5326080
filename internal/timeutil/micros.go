package timeutil

import "time"

// Micros is a reading of a free-running 32-bit microsecond counter, as
// reported by the IMU alongside each sample. The counter wraps roughly every
// 71.6 minutes.
type Micros uint32

// Sub returns the time elapsed from earlier to m. The subtraction is done
// modulo 2^32, so a single wrap of the counter between the two readings
// yields the correct positive interval. Intervals longer than one full wrap
// cannot be distinguished.
func (m Micros) Sub(earlier Micros) time.Duration {
	return time.Duration(uint32(m)-uint32(earlier)) * time.Microsecond
}

// Add returns the counter value d after m, wrapping as the hardware does.
func (m Micros) Add(d time.Duration) Micros {
	return Micros(uint32(m) + uint32(d/time.Microsecond))
}

// After reports whether m is later than other, assuming the two readings are
// less than half a wrap apart.
func (m Micros) After(other Micros) bool {
	return int32(uint32(m)-uint32(other)) > 0
}
