// Package motion turns raw 6-axis IMU samples into a debounced motion state.
package motion

import (
	"math"

	"github.com/banshee-data/handheld/internal/timeutil"
)

// SensorSample is one reading from the IMU. Acceleration is in milli-g and
// angular rate in degrees per second. Timestamp is the sensor's free-running
// microsecond counter.
type SensorSample struct {
	AccelX, AccelY, AccelZ float64
	GyroX, GyroY, GyroZ    float64
	Timestamp              timeutil.Micros
}

// sampleKey is the bit pattern of a sample, used for memoization. Comparing
// bits rather than float values makes NaN inputs hit the cache too.
type sampleKey [7]uint64

func (s SensorSample) key() sampleKey {
	return sampleKey{
		math.Float64bits(s.AccelX),
		math.Float64bits(s.AccelY),
		math.Float64bits(s.AccelZ),
		math.Float64bits(s.GyroX),
		math.Float64bits(s.GyroY),
		math.Float64bits(s.GyroZ),
		uint64(s.Timestamp),
	}
}

// MotionState is the classifier's current belief about how the device is
// being handled.
type MotionState int

const (
	Still MotionState = iota
	Shaking
	Tilting
)

func (s MotionState) String() string {
	switch s {
	case Still:
		return "still"
	case Shaking:
		return "shaking"
	case Tilting:
		return "tilting"
	default:
		return "unknown"
	}
}

// ParseMotionState is the inverse of MotionState.String.
func ParseMotionState(s string) (MotionState, bool) {
	switch s {
	case "still":
		return Still, true
	case "shaking":
		return Shaking, true
	case "tilting":
		return Tilting, true
	}
	return Still, false
}
