package motion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Reading is the full result of classifying one sample.
type Reading struct {
	State          MotionState
	AccelMagnitude float64 // mg
	GyroMagnitude  float64 // °/s
	AccelDelta     float64 // mg, change since the previous sample
	TiltAngle      float64 // degrees from vertical
	RawShaking     bool    // this sample alone qualifies as shaking
	RawTilting     bool
}

// Classifier is a stateful motion classifier. It is not safe for concurrent
// use; the sensor actor owns exactly one.
//
// Shaking is debounced in both directions: ShakeConfirmCount consecutive
// qualifying samples are required to enter it, and once confirmed it is held
// until StableResetCount consecutive non-qualifying samples have been seen.
// Any non-qualifying sample before confirmation restarts the entry count.
type Classifier struct {
	cfg Config

	prevAccel   float64
	hasBaseline bool
	shakeCount  int
	stableCount int
	confirmed   bool

	cached    bool
	cacheKey  sampleKey
	cacheRead Reading
}

// NewClassifier validates cfg and returns a classifier with no history.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid classifier config: %w", err)
	}
	return &Classifier{cfg: cfg}, nil
}

// Config returns the active thresholds.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Classify returns the motion state after observing s.
func (c *Classifier) Classify(s SensorSample) MotionState {
	return c.Detail(s).State
}

// Detail classifies s and returns the intermediate measurements as well.
// Calling it again with a bit-identical sample returns the previous result
// without touching the debounce counters.
func (c *Classifier) Detail(s SensorSample) Reading {
	key := s.key()
	if c.cached && key == c.cacheKey {
		return c.cacheRead
	}

	r := c.measure(s)
	r.State = c.step(r.RawShaking, r.RawTilting)

	c.cached = true
	c.cacheKey = key
	c.cacheRead = r
	return r
}

func (c *Classifier) measure(s SensorSample) Reading {
	accel := floats.Norm([]float64{s.AccelX, s.AccelY, s.AccelZ}, 2)
	gyro := floats.Norm([]float64{s.GyroX, s.GyroY, s.GyroZ}, 2)

	var delta float64
	if c.hasBaseline {
		delta = math.Abs(accel - c.prevAccel)
	}
	c.prevAccel = accel
	c.hasBaseline = true

	tilt := tiltAngle(s.AccelZ, accel, c.cfg.MinValidAccel)
	return Reading{
		AccelMagnitude: accel,
		GyroMagnitude:  gyro,
		AccelDelta:     delta,
		TiltAngle:      tilt,
		// a static tilt changes magnitude relative to gravity too, so the
		// angular rate has to agree
		RawShaking: delta > c.cfg.AccelThreshold && gyro > c.cfg.GyroThreshold,
		RawTilting: tilt > c.cfg.TiltThreshold,
	}
}

func (c *Classifier) step(rawShaking, rawTilting bool) MotionState {
	if rawShaking {
		c.shakeCount++
		c.stableCount = 0
		if c.shakeCount >= c.cfg.ShakeConfirmCount {
			c.confirmed = true
		}
	} else {
		if c.stableCount < c.cfg.StableResetCount {
			c.stableCount++
		}
		switch {
		case !c.confirmed:
			c.shakeCount = 0
		case c.stableCount >= c.cfg.StableResetCount:
			c.confirmed = false
			c.shakeCount = 0
		}
	}

	switch {
	case c.confirmed:
		return Shaking
	case rawTilting:
		return Tilting
	default:
		return Still
	}
}

// tiltAngle is the angle between the gravity vector and the device Z axis.
func tiltAngle(az, magnitude, floor float64) float64 {
	if magnitude < floor {
		return 0
	}
	cos := math.Min(math.Max(math.Abs(az)/magnitude, 0), 1)
	return math.Min(math.Acos(cos)*180/math.Pi, MaxTiltAngle)
}

// Reset clears the debounce counters, the magnitude baseline and the cache.
// The sensor actor calls it after a gap in the sample stream.
func (c *Classifier) Reset() {
	c.prevAccel = 0
	c.hasBaseline = false
	c.shakeCount = 0
	c.stableCount = 0
	c.confirmed = false
	c.invalidate()
}

// Counters returns the current shake and stable counts.
func (c *Classifier) Counters() (shake, stable int) {
	return c.shakeCount, c.stableCount
}

// SetThresholds replaces the shaking thresholds. On error the classifier is
// unchanged.
func (c *Classifier) SetThresholds(accel, gyro float64) error {
	next := c.cfg
	next.AccelThreshold = accel
	next.GyroThreshold = gyro
	if err := next.Validate(); err != nil {
		return err
	}
	c.cfg = next
	c.invalidate()
	return nil
}

// SetTiltThreshold replaces the tilt threshold. On error the classifier is
// unchanged.
func (c *Classifier) SetTiltThreshold(deg float64) error {
	if err := validateTilt(deg); err != nil {
		return err
	}
	c.cfg.TiltThreshold = deg
	c.invalidate()
	return nil
}

func (c *Classifier) invalidate() {
	c.cached = false
	c.cacheKey = sampleKey{}
	c.cacheRead = Reading{}
}
