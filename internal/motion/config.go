package motion

import "fmt"

// MaxTiltAngle is the largest tilt the classifier reports, in degrees.
const MaxTiltAngle = 90.0

// Config holds the classifier thresholds.
type Config struct {
	// AccelThreshold is the change in acceleration magnitude between two
	// consecutive samples, in mg, above which a sample may count as shaking.
	AccelThreshold float64
	// GyroThreshold is the angular-rate magnitude, in °/s, that must also be
	// exceeded for a sample to count as shaking.
	GyroThreshold float64
	// TiltThreshold is the angle from vertical, in degrees, above which the
	// device is considered tilted. Must be in (0, 90].
	TiltThreshold float64
	// MinValidAccel is the acceleration magnitude, in mg, below which the
	// tilt angle is not computed and reads as 0.
	MinValidAccel float64
	// ShakeConfirmCount is the number of consecutive shaking samples needed
	// before Shaking is reported.
	ShakeConfirmCount int
	// StableResetCount is the number of consecutive non-shaking samples needed
	// to leave Shaking once it has been confirmed.
	StableResetCount int
}

// DefaultConfig returns the thresholds tuned for the QMI8658 at ±2g/±256dps.
func DefaultConfig() Config {
	return Config{
		AccelThreshold:    800,
		GyroThreshold:     120,
		TiltThreshold:     45,
		MinValidAccel:     10,
		ShakeConfirmCount: 12,
		StableResetCount:  10,
	}
}

// Validate reports the first invalid field. Values are never clamped.
func (c Config) Validate() error {
	if !(c.AccelThreshold > 0) {
		return fmt.Errorf("accel threshold must be positive, got %v", c.AccelThreshold)
	}
	if !(c.GyroThreshold > 0) {
		return fmt.Errorf("gyro threshold must be positive, got %v", c.GyroThreshold)
	}
	if err := validateTilt(c.TiltThreshold); err != nil {
		return err
	}
	if !(c.MinValidAccel > 0) {
		return fmt.Errorf("minimum valid acceleration must be positive, got %v", c.MinValidAccel)
	}
	if c.ShakeConfirmCount < 1 {
		return fmt.Errorf("shake confirm count must be at least 1, got %d", c.ShakeConfirmCount)
	}
	if c.StableResetCount < 1 {
		return fmt.Errorf("stable reset count must be at least 1, got %d", c.StableResetCount)
	}
	return nil
}

func validateTilt(deg float64) error {
	if !(deg > 0) || deg > MaxTiltAngle {
		return fmt.Errorf("tilt threshold must be in (0, %v] degrees, got %v", MaxTiltAngle, deg)
	}
	return nil
}
