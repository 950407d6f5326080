// Package config loads the device's startup configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/handheld/internal/display"
	"github.com/banshee-data/handheld/internal/motion"
	"github.com/banshee-data/handheld/internal/network"
	"github.com/banshee-data/handheld/internal/orchestrator"
	"github.com/banshee-data/handheld/internal/sensor"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/handheld.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root configuration document. Every field is optional; the
// Get* methods return the default for an unset field.
type Config struct {
	// Classifier
	AccelThresholdMg  *float64 `json:"accel_threshold_mg,omitempty"`
	GyroThresholdDps  *float64 `json:"gyro_threshold_dps,omitempty"`
	TiltThresholdDeg  *float64 `json:"tilt_threshold_deg,omitempty"`
	MinValidAccelMg   *float64 `json:"min_valid_accel_mg,omitempty"`
	ShakeConfirmCount *int     `json:"shake_confirm_count,omitempty"`
	StableResetCount  *int     `json:"stable_reset_count,omitempty"`

	// Sensor actor
	SensorPollInterval *string `json:"sensor_poll_interval,omitempty"` // duration string like "50ms"
	HeartbeatInterval  *string `json:"heartbeat_interval,omitempty"`
	SampleGapReset     *string `json:"sample_gap_reset,omitempty"`

	// Network actor
	NetworkIdlePoll       *string `json:"network_idle_poll,omitempty"`
	NetworkCommandTimeout *string `json:"network_command_timeout,omitempty"`

	// Display and orchestrator
	TickInterval      *string `json:"tick_interval,omitempty"`
	DizzyMinDwell     *string `json:"dizzy_min_dwell,omitempty"`
	ErrorTimeoutTicks *uint32 `json:"error_timeout_ticks,omitempty"`
	StatusPollTicks   *uint64 `json:"status_poll_ticks,omitempty"`

	WiFi *WiFiConfig `json:"wifi,omitempty"`
}

// WiFiConfig holds the credentials used to join a network at startup.
type WiFiConfig struct {
	SSID        *string `json:"ssid,omitempty"`
	Password    *string `json:"password,omitempty"`
	AutoConnect *bool   `json:"auto_connect,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// LoadConfig reads and validates a JSON config file. Fields omitted from the
// file keep their defaults, so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory or
// one of its parents. It panics if the file cannot be loaded and is intended
// for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/tools/<tool>/
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

type durationField struct {
	key   string
	value *string
}

func (c *Config) durations() []durationField {
	return []durationField{
		{"sensor_poll_interval", c.SensorPollInterval},
		{"heartbeat_interval", c.HeartbeatInterval},
		{"sample_gap_reset", c.SampleGapReset},
		{"network_idle_poll", c.NetworkIdlePoll},
		{"network_command_timeout", c.NetworkCommandTimeout},
		{"tick_interval", c.TickInterval},
		{"dizzy_min_dwell", c.DizzyMinDwell},
	}
}

// Validate checks the values that are set. Classifier thresholds are checked
// by motion.Config.Validate so the rules live in one place.
func (c *Config) Validate() error {
	if err := c.ClassifierConfig().Validate(); err != nil {
		return err
	}

	for _, f := range c.durations() {
		if f.value == nil || *f.value == "" {
			continue
		}
		d, err := time.ParseDuration(*f.value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", f.key, *f.value, err)
		}
		// sample_gap_reset may be zero to disable the check
		if d < 0 || (d == 0 && f.key != "sample_gap_reset") {
			return fmt.Errorf("%s must be positive, got %s", f.key, *f.value)
		}
	}

	if c.ErrorTimeoutTicks != nil && *c.ErrorTimeoutTicks == 0 {
		return fmt.Errorf("error_timeout_ticks must be at least 1")
	}

	if creds, ok := c.Credentials(); ok {
		if err := creds.Validate(); err != nil {
			return fmt.Errorf("wifi: %w", err)
		}
	} else if c.WiFi != nil && c.WiFi.Password != nil && *c.WiFi.Password != "" {
		return fmt.Errorf("wifi: password set without ssid")
	}
	return nil
}

func duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func (c *Config) GetAccelThreshold() float64 {
	if c.AccelThresholdMg == nil {
		return motion.DefaultConfig().AccelThreshold
	}
	return *c.AccelThresholdMg
}

func (c *Config) GetGyroThreshold() float64 {
	if c.GyroThresholdDps == nil {
		return motion.DefaultConfig().GyroThreshold
	}
	return *c.GyroThresholdDps
}

func (c *Config) GetTiltThreshold() float64 {
	if c.TiltThresholdDeg == nil {
		return motion.DefaultConfig().TiltThreshold
	}
	return *c.TiltThresholdDeg
}

func (c *Config) GetMinValidAccel() float64 {
	if c.MinValidAccelMg == nil {
		return motion.DefaultConfig().MinValidAccel
	}
	return *c.MinValidAccelMg
}

func (c *Config) GetShakeConfirmCount() int {
	if c.ShakeConfirmCount == nil {
		return motion.DefaultConfig().ShakeConfirmCount
	}
	return *c.ShakeConfirmCount
}

func (c *Config) GetStableResetCount() int {
	if c.StableResetCount == nil {
		return motion.DefaultConfig().StableResetCount
	}
	return *c.StableResetCount
}

// GetSensorPollInterval returns the sensor quantum. Default 50ms.
func (c *Config) GetSensorPollInterval() time.Duration {
	return duration(c.SensorPollInterval, sensor.DefaultConfig().PollInterval)
}

// GetHeartbeatInterval returns the sensor heartbeat. Default 5s.
func (c *Config) GetHeartbeatInterval() time.Duration {
	return duration(c.HeartbeatInterval, sensor.DefaultConfig().HeartbeatInterval)
}

// GetSampleGapReset returns the timestamp gap that resets the classifier.
// Default 1s; zero disables.
func (c *Config) GetSampleGapReset() time.Duration {
	return duration(c.SampleGapReset, sensor.DefaultConfig().SampleGapReset)
}

func (c *Config) GetNetworkIdlePoll() time.Duration {
	return duration(c.NetworkIdlePoll, network.DefaultConfig().IdlePoll)
}

func (c *Config) GetNetworkCommandTimeout() time.Duration {
	return duration(c.NetworkCommandTimeout, network.DefaultConfig().CommandTimeout)
}

func (c *Config) GetTickInterval() time.Duration {
	return duration(c.TickInterval, orchestrator.DefaultConfig().TickInterval)
}

func (c *Config) GetDizzyMinDwell() time.Duration {
	return duration(c.DizzyMinDwell, display.DefaultConfig().DizzyMinDwell)
}

func (c *Config) GetErrorTimeoutTicks() uint32 {
	if c.ErrorTimeoutTicks == nil {
		return display.DefaultConfig().ErrorTimeoutTicks
	}
	return *c.ErrorTimeoutTicks
}

func (c *Config) GetStatusPollTicks() uint64 {
	if c.StatusPollTicks == nil {
		return orchestrator.DefaultConfig().StatusPollTicks
	}
	return *c.StatusPollTicks
}

// Credentials returns the configured wifi credentials, if an SSID is set.
func (c *Config) Credentials() (network.Credentials, bool) {
	if c.WiFi == nil || c.WiFi.SSID == nil || *c.WiFi.SSID == "" {
		return network.Credentials{}, false
	}
	creds := network.Credentials{SSID: *c.WiFi.SSID}
	if c.WiFi.Password != nil {
		creds.Password = *c.WiFi.Password
	}
	return creds, true
}

// GetAutoConnect reports whether to join the configured network at startup.
// Default true; always false without credentials.
func (c *Config) GetAutoConnect() bool {
	if _, ok := c.Credentials(); !ok {
		return false
	}
	if c.WiFi.AutoConnect == nil {
		return true
	}
	return *c.WiFi.AutoConnect
}

func (c *Config) ClassifierConfig() motion.Config {
	return motion.Config{
		AccelThreshold:    c.GetAccelThreshold(),
		GyroThreshold:     c.GetGyroThreshold(),
		TiltThreshold:     c.GetTiltThreshold(),
		MinValidAccel:     c.GetMinValidAccel(),
		ShakeConfirmCount: c.GetShakeConfirmCount(),
		StableResetCount:  c.GetStableResetCount(),
	}
}

func (c *Config) SensorConfig() sensor.Config {
	return sensor.Config{
		PollInterval:      c.GetSensorPollInterval(),
		HeartbeatInterval: c.GetHeartbeatInterval(),
		SampleGapReset:    c.GetSampleGapReset(),
	}
}

func (c *Config) NetworkConfig() network.Config {
	cfg := network.DefaultConfig()
	cfg.IdlePoll = c.GetNetworkIdlePoll()
	cfg.CommandTimeout = c.GetNetworkCommandTimeout()
	return cfg
}

func (c *Config) DisplayConfig() display.Config {
	return display.Config{
		DizzyMinDwell:     c.GetDizzyMinDwell(),
		ErrorTimeoutTicks: c.GetErrorTimeoutTicks(),
	}
}

func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		TickInterval:    c.GetTickInterval(),
		StatusPollTicks: c.GetStatusPollTicks(),
	}
}
