package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/jitter.report/internal/units"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be used
// for both startup configuration and runtime inspection.
type TuningConfig struct {
	// Stats params
	WindowSize      *int `json:"window_size,omitempty"`       // samples per channel window
	ChartWindowSize *int `json:"chart_window_size,omitempty"` // points kept for live charts

	// Acquisition params
	PollHz        *float64 `json:"poll_hz,omitempty"`        // expected bridge frame rate
	RenderDivisor *int     `json:"render_divisor,omitempty"` // publish live stats every Nth frame
	DeviceTimeout *string  `json:"device_timeout,omitempty"` // duration string like "5s"

	// Persistence params
	FlushInterval *string `json:"flush_interval,omitempty"` // duration string like "5s"

	// Base-station drift params
	DriftThresholdMM        *float64 `json:"drift_threshold_mm,omitempty"`
	DriftCalibrationSamples *int     `json:"drift_calibration_samples,omitempty"`
	DriftRingSize           *int     `json:"drift_ring_size,omitempty"`

	// Display params
	LengthUnits     *string  `json:"length_units,omitempty"`
	Timezone        *string  `json:"timezone,omitempty"`
	LossWarnPercent *float64 `json:"loss_warn_percent,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated with
// its default value. This is what /api/config reports when no tuning file or
// overrides are in play.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		WindowSize:              ptrInt(100),
		ChartWindowSize:         ptrInt(500),
		PollHz:                  ptrFloat64(90.0),
		RenderDivisor:           ptrInt(3),
		DeviceTimeout:           ptrString("5s"),
		FlushInterval:           ptrString("5s"),
		DriftThresholdMM:        ptrFloat64(5.0),
		DriftCalibrationSamples: ptrInt(120),
		DriftRingSize:           ptrInt(3000),
		LengthUnits:             ptrString(units.Millimetres),
		Timezone:                ptrString("UTC"),
		LossWarnPercent:         ptrFloat64(1.0),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.WindowSize != nil && *c.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d", *c.WindowSize)
	}
	if c.ChartWindowSize != nil && *c.ChartWindowSize < 1 {
		return fmt.Errorf("chart_window_size must be at least 1, got %d", *c.ChartWindowSize)
	}
	if c.PollHz != nil && (*c.PollHz <= 0 || *c.PollHz > 1000) {
		return fmt.Errorf("poll_hz must be in (0, 1000], got %f", *c.PollHz)
	}
	if c.RenderDivisor != nil && *c.RenderDivisor < 1 {
		return fmt.Errorf("render_divisor must be at least 1, got %d", *c.RenderDivisor)
	}
	if c.DeviceTimeout != nil && *c.DeviceTimeout != "" {
		if _, err := time.ParseDuration(*c.DeviceTimeout); err != nil {
			return fmt.Errorf("invalid device_timeout '%s': %w", *c.DeviceTimeout, err)
		}
	}
	if c.FlushInterval != nil && *c.FlushInterval != "" {
		if _, err := time.ParseDuration(*c.FlushInterval); err != nil {
			return fmt.Errorf("invalid flush_interval '%s': %w", *c.FlushInterval, err)
		}
	}
	if c.DriftThresholdMM != nil && *c.DriftThresholdMM <= 0 {
		return fmt.Errorf("drift_threshold_mm must be positive, got %f", *c.DriftThresholdMM)
	}
	if c.DriftCalibrationSamples != nil && *c.DriftCalibrationSamples < 1 {
		return fmt.Errorf("drift_calibration_samples must be at least 1, got %d", *c.DriftCalibrationSamples)
	}
	if c.DriftRingSize != nil && *c.DriftRingSize < 1 {
		return fmt.Errorf("drift_ring_size must be at least 1, got %d", *c.DriftRingSize)
	}
	if c.LengthUnits != nil && !units.IsValidLength(*c.LengthUnits) {
		return fmt.Errorf("length_units must be one of %s, got %q", units.GetValidLengthUnitsString(), *c.LengthUnits)
	}
	if c.Timezone != nil && !units.IsTimezoneValid(*c.Timezone) {
		return fmt.Errorf("invalid timezone %q", *c.Timezone)
	}
	if c.LossWarnPercent != nil && (*c.LossWarnPercent < 0 || *c.LossWarnPercent > 100) {
		return fmt.Errorf("loss_warn_percent must be between 0 and 100, got %f", *c.LossWarnPercent)
	}
	return nil
}

// GetWindowSize returns the window_size value or the default.
func (c *TuningConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return 100 // default
	}
	return *c.WindowSize
}

// GetChartWindowSize returns the chart_window_size value or the default.
func (c *TuningConfig) GetChartWindowSize() int {
	if c.ChartWindowSize == nil {
		return 500 // default
	}
	return *c.ChartWindowSize
}

// GetPollHz returns the poll_hz value or the default.
func (c *TuningConfig) GetPollHz() float64 {
	if c.PollHz == nil {
		return 90.0 // default: SteamVR tracking update rate
	}
	return *c.PollHz
}

// GetRenderDivisor returns the render_divisor value or the default.
func (c *TuningConfig) GetRenderDivisor() int {
	if c.RenderDivisor == nil {
		return 3 // default: every 3rd frame at 90Hz gives a 30Hz live stream
	}
	return *c.RenderDivisor
}

// GetDeviceTimeout parses and returns the DeviceTimeout as a time.Duration.
func (c *TuningConfig) GetDeviceTimeout() time.Duration {
	if c.DeviceTimeout == nil || *c.DeviceTimeout == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.DeviceTimeout)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetFlushInterval parses and returns the FlushInterval as a time.Duration.
func (c *TuningConfig) GetFlushInterval() time.Duration {
	if c.FlushInterval == nil || *c.FlushInterval == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.FlushInterval)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetDriftThresholdMM returns the drift_threshold_mm value or the default.
func (c *TuningConfig) GetDriftThresholdMM() float64 {
	if c.DriftThresholdMM == nil {
		return 5.0 // default: 5mm movement alarm
	}
	return *c.DriftThresholdMM
}

// GetDriftCalibrationSamples returns the drift_calibration_samples value or the default.
func (c *TuningConfig) GetDriftCalibrationSamples() int {
	if c.DriftCalibrationSamples == nil {
		return 120
	}
	return *c.DriftCalibrationSamples
}

// GetDriftRingSize returns the drift_ring_size value or the default.
func (c *TuningConfig) GetDriftRingSize() int {
	if c.DriftRingSize == nil {
		return 3000
	}
	return *c.DriftRingSize
}

// GetLengthUnits returns the length_units value or the default.
func (c *TuningConfig) GetLengthUnits() string {
	if c.LengthUnits == nil {
		return units.Millimetres
	}
	return *c.LengthUnits
}

// GetTimezone returns the timezone value or the default.
func (c *TuningConfig) GetTimezone() string {
	if c.Timezone == nil {
		return "UTC"
	}
	return *c.Timezone
}

// GetLossWarnPercent returns the loss_warn_percent value or the default.
func (c *TuningConfig) GetLossWarnPercent() float64 {
	if c.LossWarnPercent == nil {
		return 1.0
	}
	return *c.LossWarnPercent
}
