// Package config loads and validates the runtime tuning parameters for the
// radar pipeline. The schema matches the /api/tuning endpoint so the same
// JSON works for both startup configuration and runtime updates.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig is the root tuning document. All fields are pointers so that
// a partial JSON document only overrides what it names; the Get* accessors
// supply defaults for anything left unset.
type TuningConfig struct {
	// Tracker params
	MultiTarget     *bool    `json:"multi_target,omitempty"`
	MinDistanceM    *float64 `json:"min_distance_m,omitempty"`
	MinSpeed        *float64 `json:"min_speed,omitempty"`
	EnableFiltering *bool    `json:"enable_filtering,omitempty"`
	EnableAngle     *bool    `json:"enable_angle,omitempty"`
	IdleTimeout     *string  `json:"idle_timeout,omitempty"` // duration string like "1s"

	// Pipeline params
	OutputInterval    *string `json:"output_interval,omitempty"` // duration string like "100ms"
	FrameTimeout      *string `json:"frame_timeout,omitempty"`   // duration string like "100ms"
	MaxFramesPerCycle *int    `json:"max_frames_per_cycle,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.MinDistanceM != nil && *c.MinDistanceM < 0 {
		return fmt.Errorf("min_distance_m must be non-negative, got %f", *c.MinDistanceM)
	}
	if c.MinSpeed != nil && *c.MinSpeed < 0 {
		return fmt.Errorf("min_speed must be non-negative, got %f", *c.MinSpeed)
	}
	if c.MaxFramesPerCycle != nil && *c.MaxFramesPerCycle < 1 {
		return fmt.Errorf("max_frames_per_cycle must be >= 1, got %d", *c.MaxFramesPerCycle)
	}
	for name, v := range map[string]*string{
		"idle_timeout":    c.IdleTimeout,
		"output_interval": c.OutputInterval,
		"frame_timeout":   c.FrameTimeout,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}
	return nil
}

// Merge overlays the set fields of other onto c, returning a new config.
// Used for runtime updates where the API posts a partial document.
func (c *TuningConfig) Merge(other *TuningConfig) *TuningConfig {
	out := *c
	if other == nil {
		return &out
	}
	if other.MultiTarget != nil {
		out.MultiTarget = other.MultiTarget
	}
	if other.MinDistanceM != nil {
		out.MinDistanceM = other.MinDistanceM
	}
	if other.MinSpeed != nil {
		out.MinSpeed = other.MinSpeed
	}
	if other.EnableFiltering != nil {
		out.EnableFiltering = other.EnableFiltering
	}
	if other.EnableAngle != nil {
		out.EnableAngle = other.EnableAngle
	}
	if other.IdleTimeout != nil {
		out.IdleTimeout = other.IdleTimeout
	}
	if other.OutputInterval != nil {
		out.OutputInterval = other.OutputInterval
	}
	if other.FrameTimeout != nil {
		out.FrameTimeout = other.FrameTimeout
	}
	if other.MaxFramesPerCycle != nil {
		out.MaxFramesPerCycle = other.MaxFramesPerCycle
	}
	return &out
}

// GetMultiTarget returns the multi_target value or the default.
func (c *TuningConfig) GetMultiTarget() bool {
	if c.MultiTarget == nil {
		return false // default: single-target frames
	}
	return *c.MultiTarget
}

// GetMinDistanceM returns the min_distance_m value or the default.
func (c *TuningConfig) GetMinDistanceM() float64 {
	if c.MinDistanceM == nil {
		return 0.2
	}
	return *c.MinDistanceM
}

// GetMinSpeed returns the min_speed value or the default.
func (c *TuningConfig) GetMinSpeed() float64 {
	if c.MinSpeed == nil {
		return 5
	}
	return *c.MinSpeed
}

// GetEnableFiltering returns the enable_filtering value or the default.
func (c *TuningConfig) GetEnableFiltering() bool {
	if c.EnableFiltering == nil {
		return false // default: report raw samples
	}
	return *c.EnableFiltering
}

// GetEnableAngle returns the enable_angle value or the default.
func (c *TuningConfig) GetEnableAngle() bool {
	if c.EnableAngle == nil {
		return true
	}
	return *c.EnableAngle
}

// GetIdleTimeout parses and returns the idle_timeout as a time.Duration.
func (c *TuningConfig) GetIdleTimeout() time.Duration {
	return c.duration(c.IdleTimeout, time.Second)
}

// GetOutputInterval parses and returns the output_interval as a time.Duration.
func (c *TuningConfig) GetOutputInterval() time.Duration {
	return c.duration(c.OutputInterval, 100*time.Millisecond)
}

// GetFrameTimeout parses and returns the frame_timeout as a time.Duration.
func (c *TuningConfig) GetFrameTimeout() time.Duration {
	return c.duration(c.FrameTimeout, 100*time.Millisecond)
}

// GetMaxFramesPerCycle returns the max_frames_per_cycle value or the default.
func (c *TuningConfig) GetMaxFramesPerCycle() int {
	if c.MaxFramesPerCycle == nil {
		return 5
	}
	return *c.MaxFramesPerCycle
}

func (c *TuningConfig) duration(v *string, fallback time.Duration) time.Duration {
	if v == nil || *v == "" {
		return fallback
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fallback
	}
	return d
}
