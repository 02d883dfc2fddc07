package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/zsl.defaults.json"

// TuningConfig holds the zero-shutter-lag tuning parameters. Every field is
// optional; the Get* methods supply defaults for fields left unset.
type TuningConfig struct {
	// Selection params
	MaxLookback        *string `json:"max_lookback,omitempty"` // duration string like "300ms"
	RequireAFConverged *bool   `json:"require_af_converged,omitempty"`
	RequireAEConverged *bool   `json:"require_ae_converged,omitempty"`
	AutoFlash          *bool   `json:"auto_flash,omitempty"` // relax AE once converged without flash
	MetadataTimeout    *string `json:"metadata_timeout,omitempty"`
	FallbackTimeout    *string `json:"fallback_timeout,omitempty"`

	// Buffer params
	RingBufferCapacity   *int `json:"ring_buffer_capacity,omitempty"`
	MetadataPoolCapacity *int `json:"metadata_pool_capacity,omitempty"`

	// Simulated pipeline params
	FPS           *float64 `json:"fps,omitempty"`
	MetadataDelay *string  `json:"metadata_delay,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a config with every field set to its default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		MaxLookback:          ptrString("300ms"),
		RequireAFConverged:   ptrBool(true),
		RequireAEConverged:   ptrBool(true),
		AutoFlash:            ptrBool(true),
		MetadataTimeout:      ptrString("100ms"),
		FallbackTimeout:      ptrString("2s"),
		RingBufferCapacity:   ptrInt(10),
		MetadataPoolCapacity: ptrInt(64),
		FPS:                  ptrFloat64(30),
		MetadataDelay:        ptrString("5ms"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	durations := []struct {
		name string
		v    *string
	}{
		{"max_lookback", c.MaxLookback},
		{"metadata_timeout", c.MetadataTimeout},
		{"fallback_timeout", c.FallbackTimeout},
		{"metadata_delay", c.MetadataDelay},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if parsed < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, *d.v)
		}
		if parsed == 0 && d.name == "metadata_timeout" {
			return fmt.Errorf("metadata_timeout must be positive, got %s", *d.v)
		}
	}

	if c.RingBufferCapacity != nil && *c.RingBufferCapacity < 1 {
		return fmt.Errorf("ring_buffer_capacity must be at least 1, got %d", *c.RingBufferCapacity)
	}
	if c.MetadataPoolCapacity != nil && *c.MetadataPoolCapacity < 1 {
		return fmt.Errorf("metadata_pool_capacity must be at least 1, got %d", *c.MetadataPoolCapacity)
	}
	if pool, ring := c.GetMetadataPoolCapacity(), c.GetRingBufferCapacity(); pool < ring {
		return fmt.Errorf("metadata_pool_capacity (%d) must be at least ring_buffer_capacity (%d)", pool, ring)
	}
	if c.FPS != nil && (*c.FPS <= 0 || *c.FPS > 1000) {
		return fmt.Errorf("fps must be in (0, 1000], got %f", *c.FPS)
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetMaxLookback returns the lookback window.
func (c *TuningConfig) GetMaxLookback() time.Duration {
	return durationOr(c.MaxLookback, 300*time.Millisecond)
}

// GetMetadataTimeout returns the per-frame metadata wait.
func (c *TuningConfig) GetMetadataTimeout() time.Duration {
	return durationOr(c.MetadataTimeout, 100*time.Millisecond)
}

// GetFallbackTimeout returns how long a live capture waits for a frame.
func (c *TuningConfig) GetFallbackTimeout() time.Duration {
	return durationOr(c.FallbackTimeout, 2*time.Second)
}

// GetMetadataDelay returns the simulated metadata delivery delay.
func (c *TuningConfig) GetMetadataDelay() time.Duration {
	return durationOr(c.MetadataDelay, 5*time.Millisecond)
}

// GetRequireAFConverged returns the require_af_converged value or the default.
func (c *TuningConfig) GetRequireAFConverged() bool {
	if c.RequireAFConverged == nil {
		return true
	}
	return *c.RequireAFConverged
}

// GetRequireAEConverged returns the require_ae_converged value or the default.
func (c *TuningConfig) GetRequireAEConverged() bool {
	if c.RequireAEConverged == nil {
		return true
	}
	return *c.RequireAEConverged
}

// GetAutoFlash returns the auto_flash value or the default.
func (c *TuningConfig) GetAutoFlash() bool {
	if c.AutoFlash == nil {
		return true
	}
	return *c.AutoFlash
}

// GetRingBufferCapacity returns the ring_buffer_capacity value or the default.
func (c *TuningConfig) GetRingBufferCapacity() int {
	if c.RingBufferCapacity == nil {
		return 10
	}
	return *c.RingBufferCapacity
}

// GetMetadataPoolCapacity returns the metadata_pool_capacity value or the default.
func (c *TuningConfig) GetMetadataPoolCapacity() int {
	if c.MetadataPoolCapacity == nil {
		return 64
	}
	return *c.MetadataPoolCapacity
}

// GetFPS returns the simulated frame rate.
func (c *TuningConfig) GetFPS() float64 {
	if c.FPS == nil {
		return 30
	}
	return *c.FPS
}
