package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings errors.
var (
	ErrInvalidThreshold  = errors.New("significant change threshold must be >= 0")
	ErrInvalidPageSize   = errors.New("page size must be > 0")
	ErrInvalidDownsample = errors.New("downsample factor must be >= 1")
)

// Default settings values.
const (
	// MinUpdateInterval is the floor for coalesced delivery spacing.
	MinUpdateInterval = 16 * time.Millisecond

	// DefaultUpdateInterval is the default delivery quantum.
	DefaultUpdateInterval = 100 * time.Millisecond

	// DefaultChangeThresholdPercent is the default significant-change
	// threshold in percent.
	DefaultChangeThresholdPercent = 1.0

	// MinRefreshCooldown is the floor for the historical refresh cooldown.
	MinRefreshCooldown = 1 * time.Second

	// DefaultPageSize is the default historical row cap per request.
	DefaultPageSize = 500

	// DefaultDownsampleThreshold is the row count above which
	// historical payloads are decimated. 0 disables downsampling.
	DefaultDownsampleThreshold = 2000

	// DefaultDownsampleFactor keeps every Nth row when decimating.
	DefaultDownsampleFactor = 2

	// DefaultFetchTimeout bounds one historical network request.
	DefaultFetchTimeout = 10 * time.Second
)

// Settings configures the live and historical delivery paths.
type Settings struct {
	// ServerURL is the telemetry server base URL
	// (e.g. "ws://192.168.1.10:8080" for live, "http://..." for history).
	ServerURL string `yaml:"server_url"`

	// UpdateInterval is the minimum spacing between coalesced
	// deliveries per subscriber. Floored to MinUpdateInterval.
	UpdateInterval time.Duration `yaml:"update_interval"`

	// SignificantChangeThreshold is the percent change below which
	// field updates are suppressed.
	SignificantChangeThreshold float64 `yaml:"significant_change_threshold"`

	// DownsampleThreshold is the historical row count above which
	// payloads are decimated. 0 disables downsampling.
	DownsampleThreshold int `yaml:"downsample_threshold"`

	// DownsampleFactor keeps every Nth row when decimating.
	DownsampleFactor int `yaml:"downsample_factor"`

	// RefreshRate is the auto-refresh interval for historical queries.
	// 0 means manual refresh only.
	RefreshRate time.Duration `yaml:"refresh_rate"`

	// PageSize is the row cap per historical request.
	PageSize int `yaml:"page_size"`
}

// DefaultSettings returns the default configuration.
func DefaultSettings() Settings {
	return Settings{
		UpdateInterval:             DefaultUpdateInterval,
		SignificantChangeThreshold: DefaultChangeThresholdPercent,
		DownsampleThreshold:        DefaultDownsampleThreshold,
		DownsampleFactor:           DefaultDownsampleFactor,
		RefreshRate:                0,
		PageSize:                   DefaultPageSize,
	}
}

// Load reads settings from a YAML file, applying defaults for absent keys.
func Load(path string) (Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s.Normalized(), nil
}

// Validate checks settings invariants.
func (s Settings) Validate() error {
	if s.SignificantChangeThreshold < 0 {
		return ErrInvalidThreshold
	}
	if s.PageSize <= 0 {
		return ErrInvalidPageSize
	}
	if s.DownsampleThreshold > 0 && s.DownsampleFactor < 1 {
		return ErrInvalidDownsample
	}
	return nil
}

// Normalized returns a copy with floors applied: UpdateInterval at
// least MinUpdateInterval, RefreshCooldown semantics handled by the
// history package.
func (s Settings) Normalized() Settings {
	if s.UpdateInterval < MinUpdateInterval {
		s.UpdateInterval = MinUpdateInterval
	}
	if s.DownsampleFactor < 1 {
		s.DownsampleFactor = 1
	}
	return s
}

// RefreshCooldown returns the minimum spacing between refreshes of one
// historical key: the configured refresh rate floored to
// MinRefreshCooldown.
func (s Settings) RefreshCooldown() time.Duration {
	if s.RefreshRate > MinRefreshCooldown {
		return s.RefreshRate
	}
	return MinRefreshCooldown
}
