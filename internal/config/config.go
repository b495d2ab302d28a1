package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete sentimentd configuration
type Config struct {
	InstanceID       string           `yaml:"instance_id"`
	DataDir          string           `yaml:"data_dir"`
	ShutdownTimeoutS int              `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig     `yaml:"camera"`
	Stimulus         StimulusConfig   `yaml:"stimulus"`
	Capture          CaptureConfig    `yaml:"capture"`
	Duration         DurationConfig   `yaml:"duration"`
	Recording        RecordingConfig  `yaml:"recording"`
	Classifier       ClassifierConfig `yaml:"classifier"`
	Aggregate        AggregateConfig  `yaml:"aggregate"`
	MQTT             MQTTConfig       `yaml:"mqtt"`
	Dashboard        DashboardConfig  `yaml:"dashboard"`
}

// CameraConfig contains camera acquisition settings
type CameraConfig struct {
	Device     string  `yaml:"device"`     // e.g. /dev/video0; empty selects the mock source
	Resolution string  `yaml:"resolution"` // 480p, 720p, 1080p
	FPS        float64 `yaml:"fps"`        // source fps (not the sampling cadence)
}

// StimulusConfig identifies the stimulus video participants respond to
type StimulusConfig struct {
	ID        string  `yaml:"id"`
	DurationS float64 `yaml:"duration_s"` // nominal stimulus length, drives the timeline span
}

// CaptureConfig contains capture session cadence settings
type CaptureConfig struct {
	SamplePeriodMS int `yaml:"sample_period_ms"` // classifier sampling tick period (default: 500)
	DebounceMS     int `yaml:"debounce_ms"`      // minimum spacing between stored readings (default: 400)
}

// DurationConfig bounds the reconciled session duration
type DurationConfig struct {
	MinS float64 `yaml:"min_s"` // validity floor, also the fallback value (default: 0.1)
	MaxS float64 `yaml:"max_s"` // validity ceiling (default: 3600)
}

// RecordingConfig contains recorder settings. Recording is best-effort:
// a missing encoder disables it without affecting capture.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	Container string `yaml:"container"` // webm or mp4
}

// ClassifierConfig points at the expression classifier service
type ClassifierConfig struct {
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"` // per-invocation timeout (default: 400)
	MaxWidth  int    `yaml:"max_width"`  // frames are downscaled to this width before upload (default: 320)
}

// AggregateConfig contains the dashboard aggregation tunables
type AggregateConfig struct {
	BucketWidthS    float64 `yaml:"bucket_width_s"`   // timeline bucket width (default: 5)
	SnapshotWindowS float64 `yaml:"snapshot_window_s"` // snapshot half-window around t (default: 1)
	MinParticipants int     `yaml:"min_participants"` // privacy gate threshold (default: 5)
}

// MQTTConfig contains broker settings for the emitter and control plane
type MQTTConfig struct {
	Broker string     `yaml:"broker"`
	Topics MQTTTopics `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics holds the topic layout
type MQTTTopics struct {
	Control  string `yaml:"control"`
	Sessions string `yaml:"sessions"`
	Health   string `yaml:"health"`
}

// DashboardConfig contains the read-side HTTP server settings
type DashboardConfig struct {
	Listen string `yaml:"listen"` // e.g. ":8080"; empty disables the dashboard server
}

// Load reads and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SamplePeriod returns the sampling tick period as a time.Duration
func (c *Config) SamplePeriod() time.Duration {
	return time.Duration(c.Capture.SamplePeriodMS) * time.Millisecond
}

// Debounce returns the minimum reading spacing as a time.Duration
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Capture.DebounceMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown timeout
// Returns default of 5 seconds if not configured
func (c *Config) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutS == 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}
