package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid and fills defaults.
//
// The capture/aggregation tunables all have working defaults so that a
// minimal config (instance_id, data_dir, stimulus.id) boots a usable
// service.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if cfg.Stimulus.ID == "" {
		return fmt.Errorf("stimulus.id is required")
	}
	if cfg.Stimulus.DurationS < 0 {
		return fmt.Errorf("stimulus.duration_s must be >= 0")
	}

	// Camera defaults
	if cfg.Camera.Resolution == "" {
		cfg.Camera.Resolution = "720p"
	}
	if cfg.Camera.FPS <= 0 {
		cfg.Camera.FPS = 15
	}

	// Capture cadence defaults
	if cfg.Capture.SamplePeriodMS <= 0 {
		cfg.Capture.SamplePeriodMS = 500
	}
	if cfg.Capture.DebounceMS <= 0 {
		cfg.Capture.DebounceMS = 400
	}
	if cfg.Capture.DebounceMS > cfg.Capture.SamplePeriodMS {
		return fmt.Errorf("capture.debounce_ms (%d) must not exceed capture.sample_period_ms (%d)",
			cfg.Capture.DebounceMS, cfg.Capture.SamplePeriodMS)
	}

	// Duration bounds defaults
	if cfg.Duration.MinS <= 0 {
		cfg.Duration.MinS = 0.1
	}
	if cfg.Duration.MaxS <= 0 {
		cfg.Duration.MaxS = 3600
	}
	if cfg.Duration.MinS >= cfg.Duration.MaxS {
		return fmt.Errorf("duration.min_s (%g) must be < duration.max_s (%g)",
			cfg.Duration.MinS, cfg.Duration.MaxS)
	}

	// Recording defaults
	if cfg.Recording.Enabled {
		if cfg.Recording.OutputDir == "" {
			cfg.Recording.OutputDir = cfg.DataDir + "/media"
		}
		switch cfg.Recording.Container {
		case "":
			cfg.Recording.Container = "webm"
		case "webm", "mp4":
		default:
			return fmt.Errorf("recording.container must be 'webm' or 'mp4', got %q", cfg.Recording.Container)
		}
	}

	// Classifier defaults
	if cfg.Classifier.TimeoutMS <= 0 {
		cfg.Classifier.TimeoutMS = 400
	}
	if cfg.Classifier.MaxWidth <= 0 {
		cfg.Classifier.MaxWidth = 320
	}

	// Aggregation defaults
	if cfg.Aggregate.BucketWidthS <= 0 {
		cfg.Aggregate.BucketWidthS = 5
	}
	if cfg.Aggregate.SnapshotWindowS <= 0 {
		cfg.Aggregate.SnapshotWindowS = 1
	}
	if cfg.Aggregate.MinParticipants <= 0 {
		cfg.Aggregate.MinParticipants = 5
	}

	// MQTT topic defaults (broker itself is optional: without it the
	// service runs headless with no control plane)
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("sentiment/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Sessions == "" {
			cfg.MQTT.Topics.Sessions = fmt.Sprintf("sentiment/sessions/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Health == "" {
			cfg.MQTT.Topics.Health = fmt.Sprintf("sentiment/health/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"control":  1,
				"sessions": 1,
				"health":   0,
			}
		}
	}

	return nil
}
