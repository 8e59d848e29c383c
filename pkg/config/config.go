/*
Package config loads coordinator.Config from an optional YAML file plus
environment-variable overrides, following the precedence defaults < file
< env. The env var names match spec.md's configuration table.
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cuemby/fedcoord/pkg/asyncclose"
	"github.com/cuemby/fedcoord/pkg/coordinator"
	"github.com/cuemby/fedcoord/pkg/incentive"
	"github.com/cuemby/fedcoord/pkg/privacy"
	"github.com/cuemby/fedcoord/pkg/ratelimit"
	"gopkg.in/yaml.v3"
)

// File mirrors coordinator.Config in a form convenient for YAML: plain
// scalar fields instead of nested time.Duration, so a config file reads
// naturally (e.g. max_round_duration_s: 300).
type File struct {
	DataDir string `yaml:"data_dir"`

	MinUpdates        int     `yaml:"min_updates"`
	MaxRoundDurationS float64 `yaml:"max_round_duration_s"`
	EnableAsync       bool    `yaml:"enable_async"`

	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`
	MaxRequestsPerHour   int `yaml:"max_requests_per_hour"`
	MaxUpdatesPerRound   int `yaml:"max_updates_per_round"`

	PrivacyMaxNorm      float64 `yaml:"privacy_max_norm"`
	PrivacyNoiseScale   float64 `yaml:"privacy_noise_scale"`
	PrivacyEnableNoise  bool    `yaml:"privacy_enable_noise"`

	IncentiveBaseReward            float64 `yaml:"incentive_base_reward"`
	IncentiveSpeedThresholdS       float64 `yaml:"incentive_speed_threshold_s"`
	IncentiveConsistencyThreshold  int     `yaml:"incentive_consistency_threshold"`
}

// defaultFile mirrors coordinator.DefaultConfig's values in File form.
func defaultFile() File {
	def := coordinator.DefaultConfig()
	return File{
		DataDir:              def.DataDir,
		MinUpdates:           def.Async.MinUpdates,
		MaxRoundDurationS:    def.Async.MaxDuration.Seconds(),
		EnableAsync:          def.Async.Enabled,
		MaxRequestsPerMinute: def.RateLimit.MaxRequestsPerMinute,
		MaxRequestsPerHour:   def.RateLimit.MaxRequestsPerHour,
		MaxUpdatesPerRound:   def.RateLimit.MaxUpdatesPerRound,
		PrivacyMaxNorm:       def.Privacy.MaxNorm,
		PrivacyNoiseScale:    def.Privacy.NoiseScale,
		PrivacyEnableNoise:   def.Privacy.EnableNoise,
		IncentiveBaseReward:           def.Incentive.BaseReward,
		IncentiveSpeedThresholdS:      def.Incentive.SpeedBonusThreshold.Seconds(),
		IncentiveConsistencyThreshold: def.Incentive.ConsistencyBonusStreak,
	}
}

// Load reads path (if non-empty) as YAML into a File seeded with
// coordinator.DefaultConfig's values, applies environment-variable
// overrides on top, and returns the resulting coordinator.Config.
// A missing path is not an error; an unreadable or malformed existing
// file is.
func Load(path string) (coordinator.Config, error) {
	f := defaultFile()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return coordinator.Config{}, fmt.Errorf("failed to read config file %q: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &f); err != nil {
			return coordinator.Config{}, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	}

	applyEnvOverrides(&f)

	return coordinator.Config{
		DataDir: f.DataDir,
		RateLimit: ratelimit.Config{
			MaxRequestsPerMinute: f.MaxRequestsPerMinute,
			MaxRequestsPerHour:   f.MaxRequestsPerHour,
			MaxUpdatesPerRound:   f.MaxUpdatesPerRound,
		},
		Privacy: privacy.Config{
			MaxNorm:     f.PrivacyMaxNorm,
			NoiseScale:  f.PrivacyNoiseScale,
			EnableNoise: f.PrivacyEnableNoise,
		},
		Incentive: incentive.Config{
			BaseReward:            f.IncentiveBaseReward,
			SpeedBonusThreshold:   time.Duration(f.IncentiveSpeedThresholdS * float64(time.Second)),
			ConsistencyBonusStreak: f.IncentiveConsistencyThreshold,
		},
		Async: asyncclose.Config{
			MinUpdates:  f.MinUpdates,
			MaxDuration: time.Duration(f.MaxRoundDurationS * float64(time.Second)),
			Enabled:     f.EnableAsync,
		},
	}, nil
}

func applyEnvOverrides(f *File) {
	envInt(&f.MinUpdates, "MIN_UPDATES")
	envFloat(&f.MaxRoundDurationS, "MAX_ROUND_DURATION_S")
	envBool(&f.EnableAsync, "ENABLE_ASYNC")

	envInt(&f.MaxRequestsPerMinute, "MAX_REQUESTS_PER_MINUTE")
	envInt(&f.MaxRequestsPerHour, "MAX_REQUESTS_PER_HOUR")
	envInt(&f.MaxUpdatesPerRound, "MAX_UPDATES_PER_ROUND")

	envFloat(&f.PrivacyMaxNorm, "PRIVACY_MAX_NORM")
	envFloat(&f.PrivacyNoiseScale, "PRIVACY_NOISE_SCALE")
	envBool(&f.PrivacyEnableNoise, "PRIVACY_ENABLE_NOISE")

	envFloat(&f.IncentiveBaseReward, "INCENTIVE_BASE_REWARD")
	envFloat(&f.IncentiveSpeedThresholdS, "INCENTIVE_SPEED_THRESHOLD_S")
	envInt(&f.IncentiveConsistencyThreshold, "INCENTIVE_CONSISTENCY_THRESHOLD")

	if v := os.Getenv("DATA_DIR"); v != "" {
		f.DataDir = v
	}
}

func envInt(dst *int, name string) {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, name string) {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}

func envBool(dst *bool, name string) {
	if v, ok := os.LookupEnv(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
