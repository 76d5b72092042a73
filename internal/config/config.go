package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the conventional config file name in a data directory.
const FileName = "pennywise.yaml"

// ErrInvalid wraps every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid config")

// Config represents the top-level pennywise.yaml configuration.
type Config struct {
	Database   string           `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Detector   DetectorConfig   `yaml:"detector"`
	RoundUp    RoundUpConfig    `yaml:"roundup"`
	Transfer   TransferConfig   `yaml:"transfer"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Categories CategoriesConfig `yaml:"categories"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// DetectorConfig tunes the recurring-series detector.
type DetectorConfig struct {
	LookbackDays         int           `yaml:"lookback_days"`
	MinConfidence        float64       `yaml:"min_confidence"`
	AmountTolerancePct   float64       `yaml:"amount_tolerance_pct"`
	AmountEpsilon        float64       `yaml:"amount_epsilon"`
	IntervalTolerancePct float64       `yaml:"interval_tolerance_pct"`
	CountSaturation      int           `yaml:"count_saturation"`
	Weights              WeightsConfig `yaml:"weights"`
	GracePct             float64       `yaml:"grace_pct"`
	MissDecay            float64       `yaml:"miss_decay"`
	MaxMisses            int           `yaml:"max_misses"`
}

// WeightsConfig are the confidence score weights.
type WeightsConfig struct {
	Count    float64 `yaml:"count"`
	Interval float64 `yaml:"interval"`
	Amount   float64 `yaml:"amount"`
}

// RoundUpConfig holds defaults applied to new per-user round-up configs.
type RoundUpConfig struct {
	DefaultRule       string  `yaml:"default_rule"`
	DefaultMultiplier int     `yaml:"default_multiplier"`
	DefaultCadence    string  `yaml:"default_cadence"`
	DefaultMinimum    float64 `yaml:"default_minimum"`
}

// TransferConfig controls the transfer scheduler retry policy.
type TransferConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
}

// SchedulerConfig controls the periodic job loop.
type SchedulerConfig struct {
	DetectInterval   time.Duration `yaml:"detect_interval"`
	TransferInterval time.Duration `yaml:"transfer_interval"`
	Workers          int           `yaml:"workers"`
}

// CategoriesConfig points at an optional merchant category map.
type CategoriesConfig struct {
	Path string `yaml:"path,omitempty"` // CSV; built-in map when empty
}

// Load reads a pennywise.yaml file from disk. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new data directory.
func Default() *Config {
	return &Config{
		Database: "pennywise.db",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Detector: DetectorConfig{
			LookbackDays:         365,
			MinConfidence:        0.6,
			AmountTolerancePct:   0.05,
			AmountEpsilon:        0.50,
			IntervalTolerancePct: 0.15,
			CountSaturation:      6,
			Weights: WeightsConfig{
				Count:    0.4,
				Interval: 0.4,
				Amount:   0.2,
			},
			GracePct:  0.25,
			MissDecay: 0.5,
			MaxMisses: 3,
		},
		RoundUp: RoundUpConfig{
			DefaultRule:       "nearest-1",
			DefaultMultiplier: 1,
			DefaultCadence:    "weekly",
			DefaultMinimum:    5,
		},
		Transfer: TransferConfig{
			MaxAttempts:   3,
			SubmitTimeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			DetectInterval:   24 * time.Hour,
			TransferInterval: time.Hour,
			Workers:          8,
		},
	}
}

// Validate checks ranges that the engine relies on.
func (c *Config) Validate() error {
	d := c.Detector
	switch {
	case c.Database == "":
		return fmt.Errorf("%w: database path is empty", ErrInvalid)
	case d.LookbackDays < 1:
		return fmt.Errorf("%w: detector.lookback_days must be positive", ErrInvalid)
	case d.MinConfidence < 0 || d.MinConfidence > 1:
		return fmt.Errorf("%w: detector.min_confidence must be in [0,1]", ErrInvalid)
	case d.AmountTolerancePct < 0 || d.IntervalTolerancePct <= 0:
		return fmt.Errorf("%w: detector tolerances must be positive", ErrInvalid)
	case d.CountSaturation < 1:
		return fmt.Errorf("%w: detector.count_saturation must be positive", ErrInvalid)
	case d.Weights.Count < 0 || d.Weights.Interval < 0 || d.Weights.Amount < 0:
		return fmt.Errorf("%w: detector weights must not be negative", ErrInvalid)
	case d.MissDecay < 0 || d.MissDecay > 1:
		return fmt.Errorf("%w: detector.miss_decay must be in [0,1]", ErrInvalid)
	case d.MaxMisses < 1:
		return fmt.Errorf("%w: detector.max_misses must be positive", ErrInvalid)
	case c.Transfer.MaxAttempts < 1:
		return fmt.Errorf("%w: transfer.max_attempts must be positive", ErrInvalid)
	case c.Scheduler.Workers < 1:
		return fmt.Errorf("%w: scheduler.workers must be positive", ErrInvalid)
	}
	if sum := d.Weights.Count + d.Weights.Interval + d.Weights.Amount; sum <= 0 {
		return fmt.Errorf("%w: detector weights sum to zero", ErrInvalid)
	}
	return nil
}
