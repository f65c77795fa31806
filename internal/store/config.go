package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Mode       string `yaml:"mode" default:"DRY_RUN" validate:"oneof=DRY_RUN LIVE"`
	DataSource string `yaml:"data_source" default:"STATIC" validate:"oneof=STATIC LIVE"`
	Exchange   string `yaml:"exchange" default:"NSE" validate:"required"`

	Paths struct {
		ModelRoot  string `yaml:"model_root" default:"models"`
		DataRoot   string `yaml:"data_root" default:"data"`
		OutputRoot string `yaml:"output_root" default:"outputs"`
		LogDir     string `yaml:"log_dir" default:"logs"`
		CacheDir   string `yaml:"cache_dir" default:"cache"`
	} `yaml:"paths"`

	Trading struct {
		LookbackDays int      `yaml:"lookback_days" default:"30" validate:"gt=0"`
		Processors   []string `yaml:"processors"`
		Symbols      []string `yaml:"symbols"`
		SignalEnter  float64  `yaml:"signal_enter" default:"0.5"`
		SignalExit   float64  `yaml:"signal_exit" default:"0.25"`
	} `yaml:"trading"`

	Dataset struct {
		Lookback       int     `yaml:"lookback" default:"20" validate:"gt=0"`
		HistoryDays    int     `yaml:"history_days" default:"365" validate:"gt=0"`
		TrainMonths    int     `yaml:"train_months" default:"12" validate:"gt=0"`
		LabelThreshold float64 `yaml:"label_threshold" default:"0.005" validate:"gte=0"`
	} `yaml:"dataset"`

	Model struct {
		Hidden       int     `yaml:"hidden" default:"16" validate:"gt=0"`
		LearningRate float64 `yaml:"learning_rate" default:"0.01" validate:"gt=0"`
		BatchSize    int     `yaml:"batch_size" default:"512" validate:"gt=0"`
		MaxEpochs    int     `yaml:"max_epochs" default:"1000" validate:"gt=0"`
		Patience     int     `yaml:"patience" default:"10" validate:"gt=0"`
		Seed         int64   `yaml:"seed"`
	} `yaml:"model"`

	Pipeline struct {
		LongThreshold   float64 `yaml:"long_threshold" default:"0.5"`
		ShortThreshold  float64 `yaml:"short_threshold" default:"-0.5"`
		InvalidateStale bool    `yaml:"invalidate_stale"`
	} `yaml:"pipeline"`

	Alert struct {
		SMTPHost string `yaml:"smtp_host" default:"smtp.163.com"`
		SMTPPort int    `yaml:"smtp_port" default:"25" validate:"gt=0"`
		Sender   string `yaml:"sender" default:"Stock Trading System"`
	} `yaml:"alert"`
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules tags can't express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Pipeline.LongThreshold <= c.Pipeline.ShortThreshold {
		return fmt.Errorf("%w: pipeline.long_threshold (%.2f) must be greater than short_threshold (%.2f)",
			ErrInvalidConfig, c.Pipeline.LongThreshold, c.Pipeline.ShortThreshold)
	}
	if c.Trading.SignalEnter <= c.Trading.SignalExit {
		return fmt.Errorf("%w: trading.signal_enter (%.2f) must be greater than signal_exit (%.2f)",
			ErrInvalidConfig, c.Trading.SignalEnter, c.Trading.SignalExit)
	}
	for _, p := range c.Trading.Processors {
		switch strings.ToLower(p) {
		case "noop", "signal":
		default:
			return fmt.Errorf("%w: unknown processor %q", ErrInvalidConfig, p)
		}
	}
	return nil
}

// Default returns a config populated from struct-tag defaults.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// LoadConfigOrDefault falls back to defaults when path does not exist.
func LoadConfigOrDefault(path string) (*Config, error) {
	c, err := LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		c = Default()
		return c, c.Validate()
	}
	return c, err
}

func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
