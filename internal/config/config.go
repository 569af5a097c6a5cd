package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment overrides
const (
	EnvDBPath   = "HUNTER_DB_PATH"
	EnvLogLevel = "HUNTER_LOG_LEVEL"
)

// Config represents the application configuration
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Hunt    HuntConfig    `yaml:"hunt"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// DataConfig holds the bar sources
type DataConfig struct {
	DBPath    string          `yaml:"db_path" default:"data/stock_data.db" validate:"required"`
	Remote    bool            `yaml:"remote"` // fall back to EastMoney when the store has no bars
	EastMoney EastMoneyConfig `yaml:"eastmoney"`
}

// EastMoneyConfig holds the quote API settings
type EastMoneyConfig struct {
	RateLimit int           `yaml:"rate_limit" default:"300" validate:"min=1"` // requests per minute
	Timeout   time.Duration `yaml:"timeout" default:"15s" validate:"gt=0"`
}

// HuntConfig holds scan settings
type HuntConfig struct {
	Strategy string `yaml:"strategy" default:"b1" validate:"required"`
	Pool     string `yaml:"pool" default:"all" validate:"required"`
	Workers  int    `yaml:"workers" default:"12" validate:"min=1,max=256"`
	Days     int    `yaml:"days" default:"500" validate:"min=1"`
	Format   string `yaml:"format" default:"table" validate:"oneof=table json markdown"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	Output string `yaml:"output" default:"stderr"`
}

// MetricsConfig holds the Prometheus endpoint; an empty address disables it
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

var validate = validator.New()

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config: applying defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment variables override both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Data.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
