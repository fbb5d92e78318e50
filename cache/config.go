package cache

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Config is the file form of a Memo's options. Zero fields keep the
// defaults. Durations are strings such as "250ms", "5m" or "1d12h".
type Config struct {
	ID             string  `yaml:"id,omitempty"`
	AutoPurge      *bool   `yaml:"auto_purge,omitempty"`
	PurgeAgeFactor float64 `yaml:"purge_age_factor,omitempty"`
	DefaultMaxAge  string  `yaml:"default_max_age,omitempty"`
	SweepChunkSize int     `yaml:"sweep_chunk_size,omitempty"`
}

// ParseConfig decodes a YAML document.
func ParseConfig(buf []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return Config{}, errors.Wrap(errors.Mark(err, ErrInvalidConfig), "parsing memo config")
	}
	return cfg, nil
}

// LoadConfig reads and decodes a YAML file.
func LoadConfig(filename string) (Config, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading memo config %s", filename)
	}
	return ParseConfig(buf)
}

// ApplyEnv overrides fields from MEMO_AUTO_PURGE, MEMO_PURGE_AGE_FACTOR and
// MEMO_DEFAULT_MAX_AGE when they are set.
func (c *Config) ApplyEnv() error {
	if s := os.Getenv("MEMO_AUTO_PURGE"); s != "" {
		enabled, err := strconv.ParseBool(s)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "MEMO_AUTO_PURGE=%q is not a bool", s)
		}
		c.AutoPurge = &enabled
	}
	if s := os.Getenv("MEMO_PURGE_AGE_FACTOR"); s != "" {
		factor, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "MEMO_PURGE_AGE_FACTOR=%q is not a number", s)
		}
		c.PurgeAgeFactor = factor
	}
	if s := os.Getenv("MEMO_DEFAULT_MAX_AGE"); s != "" {
		c.DefaultMaxAge = s
	}
	return nil
}

// Options converts the config into Options for New.
func (c Config) Options() ([]Option, error) {
	var opts []Option
	if c.ID != "" {
		opts = append(opts, WithID(c.ID))
	}
	if c.AutoPurge != nil {
		opts = append(opts, WithAutoPurge(*c.AutoPurge))
	}
	if c.PurgeAgeFactor != 0 {
		opts = append(opts, WithPurgeAgeFactor(c.PurgeAgeFactor))
	}
	if c.DefaultMaxAge != "" {
		d, err := ParseDuration(c.DefaultMaxAge)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDefaultMaxAge(d))
	}
	if c.SweepChunkSize != 0 {
		opts = append(opts, WithSweepChunkSize(c.SweepChunkSize))
	}
	return opts, nil
}

// ParseDuration parses a duration that may use day and week units as well
// as the units time.ParseDuration accepts.
func ParseDuration(s string) (time.Duration, error) {
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidConfig, "invalid duration %q", s)
	}
	if d < 0 {
		return 0, errors.Wrapf(ErrInvalidConfig, "negative duration %q", s)
	}
	return d, nil
}
