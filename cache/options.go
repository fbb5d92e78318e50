package cache

import (
	"math"
	"time"

	"github.com/agentuity/go-memo/logger"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPurgeAgeFactor multiplies a record's max age hint to get the age at
// which the purge scheduler evicts it.
const DefaultPurgeAgeFactor = 1.2

// DefaultSweepChunkSize is the number of records a purge sweep inspects
// before yielding.
const DefaultSweepChunkSize = 1024

// config holds the resolved configuration for a Memo.
type config struct {
	autoPurge      bool
	purgeAgeFactor float64
	defaultMaxAge  time.Duration
	sweepChunkSize int
	logger         logger.Logger
	tracerProvider trace.TracerProvider
	id             string
	now            func() time.Time
}

// Option configures a Memo.
type Option func(*config)

func defaultConfig() config {
	return config{
		autoPurge:      true,
		purgeAgeFactor: DefaultPurgeAgeFactor,
		sweepChunkSize: DefaultSweepChunkSize,
		now:            time.Now,
	}
}

func applyOptions(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if math.IsNaN(cfg.purgeAgeFactor) || cfg.purgeAgeFactor < 1 {
		return cfg, errors.Wrapf(ErrInvalidConfig, "purge age factor %v is less than 1", cfg.purgeAgeFactor)
	}
	if cfg.sweepChunkSize <= 0 {
		return cfg, errors.Wrapf(ErrInvalidConfig, "sweep chunk size %d must be positive", cfg.sweepChunkSize)
	}
	if cfg.defaultMaxAge < 0 {
		return cfg, errors.Wrapf(ErrInvalidConfig, "default max age %s is negative", cfg.defaultMaxAge)
	}
	if cfg.logger == nil {
		cfg.logger = logger.NewConsoleLogger(logger.LevelNone)
	}
	if cfg.tracerProvider == nil {
		cfg.tracerProvider = otel.GetTracerProvider()
	}
	return cfg, nil
}

// WithAutoPurge turns the background purge scheduler on or off. Defaults to on.
func WithAutoPurge(enabled bool) Option {
	return func(c *config) { c.autoPurge = enabled }
}

// WithPurgeAgeFactor sets the multiplier applied to a record's max age hint
// before it is purged. Must be at least 1. Defaults to DefaultPurgeAgeFactor.
func WithPurgeAgeFactor(factor float64) Option {
	return func(c *config) { c.purgeAgeFactor = factor }
}

// WithDefaultMaxAge sets the max age hint recorded for results fetched by
// Fresh. Without it, or with zero, records only ever fetched by Fresh are
// not purged until a Cached or Rolling read gives them a hint.
func WithDefaultMaxAge(d time.Duration) Option {
	return func(c *config) { c.defaultMaxAge = d }
}

// WithSweepChunkSize sets how many records a purge sweep inspects between
// yields. Defaults to DefaultSweepChunkSize.
func WithSweepChunkSize(n int) Option {
	return func(c *config) { c.sweepChunkSize = n }
}

// WithLogger sets the logger. Defaults to a console logger that logs nothing.
func WithLogger(log logger.Logger) Option {
	return func(c *config) { c.logger = log }
}

// WithTracerProvider sets the provider used for producer spans. Defaults to
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

// WithID names the Memo in logs and spans. Defaults to a random UUID.
func WithID(id string) Option {
	return func(c *config) { c.id = id }
}

// withClock replaces time.Now for tests.
func withClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}
