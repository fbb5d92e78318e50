package cache

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidMaxAge is returned by Cached and Rolling when the max age is negative.
	ErrInvalidMaxAge = errors.New("cache: max age must not be negative")

	// ErrUnsupportedArgument is returned when a key argument is not a bool,
	// number, string or a slice/array of those.
	ErrUnsupportedArgument = errors.New("cache: unsupported key argument")

	// ErrNoValue is delivered to every waiter when the producer reports that
	// it found nothing. Nothing is cached and the next call tries again.
	ErrNoValue = errors.New("cache: no value returned")

	// ErrProducerPanic wraps a recovered producer panic.
	ErrProducerPanic = errors.New("cache: producer panicked")

	// ErrNilProducer is returned by New when no producer is given.
	ErrNilProducer = errors.New("cache: producer is required")

	// ErrInvalidConfig is returned by New and Config.Options for malformed settings.
	ErrInvalidConfig = errors.New("cache: invalid configuration")

	// ErrClosed is returned by lookups on a closed Memo.
	ErrClosed = errors.New("cache: closed")
)
