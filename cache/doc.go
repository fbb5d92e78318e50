// Package cache memoizes a slow or rate limited lookup per argument list.
//
// A [Memo] wraps a [Producer] and answers "give me the value for these
// arguments, no older than this". It keeps the last successful result for
// every argument list, runs at most one producer call per argument list at a
// time, and evicts results nobody is asking for any more.
//
// # Lookups
//
//	m, err := cache.New(ctx, func(ctx context.Context, args []any) (User, bool, error) {
//	    user, err := api.GetUser(ctx, args[0].(string))
//	    if errors.Is(err, api.ErrNotFound) {
//	        return User{}, false, nil // callers get ErrNoValue, nothing cached
//	    }
//	    return user, true, err
//	})
//	defer m.Close()
//
//	user, err := m.Cached(ctx, time.Minute, "user-123")
//
// There are three ways to read:
//
//   - [Memo.Cached] returns the stored value if it was fetched at most max
//     age ago, otherwise it waits for a new one. The result is never older
//     than max age.
//   - [Memo.Rolling] returns any stored value immediately. If it is older
//     than the target age a refresh starts in the background. It only waits
//     when there is nothing stored yet.
//   - [Memo.Fresh] always waits for a new value.
//
// All three share producer calls: concurrent lookups for the same arguments
// cause one producer call, and every caller receives the same value or the
// same error. A caller whose context ends stops waiting, but the shared call
// runs to completion and its result is still stored.
//
// [Memo.Expire] drops the value for one argument list, [Memo.Clear] drops
// all of them. Neither cancels a producer call in flight.
//
// # Keys
//
// Arguments are turned into a [Key] by [EncodeKey]. Only bools, numbers,
// strings and slices or arrays of those are accepted; anything else fails
// with [ErrUnsupportedArgument]. The encoding is msgpack, so argument
// boundaries and types are part of the key: ("1", "2"), ("12") and (12) are
// three different keys. Numbers compare by value: int(3), uint16(3) and
// 3.0 are the same key.
//
// # Errors
//
// Producer errors are returned unchanged to every caller that shared the
// call. They are never cached and never remove a stored value: the next
// lookup starts a new call. A producer that returns ok false yields
// [ErrNoValue], and a producer panic yields an error matching
// [ErrProducerPanic]. Invalid arguments fail before any state is touched
// with [ErrInvalidMaxAge] or [ErrUnsupportedArgument].
//
// # Purging
//
// Every stored value remembers the largest max age any reader asked for. The
// purge scheduler keeps a single timer for the earliest moment some value
// becomes older than its max age times the purge age factor
// ([WithPurgeAgeFactor], default [DefaultPurgeAgeFactor]). When it fires, it
// sweeps the store in chunks, evicts what is past due, and arms the timer for
// the next survivor. With nothing left it stays idle until a new value is
// stored. Purging only reclaims memory; every read checks its own max age,
// so a late purge never returns stale data. Disable it with
// [WithAutoPurge](false).
//
// # Observability
//
// [Memo.OnFresh] and [Memo.OnPurge] register observers for new and evicted
// values. [Memo.Stats] reports hit, miss and producer counters. Each producer
// call runs in an OpenTelemetry span named "memo.produce". Logging goes
// through [WithLogger].
package cache
