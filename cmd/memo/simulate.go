package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/agentuity/go-memo/cache"
	"github.com/agentuity/go-memo/env"
	"github.com/agentuity/go-memo/logger"
	"github.com/agentuity/go-memo/resilience"
	"github.com/agentuity/go-memo/tui"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errSimulated = errors.New("simulated producer failure")

type simulation struct {
	mode     string
	maxAge   time.Duration
	delay    time.Duration
	interval time.Duration
	callers  int
	rounds   int
	keys     int
	failRate float64
	snapshot bool

	// breakerFailures of 0 leaves the producer unguarded.
	breakerFailures int
	breakerCooldown time.Duration
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run concurrent callers against a memo backed by a slow producer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sim, err := simulationFromFlags(cmd)
		if err != nil {
			return err
		}
		log := env.NewLogger(cmd)
		cfg, err := env.MemoConfig(cmd)
		if err != nil {
			return err
		}
		opts, err := cfg.Options()
		if err != nil {
			return err
		}
		return sim.run(cmd.Context(), cmd.OutOrStdout(), log, append(opts, cache.WithLogger(log))...)
	},
}

func init() {
	addSimulateFlags(simulateCmd)
}

func addSimulateFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("mode", "cached", "lookup to use: cached, rolling or fresh")
	flags.String("max-age", "500ms", "max age for cached, target age for rolling")
	flags.String("delay", "100ms", "how long each producer call takes")
	flags.String("interval", "50ms", "pause between rounds")
	flags.Int("callers", 8, "concurrent callers per round")
	flags.Int("rounds", 20, "number of rounds")
	flags.Int("keys", 4, "number of distinct keys")
	flags.Float64("fail-rate", 0, "fraction of producer calls that fail, 0 to 1")
	flags.Bool("snapshot", false, "print the records left at the end")
	flags.Int("breaker-failures", 0, "open a circuit breaker after this many consecutive producer failures, 0 to disable")
	flags.String("breaker-cooldown", "1s", "how long the circuit breaker stays open")
}

func simulationFromFlags(cmd *cobra.Command) (*simulation, error) {
	flags := cmd.Flags()
	sim := &simulation{}
	sim.mode, _ = flags.GetString("mode")
	sim.callers, _ = flags.GetInt("callers")
	sim.rounds, _ = flags.GetInt("rounds")
	sim.keys, _ = flags.GetInt("keys")
	sim.failRate, _ = flags.GetFloat64("fail-rate")
	sim.snapshot, _ = flags.GetBool("snapshot")
	sim.breakerFailures, _ = flags.GetInt("breaker-failures")

	switch sim.mode {
	case "cached", "rolling", "fresh":
	default:
		return nil, errors.Newf("unknown mode %q", sim.mode)
	}
	if sim.callers < 1 || sim.rounds < 1 || sim.keys < 1 {
		return nil, errors.New("callers, rounds and keys must be at least 1")
	}
	if sim.failRate < 0 || sim.failRate > 1 {
		return nil, errors.Newf("fail rate %v is not between 0 and 1", sim.failRate)
	}
	for name, dst := range map[string]*time.Duration{
		"max-age":          &sim.maxAge,
		"delay":            &sim.delay,
		"interval":         &sim.interval,
		"breaker-cooldown": &sim.breakerCooldown,
	} {
		s, _ := flags.GetString(name)
		d, err := cache.ParseDuration(s)
		if err != nil {
			return nil, errors.Wrapf(err, "--%s", name)
		}
		*dst = d
	}
	return sim, nil
}

func (s *simulation) producer(calls *atomic.Int64) cache.Producer[string] {
	return func(ctx context.Context, args []any) (string, bool, error) {
		n := calls.Add(1)
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
		if s.failRate > 0 && rand.Float64() < s.failRate {
			return "", false, errSimulated
		}
		return fmt.Sprintf("%v@%d", args[0], n), true, nil
	}
}

func (s *simulation) lookup(ctx context.Context, m *cache.Memo[string], key int) (string, error) {
	switch s.mode {
	case "rolling":
		return m.Rolling(ctx, s.maxAge, "key", key)
	case "fresh":
		return m.Fresh(ctx, "key", key)
	default:
		return m.Cached(ctx, s.maxAge, "key", key)
	}
}

func (s *simulation) run(ctx context.Context, out io.Writer, log logger.Logger, opts ...cache.Option) error {
	var calls atomic.Int64
	producer := s.producer(&calls)
	var breaker *resilience.Breaker
	if s.breakerFailures > 0 {
		breaker = resilience.NewBreaker(resilience.BreakerConfig{MaxFailures: s.breakerFailures, Cooldown: s.breakerCooldown})
		producer = resilience.Guard(breaker, producer)
	}
	m, err := cache.New(ctx, producer, opts...)
	if err != nil {
		return err
	}
	defer m.Close()

	m.OnPurge(func(e cache.Event[string]) {
		log.Debug("purged %v, fetched %s ago", e.Args, time.Since(e.UpdatedAt).Round(time.Millisecond))
	})

	var failures atomic.Int64
	started := time.Now()
	for round := 0; round < s.rounds; round++ {
		g, gctx := errgroup.WithContext(ctx)
		for caller := 0; caller < s.callers; caller++ {
			key := (round + caller) % s.keys
			g.Go(func() error {
				_, err := s.lookup(gctx, m, key)
				if errors.Is(err, errSimulated) || errors.Is(err, resilience.ErrBreakerOpen) {
					failures.Add(1)
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		log.Trace("round %d done, %d records", round, m.Len())
		select {
		case <-time.After(s.interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	stats := m.Stats()
	title := fmt.Sprintf("memo %s: %s mode, %d rounds in %s", m.ID(), s.mode, s.rounds, time.Since(started).Round(time.Millisecond))
	if tui.HasTTY {
		title = tui.Title(title)
	}
	fmt.Fprintln(out, title)
	rows := statsRows(stats, failures.Load())
	if breaker != nil {
		rows = append(rows, []string{"breaker", breaker.State().String()})
	}
	fmt.Fprintln(out, tui.Table([]string{"Counter", "Value"}, rows))
	if s.snapshot {
		fmt.Fprintln(out, tui.Table([]string{"Key", "Args", "Value", "Age", "Max age"}, snapshotRows(m.Snapshot(), time.Now())))
	}
	if n := failures.Load(); n > 0 {
		fmt.Fprintln(out, tui.Failure("%d lookups failed", n))
	} else if stats.Coalesced > 0 {
		fmt.Fprintln(out, tui.Success("%d lookups shared %d producer calls", stats.Misses, stats.ProducerCalls))
	}
	return nil
}

func statsRows(stats cache.Stats, failures int64) [][]string {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return [][]string{
		{"hits", u(stats.Hits)},
		{"stale hits", u(stats.StaleHits)},
		{"misses", u(stats.Misses)},
		{"coalesced", u(stats.Coalesced)},
		{"producer calls", u(stats.ProducerCalls)},
		{"producer errors", u(stats.ProducerErrors)},
		{"failed lookups", strconv.FormatInt(failures, 10)},
		{"purged", u(stats.Purged)},
		{"records", strconv.Itoa(stats.Records)},
		{"hit ratio", fmt.Sprintf("%.2f", stats.HitRatio())},
	}
}

func snapshotRows(entries []cache.Entry[string], now time.Time) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		maxAge := tui.Muted("none")
		if e.Hinted {
			maxAge = e.MaxAgeHint.String()
		}
		rows = append(rows, []string{
			e.Key.String(),
			tui.MaxWidth(fmt.Sprint(e.Args...), 24),
			tui.MaxWidth(e.Value, 24),
			now.Sub(e.UpdatedAt).Round(time.Millisecond).String(),
			maxAge,
		})
	}
	return rows
}
