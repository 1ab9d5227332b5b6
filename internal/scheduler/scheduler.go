// Package scheduler drives a sync or poll function on the intervals the
// engine resolves, feeding failed attempts back as RecentFailures. The run
// command uses it to schedule an external sync command.
package scheduler

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/interval"
	"codeberg.org/mutker/syncinterval/internal/logger"
)

const defaultSuspendRecheck = 30 * time.Second

// Resolver is the consumer side of the engine.
type Resolver interface {
	ResolveInterval(dataType string, ctx interval.Context) decision.Decision
}

// SyncFunc performs one synchronization attempt.
type SyncFunc func(ctx context.Context) error

// HintsFunc supplies per-attempt hints such as current system load. It may
// be nil.
type HintsFunc func() interval.Context

type Config struct {
	// SuspendRecheck is how long to wait before re-resolving a data type
	// that maintenance has suspended.
	SuspendRecheck time.Duration `mapstructure:"suspend_recheck"`
	// RunImmediately performs one attempt before the first wait.
	RunImmediately bool `mapstructure:"run_immediately"`
}

func DefaultConfig() Config {
	return Config{SuspendRecheck: defaultSuspendRecheck}
}

// Runner tracks consecutive failures per data type and feeds them back to
// the engine as RecentFailures.
type Runner struct {
	resolver Resolver
	cfg      Config
	log      logger.Logger

	mu       sync.Mutex
	failures map[string]uint
}

func New(resolver Resolver, cfg Config, log logger.Logger) *Runner {
	if cfg.SuspendRecheck <= 0 {
		cfg.SuspendRecheck = defaultSuspendRecheck
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		resolver: resolver,
		cfg:      cfg,
		log:      log,
		failures: make(map[string]uint),
	}
}

// Next resolves the wait before the next attempt for dataType. The second
// result is false when the data type is suspended.
func (r *Runner) Next(dataType string, hints HintsFunc) (time.Duration, bool) {
	d := r.resolve(dataType, hints)
	if d.Suspended {
		return r.cfg.SuspendRecheck, false
	}
	return d.Interval(), true
}

// Failures returns the current consecutive failure count for dataType.
func (r *Runner) Failures(dataType string) uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[dataType]
}

// Run loops until ctx is cancelled: resolve, wait, attempt. Failed
// attempts lengthen the next interval; a success resets the count.
func (r *Runner) Run(ctx context.Context, dataType string, fn SyncFunc, hints HintsFunc) error {
	if r.cfg.RunImmediately {
		r.attempt(ctx, dataType, fn)
	}

	for {
		wait, due := r.Next(dataType, hints)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		if !due {
			r.log.Debug().Str("data_type", dataType).Msg("Sync suspended, rechecking later")
			continue
		}
		r.attempt(ctx, dataType, fn)
	}
}

func (r *Runner) attempt(ctx context.Context, dataType string, fn SyncFunc) {
	err := fn(ctx)

	r.mu.Lock()
	if err != nil {
		r.failures[dataType]++
	} else {
		r.failures[dataType] = 0
	}
	failures := r.failures[dataType]
	r.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		r.log.Warn().
			Err(err).
			Str("data_type", dataType).
			Uint("consecutive_failures", failures).
			Msg("Sync attempt failed")
	}
}

func (r *Runner) resolve(dataType string, hints HintsFunc) decision.Decision {
	var ctx interval.Context
	if hints != nil {
		ctx = hints()
	}
	if f := r.Failures(dataType); f > ctx.RecentFailures {
		ctx.RecentFailures = f
	}
	return r.resolver.ResolveInterval(dataType, ctx)
}
