// Package policy holds the per-tier base interval policy.
package policy

import (
	"fmt"
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/tier"
)

// IntervalPolicy bounds the sync interval of one tier, in milliseconds.
type IntervalPolicy struct {
	BaseMs uint64 `json:"base_ms" mapstructure:"base_ms"`
	MinMs  uint64 `json:"min_ms" mapstructure:"min_ms"`
	MaxMs  uint64 `json:"max_ms" mapstructure:"max_ms"`
}

// Validate enforces 0 < min <= base <= max.
func (p IntervalPolicy) Validate() error {
	if p.MinMs == 0 || p.MinMs > p.BaseMs || p.BaseMs > p.MaxMs {
		return errors.New().WithData(errors.ErrInvalidPolicy,
			fmt.Sprintf("require 0 < min_ms <= base_ms <= max_ms, got min=%d base=%d max=%d",
				p.MinMs, p.BaseMs, p.MaxMs))
	}
	return nil
}

// Clamp bounds ms to [MinMs, MaxMs].
func (p IntervalPolicy) Clamp(ms uint64) uint64 {
	if ms < p.MinMs {
		return p.MinMs
	}
	if ms > p.MaxMs {
		return p.MaxMs
	}
	return ms
}

// Set is an immutable snapshot of every tier's policy.
type Set map[tier.Tier]IntervalPolicy

// Defaults returns the built-in policies.
func Defaults() Set {
	return Set{
		tier.Critical:     {BaseMs: 5_000, MinMs: 1_000, MaxMs: 60_000},
		tier.Default:      {BaseMs: 30_000, MinMs: 5_000, MaxMs: 300_000},
		tier.NonEssential: {BaseMs: 300_000, MinMs: 60_000, MaxMs: 3_600_000},
	}
}

// Validate checks that every tier is present and well ordered.
func (s Set) Validate() error {
	errFactory := errors.New()
	for _, t := range tier.All {
		p, ok := s[t]
		if !ok {
			return errFactory.WithData(errors.ErrInvalidPolicy, fmt.Sprintf("missing policy for tier %s", t))
		}
		if err := p.Validate(); err != nil {
			return errFactory.WithData(errors.ErrInvalidPolicy, fmt.Sprintf("tier %s: %v", t, err))
		}
	}
	for t := range s {
		if !t.Valid() {
			return errFactory.WithData(errors.ErrInvalidTier, int(t))
		}
	}
	return nil
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Store publishes policy snapshots. Reads never lock; writers build a new
// Set and swap it in.
type Store struct {
	current atomic.Pointer[Set]
	mu      sync.Mutex
}

// NewStore validates initial and returns a Store holding a copy of it.
func NewStore(initial Set) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	snap := initial.clone()
	s.current.Store(&snap)
	return s, nil
}

// Get returns the policy for t. Tiers are a closed set, so the lookup
// always succeeds for valid t.
func (s *Store) Get(t tier.Tier) IntervalPolicy {
	return (*s.current.Load())[t]
}

// Snapshot returns a copy of every tier's policy.
func (s *Store) Snapshot() Set {
	return s.current.Load().clone()
}

// Set replaces the policy of one tier. Invalid policies are rejected and
// the prior policy is retained.
func (s *Store) Set(t tier.Tier, p IntervalPolicy) error {
	if !t.Valid() {
		return errors.New().WithData(errors.ErrInvalidTier, int(t))
	}
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	next[t] = p
	s.current.Store(&next)
	return nil
}

// Replace swaps in a whole policy set after validating it.
func (s *Store) Replace(set Set) error {
	if err := set.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := set.clone()
	s.current.Store(&next)
	return nil
}
