// Package audit persists interval decisions and mode transitions to SQLite.
package audit

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/logger"
	"codeberg.org/mutker/syncinterval/internal/mode"
)

type sink struct {
	repo   Repository
	cfg    Config
	logger logger.Logger

	mu      sync.Mutex
	pending Batch
	dropped uint64

	flushMu      sync.Mutex
	signal       chan struct{}
	shutdownChan chan struct{}
	doneChan     chan struct{}
	closeOnce    sync.Once
}

// No-op implementation
type noopSink struct{}

// NewSink validates cfg and opens the audit store. A disabled config yields
// a sink that discards everything.
func NewSink(cfg Config, log logger.Logger) (Sink, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Audit disabled, using no-op sink")
		return noopSink{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	s := newSink(repo, cfg, log)
	go s.flusher()

	log.Debug().
		Str("db_path", cfg.DBPath).
		Int("batch_size", cfg.BatchSize).
		Dur("flush_interval", cfg.FlushInterval).
		Msg("Audit sink started")

	return s, nil
}

func newSink(repo Repository, cfg Config, log logger.Logger) *sink {
	return &sink{
		repo:         repo,
		cfg:          cfg,
		logger:       log,
		signal:       make(chan struct{}, 1),
		shutdownChan: make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

func (s *sink) ObserveDecision(d decision.Decision) {
	s.mu.Lock()
	s.pending.Decisions = append(s.pending.Decisions, d)
	s.trimLocked()
	full := s.pending.Len() >= s.cfg.BatchSize
	s.mu.Unlock()

	if full {
		s.wake()
	}
}

func (s *sink) ObserveTransition(t mode.Transition) {
	s.mu.Lock()
	s.pending.Transitions = append(s.pending.Transitions, t)
	s.trimLocked()
	s.mu.Unlock()

	// Transitions are rare; persist them promptly.
	s.wake()
}

// trimLocked drops the oldest decisions once the buffer exceeds MaxBuffer.
// Transitions are never dropped.
func (s *sink) trimLocked() {
	over := s.pending.Len() - s.cfg.MaxBuffer
	if over <= 0 {
		return
	}
	if over > len(s.pending.Decisions) {
		over = len(s.pending.Decisions)
	}
	s.pending.Decisions = append(s.pending.Decisions[:0], s.pending.Decisions[over:]...)
	s.dropped += uint64(over)
}

func (s *sink) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *sink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Flush writes everything buffered so far. If the store fails the
// buffered decisions are counted as dropped and the transitions are kept
// for the next flush.
func (s *sink) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.New().Wrap(errors.ErrTimeout, err)
	}

	s.mu.Lock()
	batch := s.pending
	s.pending = Batch{}
	s.mu.Unlock()

	if batch.Len() == 0 {
		return nil
	}
	if err := s.repo.Store(ctx, batch); err != nil {
		// Decisions are lost; transitions go back ahead of anything
		// observed since the swap.
		s.mu.Lock()
		s.dropped += uint64(len(batch.Decisions))
		s.pending.Transitions = append(batch.Transitions, s.pending.Transitions...)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *sink) RecentDecisions(ctx context.Context, dataType string, limit int) ([]decision.Decision, error) {
	return s.repo.RecentDecisions(ctx, dataType, limit)
}

func (s *sink) Transitions(ctx context.Context, limit int) ([]mode.Transition, error) {
	return s.repo.Transitions(ctx, limit)
}

func (s *sink) flusher() {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flushLogged()
		case <-s.signal:
			s.flushLogged()
		case <-s.shutdownChan:
			s.flushLogged()
			return
		}
	}
}

func (s *sink) flushLogged() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FlushInterval)
	defer cancel()

	if err := s.Flush(ctx); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			s.logger.ErrorWithCode(appErr).Msg("Failed to flush audit records")
			return
		}
		s.logger.Error().Err(err).Msg("Failed to flush audit records")
	}
}

// Close stops the flusher after a final flush and closes the store.
func (s *sink) Close() error {
	errFactory := errors.New()

	var err error
	s.closeOnce.Do(func() {
		close(s.shutdownChan)
		<-s.doneChan
		if cerr := s.repo.Close(); cerr != nil {
			err = errFactory.Wrap(ErrStorageClose, cerr)
		}
	})
	return err
}

func (noopSink) ObserveDecision(decision.Decision) {}
func (noopSink) ObserveTransition(mode.Transition) {}
func (noopSink) Flush(context.Context) error       { return nil }
func (noopSink) Dropped() uint64                   { return 0 }
func (noopSink) Close() error                      { return nil }

func (noopSink) RecentDecisions(context.Context, string, int) ([]decision.Decision, error) {
	return []decision.Decision{}, nil
}

func (noopSink) Transitions(context.Context, int) ([]mode.Transition, error) {
	return []mode.Transition{}, nil
}
