package audit

import (
	"context"

	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/mode"
)

// Sink persists decisions and mode transitions. ObserveDecision and
// ObserveTransition only buffer; storage happens on a background flusher.
type Sink interface {
	ObserveDecision(d decision.Decision)
	ObserveTransition(t mode.Transition)
	Flush(ctx context.Context) error
	RecentDecisions(ctx context.Context, dataType string, limit int) ([]decision.Decision, error)
	Transitions(ctx context.Context, limit int) ([]mode.Transition, error)
	// Dropped counts decisions discarded because the buffer overflowed or a
	// flush failed.
	Dropped() uint64
	Close() error
}

// Repository defines the interface for audit data storage
type Repository interface {
	Store(ctx context.Context, batch Batch) error
	RecentDecisions(ctx context.Context, dataType string, limit int) ([]decision.Decision, error)
	Transitions(ctx context.Context, limit int) ([]mode.Transition, error)
	Close() error
}

// Batch is one flush worth of pending entries.
type Batch struct {
	Decisions   []decision.Decision
	Transitions []mode.Transition
}

func (b Batch) Len() int {
	return len(b.Decisions) + len(b.Transitions)
}
