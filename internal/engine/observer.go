package engine

import (
	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/mode"
)

// Observer receives every decision and mode transition. Calls happen on
// the resolving or administering goroutine, so implementations must not
// block; buffer and hand off instead.
type Observer interface {
	ObserveDecision(d decision.Decision)
	ObserveTransition(t mode.Transition)
}

type observers []Observer

func (obs observers) decision(d decision.Decision) {
	for _, o := range obs {
		o.ObserveDecision(d.Clone())
	}
}

func (obs observers) transition(t mode.Transition) {
	for _, o := range obs {
		o.ObserveTransition(t)
	}
}
