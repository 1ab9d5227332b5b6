package telemetry

import (
	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/mode"
)

// Collector turns decisions and transitions into Prometheus series.
type Collector interface {
	ObserveDecision(d decision.Decision)
	ObserveTransition(t mode.Transition)
}
