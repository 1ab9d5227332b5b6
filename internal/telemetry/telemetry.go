// Package telemetry exports resolution activity as Prometheus metrics.
package telemetry

import (
	"strconv"

	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/mode"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type collector struct {
	decisions   *prometheus.CounterVec
	intervals   *prometheus.HistogramVec
	clamped     *prometheus.CounterVec
	activeMode  *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// No-op implementation
type noopCollector struct{}

// NewCollector registers the engine metrics on reg. A disabled config
// yields a collector that records nothing.
func NewCollector(cfg Config, reg prometheus.Registerer) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if !cfg.Enabled {
		return noopCollector{}, nil
	}
	if reg == nil {
		return nil, errFactory.WithMessage(ErrRegistryFailed, "registerer is required")
	}

	factory := promauto.With(reg)
	c := &collector{
		// DecisionsTotal counts resolutions per tier and mode
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decisions_total",
				Help:      "Total number of interval resolutions",
			},
			[]string{"tier", "mode", "suspended"},
		),
		// IntervalSeconds tracks resolved intervals; suspended results are excluded
		intervals: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "interval_seconds",
				Help:      "Resolved synchronization interval in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
			},
			[]string{"tier"},
		),
		clamped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decisions_clamped_total",
				Help:      "Resolutions whose raw interval fell outside the tier bounds",
			},
			[]string{"tier"},
		),
		activeMode: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "mode",
				Help:      "Operating mode, 1 for the active one",
			},
			[]string{"mode"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "mode_transitions_total",
				Help:      "Total number of operating mode transitions",
			},
			[]string{"from", "to"},
		),
	}
	c.setMode(mode.KindNormal)

	return c, nil
}

func (c *collector) ObserveDecision(d decision.Decision) {
	t := d.Tier.String()
	c.decisions.WithLabelValues(t, d.Mode.String(), strconv.FormatBool(d.Suspended)).Inc()
	if d.Suspended {
		return
	}
	c.intervals.WithLabelValues(t).Observe(d.Interval().Seconds())
	if d.Clamped {
		c.clamped.WithLabelValues(t).Inc()
	}
}

func (c *collector) ObserveTransition(t mode.Transition) {
	c.transitions.WithLabelValues(t.From.String(), t.To.String()).Inc()
	c.setMode(t.To)
}

func (c *collector) setMode(active mode.Kind) {
	for _, k := range []mode.Kind{mode.KindNormal, mode.KindEmergency, mode.KindMaintenance} {
		v := 0.0
		if k == active {
			v = 1
		}
		c.activeMode.WithLabelValues(k.String()).Set(v)
	}
}

func (noopCollector) ObserveDecision(decision.Decision) {}
func (noopCollector) ObserveTransition(mode.Transition) {}
