// Package engine is the entry point of the sync interval engine. A Manager
// owns the policy store, mode controller, data type classifier and decision
// history, and composes them into ResolveInterval for sync and poll callers.
package engine

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/history"
	"codeberg.org/mutker/syncinterval/internal/interval"
	"codeberg.org/mutker/syncinterval/internal/logger"
	"codeberg.org/mutker/syncinterval/internal/mode"
	"codeberg.org/mutker/syncinterval/internal/policy"
	"codeberg.org/mutker/syncinterval/internal/tier"
	"github.com/google/uuid"
)

// Config seeds a Manager.
type Config struct {
	Policies        policy.Set
	DataTypes       map[string]tier.Tier
	Calculator      interval.Settings
	HistoryCapacity int
}

func DefaultConfig() Config {
	return Config{
		Policies:        policy.Defaults(),
		DataTypes:       tier.DefaultMapping(),
		Calculator:      interval.DefaultSettings(),
		HistoryCapacity: history.DefaultCapacity,
	}
}

// Option customises a Manager.
type Option func(*Manager)

func WithLogger(log logger.Logger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// WithClock replaces time.Now for decision and transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithObservers(obs ...Observer) Option {
	return func(m *Manager) {
		m.observers = append(m.observers, obs...)
	}
}

// Manager is safe for concurrent use. Construct one per process and pass
// it to every caller.
type Manager struct {
	classifier *tier.Classifier
	policies   *policy.Store
	modes      *mode.Controller
	calc       interval.Calculator
	history    *history.Recorder
	observers  observers
	log        logger.Logger
	now        func() time.Time

	// adminMu serializes administrative operations so cross-component
	// checks and multi-component imports are applied as a unit.
	adminMu sync.Mutex
	// importSeq is odd while ImportConfig is publishing. Resolution
	// retries its reads until it sees the same even value on both sides.
	importSeq atomic.Uint64
}

// New validates cfg and builds a Manager in Normal mode.
func New(cfg Config, opts ...Option) (*Manager, error) {
	errFactory := errors.New()

	if err := cfg.Calculator.Validate(); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	store, err := policy.NewStore(cfg.Policies)
	if err != nil {
		return nil, err
	}
	for dt, t := range cfg.DataTypes {
		if !t.Valid() {
			return nil, errFactory.WithData(errors.ErrInvalidTier, dt)
		}
	}

	m := &Manager{
		policies: store,
		calc:     interval.NewCalculator(cfg.Calculator),
		history:  history.NewRecorder(cfg.HistoryCapacity),
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.classifier = tier.NewClassifier(cfg.DataTypes)
	m.modes = mode.NewController(m.now)

	m.log.Debug().
		Int("history_capacity", m.history.Capacity()).
		Int("data_types", len(cfg.DataTypes)).
		Float64("data_size_threshold_mb", cfg.Calculator.DataSizeThresholdMB).
		Msg("Interval engine initialized")

	return m, nil
}

// ResolveInterval classifies dataType, computes its next interval against
// the current policy and mode, records the decision and returns it. It
// never fails: unknown data types resolve as Default and malformed hints
// are clamped.
func (m *Manager) ResolveInterval(dataType string, ctx interval.Context) decision.Decision {
	t, p, md := m.view(dataType)

	res := m.calc.Compute(dataType, t, p, md, ctx)

	d := decision.Decision{
		ID:         uuid.New(),
		DataType:   dataType,
		Tier:       t,
		Mode:       md.Kind(),
		BaseMsUsed: res.BaseMs,
		Factors:    res.Factors,
		FinalMs:    res.FinalMs,
		Clamped:    res.Clamped,
		Suspended:  res.Suspended,
		Reason:     res.Reason,
		Timestamp:  m.now(),
	}

	m.log.Debug().
		Str("data_type", dataType).
		Str("tier", t.String()).
		Str("mode", d.Mode.String()).
		Uint64("final_ms", d.FinalMs).
		Bool("suspended", d.Suspended).
		Msg("Interval resolved")

	m.observers.decision(d)
	m.history.Record(d)

	return d.Clone()
}

// view reads the tier, policy and mode for dataType from a single
// configuration, never mixing state from before and after an import.
func (m *Manager) view(dataType string) (tier.Tier, policy.IntervalPolicy, mode.Mode) {
	for {
		seq := m.importSeq.Load()
		if seq%2 == 0 {
			t := m.classifier.Classify(dataType)
			p := m.policies.Get(t)
			md := m.modes.Current()
			if m.importSeq.Load() == seq {
				return t, p, md
			}
		}
		runtime.Gosched()
	}
}

// Recent returns up to limit recorded decisions for dataType, newest first.
func (m *Manager) Recent(dataType string, limit int) []decision.Decision {
	return m.history.Recent(dataType, limit)
}

// RecordedDataTypes lists data types with retained decisions.
func (m *Manager) RecordedDataTypes() []string {
	return m.history.DataTypes()
}

// ResetHistory drops all retained decisions.
func (m *Manager) ResetHistory() {
	m.history.Reset()
	m.log.Info().Msg("Decision history reset")
}

// Classify returns the tier dataType currently resolves to.
func (m *Manager) Classify(dataType string) tier.Tier {
	return m.classifier.Classify(dataType)
}

// Policy returns the current policy for t.
func (m *Manager) Policy(t tier.Tier) policy.IntervalPolicy {
	return m.policies.Get(t)
}

// Policies returns a copy of every tier's policy.
func (m *Manager) Policies() policy.Set {
	return m.policies.Snapshot()
}

// Mode returns the active mode.
func (m *Manager) Mode() mode.Mode {
	return m.modes.Current()
}

// ModeSince returns when the active mode was entered.
func (m *Manager) ModeSince() time.Time {
	return m.modes.Since()
}

// DataTypeTiers returns a copy of the explicit data type mapping.
func (m *Manager) DataTypeTiers() map[string]tier.Tier {
	return m.classifier.Mapping()
}

// CalculatorSettings returns the settings the calculator was built with.
func (m *Manager) CalculatorSettings() interval.Settings {
	return m.calc.Settings()
}
