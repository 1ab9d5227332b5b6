// Package interval computes bounded sync intervals. Compute is a pure
// function of its inputs and is safe for concurrent use.
package interval

import (
	"fmt"
	"math"
	"strings"

	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/mode"
	"codeberg.org/mutker/syncinterval/internal/policy"
	"codeberg.org/mutker/syncinterval/internal/tier"
)

const (
	defaultDataSizeThresholdMB = 50.0
	defaultDataSizeFactor      = 2.0

	loadLowBound  = 0.5
	loadHighBound = 0.8
	maxFailures   = 3
)

// Settings holds the tunable constants of the calculation.
type Settings struct {
	// DataSizeThresholdMB is the payload size above which DataSizeFactor applies.
	DataSizeThresholdMB float64 `mapstructure:"data_size_threshold_mb"`
	DataSizeFactor      float64 `mapstructure:"data_size_factor"`
}

func DefaultSettings() Settings {
	return Settings{
		DataSizeThresholdMB: defaultDataSizeThresholdMB,
		DataSizeFactor:      defaultDataSizeFactor,
	}
}

func (s Settings) Validate() error {
	if math.IsNaN(s.DataSizeThresholdMB) || s.DataSizeThresholdMB < 0 {
		return errors.New().WithData(errors.ErrInvalidConfig,
			fmt.Sprintf("data_size_threshold_mb must be >= 0, got %v", s.DataSizeThresholdMB))
	}
	if math.IsNaN(s.DataSizeFactor) || math.IsInf(s.DataSizeFactor, 0) || s.DataSizeFactor <= 0 {
		return errors.New().WithData(errors.ErrInvalidConfig,
			fmt.Sprintf("data_size_factor must be > 0, got %v", s.DataSizeFactor))
	}
	return nil
}

// Result is the outcome of Compute.
type Result struct {
	FinalMs   uint64
	BaseMs    uint64
	Factors   []decision.Factor
	Clamped   bool
	Suspended bool
	Reason    string
}

// Calculator applies Settings to policy, mode and per-call hints.
type Calculator struct {
	settings Settings
}

func NewCalculator(settings Settings) Calculator {
	return Calculator{settings: settings}
}

func (c Calculator) Settings() Settings {
	return c.settings
}

// Compute derives the interval for dataType. A maintenance restriction
// short-circuits every numeric step. Otherwise the base (emergency override
// or policy base) is multiplied by load, criticality, urgency, data size
// and failure factors, scaled by the maintenance multiplier, rounded to the
// millisecond and clamped to the policy bounds.
func (c Calculator) Compute(dataType string, t tier.Tier, p policy.IntervalPolicy, m mode.Mode, ctx Context) Result {
	if mt, ok := m.(mode.Maintenance); ok && mt.Restricted(dataType) {
		return Result{
			Suspended: true,
			Reason:    "suspended: data type restricted during maintenance",
		}
	}

	var reason strings.Builder

	base := p.BaseMs
	if em, ok := m.(mode.Emergency); ok {
		if ms, ok := em.Override(t); ok {
			base = ms
			fmt.Fprintf(&reason, "emergency override base %dms for %s", base, t)
		}
	}
	if reason.Len() == 0 {
		fmt.Fprintf(&reason, "policy base %dms for %s", base, t)
	}

	factors := []decision.Factor{
		{Name: decision.FactorLoad, Value: LoadFactor(ctx.SystemLoad)},
		{Name: decision.FactorCriticality, Value: CriticalityFactor(ctx.PatientCriticality)},
		{Name: decision.FactorUrgency, Value: UrgencyFactor(ctx.Urgency)},
		{Name: decision.FactorDataSize, Value: c.DataSizeFactor(ctx.DataSizeMb)},
		{Name: decision.FactorFailures, Value: FailureFactor(ctx.RecentFailures)},
	}

	raw := float64(base)
	for _, f := range factors {
		raw *= f.Value
	}

	if mt, ok := m.(mode.Maintenance); ok {
		factors = append(factors, decision.Factor{Name: decision.FactorMaintenance, Value: mt.Multiplier()})
		raw *= mt.Multiplier()
		fmt.Fprintf(&reason, "; maintenance x%g", mt.Multiplier())
	}

	final := clampRaw(raw, p)
	clamped := false
	switch {
	case final == p.MinMs && raw < float64(p.MinMs):
		fmt.Fprintf(&reason, "; clamped to min %dms", p.MinMs)
		clamped = true
	case final == p.MaxMs && raw > float64(p.MaxMs):
		fmt.Fprintf(&reason, "; clamped to max %dms", p.MaxMs)
		clamped = true
	}

	return Result{
		FinalMs: final,
		BaseMs:  base,
		Factors: factors,
		Clamped: clamped,
		Reason:  reason.String(),
	}
}

func clampRaw(raw float64, p policy.IntervalPolicy) uint64 {
	if math.IsNaN(raw) || raw <= float64(p.MinMs) {
		return p.MinMs
	}
	if raw >= float64(p.MaxMs) {
		return p.MaxMs
	}
	return p.Clamp(uint64(math.Round(raw)))
}

// LoadFactor maps system load piecewise: below 0.5 is neutral, 0.5 to 0.8
// interpolates 1.0 to 1.5, and 0.8 to 1.0 interpolates 1.5 to 2.0.
// Load outside [0,1] is clamped first.
func LoadFactor(load float64) float64 {
	switch {
	case math.IsNaN(load) || load < 0:
		load = 0
	case load > 1:
		load = 1
	}

	switch {
	case load < loadLowBound:
		return 1.0
	case load < loadHighBound:
		return interpolate(load, loadLowBound, loadHighBound, 1.0, 1.5)
	default:
		return interpolate(load, loadHighBound, 1.0, 1.5, 2.0)
	}
}

func interpolate(x, loBound, hiBound, lo, hi float64) float64 {
	return lo + (hi-lo)*(x-loBound)/(hiBound-loBound)
}

func CriticalityFactor(c Criticality) float64 {
	switch c {
	case CriticalityHigh:
		return 0.5
	case CriticalityMedium:
		return 0.8
	case CriticalityLow:
		return 1.2
	default:
		return 1.0
	}
}

func UrgencyFactor(u Urgency) float64 {
	switch u {
	case UrgencyEmergency:
		return 0.2
	case UrgencyUrgent:
		return 0.5
	case UrgencyRoutine:
		return 1.5
	default:
		return 1.0
	}
}

// DataSizeFactor applies the configured factor to payloads strictly above
// the threshold.
func (c Calculator) DataSizeFactor(sizeMb float64) float64 {
	if sizeMb > c.settings.DataSizeThresholdMB {
		return c.settings.DataSizeFactor
	}
	return 1.0
}

// FailureFactor backs off 1.5x, 2x, then caps at 3x from the third
// consecutive failure on.
func FailureFactor(failures uint) float64 {
	switch {
	case failures >= maxFailures:
		return 3.0
	case failures == 2:
		return 2.0
	case failures == 1:
		return 1.5
	default:
		return 1.0
	}
}
