// Package mode holds the engine's administrative operating mode.
package mode

import (
	"fmt"
	"math"
	"sort"

	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/tier"
)

// Kind identifies a Mode variant.
type Kind int

const (
	KindNormal Kind = iota
	KindEmergency
	KindMaintenance
)

func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindEmergency:
		return "emergency"
	case KindMaintenance:
		return "maintenance"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < KindNormal || k > KindMaintenance {
		return nil, fmt.Errorf("invalid mode kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "normal":
		*k = KindNormal
	case "emergency":
		*k = KindEmergency
	case "maintenance":
		*k = KindMaintenance
	default:
		return fmt.Errorf("unknown mode kind %q", string(b))
	}
	return nil
}

// Mode is one of Normal, Emergency or Maintenance. Values are immutable
// once constructed.
type Mode interface {
	Kind() Kind
	isMode()
}

// Normal applies no overrides.
type Normal struct{}

func (Normal) Kind() Kind { return KindNormal }
func (Normal) isMode()    {}

// Emergency replaces tier base intervals with overrides.
type Emergency struct {
	reasons   []string
	overrides map[tier.Tier]uint64
}

// NewEmergency validates overrides (known tiers, non-zero values).
func NewEmergency(reasons []string, overrides map[tier.Tier]uint64) (Emergency, error) {
	errFactory := errors.New()
	o := make(map[tier.Tier]uint64, len(overrides))
	for t, ms := range overrides {
		if !t.Valid() {
			return Emergency{}, errFactory.WithData(errors.ErrInvalidMode, fmt.Sprintf("override for unknown tier %d", int(t)))
		}
		if ms == 0 {
			return Emergency{}, errFactory.WithData(errors.ErrInvalidMode, fmt.Sprintf("override for tier %s must be > 0", t))
		}
		o[t] = ms
	}
	return Emergency{
		reasons:   append([]string(nil), reasons...),
		overrides: o,
	}, nil
}

func (Emergency) Kind() Kind { return KindEmergency }
func (Emergency) isMode()    {}

// Override returns the replacement base interval for t, if any.
func (e Emergency) Override(t tier.Tier) (uint64, bool) {
	ms, ok := e.overrides[t]
	return ms, ok
}

// Reasons returns a copy of the declared reasons.
func (e Emergency) Reasons() []string {
	return append([]string(nil), e.reasons...)
}

// Overrides returns a copy of the override table.
func (e Emergency) Overrides() map[tier.Tier]uint64 {
	out := make(map[tier.Tier]uint64, len(e.overrides))
	for k, v := range e.overrides {
		out[k] = v
	}
	return out
}

// Maintenance scales every interval and suspends restricted data types.
type Maintenance struct {
	multiplier float64
	restricted map[string]struct{}
}

// NewMaintenance rejects multipliers below 1.0 or not finite.
func NewMaintenance(multiplier float64, restrictedTypes []string) (Maintenance, error) {
	if math.IsNaN(multiplier) || math.IsInf(multiplier, 0) || multiplier < 1.0 {
		return Maintenance{}, errors.New().WithData(errors.ErrInvalidMode,
			fmt.Sprintf("maintenance multiplier must be >= 1.0, got %v", multiplier))
	}
	r := make(map[string]struct{}, len(restrictedTypes))
	for _, dt := range restrictedTypes {
		r[dt] = struct{}{}
	}
	return Maintenance{multiplier: multiplier, restricted: r}, nil
}

func (Maintenance) Kind() Kind { return KindMaintenance }
func (Maintenance) isMode()    {}

func (m Maintenance) Multiplier() float64 {
	return m.multiplier
}

// Restricted reports whether dataType is suspended.
func (m Maintenance) Restricted(dataType string) bool {
	_, ok := m.restricted[dataType]
	return ok
}

// RestrictedTypes returns the suspended data types, sorted.
func (m Maintenance) RestrictedTypes() []string {
	out := make([]string, 0, len(m.restricted))
	for dt := range m.restricted {
		out = append(out, dt)
	}
	sort.Strings(out)
	return out
}
