package engine

import (
	"fmt"

	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/mode"
	"codeberg.org/mutker/syncinterval/internal/policy"
	"codeberg.org/mutker/syncinterval/internal/tier"
)

// UpdatePolicy replaces the policy for t. Invalid policies are rejected
// with invalid_policy and the prior policy is retained. While an emergency
// is active the new bounds must still contain t's override, so every
// exported configuration can be imported again.
func (m *Manager) UpdatePolicy(t tier.Tier, p policy.IntervalPolicy) error {
	m.adminMu.Lock()
	defer m.adminMu.Unlock()

	if err := p.Validate(); err != nil {
		return m.rejected("update_policy", err)
	}
	if em, ok := m.modes.Current().(mode.Emergency); ok {
		if ms, ok := em.Override(t); ok && (ms < p.MinMs || ms > p.MaxMs) {
			return m.rejected("update_policy", errors.New().WithData(errors.ErrInvalidPolicy,
				fmt.Sprintf("active emergency override %dms for tier %s outside [%d, %d]", ms, t, p.MinMs, p.MaxMs)))
		}
	}
	if err := m.policies.Set(t, p); err != nil {
		return m.rejected("update_policy", err)
	}

	m.log.Info().
		Str("tier", t.String()).
		Uint64("base_ms", p.BaseMs).
		Uint64("min_ms", p.MinMs).
		Uint64("max_ms", p.MaxMs).
		Msg("Interval policy updated")
	return nil
}

// SetDataTypeTier assigns dataType to t.
func (m *Manager) SetDataTypeTier(dataType string, t tier.Tier) error {
	errFactory := errors.New()
	if dataType == "" {
		return m.rejected("set_data_type_tier", errFactory.WithMessage(errors.ErrInvalidArgument, "data type must not be empty"))
	}
	if !t.Valid() {
		return m.rejected("set_data_type_tier", errFactory.WithData(errors.ErrInvalidTier, int(t)))
	}

	m.adminMu.Lock()
	defer m.adminMu.Unlock()

	m.classifier.Set(dataType, t)
	m.log.Info().Str("data_type", dataType).Str("tier", t.String()).Msg("Data type tier set")
	return nil
}

// ClearDataTypeTier removes an explicit assignment; dataType falls back
// to Default. It reports whether an assignment existed.
func (m *Manager) ClearDataTypeTier(dataType string) bool {
	m.adminMu.Lock()
	defer m.adminMu.Unlock()

	cleared := m.classifier.Clear(dataType)
	if cleared {
		m.log.Info().Str("data_type", dataType).Msg("Data type tier cleared")
	}
	return cleared
}

// EnterEmergency activates an emergency, replacing maintenance if active.
// Each override must lie within its tier's policy bounds.
func (m *Manager) EnterEmergency(reasons []string, overrides map[tier.Tier]uint64) error {
	m.adminMu.Lock()
	defer m.adminMu.Unlock()

	if err := checkOverrides(overrides, m.policies.Snapshot()); err != nil {
		return m.rejected("enter_emergency", err)
	}

	tr, err := m.modes.EnterEmergency(reasons, overrides)
	if err != nil {
		return m.rejected("enter_emergency", err)
	}

	m.log.Info().
		Strs("reasons", reasons).
		Str("from", tr.From.String()).
		Msg("Emergency mode entered")
	m.observers.transition(tr)
	return nil
}

// ExitEmergency returns to Normal. It is a no-op in Normal mode and is
// rejected while maintenance is active.
func (m *Manager) ExitEmergency() error {
	return m.exit(mode.KindEmergency, "exit_emergency")
}

// EnterMaintenance activates maintenance, replacing nothing but Normal.
// Unlike EnterEmergency it does not replace an active mode: maintenance
// lengthens intervals and may suspend data types, so letting it end an
// emergency would slow critical syncs during an incident. It is rejected
// with invalid_mode until the emergency is exited.
func (m *Manager) EnterMaintenance(multiplier float64, restrictedTypes []string) error {
	m.adminMu.Lock()
	defer m.adminMu.Unlock()

	if m.modes.Current().Kind() == mode.KindEmergency {
		return m.rejected("enter_maintenance",
			errors.New().WithMessage(errors.ErrInvalidMode, "cannot enter maintenance while emergency is active"))
	}

	tr, err := m.modes.EnterMaintenance(multiplier, restrictedTypes)
	if err != nil {
		return m.rejected("enter_maintenance", err)
	}

	m.log.Info().
		Float64("multiplier", multiplier).
		Strs("restricted_types", restrictedTypes).
		Str("from", tr.From.String()).
		Msg("Maintenance mode entered")
	m.observers.transition(tr)
	return nil
}

// ExitMaintenance returns to Normal. It is a no-op in Normal mode and is
// rejected while an emergency is active.
func (m *Manager) ExitMaintenance() error {
	return m.exit(mode.KindMaintenance, "exit_maintenance")
}

func (m *Manager) exit(k mode.Kind, op string) error {
	m.adminMu.Lock()
	defer m.adminMu.Unlock()

	cur := m.modes.Current().Kind()
	switch cur {
	case mode.KindNormal:
		return nil
	case k:
	default:
		return m.rejected(op, errors.New().WithMessage(errors.ErrInvalidMode,
			fmt.Sprintf("cannot exit %s while %s is active", k, cur)))
	}

	var (
		tr      mode.Transition
		changed bool
	)
	if k == mode.KindEmergency {
		tr, changed = m.modes.ExitEmergency()
	} else {
		tr, changed = m.modes.ExitMaintenance()
	}
	if changed {
		m.log.Info().Str("from", tr.From.String()).Msg("Returned to normal mode")
		m.observers.transition(tr)
	}
	return nil
}

func checkOverrides(overrides map[tier.Tier]uint64, policies policy.Set) error {
	for t, ms := range overrides {
		p, ok := policies[t]
		if !ok {
			return errors.New().WithData(errors.ErrInvalidMode, fmt.Sprintf("override for unknown tier %d", int(t)))
		}
		if ms < p.MinMs || ms > p.MaxMs {
			return errors.New().WithData(errors.ErrInvalidMode,
				fmt.Sprintf("override %dms for tier %s outside [%d, %d]", ms, t, p.MinMs, p.MaxMs))
		}
	}
	return nil
}

func (m *Manager) rejected(op string, err error) error {
	m.log.Warn().
		Str("operation", op).
		Str("error_code", string(errors.CodeOf(err))).
		Err(err).
		Msg("Administrative operation rejected")
	return err
}
