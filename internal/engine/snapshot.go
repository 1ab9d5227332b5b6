package engine

import (
	"bytes"
	"encoding/json"
	"fmt"

	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/mode"
	"codeberg.org/mutker/syncinterval/internal/policy"
	"codeberg.org/mutker/syncinterval/internal/tier"
)

// SnapshotVersion is the only blob version ImportConfig accepts.
const SnapshotVersion = 1

// snapshot is the wire form of exported configuration. Maps are keyed by
// name so encoding/json emits them sorted and exports are reproducible.
type snapshot struct {
	Version   int                              `json:"version"`
	Policies  map[string]policy.IntervalPolicy `json:"policies"`
	DataTypes map[string]string                `json:"data_types"`
	Mode      modeSnapshot                     `json:"mode"`
}

type modeSnapshot struct {
	Kind            mode.Kind         `json:"kind"`
	Reasons         []string          `json:"reasons,omitempty"`
	Overrides       map[string]uint64 `json:"overrides,omitempty"`
	Multiplier      float64           `json:"multiplier,omitempty"`
	RestrictedTypes []string          `json:"restricted_types,omitempty"`
}

// ExportConfig serializes policies, the data type mapping and the active
// mode. ImportConfig(ExportConfig()) is the identity.
func (m *Manager) ExportConfig() ([]byte, error) {
	m.adminMu.Lock()
	snap := m.capture()
	m.adminMu.Unlock()

	blob, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrEncodeConfig, err)
	}
	return blob, nil
}

// ImportConfig validates blob in full and then replaces policies, mapping
// and mode together. On any error the current state is left untouched.
// Concurrent resolutions see either the old or the new configuration.
func (m *Manager) ImportConfig(blob []byte) error {
	policies, mapping, md, err := decodeSnapshot(blob)
	if err != nil {
		return m.rejected("import_config", err)
	}

	m.adminMu.Lock()
	defer m.adminMu.Unlock()

	from := m.modes.Current().Kind()
	tr, err := m.publish(policies, mapping, md)
	if err != nil {
		return m.rejected("import_config", err)
	}
	if from != mode.KindNormal || tr.To != mode.KindNormal {
		m.observers.transition(tr)
	}

	m.log.Info().
		Int("data_types", len(mapping)).
		Str("mode", md.Kind().String()).
		Msg("Configuration imported")
	return nil
}

// publish must be called with adminMu held.
func (m *Manager) publish(policies policy.Set, mapping map[string]tier.Tier, md mode.Mode) (mode.Transition, error) {
	m.importSeq.Add(1)
	defer m.importSeq.Add(1)

	if err := m.policies.Replace(policies); err != nil {
		return mode.Transition{}, err
	}
	m.classifier.Replace(mapping)
	return m.modes.Restore(md), nil
}

// ValidateConfig decodes and validates blob without applying it.
func ValidateConfig(blob []byte) error {
	_, _, _, err := decodeSnapshot(blob)
	return err
}

// capture must be called with adminMu held.
func (m *Manager) capture() snapshot {
	snap := snapshot{
		Version:   SnapshotVersion,
		Policies:  make(map[string]policy.IntervalPolicy, len(tier.All)),
		DataTypes: make(map[string]string),
	}
	for t, p := range m.policies.Snapshot() {
		snap.Policies[t.String()] = p
	}
	for dt, t := range m.classifier.Mapping() {
		snap.DataTypes[dt] = t.String()
	}

	switch md := m.modes.Current().(type) {
	case mode.Emergency:
		snap.Mode = modeSnapshot{Kind: mode.KindEmergency, Reasons: md.Reasons()}
		if o := md.Overrides(); len(o) > 0 {
			snap.Mode.Overrides = make(map[string]uint64, len(o))
			for t, ms := range o {
				snap.Mode.Overrides[t.String()] = ms
			}
		}
	case mode.Maintenance:
		snap.Mode = modeSnapshot{
			Kind:            mode.KindMaintenance,
			Multiplier:      md.Multiplier(),
			RestrictedTypes: md.RestrictedTypes(),
		}
	default:
		snap.Mode = modeSnapshot{Kind: mode.KindNormal}
	}
	return snap
}

func decodeSnapshot(blob []byte) (policy.Set, map[string]tier.Tier, mode.Mode, error) {
	errFactory := errors.New()

	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.DisallowUnknownFields()

	var snap snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, nil, nil, errFactory.Wrap(errors.ErrDecodeConfig, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, nil, nil, errFactory.WithData(errors.ErrUnsupportedVersion, snap.Version)
	}

	policies := make(policy.Set, len(snap.Policies))
	for name, p := range snap.Policies {
		t, ok := tier.Parse(name)
		if !ok {
			return nil, nil, nil, errFactory.WithData(errors.ErrInvalidTier, name)
		}
		policies[t] = p
	}
	if err := policies.Validate(); err != nil {
		return nil, nil, nil, err
	}

	mapping := make(map[string]tier.Tier, len(snap.DataTypes))
	for dt, name := range snap.DataTypes {
		t, ok := tier.Parse(name)
		if !ok {
			return nil, nil, nil, errFactory.WithData(errors.ErrInvalidTier, fmt.Sprintf("%s: %s", dt, name))
		}
		mapping[dt] = t
	}

	md, err := decodeMode(snap.Mode, policies)
	if err != nil {
		return nil, nil, nil, err
	}
	return policies, mapping, md, nil
}

func decodeMode(s modeSnapshot, policies policy.Set) (mode.Mode, error) {
	switch s.Kind {
	case mode.KindEmergency:
		overrides := make(map[tier.Tier]uint64, len(s.Overrides))
		for name, ms := range s.Overrides {
			t, ok := tier.Parse(name)
			if !ok {
				return nil, errors.New().WithData(errors.ErrInvalidTier, name)
			}
			overrides[t] = ms
		}
		if err := checkOverrides(overrides, policies); err != nil {
			return nil, err
		}
		return mode.NewEmergency(s.Reasons, overrides)
	case mode.KindMaintenance:
		return mode.NewMaintenance(s.Multiplier, s.RestrictedTypes)
	default:
		return mode.Normal{}, nil
	}
}
