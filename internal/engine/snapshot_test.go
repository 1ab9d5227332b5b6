package engine_test

import (
	"encoding/json"
	"testing"

	"codeberg.org/mutker/syncinterval/internal/engine"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/mode"
	"codeberg.org/mutker/syncinterval/internal/policy"
	"codeberg.org/mutker/syncinterval/internal/tier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, m *engine.Manager)
	}{
		{"normal", func(t *testing.T, m *engine.Manager) {}},
		{"emergency", func(t *testing.T, m *engine.Manager) {
			require.NoError(t, m.EnterEmergency([]string{"storm", "ED overflow"},
				map[tier.Tier]uint64{tier.Critical: 1_000, tier.Default: 10_000}))
		}},
		{"maintenance", func(t *testing.T, m *engine.Manager) {
			require.NoError(t, m.EnterMaintenance(2.5, []string{"billing", "analytics"}))
		}},
		{"custom policy and mapping", func(t *testing.T, m *engine.Manager) {
			require.NoError(t, m.UpdatePolicy(tier.Default, policy.IntervalPolicy{BaseMs: 7_000, MinMs: 3_000, MaxMs: 70_000}))
			require.NoError(t, m.SetDataTypeTier("imaging", tier.Critical))
			m.ClearDataTypeTier("billing")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newManager(t)
			tt.setup(t, src)

			blob, err := src.ExportConfig()
			require.NoError(t, err)

			dst := newManager(t)
			require.NoError(t, dst.ImportConfig(blob))

			again, err := dst.ExportConfig()
			require.NoError(t, err)
			assert.Equal(t, string(blob), string(again))

			assert.Equal(t, src.Policies(), dst.Policies())
			assert.Equal(t, src.DataTypeTiers(), dst.DataTypeTiers())
			assert.Equal(t, src.Mode().Kind(), dst.Mode().Kind())

			// Importing into the source itself is also the identity.
			require.NoError(t, src.ImportConfig(blob))
			self, err := src.ExportConfig()
			require.NoError(t, err)
			assert.Equal(t, string(blob), string(self))
		})
	}
}

func TestExportFormatIsVersioned(t *testing.T) {
	m := newManager(t)
	blob, err := m.ExportConfig()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(blob, &raw))
	assert.EqualValues(t, engine.SnapshotVersion, raw["version"])
	assert.Contains(t, raw, "policies")
	assert.Contains(t, raw, "data_types")
	assert.Equal(t, map[string]any{"kind": "normal"}, raw["mode"])
}

func TestImportRejectsInvalidBlobs(t *testing.T) {
	valid := func(t *testing.T) map[string]any {
		m := newManager(t)
		blob, err := m.ExportConfig()
		require.NoError(t, err)
		var raw map[string]any
		require.NoError(t, json.Unmarshal(blob, &raw))
		return raw
	}

	tests := []struct {
		name   string
		mutate func(raw map[string]any)
		code   errors.ErrorCode
	}{
		{"version", func(raw map[string]any) { raw["version"] = 2 }, errors.ErrUnsupportedVersion},
		{"unknown field", func(raw map[string]any) { raw["extra"] = true }, errors.ErrDecodeConfig},
		{"policy order", func(raw map[string]any) {
			raw["policies"].(map[string]any)["critical"] = map[string]any{"base_ms": 1, "min_ms": 5, "max_ms": 10}
		}, errors.ErrInvalidPolicy},
		{"missing tier", func(raw map[string]any) {
			delete(raw["policies"].(map[string]any), "default")
		}, errors.ErrInvalidPolicy},
		{"unknown tier", func(raw map[string]any) {
			raw["data_types"].(map[string]any)["vitals"] = "extreme"
		}, errors.ErrInvalidTier},
		{"maintenance multiplier", func(raw map[string]any) {
			raw["mode"] = map[string]any{"kind": "maintenance", "multiplier": 0.5}
		}, errors.ErrInvalidMode},
		{"emergency override bounds", func(raw map[string]any) {
			raw["mode"] = map[string]any{"kind": "emergency", "overrides": map[string]any{"critical": 1}}
		}, errors.ErrInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := valid(t)
			tt.mutate(raw)
			blob, err := json.Marshal(raw)
			require.NoError(t, err)

			m := newManager(t)
			require.NoError(t, m.EnterMaintenance(1.5, nil))
			before, err := m.ExportConfig()
			require.NoError(t, err)

			err = m.ImportConfig(blob)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
			assert.Error(t, engine.ValidateConfig(blob))

			after, err := m.ExportConfig()
			require.NoError(t, err)
			assert.Equal(t, string(before), string(after), "state retained on failed import")
			assert.Equal(t, mode.KindMaintenance, m.Mode().Kind())
		})
	}

	m := newManager(t)
	err := m.ImportConfig([]byte("{not json"))
	assert.True(t, errors.HasCode(err, errors.ErrDecodeConfig))
}

func TestPolicyUpdateCannotStrandEmergencyOverride(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.EnterEmergency([]string{"storm"}, map[tier.Tier]uint64{tier.Critical: 1_000}))

	before := m.Policy(tier.Critical)
	err := m.UpdatePolicy(tier.Critical, policy.IntervalPolicy{BaseMs: 5_000, MinMs: 2_000, MaxMs: 60_000})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidPolicy))
	assert.Equal(t, before, m.Policy(tier.Critical))

	blob, err := m.ExportConfig()
	require.NoError(t, err)
	require.NoError(t, m.ImportConfig(blob))
	again, err := m.ExportConfig()
	require.NoError(t, err)
	assert.Equal(t, string(blob), string(again))

	// Bounds that still contain the override are accepted.
	require.NoError(t, m.UpdatePolicy(tier.Critical, policy.IntervalPolicy{BaseMs: 5_000, MinMs: 1_000, MaxMs: 30_000}))
	// Tiers without an override are unaffected.
	require.NoError(t, m.UpdatePolicy(tier.Default, policy.IntervalPolicy{BaseMs: 40_000, MinMs: 20_000, MaxMs: 80_000}))

	blob, err = m.ExportConfig()
	require.NoError(t, err)
	require.NoError(t, m.ImportConfig(blob))

	require.NoError(t, m.ExitEmergency())
	require.NoError(t, m.UpdatePolicy(tier.Critical, policy.IntervalPolicy{BaseMs: 5_000, MinMs: 2_000, MaxMs: 60_000}))
}
