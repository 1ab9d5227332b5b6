package telemetry_test

import (
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/syncinterval/internal/decision"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/mode"
	"codeberg.org/mutker/syncinterval/internal/telemetry"
	"codeberg.org/mutker/syncinterval/internal/tier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := telemetry.NewCollector(telemetry.DefaultConfig(), reg)
	require.NoError(t, err)

	c.ObserveDecision(decision.Decision{Tier: tier.Critical, Mode: mode.KindNormal, FinalMs: 5_000})
	c.ObserveDecision(decision.Decision{Tier: tier.Critical, Mode: mode.KindNormal, FinalMs: 60_000, Clamped: true})
	c.ObserveDecision(decision.Decision{Tier: tier.Default, Mode: mode.KindMaintenance, Suspended: true})

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := map[string]int{}
	for _, f := range families {
		byName[f.GetName()] = len(f.GetMetric())
	}
	assert.Equal(t, 2, byName["syncinterval_decisions_total"])
	assert.Equal(t, 1, byName["syncinterval_interval_seconds"])
	assert.Equal(t, 1, byName["syncinterval_decisions_clamped_total"])
	assert.Equal(t, 3, byName["syncinterval_mode"])
}

func TestCollectorTracksMode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := telemetry.NewCollector(telemetry.DefaultConfig(), reg)
	require.NoError(t, err)

	c.ObserveTransition(mode.Transition{From: mode.KindNormal, To: mode.KindEmergency, At: time.Now()})

	expected := `
# HELP syncinterval_mode Operating mode, 1 for the active one
# TYPE syncinterval_mode gauge
syncinterval_mode{mode="emergency"} 1
syncinterval_mode{mode="maintenance"} 0
syncinterval_mode{mode="normal"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "syncinterval_mode"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "syncinterval_mode_transitions_total"))
}

func TestDisabledCollectorRegistersNothing(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = false

	c, err := telemetry.NewCollector(cfg, reg)
	require.NoError(t, err)
	c.ObserveDecision(decision.Decision{})

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestCollectorConfigErrors(t *testing.T) {
	_, err := telemetry.NewCollector(telemetry.Config{Enabled: true}, prometheus.NewRegistry())
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidConfig))

	_, err = telemetry.NewCollector(telemetry.DefaultConfig(), nil)
	assert.True(t, errors.HasCode(err, telemetry.ErrRegistryFailed))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := telemetry.NewCollector(telemetry.DefaultConfig(), reg)
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = telemetry.NewCollector(telemetry.DefaultConfig(), reg)
	})
}
