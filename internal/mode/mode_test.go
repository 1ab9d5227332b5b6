package mode_test

import (
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/mode"
	"codeberg.org/mutker/syncinterval/internal/tier"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

func TestStartsNormal(t *testing.T) {
	c := mode.NewController(nil)
	assert.Equal(t, mode.KindNormal, c.Current().Kind())
}

func TestEmergencyLifecycle(t *testing.T) {
	c := mode.NewController(fixedClock())

	tr, err := c.EnterEmergency([]string{"mass casualty"}, map[tier.Tier]uint64{tier.Critical: 1000})
	require.NoError(t, err)
	assert.Equal(t, mode.KindNormal, tr.From)
	assert.Equal(t, mode.KindEmergency, tr.To)
	assert.Equal(t, []string{"mass casualty"}, tr.Reasons)
	assert.NotEqual(t, uuid.Nil, tr.ID)

	em, ok := c.Current().(mode.Emergency)
	require.True(t, ok)
	ms, ok := em.Override(tier.Critical)
	assert.True(t, ok)
	assert.Equal(t, uint64(1000), ms)
	_, ok = em.Override(tier.Default)
	assert.False(t, ok)

	_, changed := c.ExitMaintenance()
	assert.False(t, changed)
	assert.Equal(t, mode.KindEmergency, c.Current().Kind())

	tr, changed = c.ExitEmergency()
	assert.True(t, changed)
	assert.Equal(t, mode.KindEmergency, tr.From)
	assert.Equal(t, mode.KindNormal, tr.To)
	assert.Equal(t, tr.At, c.Since())
}

func TestEmergencyRejectsBadOverrides(t *testing.T) {
	c := mode.NewController(nil)

	_, err := c.EnterEmergency(nil, map[tier.Tier]uint64{tier.Critical: 0})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidMode))

	_, err = c.EnterEmergency(nil, map[tier.Tier]uint64{tier.Tier(5): 10})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidMode))

	assert.Equal(t, mode.KindNormal, c.Current().Kind())
}

func TestMaintenanceMultiplier(t *testing.T) {
	c := mode.NewController(nil)

	for _, m := range []float64{0.99, 0, -1, math.NaN(), math.Inf(1)} {
		_, err := c.EnterMaintenance(m, nil)
		assert.True(t, errors.HasCode(err, errors.ErrInvalidMode), "multiplier %v", m)
	}
	assert.Equal(t, mode.KindNormal, c.Current().Kind())

	_, err := c.EnterMaintenance(1.0, []string{"billing", "analytics"})
	require.NoError(t, err)

	mt := c.Current().(mode.Maintenance)
	assert.Equal(t, 1.0, mt.Multiplier())
	assert.True(t, mt.Restricted("billing"))
	assert.False(t, mt.Restricted("vitals"))
	assert.Equal(t, []string{"analytics", "billing"}, mt.RestrictedTypes())
}

func TestEnteringReplacesActiveMode(t *testing.T) {
	c := mode.NewController(nil)

	_, err := c.EnterMaintenance(2, nil)
	require.NoError(t, err)

	tr, err := c.EnterEmergency([]string{"outage"}, nil)
	require.NoError(t, err)
	assert.Equal(t, mode.KindMaintenance, tr.From)
	assert.Equal(t, mode.KindEmergency, tr.To)
	assert.Equal(t, mode.KindEmergency, c.Current().Kind())
}

// The controller replaces any active mode. Refusing maintenance during an
// emergency is an engine rule layered on top.
func TestControllerReplacesEmergencyWithMaintenance(t *testing.T) {
	c := mode.NewController(nil)

	_, err := c.EnterEmergency([]string{"outage"}, nil)
	require.NoError(t, err)

	tr, err := c.EnterMaintenance(2, nil)
	require.NoError(t, err)
	assert.Equal(t, mode.KindEmergency, tr.From)
	assert.Equal(t, mode.KindMaintenance, c.Current().Kind())
}

func TestEmergencyValuesAreImmutable(t *testing.T) {
	reasons := []string{"a"}
	overrides := map[tier.Tier]uint64{tier.Critical: 500}
	em, err := mode.NewEmergency(reasons, overrides)
	require.NoError(t, err)

	reasons[0] = "b"
	overrides[tier.Critical] = 1
	em.Overrides()[tier.Critical] = 2

	assert.Equal(t, []string{"a"}, em.Reasons())
	ms, _ := em.Override(tier.Critical)
	assert.Equal(t, uint64(500), ms)
}

func TestKindText(t *testing.T) {
	for _, k := range []mode.Kind{mode.KindNormal, mode.KindEmergency, mode.KindMaintenance} {
		b, err := k.MarshalText()
		require.NoError(t, err)
		var back mode.Kind
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, k, back)
	}
	var k mode.Kind
	assert.Error(t, k.UnmarshalText([]byte("panic")))
}
