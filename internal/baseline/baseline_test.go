package baseline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpguard/internal/model"
)

func TestApplyDefaultsCanonicalizesVibrationAlias(t *testing.T) {
	c := Config{
		Stats: map[model.SensorKey]Stat{
			model.VibrationVelocityAlias: {Mean: 4, Std: 0.5},
			model.BearingTemp:            {Mean: 60, Std: 2},
		},
		Limits: map[model.SensorKey]LimitRule{
			model.VibrationVelocityAlias: {WarnRatio: 0.9, Limit: 4, Label: "vib"},
		},
	}
	c.ApplyDefaults()

	require.Contains(t, c.Stats, model.VibrationVelocity)
	assert.NotContains(t, c.Stats, model.VibrationVelocityAlias)
	assert.Equal(t, Stat{Mean: 4, Std: 0.5}, c.Stats[model.VibrationVelocity])
	assert.Equal(t, 4.0, c.Limits[model.VibrationVelocity].Limit)
	assert.NoError(t, c.Validate())
}

func TestApplyDefaultsPrefersCanonicalEntry(t *testing.T) {
	c := Config{Stats: map[model.SensorKey]Stat{
		model.VibrationVelocityAlias: {Mean: 9, Std: 1},
		model.VibrationVelocity:      {Mean: 3.5, Std: 0.4},
	}}
	c.ApplyDefaults()
	assert.Equal(t, Stat{Mean: 3.5, Std: 0.4}, c.Stats[model.VibrationVelocity])
	assert.Len(t, c.Stats, 1)
}

func TestStatResolvesAliasBothWays(t *testing.T) {
	c := &Config{Stats: map[model.SensorKey]Stat{model.VibrationVelocityAlias: {Mean: 4, Std: 0.5}}}
	st, ok := c.Stat(model.VibrationVelocity)
	require.True(t, ok)
	assert.Equal(t, 4.0, st.Mean)

	c = Default()
	st, ok = c.Stat(model.VibrationVelocityAlias)
	require.True(t, ok)
	assert.Equal(t, c.Stats[model.VibrationVelocity], st)

	_, ok = c.Stat(model.SimRULDays)
	assert.False(t, ok)
}
