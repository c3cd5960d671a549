package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDesignConfigScenario(t *testing.T) {
	tests := []struct {
		cfg  DesignConfig
		want Scenario
		ok   bool
	}{
		{DesignConfig{true, true, false}, ScenarioA, true},
		{DesignConfig{false, true, false}, ScenarioB, true},
		{DesignConfig{true, true, true}, ScenarioC, true},
		{DesignConfig{false, false, true}, ScenarioD, true},
		{DesignConfig{false, false, false}, "", false},
		{DesignConfig{true, false, false}, "", false},
		{DesignConfig{true, false, true}, "", false},
		{DesignConfig{false, true, true}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.cfg.String(), func(t *testing.T) {
			got, err := tt.cfg.Scenario()
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.cfg, got.Config())
		})
	}
}

func TestParseScenario(t *testing.T) {
	for _, in := range []string{"a", "A", " b ", "c", "D"} {
		s, err := ParseScenario(in)
		require.NoError(t, err, in)
		assert.True(t, s.Valid())
	}

	_, err := ParseScenario("E")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "E", cfgErr.Scenario)
}

func TestScenarioRequirements(t *testing.T) {
	assert.True(t, ScenarioA.RequiresFrame())
	assert.True(t, ScenarioB.RequiresFrame())
	assert.True(t, ScenarioC.RequiresFrame())
	assert.False(t, ScenarioD.RequiresFrame())

	assert.False(t, ScenarioA.RequiresSampleVariance())
	assert.True(t, ScenarioB.RequiresSampleVariance())
	assert.False(t, ScenarioC.RequiresSampleVariance())
	assert.True(t, ScenarioD.RequiresSampleVariance())

	for _, s := range AllScenarios {
		assert.NotEqual(t, "unknown", s.Description())
	}
}

func TestObservationValidate(t *testing.T) {
	assert.NoError(t, NewObservation("x", 1).Validate(0))
	assert.ErrorIs(t, NewObservation("", 1).Validate(0), ErrInvalidObservation)

	inf := NewObservation("x", 0)
	inf.Value = 1 / zero()
	assert.ErrorIs(t, inf.Validate(3), ErrInvalidObservation)
}

func TestObservationValidateWeight(t *testing.T) {
	tests := []struct {
		name       string
		obs        Observation
		rejectZero bool
		wantErr    bool
	}{
		{"positive", NewWeightedObservation("x", 1, 2.5), false, false},
		{"zero allowed", NewWeightedObservation("x", 1, 0), false, false},
		{"zero rejected", NewWeightedObservation("x", 1, 0), true, true},
		{"negative", NewWeightedObservation("x", 1, -1), false, true},
		{"missing", NewObservation("x", 1), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.obs.ValidateWeight(7, tt.rejectZero)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var wErr *InvalidWeightError
			require.ErrorAs(t, err, &wErr)
			assert.Equal(t, 7, wErr.Index)
			assert.True(t, IsValidationError(err))
			assert.False(t, IsWarning(err))
		})
	}
}

func TestDomainFrame(t *testing.T) {
	f := DomainFrame{"b": 20, "a": 10, "c": 5}
	assert.Equal(t, []string{"a", "b", "c"}, f.DomainIDs())
	assert.Equal(t, int64(35), f.Total())
	assert.NoError(t, f.Validate())

	n, ok := f.PopulationSize("b")
	assert.True(t, ok)
	assert.Equal(t, int64(20), n)
	_, ok = f.PopulationSize("z")
	assert.False(t, ok)

	clone := f.Clone()
	clone["a"] = 99
	assert.Equal(t, int64(10), f["a"])

	assert.ErrorIs(t, DomainFrame{"a": 0}.Validate(), ErrInvalidPopulationSize)
	assert.ErrorIs(t, DomainFrame{"a": -3}.Validate(), ErrInvalidPopulationSize)
	assert.ErrorIs(t, DomainFrame{"": 3}.Validate(), ErrInvalidPopulationSize)
}

func zero() float64 { return 0 }
