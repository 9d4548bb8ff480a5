package statistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapCI_Degenerate(t *testing.T) {
	ci := BootstrapCI(nil, DefaultConfidenceLevel)
	assert.Zero(t, ci.Mean)
	assert.Zero(t, ci.NumBootstraps)

	ci = BootstrapCI([]float64{1}, DefaultConfidenceLevel)
	assert.Equal(t, ConfidenceInterval{Lower: 1, Upper: 1, Mean: 1, ConfidenceLevel: 0.95}, ci)
}

func TestBootstrapCI_AllMatches(t *testing.T) {
	ci := BootstrapCIWithSeed(Indicators([]bool{true, true, true, true}), 0.95, 7)
	assert.InDelta(t, 1.0, ci.Lower, 1e-12)
	assert.InDelta(t, 1.0, ci.Upper, 1e-12)
}

func TestBootstrapCI_AccuracyInterval(t *testing.T) {
	outcomes := []bool{true, false, true, true, false, true, false, true, true, false}
	ci := BootstrapCIWithSeed(Indicators(outcomes), 0.95, 42)

	assert.InDelta(t, 0.6, ci.Mean, 1e-12)
	assert.Less(t, ci.Lower, ci.Mean)
	assert.Greater(t, ci.Upper, ci.Mean)
	assert.GreaterOrEqual(t, ci.Lower, 0.0)
	assert.LessOrEqual(t, ci.Upper, 1.0)
	assert.Equal(t, DefaultBootstrapIterations, ci.NumBootstraps)
}

func TestBootstrapCI_NarrowsWithMoreTurns(t *testing.T) {
	small := Indicators([]bool{true, false, true})
	var largeOutcomes []bool
	for range 10 {
		largeOutcomes = append(largeOutcomes, true, false, true)
	}
	large := Indicators(largeOutcomes)

	cs := BootstrapCIWithSeed(small, 0.95, 42)
	cl := BootstrapCIWithSeed(large, 0.95, 42)
	assert.Less(t, cl.Upper-cl.Lower, cs.Upper-cs.Lower)
}

func TestBootstrapCI_SeedIsDeterministic(t *testing.T) {
	s := []float64{0, 1, 1, 0, 1}
	assert.Equal(t, BootstrapCIWithSeed(s, 0.95, 99), BootstrapCIWithSeed(s, 0.95, 99))
}

func TestIsSignificant(t *testing.T) {
	tests := []struct {
		name string
		ci   ConfidenceInterval
		want bool
	}{
		{"both positive", ConfidenceInterval{Lower: 0.1, Upper: 0.5}, true},
		{"both negative", ConfidenceInterval{Lower: -0.5, Upper: -0.1}, true},
		{"crosses zero", ConfidenceInterval{Lower: -0.1, Upper: 0.3}, false},
		{"touches zero", ConfidenceInterval{Lower: 0, Upper: 0.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSignificant(tt.ci))
		})
	}
}

func TestPairedDifferences(t *testing.T) {
	before := []bool{true, false, true, false}
	after := []bool{true, true, false, false, true}
	assert.Equal(t, []float64{0, 1, -1, 0}, PairedDifferences(before, after))
}

func TestPercentile(t *testing.T) {
	_, ok := Percentile(nil, 50)
	assert.False(t, ok)

	values := []float64{40, 10, 30, 20}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 10},
		{50, 25},
		{95, 38.5},
		{100, 40},
		{150, 40},
	}
	for _, tt := range tests {
		got, ok := Percentile(values, tt.p)
		require.True(t, ok)
		assert.InDelta(t, tt.want, got, 1e-9, "p%v", tt.p)
	}
	assert.Equal(t, []float64{40, 10, 30, 20}, values, "input must not be reordered")

	single, ok := Percentile([]float64{3}, 95)
	require.True(t, ok)
	assert.Equal(t, 3.0, single)
}
