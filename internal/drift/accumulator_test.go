package drift

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func arithmeticMean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := arithmeticMean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

func TestAccumulator_MatchesArithmeticStatistics(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
	}{
		{
			name: "single observation",
			xs:   []float64{42.0},
		},
		{
			name: "small integer sequence",
			xs:   []float64{1, 2, 3, 4, 5},
		},
		{
			name: "constant sequence has zero variance",
			xs:   []float64{7.5, 7.5, 7.5, 7.5},
		},
		{
			name: "mixed magnitudes",
			xs:   []float64{0.001, 1500.0, -3.25, 78000.0, 0.42, -12.0},
		},
		{
			name: "large offset stresses cancellation",
			xs:   []float64{1e9 + 1, 1e9 + 2, 1e9 + 3, 1e9 + 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var acc Accumulator
			for _, x := range tt.xs {
				acc = acc.Add(x)
			}

			assert.Equal(t, int64(len(tt.xs)), acc.N)
			assert.InDelta(t, arithmeticMean(tt.xs), acc.Mean, 1e-6)
			assert.InDelta(t, sampleVariance(tt.xs), acc.Variance(), 1e-6)
			assert.InDelta(t, math.Sqrt(sampleVariance(tt.xs)), acc.Std(), 1e-6)
		})
	}
}

func TestAccumulator_ZeroValue(t *testing.T) {
	var acc Accumulator

	assert.Equal(t, int64(0), acc.N)
	assert.Equal(t, 0.0, acc.Variance())
	assert.Equal(t, 0.0, acc.Std())
}

func TestAccumulator_VarianceNeedsTwoObservations(t *testing.T) {
	acc := Accumulator{}.Add(123.0)

	assert.Equal(t, 0.0, acc.Variance())
}
