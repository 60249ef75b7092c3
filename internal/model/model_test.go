package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLinearModel_Validation(t *testing.T) {
	ones := []float64{1, 1, 1}

	tests := []struct {
		name    string
		mean    []float64
		scale   []float64
		coef    []float64
		wantErr bool
	}{
		{
			name:  "matching dimensions",
			mean:  ones,
			scale: ones,
			coef:  ones,
		},
		{
			name:    "coefficient count mismatch",
			mean:    ones,
			scale:   ones,
			coef:    []float64{1, 1},
			wantErr: true,
		},
		{
			name:    "scaler mean count mismatch",
			mean:    []float64{1},
			scale:   ones,
			coef:    ones,
			wantErr: true,
		},
		{
			name:    "zero scale is invalid",
			mean:    ones,
			scale:   []float64{1, 0, 1},
			coef:    ones,
			wantErr: true,
		},
		{
			name:    "negative scale is invalid",
			mean:    ones,
			scale:   []float64{1, -2, 1},
			coef:    ones,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLinearModel(tt.mean, tt.scale, tt.coef, 0, 1, 0, 3)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLinearModel_Predict(t *testing.T) {
	m, err := NewLinearModel(
		[]float64{0, 0},
		[]float64{1, 1},
		[]float64{1, 0},
		0, 1, 0, 2,
	)
	require.NoError(t, err)

	// Sigmoid of the first feature's value.
	assert.InDelta(t, 0.5, m.Predict([]float64{0, 99}), 1e-9)
	assert.InDelta(t, 0.7310585786, m.Predict([]float64{1, 0}), 1e-9)
	assert.InDelta(t, 0.2689414214, m.Predict([]float64{-1, 0}), 1e-9)

	// Output always lands in [0,1].
	assert.LessOrEqual(t, m.Predict([]float64{1000, 0}), 1.0)
	assert.GreaterOrEqual(t, m.Predict([]float64{-1000, 0}), 0.0)
}

func TestLinearModel_PredictIsMonotonicInRiskFeature(t *testing.T) {
	m, err := NewLinearModel(
		[]float64{50, 0.5},
		[]float64{10, 0.2},
		[]float64{0.8, 1.2},
		-0.5, 1, 0, 2,
	)
	require.NoError(t, err)

	prev := m.Predict([]float64{50, 0})
	for v := 0.1; v <= 1.0; v += 0.1 {
		cur := m.Predict([]float64{50, v})
		assert.Greater(t, cur, prev)
		prev = cur
	}
}

func TestPredictorFunc(t *testing.T) {
	p := PredictorFunc(func(values []float64) float64 { return values[0] })
	assert.Equal(t, 0.42, p.Predict([]float64{0.42}))
}
