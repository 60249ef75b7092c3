package ood

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decisionlab/risk-engine/internal/features"
)

func testBaseline(t *testing.T) features.BaselineStats {
	t.Helper()
	means := map[string]float64{}
	stds := map[string]float64{}
	for _, name := range features.Names() {
		means[name] = 100.0
		stds[name] = 10.0
	}
	b, err := features.NewBaselineStats(means, stds)
	require.NoError(t, err)
	return b
}

func TestGuardrail_Check(t *testing.T) {
	baseline := testBaseline(t)
	g := NewGuardrail(baseline, []string{"income", "age"}, 4.0)

	tests := []struct {
		name     string
		values   map[string]float64
		expected []string
	}{
		{
			name:     "values at baseline mean raise nothing",
			values:   map[string]float64{"income": 100.0, "age": 100.0},
			expected: nil,
		},
		{
			name:     "just under the threshold raises nothing",
			values:   map[string]float64{"income": 139.9, "age": 100.0},
			expected: nil,
		},
		{
			name:     "at the threshold raises a warning",
			values:   map[string]float64{"income": 140.0, "age": 100.0},
			expected: []string{"ood_warning:income:z=4.00 (threshold=4)"},
		},
		{
			name:     "negative deviation is symmetric",
			values:   map[string]float64{"income": 100.0, "age": 50.0},
			expected: []string{"ood_warning:age:z=-5.00 (threshold=4)"},
		},
		{
			name:   "both features out of distribution",
			values: map[string]float64{"income": 200.0, "age": 0.0},
			expected: []string{
				"ood_warning:income:z=10.00 (threshold=4)",
				"ood_warning:age:z=-10.00 (threshold=4)",
			},
		},
		{
			name:     "missing feature is skipped",
			values:   map[string]float64{"age": 100.0},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, g.Check(tt.values))
		})
	}
}

func TestGuardrail_Stateless(t *testing.T) {
	baseline := testBaseline(t)
	g := NewGuardrail(baseline, []string{"income"}, 4.0)

	// Repeated extreme observations never accumulate into different output.
	for i := 0; i < 10; i++ {
		warnings := g.Check(map[string]float64{"income": 500.0})
		require.Len(t, warnings, 1)
	}
	assert.Empty(t, g.Check(map[string]float64{"income": 100.0}))
}
