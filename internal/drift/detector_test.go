package drift

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decisionlab/risk-engine/internal/features"
)

func testBaseline(t *testing.T) features.BaselineStats {
	t.Helper()
	means := map[string]float64{}
	stds := map[string]float64{}
	for _, name := range features.Names() {
		means[name] = 10.0
		stds[name] = 2.0
	}
	b, err := features.NewBaselineStats(means, stds)
	require.NoError(t, err)
	return b
}

// downStore reports unavailable; no observation ever reaches it.
type downStore struct{}

func (downStore) Get(context.Context, string, string) (Accumulator, error) {
	return Accumulator{}, nil
}
func (downStore) Put(context.Context, string, string, Accumulator, time.Duration) error {
	return nil
}
func (downStore) Available() bool { return false }

func TestDetector_UpdateAndSummary(t *testing.T) {
	baseline := testBaseline(t)
	d := NewDetector(NewMemoryStore(), baseline, []string{"income", "age"}, 3.5, 50, time.Hour)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d.Update(ctx, "caller-a", map[string]float64{"income": 10.0, "age": 12.0})
	}

	s := d.Summary(ctx, "caller-a")
	assert.Equal(t, "caller-a", s.Caller)
	assert.Equal(t, StatusOK, s.Status)
	assert.Equal(t, 3.5, s.Threshold)
	require.Len(t, s.Features, 2)

	income := s.Features[0]
	assert.Equal(t, "income", income.Feature)
	assert.Equal(t, int64(5), income.N)
	assert.InDelta(t, 10.0, income.Mean, 1e-9)
	assert.InDelta(t, 0.0, income.ZDelta, 1e-9)
	assert.False(t, income.Drifted)

	age := s.Features[1]
	assert.InDelta(t, 12.0, age.Mean, 1e-9)
	assert.InDelta(t, 1.0, age.ZDelta, 1e-9) // (12-10)/2
}

func TestDetector_SampleSizeGatesDrift(t *testing.T) {
	baseline := testBaseline(t)
	d := NewDetector(NewMemoryStore(), baseline, []string{"income"}, 3.5, 50, time.Hour)
	ctx := context.Background()

	// Far from baseline (z = 45) but under the sample-size gate.
	for i := 0; i < 49; i++ {
		d.Update(ctx, "caller-a", map[string]float64{"income": 100.0})
	}
	s := d.Summary(ctx, "caller-a")
	require.Len(t, s.Features, 1)
	assert.Greater(t, s.Features[0].ZDelta, 3.5)
	assert.False(t, s.Features[0].Drifted)
	assert.Empty(t, d.Warnings(ctx, "caller-a"))

	// One more observation crosses the gate.
	d.Update(ctx, "caller-a", map[string]float64{"income": 100.0})
	s = d.Summary(ctx, "caller-a")
	assert.True(t, s.Features[0].Drifted)

	warnings := d.Warnings(ctx, "caller-a")
	require.Len(t, warnings, 1)
	assert.Equal(t, "drift_warning:income:z_delta=45.00 (threshold=3.5)", warnings[0])
}

func TestDetector_CallersAreIsolated(t *testing.T) {
	baseline := testBaseline(t)
	d := NewDetector(NewMemoryStore(), baseline, []string{"income"}, 3.5, 50, time.Hour)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		d.Update(ctx, "caller-a", map[string]float64{"income": 100.0})
	}

	a := d.Summary(ctx, "caller-a")
	b := d.Summary(ctx, "caller-b")
	assert.True(t, a.Features[0].Drifted)
	assert.Equal(t, int64(0), b.Features[0].N)
	assert.False(t, b.Features[0].Drifted)
}

func TestDetector_StoreUnavailableFailsOpen(t *testing.T) {
	baseline := testBaseline(t)
	d := NewDetector(downStore{}, baseline, []string{"income"}, 3.5, 50, time.Hour)
	ctx := context.Background()

	// Update must not panic or error.
	d.Update(ctx, "caller-a", map[string]float64{"income": 100.0})

	s := d.Summary(ctx, "caller-a")
	assert.Equal(t, StatusStoreUnavailable, s.Status)
	assert.Empty(t, s.Features)
	assert.Empty(t, d.Warnings(ctx, "caller-a"))
}

func TestMemoryStore_EntriesExpire(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "caller-a", "income", Accumulator{N: 3, Mean: 5}, -time.Second))

	acc, err := s.Get(ctx, "caller-a", "income")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acc.N)
}
