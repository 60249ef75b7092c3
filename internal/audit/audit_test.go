package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decisionlab/risk-engine/internal/policy"
	"github.com/decisionlab/risk-engine/internal/service"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func testRecord(decision policy.Decision, prob float64) service.DecisionRecord {
	return service.DecisionRecord{
		Probability:  prob,
		Label:        policy.LabelLowRisk,
		Decision:     decision,
		ExpectedLoss: 22.59,
		Warnings:     []string{},
		ReasonCodes:  []string{"rule:new_account"},
		ModelVersion: "v3",
	}
}

func TestRecordAndRecent(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	l.Record(ctx, "1234", "score", testRecord(policy.Approve, 0.12))
	l.Record(ctx, "5678", "explain", testRecord(policy.Decline, 0.91))

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "5678", entries[0].Caller)
	assert.Equal(t, "explain", entries[0].Endpoint)
	assert.Equal(t, "decline", entries[0].Decision)
	assert.Equal(t, 0.91, entries[0].Probability)
	assert.Equal(t, []string{"rule:new_account"}, entries[0].ReasonCodes)

	assert.Equal(t, "1234", entries[1].Caller)
	assert.Equal(t, "approve", entries[1].Decision)
}

func TestRecent_LimitClamping(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		l.Record(ctx, "1234", "score", testRecord(policy.Approve, 0.12))
	}

	entries, err := l.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	// Out-of-range limits fall back to the default of 50.
	entries, err = l.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 50)

	entries, err = l.Recent(ctx, 100000)
	require.NoError(t, err)
	assert.Len(t, entries, 50)
}

func TestRecent_EmptyLog(t *testing.T) {
	l := openTestLog(t)

	entries, err := l.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
