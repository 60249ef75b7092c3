package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decisionlab/risk-engine/internal/drift"
	"github.com/decisionlab/risk-engine/internal/explain"
	"github.com/decisionlab/risk-engine/internal/features"
	"github.com/decisionlab/risk-engine/internal/model"
	"github.com/decisionlab/risk-engine/internal/ood"
	"github.com/decisionlab/risk-engine/internal/policy"
)

func cleanVector() features.FeatureVector {
	return features.FeatureVector{
		Age:                      34,
		Income:                   78000,
		AccountAgeDays:           400,
		NumTxn30d:                22,
		AvgTxnAmount30d:          55.25,
		NumChargebacks180d:       0,
		DeviceChangeCount30d:     1,
		GeoDistanceFromLastTxnKm: 10.0,
		IsInternational:          false,
		MerchantRiskScore:        0.15,
	}
}

func riskyVector() features.FeatureVector {
	fv := cleanVector()
	fv.AccountAgeDays = 5
	fv.NumChargebacks180d = 2
	fv.MerchantRiskScore = 0.95
	fv.IsInternational = true
	fv.GeoDistanceFromLastTxnKm = 3000
	return fv
}

// testBaseline centers on the clean vector with stds wide enough that
// neither test vector trips the OOD guardrail.
func testBaseline(t *testing.T) features.BaselineStats {
	t.Helper()
	means := map[string]float64{}
	clean := cleanVector().ValueMap()
	for name, v := range clean {
		means[name] = v
	}
	stds := map[string]float64{
		"age":                           20,
		"income":                        30000,
		"account_age_days":              300,
		"num_txn_30d":                   20,
		"avg_txn_amount_30d":            100,
		"num_chargebacks_180d":          1,
		"device_change_count_30d":       2,
		"geo_distance_from_last_txn_km": 1000,
		"is_international":              0.5,
		"merchant_risk_score":           0.3,
	}
	b, err := features.NewBaselineStats(means, stds)
	require.NoError(t, err)
	return b
}

func buildService(t *testing.T, p model.Predictor) *Service {
	t.Helper()
	baseline := testBaseline(t)
	names := features.Names()

	pol, err := policy.New(policy.Thresholds{StepUp: 0.35, Review: 0.55, Decline: 0.80}, 180.0, 0.15, 0.5)
	require.NoError(t, err)

	engine, err := explain.NewEngine(p, names, [][]float64{cleanVector().Values()}, explain.Options{TopK: 6})
	require.NoError(t, err)

	return New(Config{
		Model:        p,
		FeatureList:  names,
		Policy:       pol,
		Drift:        drift.NewDetector(drift.NewMemoryStore(), baseline, names, 3.5, 50, time.Hour),
		Guardrail:    ood.NewGuardrail(baseline, names, 4.0),
		Explainer:    engine,
		GlobalSample: [][]float64{cleanVector().Values()},
		ModelVersion: "v3",
		BatchMaxRows: 3,
	})
}

func constantModel(p float64) model.Predictor {
	return model.PredictorFunc(func([]float64) float64 { return p })
}

func TestScore_LowRiskApproves(t *testing.T) {
	svc := buildService(t, constantModel(0.12))

	rec := svc.Score(context.Background(), "caller-a", cleanVector(), true)

	assert.Equal(t, 0.12, rec.Probability)
	assert.Equal(t, policy.Approve, rec.Decision)
	assert.Equal(t, policy.LabelLowRisk, rec.Label)
	assert.InDelta(t, 0.12*(180.0+55.25*0.15), rec.ExpectedLoss, 1e-9)
	assert.Empty(t, rec.Warnings)
	assert.Empty(t, rec.ReasonCodes)
	assert.Equal(t, "v3", rec.ModelVersion)
}

func TestScore_HighRiskDeclinesWithRuleCodes(t *testing.T) {
	svc := buildService(t, constantModel(0.91))

	rec := svc.Score(context.Background(), "caller-a", riskyVector(), true)

	assert.Equal(t, policy.Decline, rec.Decision)
	assert.Equal(t, policy.LabelHighRisk, rec.Label)
	assert.Contains(t, rec.ReasonCodes, "rule:new_account")
	assert.Contains(t, rec.ReasonCodes, "rule:prior_chargeback")
	assert.Contains(t, rec.ReasonCodes, "rule:high_merchant_risk")
	assert.Contains(t, rec.ReasonCodes, "rule:intl_far_distance")
}

func TestScore_DriftWarningAfterSustainedShift(t *testing.T) {
	svc := buildService(t, constantModel(0.12))
	ctx := context.Background()

	shifted := cleanVector()
	shifted.Income = 190000 // 3.73 baseline stds out: drifts, not OOD

	var rec DecisionRecord
	for i := 0; i < 60; i++ {
		rec = svc.Score(ctx, "caller-a", shifted, true)
	}

	require.NotEmpty(t, rec.Warnings)
	assert.True(t, strings.HasPrefix(rec.Warnings[0], "drift_warning:income:"), rec.Warnings[0])

	// A different caller's stream is unaffected.
	other := svc.Score(ctx, "caller-b", cleanVector(), true)
	assert.Empty(t, other.Warnings)
}

func TestScore_ReadOnlyCallerDoesNotFeedDrift(t *testing.T) {
	svc := buildService(t, constantModel(0.12))
	ctx := context.Background()

	shifted := cleanVector()
	shifted.Income = 190000
	for i := 0; i < 60; i++ {
		svc.Score(ctx, "caller-a", shifted, false)
	}

	s := svc.DriftSummary(ctx, "caller-a")
	require.Equal(t, drift.StatusOK, s.Status)
	for _, f := range s.Features {
		assert.Equal(t, int64(0), f.N)
	}
}

func TestScore_OODWarning(t *testing.T) {
	svc := buildService(t, constantModel(0.12))

	fv := cleanVector()
	fv.GeoDistanceFromLastTxnKm = 10000 // ~10 baseline stds out

	rec := svc.Score(context.Background(), "caller-a", fv, true)
	require.Len(t, rec.Warnings, 1)
	assert.True(t, strings.HasPrefix(rec.Warnings[0], "ood_warning:geo_distance_from_last_txn_km:"), rec.Warnings[0])
}

func TestScoreBatch(t *testing.T) {
	svc := buildService(t, constantModel(0.12))
	ctx := context.Background()

	recs, err := svc.ScoreBatch(ctx, "caller-a", []features.FeatureVector{cleanVector(), riskyVector()}, true)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, policy.Approve, recs[0].Decision)

	_, err = svc.ScoreBatch(ctx, "caller-a", make([]features.FeatureVector, 4), true)
	assert.Error(t, err)
}

func TestExplain_ConstantModelFallsBack(t *testing.T) {
	// A constant model gives the kernel regression nothing to fit; the
	// explanation must still come back, tagged with the fallback method.
	svc := buildService(t, constantModel(0.91))

	out := svc.Explain(context.Background(), "caller-a", riskyVector(), true)

	assert.Equal(t, explain.MethodPermutation, out.Explanation.Method)
	assert.Equal(t, policy.Decline, out.Decision)
	assert.NotEmpty(t, out.ReasonCodes)
	assert.LessOrEqual(t, len(out.ReasonCodes), 8)
}

func TestExplain_LinearModelUsesKernel(t *testing.T) {
	// Risk rises with merchant risk score (feature index 9).
	linear := model.PredictorFunc(func(values []float64) float64 {
		return values[9] * 0.5
	})
	svc := buildService(t, linear)

	out := svc.Explain(context.Background(), "caller-a", riskyVector(), true)

	assert.Equal(t, explain.MethodKernel, out.Explanation.Method)
	require.NotEmpty(t, out.Explanation.TopFeatures)
	top := out.Explanation.TopFeatures[0]
	assert.Equal(t, "merchant_risk_score", top.Feature)
	assert.Equal(t, explain.DirectionIncreases, top.Direction)

	require.NotEmpty(t, out.ReasonCodes)
	assert.Equal(t, "shap:merchant_risk_score", out.ReasonCodes[0])
}

func TestGlobalExplain(t *testing.T) {
	svc := buildService(t, constantModel(0.5))

	out, err := svc.GlobalExplain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", out.ModelVersion) // engine built without a version in this fixture
	assert.Len(t, out.Items, len(features.Names()))
}
