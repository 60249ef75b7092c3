// Package service orchestrates one scored request end to end: validation
// has already produced a FeatureVector; this layer runs the guardrails,
// drift update, model, decision policy, and on demand the explainer and
// reason-code synthesis.
package service

import (
	"context"
	"fmt"

	"github.com/decisionlab/risk-engine/internal/drift"
	"github.com/decisionlab/risk-engine/internal/explain"
	"github.com/decisionlab/risk-engine/internal/features"
	"github.com/decisionlab/risk-engine/internal/model"
	"github.com/decisionlab/risk-engine/internal/ood"
	"github.com/decisionlab/risk-engine/internal/policy"
	"github.com/decisionlab/risk-engine/internal/reasons"
)

// DecisionRecord is the per-request decision output.
type DecisionRecord struct {
	Probability  float64         `json:"risk_probability"`
	Label        string          `json:"risk_label"`
	Decision     policy.Decision `json:"decision"`
	ExpectedLoss float64         `json:"expected_loss_usd"`
	Warnings     []string        `json:"warnings"`
	ReasonCodes  []string        `json:"reason_codes"`
	ModelVersion string          `json:"model_version"`
}

// ExplainedDecision pairs a decision with its local explanation.
type ExplainedDecision struct {
	DecisionRecord
	Explanation explain.LocalExplanation `json:"explanation"`
}

// Service wires the risk decision core. All fields are read-only after
// construction; per-request state lives on the stack, so concurrent requests
// share nothing but the drift store.
type Service struct {
	model       model.Predictor
	featureList []string
	policy      policy.Policy
	drift       *drift.Detector
	guard       *ood.Guardrail
	explainer   *explain.Engine
	global      [][]float64
	version     string
	batchMax    int
}

// Config collects the collaborators the service orchestrates.
type Config struct {
	Model        model.Predictor
	FeatureList  []string
	Policy       policy.Policy
	Drift        *drift.Detector
	Guardrail    *ood.Guardrail
	Explainer    *explain.Engine
	GlobalSample [][]float64
	ModelVersion string
	BatchMaxRows int
}

func New(cfg Config) *Service {
	batchMax := cfg.BatchMaxRows
	if batchMax <= 0 {
		batchMax = 100
	}
	return &Service{
		model:       cfg.Model,
		featureList: cfg.FeatureList,
		policy:      cfg.Policy,
		drift:       cfg.Drift,
		guard:       cfg.Guardrail,
		explainer:   cfg.Explainer,
		global:      cfg.GlobalSample,
		version:     cfg.ModelVersion,
		batchMax:    batchMax,
	}
}

// ModelVersion returns the deployed model version.
func (s *Service) ModelVersion() string { return s.version }

// BatchMaxRows is the batch scoring size cap.
func (s *Service) BatchMaxRows() int { return s.batchMax }

// Score runs one transaction through the decision flow. updateDrift lets
// read-only callers score without mutating shared monitoring state.
func (s *Service) Score(ctx context.Context, caller string, fv features.FeatureVector, updateDrift bool) DecisionRecord {
	values := fv.ValueMap()
	if updateDrift {
		s.drift.Update(ctx, caller, values)
	}

	warnings := append(s.drift.Warnings(ctx, caller), s.guard.Check(values)...)
	if warnings == nil {
		warnings = []string{}
	}

	prob := s.model.Predict(fv.Values())
	rec := DecisionRecord{
		Probability:  prob,
		Label:        s.policy.Label(prob),
		Decision:     s.policy.Decide(prob),
		ExpectedLoss: s.policy.ExpectedLoss(prob, fv.AvgTxnAmount30d),
		Warnings:     warnings,
		ReasonCodes:  reasons.RuleCodes(fv),
		ModelVersion: s.version,
	}
	if rec.ReasonCodes == nil {
		rec.ReasonCodes = []string{}
	}
	return rec
}

// ScoreBatch scores up to BatchMaxRows transactions for one caller.
func (s *Service) ScoreBatch(ctx context.Context, caller string, fvs []features.FeatureVector, updateDrift bool) ([]DecisionRecord, error) {
	if len(fvs) > s.batchMax {
		return nil, fmt.Errorf("batch too large: %d items, max %d", len(fvs), s.batchMax)
	}
	out := make([]DecisionRecord, len(fvs))
	for i, fv := range fvs {
		out[i] = s.Score(ctx, caller, fv, updateDrift)
	}
	return out, nil
}

// Explain scores the transaction and attributes the prediction to features,
// replacing the decision's rule-only reason codes with the merged
// attribution-first list.
func (s *Service) Explain(ctx context.Context, caller string, fv features.FeatureVector, updateDrift bool) ExplainedDecision {
	rec := s.Score(ctx, caller, fv, updateDrift)
	local := s.explainer.ExplainLocal(fv.Values())
	rec.ReasonCodes = reasons.Merge(local.TopFeatures, fv)
	return ExplainedDecision{DecisionRecord: rec, Explanation: local}
}

// GlobalExplain reports aggregate feature importance for the model version.
func (s *Service) GlobalExplain(ctx context.Context) (explain.GlobalExplanation, error) {
	return s.explainer.ExplainGlobal(ctx, s.global)
}

// DriftSummary reports the caller's live feature statistics versus training.
func (s *Service) DriftSummary(ctx context.Context, caller string) drift.Summary {
	return s.drift.Summary(ctx, caller)
}

// DriftWarnings renders the caller's drifted features as warning strings.
func (s *Service) DriftWarnings(ctx context.Context, caller string) []string {
	return s.drift.Warnings(ctx, caller)
}
