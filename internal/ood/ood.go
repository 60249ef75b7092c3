// Package ood implements the stateless out-of-distribution guardrail: a
// z-score check of a single request's features against the training baseline,
// independent of any caller's history.
package ood

import (
	"fmt"
	"math"

	"github.com/decisionlab/risk-engine/internal/features"
)

// Guardrail checks one feature vector per call and holds no state between
// requests.
type Guardrail struct {
	baseline   features.BaselineStats
	features   []string
	zThreshold float64
}

func NewGuardrail(baseline features.BaselineStats, featureList []string, zThreshold float64) *Guardrail {
	return &Guardrail{baseline: baseline, features: featureList, zThreshold: zThreshold}
}

// Check returns a warning string for every feature whose value lies at least
// zThreshold baseline standard deviations from the baseline mean. Features
// missing from either side are skipped.
func (g *Guardrail) Check(values map[string]float64) []string {
	var warnings []string
	for _, f := range g.features {
		v, ok := values[f]
		if !ok || !g.baseline.Has(f) {
			continue
		}
		z := (v - g.baseline.Mean(f)) / g.baseline.SafeStd(f)
		if math.IsNaN(z) || math.IsInf(z, 0) {
			continue
		}
		if math.Abs(z) >= g.zThreshold {
			warnings = append(warnings, fmt.Sprintf("ood_warning:%s:z=%.2f (threshold=%g)", f, z, g.zThreshold))
		}
	}
	return warnings
}
