// Package reasons synthesizes the bounded, deduplicated reason-code list for
// a decision: model-derived codes first (instance-specific), then rule-based
// heuristics evaluated against the raw payload.
package reasons

import (
	"github.com/decisionlab/risk-engine/internal/explain"
	"github.com/decisionlab/risk-engine/internal/features"
)

const (
	maxShapCodes = 4
	maxRuleCodes = 6
	maxCodes     = 8
)

// Rule cutoffs encode domain policy, mirrored from the fraud team's
// playbook rather than deployment configuration.
const (
	newAccountMaxAgeDays  = 30
	highMerchantRiskScore = 0.75
	farDistanceKm         = 1000
	frequentDeviceChanges = 3
)

// RuleCodes evaluates the fixed rule predicates against the payload.
func RuleCodes(fv features.FeatureVector) []string {
	var codes []string
	if fv.AccountAgeDays < newAccountMaxAgeDays {
		codes = append(codes, "rule:new_account")
	}
	if fv.NumChargebacks180d > 0 {
		codes = append(codes, "rule:prior_chargeback")
	}
	if fv.MerchantRiskScore > highMerchantRiskScore {
		codes = append(codes, "rule:high_merchant_risk")
	}
	if fv.IsInternational && fv.GeoDistanceFromLastTxnKm > farDistanceKm {
		codes = append(codes, "rule:intl_far_distance")
	}
	if fv.DeviceChangeCount30d >= frequentDeviceChanges {
		codes = append(codes, "rule:frequent_device_changes")
	}
	if len(codes) > maxRuleCodes {
		codes = codes[:maxRuleCodes]
	}
	return codes
}

// Merge renders the top attributions as shap:<feature> codes, then appends
// rule codes not already present. Model-derived codes come first because
// they are specific to this prediction; the list is capped at 8 and never
// contains duplicates.
func Merge(topAttributions []explain.FeatureAttribution, fv features.FeatureVector) []string {
	codes := make([]string, 0, maxCodes)
	seen := make(map[string]struct{}, maxCodes)

	add := func(code string) {
		if len(codes) >= maxCodes {
			return
		}
		if _, dup := seen[code]; dup {
			return
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	top := topAttributions
	if len(top) > maxShapCodes {
		top = top[:maxShapCodes]
	}
	for _, attr := range top {
		if attr.Feature != "" {
			add("shap:" + attr.Feature)
		}
	}
	for _, code := range RuleCodes(fv) {
		add(code)
	}
	return codes
}
