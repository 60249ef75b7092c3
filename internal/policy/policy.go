// Package policy maps a risk probability to a graded action and an expected
// monetary loss. Everything here is a pure function of configuration.
package policy

import "fmt"

// Decision is the graded action for a scored transaction.
type Decision string

const (
	Approve Decision = "approve"
	StepUp  Decision = "step_up"
	Review  Decision = "review"
	Decline Decision = "decline"
)

// Risk labels relative to the model's operating threshold.
const (
	LabelHighRisk = "high_risk"
	LabelLowRisk  = "low_risk"
)

// Thresholds are the ordered cutpoints over [0,1]. The monotonicity
// invariant step_up <= review <= decline is a configuration matter, validated
// at load time, not at call time.
type Thresholds struct {
	StepUp  float64 `json:"step_up"`
	Review  float64 `json:"review"`
	Decline float64 `json:"decline"`
}

// Validate rejects non-monotonic or out-of-range cutpoints.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{"step_up": t.StepUp, "review": t.Review, "decline": t.Decline} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %s=%v outside [0,1]", name, v)
		}
	}
	if t.StepUp > t.Review || t.Review > t.Decline {
		return fmt.Errorf("thresholds must satisfy step_up <= review <= decline, got %v/%v/%v", t.StepUp, t.Review, t.Decline)
	}
	return nil
}

// Policy is the deterministic decision policy for one deployed model version.
type Policy struct {
	Thresholds     Thresholds
	LossPerEvent   float64
	LossMultiplier float64
	LabelThreshold float64
}

// New validates the cutpoints and returns the policy.
func New(t Thresholds, lossPerEvent, lossMultiplier, labelThreshold float64) (Policy, error) {
	if err := t.Validate(); err != nil {
		return Policy{}, err
	}
	return Policy{
		Thresholds:     t,
		LossPerEvent:   lossPerEvent,
		LossMultiplier: lossMultiplier,
		LabelThreshold: labelThreshold,
	}, nil
}

// Decide maps a probability to a decision via the priority cascade.
func (p Policy) Decide(prob float64) Decision {
	switch {
	case prob >= p.Thresholds.Decline:
		return Decline
	case prob >= p.Thresholds.Review:
		return Review
	case prob >= p.Thresholds.StepUp:
		return StepUp
	default:
		return Approve
	}
}

// ExpectedLoss estimates the monetary exposure of approving this
// transaction: probability times a fixed per-event loss plus an
// amount-proportional component. Both constants are policy configuration,
// not learned.
func (p Policy) ExpectedLoss(prob, amount float64) float64 {
	return prob * (p.LossPerEvent + amount*p.LossMultiplier)
}

// Label classifies the probability against the model's operating threshold.
func (p Policy) Label(prob float64) string {
	if prob >= p.LabelThreshold {
		return LabelHighRisk
	}
	return LabelLowRisk
}
