// Package model treats the trained risk model as an opaque probability
// function and provides the artifact-backed implementation the service ships
// with: a standardized linear model with sigmoid calibration, matching what
// the training pipeline exports.
package model

import (
	"fmt"
	"math"
)

// Predictor is the opaque model contract: ordered feature values in,
// probability in [0,1] out. Implementations must be safe for concurrent use.
type Predictor interface {
	Predict(values []float64) float64
}

// PredictorFunc adapts a plain function to the Predictor interface.
type PredictorFunc func(values []float64) float64

func (f PredictorFunc) Predict(values []float64) float64 { return f(values) }

// LinearModel scores a standardized linear combination of features and maps
// it through a calibrated sigmoid. The calibration pair (A, B) comes from the
// training pipeline's sigmoid calibrator; (1, 0) is the identity calibration.
type LinearModel struct {
	ScalerMean  []float64
	ScalerScale []float64
	Coef        []float64
	Intercept   float64
	CalibA      float64
	CalibB      float64
}

// NewLinearModel validates dimensions against the declared feature count.
func NewLinearModel(scalerMean, scalerScale, coef []float64, intercept, calibA, calibB float64, featureCount int) (*LinearModel, error) {
	if len(scalerMean) != featureCount || len(scalerScale) != featureCount || len(coef) != featureCount {
		return nil, fmt.Errorf("model dimensions (%d/%d/%d) do not match feature count %d",
			len(scalerMean), len(scalerScale), len(coef), featureCount)
	}
	for i, s := range scalerScale {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("scaler scale for feature index %d is invalid: %v", i, s)
		}
	}
	if calibA == 0 {
		calibA = 1
	}
	return &LinearModel{
		ScalerMean:  scalerMean,
		ScalerScale: scalerScale,
		Coef:        coef,
		Intercept:   intercept,
		CalibA:      calibA,
		CalibB:      calibB,
	}, nil
}

// Predict returns the calibrated risk probability for one ordered row.
func (m *LinearModel) Predict(values []float64) float64 {
	z := m.Intercept
	for i, v := range values {
		z += m.Coef[i] * (v - m.ScalerMean[i]) / m.ScalerScale[i]
	}
	p := sigmoid(m.CalibA*z + m.CalibB)
	return clamp01(p)
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
