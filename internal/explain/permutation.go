package explain

import (
	"math"
	"math/rand"
)

// permutationRowCap bounds the evaluation sample for the fallback so its
// cost stays proportional to features x rows, independent of request load.
const permutationRowCap = 100

// permutationAttributions is the deterministic fallback estimator. For each
// feature it substitutes that column's values from the fixed evaluation
// sample into x, re-runs the model, and reports the mean change in predicted
// probability. The sign carries direction (positive when x's own value
// raises the prediction relative to the sample), the magnitude is the mean
// absolute change. It cannot fail: every step is bounded arithmetic.
func (e *Engine) permutationAttributions(x []float64) []float64 {
	rows := subsample(e.background, permutationRowCap)
	fx := e.predict(x)

	out := make([]float64, len(x))
	perturbed := append([]float64(nil), x...)
	for j := range x {
		meanAbs := 0.0
		meanSigned := 0.0
		for _, row := range rows {
			perturbed[j] = row[j]
			d := fx - e.predict(perturbed)
			meanAbs += math.Abs(d)
			meanSigned += d
		}
		perturbed[j] = x[j]

		n := float64(len(rows))
		magnitude := meanAbs / n
		if meanSigned < 0 {
			magnitude = -magnitude
		}
		out[j] = magnitude
	}
	return out
}

// globalPermutation is the aggregate fallback: permute one column at a time
// across the whole sample (fixed seed) and measure the mean absolute change
// in predicted probability over all rows.
func (e *Engine) globalPermutation(rows [][]float64) GlobalExplanation {
	n := len(rows)
	base := make([]float64, n)
	for i, row := range rows {
		base[i] = e.predict(row)
	}

	rng := rand.New(rand.NewSource(subsampleSeed))
	meanAbs := make([]float64, len(e.featureNames))
	perturbed := make([]float64, len(e.featureNames))

	for j := range e.featureNames {
		perm := rng.Perm(n)
		sum := 0.0
		for i, row := range rows {
			copy(perturbed, row)
			perturbed[j] = rows[perm[i]][j]
			sum += math.Abs(e.predict(perturbed) - base[i])
		}
		meanAbs[j] = sum / float64(n)
	}
	return e.globalFromMeanAbs(meanAbs, MethodPermutation)
}
