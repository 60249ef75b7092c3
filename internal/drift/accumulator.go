// Package drift maintains per-caller streaming feature statistics and
// compares them against the training baseline to detect distribution shift.
package drift

import "math"

// Accumulator is the Welford online estimator state for one
// (caller, feature) pair: observation count, running mean, and running sum of
// squared deviations. Values only grow; expiry is the store's concern.
type Accumulator struct {
	N    int64
	Mean float64
	M2   float64
}

// Add folds one observation into the accumulator using the numerically
// stable incremental update. The naive sum/sum-of-squares form cancels
// catastrophically under long-running accumulation, so it is not used.
func (a Accumulator) Add(x float64) Accumulator {
	n := a.N + 1
	delta := x - a.Mean
	mean := a.Mean + delta/float64(n)
	delta2 := x - mean
	return Accumulator{
		N:    n,
		Mean: mean,
		M2:   a.M2 + delta*delta2,
	}
}

// Variance returns the sample variance, 0 for fewer than two observations.
func (a Accumulator) Variance() float64 {
	if a.N < 2 {
		return 0
	}
	return a.M2 / float64(a.N-1)
}

// Std returns the sample standard deviation.
func (a Accumulator) Std() float64 {
	v := a.Variance()
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
