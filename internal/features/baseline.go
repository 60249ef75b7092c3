package features

import "fmt"

// stdFloor guards every division by a baseline standard deviation.
const stdFloor = 1e-12

// BaselineStats holds per-feature (mean, std) computed once at training time.
// It is immutable for the service's lifetime.
type BaselineStats struct {
	means map[string]float64
	stds  map[string]float64
}

// NewBaselineStats validates that every declared feature has a baseline entry.
func NewBaselineStats(means, stds map[string]float64) (BaselineStats, error) {
	for _, name := range Names() {
		if _, ok := means[name]; !ok {
			return BaselineStats{}, fmt.Errorf("baseline stats missing mean for feature %s", name)
		}
		if _, ok := stds[name]; !ok {
			return BaselineStats{}, fmt.Errorf("baseline stats missing std for feature %s", name)
		}
	}
	m := make(map[string]float64, len(means))
	s := make(map[string]float64, len(stds))
	for k, v := range means {
		m[k] = v
	}
	for k, v := range stds {
		s[k] = v
	}
	return BaselineStats{means: m, stds: s}, nil
}

// Has reports whether the feature is covered by the baseline.
func (b BaselineStats) Has(name string) bool {
	_, ok := b.means[name]
	return ok
}

// Mean returns the training mean for a feature.
func (b BaselineStats) Mean(name string) float64 {
	return b.means[name]
}

// Std returns the raw training standard deviation for a feature.
func (b BaselineStats) Std(name string) float64 {
	return b.stds[name]
}

// SafeStd returns the training standard deviation floored to a small epsilon
// so z-score computations never divide by zero.
func (b BaselineStats) SafeStd(name string) float64 {
	s := b.stds[name]
	if s < stdFloor {
		return stdFloor
	}
	return s
}
