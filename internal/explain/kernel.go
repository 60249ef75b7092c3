package explain

import (
	"errors"
	"math"
	"math/rand"
)

// Estimator failure signals. Any of these switches the engine to the
// permutation fallback; they are never surfaced to callers.
var (
	errBudgetTooSmall = errors.New("sample budget too small for feature count")
	errIllConditioned = errors.New("kernel regression is ill-conditioned")
	errNonFiniteValue = errors.New("kernel regression produced a non-finite value")
	errDidNotConverge = errors.New("kernel weighting did not converge")
)

// subsampleSeed fixes the deterministic subsample and coalition draw so that
// repeated explanations of the same inputs agree.
const subsampleSeed = 42

// kernelAttributions solves the kernel SHAP weighted regression for one row.
//
// Coalitions z ∈ {0,1}^M (excluding the empty and full sets) are evaluated as
// v(z) = E_background[f(x_z)], where x_z takes x's value for present features
// and the background row's value otherwise, and weighted by the Shapley
// kernel w(z) = (M-1) / (C(M,|z|) · |z| · (M-|z|)). The attributions are the
// weighted-least-squares solution constrained to sum to f(x) - baseline.
// The coalition count is capped by the engine's sample budget: the estimator
// has no external cancellation signal, so the cap is the latency guard.
func (e *Engine) kernelAttributions(x []float64) ([]float64, error) {
	m := len(e.featureNames)
	if m < 2 {
		return nil, errBudgetTooSmall
	}
	if e.budget < m+2 {
		return nil, errBudgetTooSmall
	}

	fx := e.predict(x)
	total := fx - e.baselineValue

	masks := e.coalitions(m)
	if len(masks) < m {
		return nil, errDidNotConverge
	}

	// Eliminate the last feature to absorb the sum constraint:
	// regress y(z) - z_M·total on columns (z_i - z_M), i < M.
	dim := m - 1
	a := make([][]float64, dim)
	for i := range a {
		a[i] = make([]float64, dim)
	}
	b := make([]float64, dim)

	t := make([]float64, dim)
	for _, mask := range masks {
		size := popcount(mask, m)
		w := kernelWeight(m, size)

		v := e.coalitionValue(x, mask)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errNonFiniteValue
		}

		last := bit(mask, m-1)
		y := v - e.baselineValue - last*total
		for i := 0; i < dim; i++ {
			t[i] = bit(mask, i) - last
		}
		for i := 0; i < dim; i++ {
			if t[i] == 0 {
				continue
			}
			wi := w * t[i]
			for j := 0; j < dim; j++ {
				a[i][j] += wi * t[j]
			}
			b[i] += wi * y
		}
	}

	phi, err := solve(a, b)
	if err != nil {
		return nil, err
	}

	out := make([]float64, m)
	sum := 0.0
	for i := 0; i < dim; i++ {
		if math.IsNaN(phi[i]) || math.IsInf(phi[i], 0) {
			return nil, errNonFiniteValue
		}
		out[i] = phi[i]
		sum += phi[i]
	}
	out[m-1] = total - sum
	return out, nil
}

// coalitions enumerates every non-trivial subset when the budget allows,
// otherwise draws a deterministic random sample of subsets. Either way the
// count is bounded by the engine's budget.
func (e *Engine) coalitions(m int) []uint64 {
	full := (uint64(1) << uint(m)) - 1
	totalSubsets := int(full) - 1 // excludes empty; full excluded below

	if totalSubsets <= e.budget {
		masks := make([]uint64, 0, totalSubsets-1)
		for mask := uint64(1); mask < full; mask++ {
			masks = append(masks, mask)
		}
		return masks
	}

	rng := rand.New(rand.NewSource(subsampleSeed))
	seen := make(map[uint64]struct{}, e.budget)
	masks := make([]uint64, 0, e.budget)
	for attempts := 0; len(masks) < e.budget && attempts < e.budget*4; attempts++ {
		mask := rng.Uint64() & full
		if mask == 0 || mask == full {
			continue
		}
		if _, dup := seen[mask]; dup {
			continue
		}
		seen[mask] = struct{}{}
		masks = append(masks, mask)
	}
	return masks
}

// coalitionValue is the expected model output with the coalition's features
// taken from x and the rest from each background row in turn.
func (e *Engine) coalitionValue(x []float64, mask uint64) float64 {
	z := make([]float64, len(x))
	sum := 0.0
	for _, row := range e.background {
		for i := range x {
			if mask&(1<<uint(i)) != 0 {
				z[i] = x[i]
			} else {
				z[i] = row[i]
			}
		}
		sum += e.predict(z)
	}
	return sum / float64(len(e.background))
}

func kernelWeight(m, size int) float64 {
	return float64(m-1) / (binom(m, size) * float64(size) * float64(m-size))
}

func binom(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	out := 1.0
	for i := 0; i < k; i++ {
		out = out * float64(n-i) / float64(i+1)
	}
	return out
}

func popcount(mask uint64, m int) int {
	n := 0
	for i := 0; i < m; i++ {
		if mask&(1<<uint(i)) != 0 {
			n++
		}
	}
	return n
}

func bit(mask uint64, i int) float64 {
	if mask&(1<<uint(i)) != 0 {
		return 1
	}
	return 0
}

// solve runs Gaussian elimination with partial pivoting on a copy of the
// normal equations. A vanishing pivot means the regression is
// ill-conditioned, which is an estimator failure, not a hard error.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	m := make([][]float64, n)
	for i := range m {
		m[i] = append(append([]float64(nil), a[i]...), b[i])
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-10 {
			return nil, errIllConditioned
		}
		m[col], m[pivot] = m[pivot], m[col]

		for r := col + 1; r < n; r++ {
			factor := m[r][col] / m[col][col]
			for c := col; c <= n; c++ {
				m[r][c] -= factor * m[col][c]
			}
		}
	}

	out := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := m[i][n]
		for j := i + 1; j < n; j++ {
			sum -= m[i][j] * out[j]
		}
		out[i] = sum / m[i][i]
	}
	return out, nil
}

// subsample keeps a deterministic subset of rows when the sample exceeds the
// cap, preserving reproducibility of global explanations.
func subsample(rows [][]float64, maxRows int) [][]float64 {
	if len(rows) <= maxRows {
		return rows
	}
	idx := rand.New(rand.NewSource(subsampleSeed)).Perm(len(rows))[:maxRows]
	out := make([][]float64, 0, maxRows)
	for _, i := range idx {
		out = append(out, rows[i])
	}
	return out
}
