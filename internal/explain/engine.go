// Package explain attributes a prediction to individual features. The
// primary estimator is a kernel-weighted linear approximation over perturbed
// feature subsets (kernel SHAP); when it fails for any reason the engine
// falls back to deterministic permutation importance and says so in the
// result's method tag.
package explain

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/decisionlab/risk-engine/internal/model"
)

// Method identifies which estimator produced an explanation so callers can
// judge confidence.
type Method string

const (
	MethodKernel      Method = "shap_kernel"
	MethodPermutation Method = "fallback_permutation"
)

// Attribution directions.
const (
	DirectionIncreases = "increases_risk"
	DirectionDecreases = "decreases_risk"
)

// FeatureAttribution is one feature's signed contribution to a prediction.
type FeatureAttribution struct {
	Feature             string  `json:"feature"`
	Value               float64 `json:"value"`
	Direction           string  `json:"direction"`
	ContributionPercent float64 `json:"contribution_percent"`
}

// LocalExplanation explains a single prediction.
type LocalExplanation struct {
	Method               Method               `json:"method"`
	BaselineProbability  float64              `json:"baseline_probability"`
	PredictedProbability float64              `json:"predicted_probability"`
	TopFeatures          []FeatureAttribution `json:"top_features"`
}

// GlobalImportance is one feature's aggregate importance over a sample.
type GlobalImportance struct {
	Feature           string  `json:"feature"`
	MeanAbsValue      float64 `json:"mean_abs_value"`
	ImportancePercent float64 `json:"importance_percent"`
}

// GlobalExplanation is the aggregate importance report for a model version.
type GlobalExplanation struct {
	Method       Method             `json:"method"`
	ModelVersion string             `json:"model_version"`
	Items        []GlobalImportance `json:"items"`
}

// Cache stores computed global explanations; the global result is
// deterministic given the model and sample, so it is content-addressed by
// model version and sample fingerprint. Optional — a nil cache disables it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

const (
	globalCacheTTL = 24 * time.Hour
	epsilon        = 1e-12
)

// Options configures the engine. Zero values take defaults.
type Options struct {
	TopK          int
	SampleBudget  int
	MaxGlobalRows int
	ModelVersion  string
	Cache         Cache
}

// Engine produces local and global attributions for one model version.
// Safe for concurrent use: all state is read-only after construction.
type Engine struct {
	predict       func([]float64) float64
	featureNames  []string
	background    [][]float64
	baselineValue float64
	topK          int
	budget        int
	maxGlobalRows int
	version       string
	cache         Cache

	// primary estimator, replaceable in tests to force the fallback path
	kernel func(x []float64) ([]float64, error)
}

// NewEngine builds an attribution engine over a fixed background sample.
// The background is the reference distribution the baseline probability and
// every perturbed evaluation use; it must not be empty.
func NewEngine(p model.Predictor, featureNames []string, background [][]float64, opts Options) (*Engine, error) {
	if len(background) == 0 {
		return nil, fmt.Errorf("explain: background sample is empty")
	}
	for i, row := range background {
		if len(row) != len(featureNames) {
			return nil, fmt.Errorf("explain: background row %d has %d values, want %d", i, len(row), len(featureNames))
		}
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 6
	}
	budget := opts.SampleBudget
	if budget <= 0 {
		budget = 2048
	}
	maxRows := opts.MaxGlobalRows
	if maxRows <= 0 {
		maxRows = 500
	}

	e := &Engine{
		predict:       p.Predict,
		featureNames:  featureNames,
		background:    background,
		topK:          topK,
		budget:        budget,
		maxGlobalRows: maxRows,
		version:       opts.ModelVersion,
		cache:         opts.Cache,
	}
	e.kernel = e.kernelAttributions

	// Baseline: the model's expected output over the background sample.
	sum := 0.0
	for _, row := range background {
		sum += e.predict(row)
	}
	e.baselineValue = clamp01(sum / float64(len(background)))
	return e, nil
}

// BaselineProbability is the model's expected output over the background.
func (e *Engine) BaselineProbability() float64 { return e.baselineValue }

// ExplainLocal attributes one prediction to its features. It always returns
// a usable explanation: primary estimator errors switch to the permutation
// fallback rather than propagating.
func (e *Engine) ExplainLocal(x []float64) LocalExplanation {
	values, method := e.attributions(x)
	ranked := e.rank(values)

	top := ranked
	if len(top) > e.topK {
		top = top[:e.topK]
	}
	return LocalExplanation{
		Method:               method,
		BaselineProbability:  e.baselineValue,
		PredictedProbability: e.predict(x),
		TopFeatures:          top,
	}
}

// attributions runs the primary estimator and falls back on a well-defined
// failure signal. Only estimator errors trigger the fallback; there is
// nothing else here that can fail.
func (e *Engine) attributions(x []float64) ([]float64, Method) {
	values, err := e.kernel(x)
	if err == nil {
		return values, MethodKernel
	}
	slog.Warn("kernel attribution failed, using permutation fallback", "error", err)
	return e.permutationAttributions(x), MethodPermutation
}

// rank converts raw attribution values into the response form: direction
// from the sign, contribution percent normalized over the sum of absolute
// values, sorted by |value| descending.
func (e *Engine) rank(values []float64) []FeatureAttribution {
	absSum := epsilon
	for _, v := range values {
		absSum += math.Abs(v)
	}

	out := make([]FeatureAttribution, len(values))
	for i, v := range values {
		direction := DirectionIncreases
		if v < 0 {
			direction = DirectionDecreases
		}
		out[i] = FeatureAttribution{
			Feature:             e.featureNames[i],
			Value:               v,
			Direction:           direction,
			ContributionPercent: math.Abs(v) / absSum * 100,
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Value) > math.Abs(out[j].Value)
	})
	return out
}

// ExplainGlobal computes mean |attribution| per feature over the aggregate
// sample, consulting the cache first. The sample is deterministically
// subsampled when it exceeds the row cap, so the result is reproducible and
// cacheable by content.
func (e *Engine) ExplainGlobal(ctx context.Context, sample [][]float64) (GlobalExplanation, error) {
	if len(sample) == 0 {
		return GlobalExplanation{}, fmt.Errorf("explain: global sample is empty")
	}
	rows := subsample(sample, e.maxGlobalRows)
	key := e.globalCacheKey(rows)

	if e.cache != nil {
		if raw, err := e.cache.Get(ctx, key); err == nil && raw != nil {
			var cached GlobalExplanation
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	out := e.computeGlobal(rows)
	if e.cache != nil {
		if raw, err := json.Marshal(out); err == nil {
			if err := e.cache.Set(ctx, key, raw, globalCacheTTL); err != nil {
				slog.Debug("global explanation cache write skipped", "error", err)
			}
		}
	}
	return out, nil
}

func (e *Engine) computeGlobal(rows [][]float64) GlobalExplanation {
	meanAbs := make([]float64, len(e.featureNames))
	method := MethodKernel

	for _, row := range rows {
		values, err := e.kernel(row)
		if err != nil {
			// One ill-conditioned row taints the whole aggregate; restart
			// with the deterministic method for every row.
			slog.Warn("global kernel attribution failed, using permutation fallback", "error", err)
			return e.globalPermutation(rows)
		}
		for i, v := range values {
			meanAbs[i] += math.Abs(v)
		}
	}
	for i := range meanAbs {
		meanAbs[i] /= float64(len(rows))
	}
	return e.globalFromMeanAbs(meanAbs, method)
}

func (e *Engine) globalFromMeanAbs(meanAbs []float64, method Method) GlobalExplanation {
	total := epsilon
	for _, v := range meanAbs {
		total += v
	}
	items := make([]GlobalImportance, len(meanAbs))
	for i, v := range meanAbs {
		items[i] = GlobalImportance{
			Feature:           e.featureNames[i],
			MeanAbsValue:      v,
			ImportancePercent: v / total * 100,
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].MeanAbsValue > items[j].MeanAbsValue
	})
	return GlobalExplanation{Method: method, ModelVersion: e.version, Items: items}
}

func (e *Engine) globalCacheKey(rows [][]float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d|", e.version, e.topK, len(rows))
	for _, row := range rows {
		for _, v := range row {
			fmt.Fprintf(h, "%g,", v)
		}
	}
	return fmt.Sprintf("global_explain:%x", h.Sum(nil))
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
