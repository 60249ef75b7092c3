package drift

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/decisionlab/risk-engine/internal/features"
)

// StatusOK and StatusStoreUnavailable are the summary status values.
// Summaries never fabricate numbers when the store is down; they say so.
const (
	StatusOK               = "ok"
	StatusStoreUnavailable = "store_unavailable"
)

// FeatureDrift is one feature's live statistics versus the training baseline.
type FeatureDrift struct {
	Feature   string  `json:"feature"`
	N         int64   `json:"n"`
	Mean      float64 `json:"mean"`
	Std       float64 `json:"std"`
	TrainMean float64 `json:"train_mean"`
	TrainStd  float64 `json:"train_std"`
	ZDelta    float64 `json:"z_delta"`
	Drifted   bool    `json:"drifted"`
}

// Summary is the drift report for one caller.
type Summary struct {
	Caller    string         `json:"caller"`
	Threshold float64        `json:"threshold"`
	Status    string         `json:"status"`
	Features  []FeatureDrift `json:"features"`
}

// Detector ingests scored observations into per-(caller, feature)
// accumulators and reports drift versus the training baseline.
type Detector struct {
	store      Store
	baseline   features.BaselineStats
	features   []string
	zThreshold float64
	minSamples int64
	ttl        time.Duration
}

// NewDetector builds a drift detector over the declared feature list.
// minSamples gates the drifted flag so small noisy windows cannot alarm.
func NewDetector(s Store, baseline features.BaselineStats, featureList []string, zThreshold float64, minSamples int, ttl time.Duration) *Detector {
	return &Detector{
		store:      s,
		baseline:   baseline,
		features:   featureList,
		zThreshold: zThreshold,
		minSamples: int64(minSamples),
		ttl:        ttl,
	}
}

// Update ingests one observation per declared feature for the caller.
// Store failures drop the update silently (fail-open); scoring must never
// fail because monitoring state could not be written.
func (d *Detector) Update(ctx context.Context, caller string, values map[string]float64) {
	if !d.store.Available() {
		return
	}
	for _, f := range d.features {
		x, ok := values[f]
		if !ok {
			continue
		}
		acc, err := d.store.Get(ctx, caller, f)
		if err != nil {
			slog.Debug("drift update skipped, store read failed", "caller", caller, "feature", f, "error", err)
			continue
		}
		if err := d.store.Put(ctx, caller, f, acc.Add(x), d.ttl); err != nil {
			slog.Debug("drift update skipped, store write failed", "caller", caller, "feature", f, "error", err)
		}
	}
}

// Summary reports, per feature, the live (n, mean, std) against the training
// baseline and whether the feature has drifted. When the store is down the
// summary carries an explicit status instead of fabricated statistics.
func (d *Detector) Summary(ctx context.Context, caller string) Summary {
	out := Summary{
		Caller:    caller,
		Threshold: d.zThreshold,
		Status:    StatusOK,
		Features:  []FeatureDrift{},
	}
	if !d.store.Available() {
		out.Status = StatusStoreUnavailable
		return out
	}

	for _, f := range d.features {
		acc, err := d.store.Get(ctx, caller, f)
		if err != nil {
			out.Status = StatusStoreUnavailable
			return out
		}

		z := (acc.Mean - d.baseline.Mean(f)) / d.baseline.SafeStd(f)
		out.Features = append(out.Features, FeatureDrift{
			Feature:   f,
			N:         acc.N,
			Mean:      acc.Mean,
			Std:       acc.Std(),
			TrainMean: d.baseline.Mean(f),
			TrainStd:  d.baseline.Std(f),
			ZDelta:    z,
			Drifted:   abs(z) >= d.zThreshold && acc.N >= d.minSamples,
		})
	}
	return out
}

// Warnings renders the drifted features of a caller's summary as strings.
func (d *Detector) Warnings(ctx context.Context, caller string) []string {
	var warnings []string
	s := d.Summary(ctx, caller)
	for _, f := range s.Features {
		if f.Drifted {
			warnings = append(warnings,
				fmt.Sprintf("drift_warning:%s:z_delta=%.2f (threshold=%g)", f.Feature, f.ZDelta, d.zThreshold))
		}
	}
	return warnings
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
