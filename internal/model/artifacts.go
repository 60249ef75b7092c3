package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/decisionlab/risk-engine/internal/features"
)

const (
	featureSchemaFilename = "feature_schema.json"
	modelFilename         = "model.json"
	backgroundFilename    = "background_sample.json"
	globalSampleFilename  = "global_sample.json"
	modelCardFilename     = "model_card.md"
)

// Artifacts is everything loaded once per model version: the predictor, the
// feature list, the training baseline statistics, and the fixed samples the
// explainer evaluates against. Read-only after load.
type Artifacts struct {
	Model        Predictor
	FeatureList  []string
	Baseline     features.BaselineStats
	Background   [][]float64
	GlobalSample [][]float64
	Version      string
	ModelType    string
	TrainingDate string
	Threshold    float64
	Metrics      map[string]any
	Limitations  string
	ModelCard    string
}

type featureSchemaFile struct {
	Features []string `json:"features"`
	Stats    struct {
		Means map[string]float64 `json:"means"`
		Stds  map[string]float64 `json:"stds"`
	} `json:"stats"`
}

type modelFile struct {
	ModelVersion string `json:"model_version"`
	ModelType    string `json:"model_type"`
	TrainingDate string `json:"training_date"`
	Scaler       struct {
		Mean  []float64 `json:"mean"`
		Scale []float64 `json:"scale"`
	} `json:"scaler"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Calibration  struct {
		A float64 `json:"a"`
		B float64 `json:"b"`
	} `json:"calibration"`
	Threshold   float64        `json:"threshold"`
	Metrics     map[string]any `json:"metrics"`
	Limitations string         `json:"limitations"`
}

// LoadArtifacts reads the versioned model artifacts from dir. Any missing or
// inconsistent artifact is a configuration error, fatal at startup.
func LoadArtifacts(dir string) (*Artifacts, error) {
	var schema featureSchemaFile
	if err := readJSON(filepath.Join(dir, featureSchemaFilename), &schema); err != nil {
		return nil, err
	}

	declared := features.Names()
	if len(schema.Features) != len(declared) {
		return nil, fmt.Errorf("feature schema lists %d features, service declares %d", len(schema.Features), len(declared))
	}
	for i, name := range declared {
		if schema.Features[i] != name {
			return nil, fmt.Errorf("feature schema order mismatch at %d: schema %q, service %q", i, schema.Features[i], name)
		}
	}

	baseline, err := features.NewBaselineStats(schema.Stats.Means, schema.Stats.Stds)
	if err != nil {
		return nil, err
	}

	var mf modelFile
	if err := readJSON(filepath.Join(dir, modelFilename), &mf); err != nil {
		return nil, err
	}
	predictor, err := NewLinearModel(mf.Scaler.Mean, mf.Scaler.Scale, mf.Coefficients, mf.Intercept, mf.Calibration.A, mf.Calibration.B, len(declared))
	if err != nil {
		return nil, err
	}

	background, err := readSample(filepath.Join(dir, backgroundFilename), len(declared))
	if err != nil {
		return nil, err
	}

	// The global sample is optional; the background doubles for it.
	global, err := readSample(filepath.Join(dir, globalSampleFilename), len(declared))
	if err != nil {
		if !os.IsNotExist(unwrapPathError(err)) {
			return nil, err
		}
		global = background
	}

	card := ""
	if raw, err := os.ReadFile(filepath.Join(dir, modelCardFilename)); err == nil {
		card = string(raw)
	}

	version := mf.ModelVersion
	if version == "" {
		version = "unknown"
	}
	threshold := mf.Threshold
	if threshold == 0 {
		threshold = 0.5
	}

	return &Artifacts{
		Model:        predictor,
		FeatureList:  declared,
		Baseline:     baseline,
		Background:   background,
		GlobalSample: global,
		Version:      version,
		ModelType:    mf.ModelType,
		TrainingDate: mf.TrainingDate,
		Threshold:    threshold,
		Metrics:      mf.Metrics,
		Limitations:  mf.Limitations,
		ModelCard:    card,
	}, nil
}

func readJSON(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parsing artifact %s: %w", path, err)
	}
	return nil
}

func readSample(path string, featureCount int) ([][]float64, error) {
	var rows [][]float64
	if err := readJSON(path, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("artifact %s contains no rows", path)
	}
	for i, row := range rows {
		if len(row) != featureCount {
			return nil, fmt.Errorf("artifact %s row %d has %d values, want %d", path, i, len(row), featureCount)
		}
	}
	return rows, nil
}

func unwrapPathError(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := u.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}
