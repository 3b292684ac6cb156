package model

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
	"github.com/Brownie44l1/fiber-thresholds/internal/features"
	"github.com/Brownie44l1/fiber-thresholds/internal/pulse"
)

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func baseMetadata(mode Mode, enc PulseWidthEncoding) Metadata {
	return Metadata{
		FormatVersion:      FormatVersion,
		TractType:          "cst",
		Mode:               mode.String(),
		Backend:            BackendLinear,
		PulseWidthEncoding: enc,
		PulseWidthsUS:      []int{60, 75},
		Features: features.Layout{
			Kinds:         []features.Kind{features.EC},
			SpatialValues: 3,
		},
	}
}

// writeArtifact stores metadata and linear weight files under root/cst/<mode>.
func writeArtifact(t *testing.T, root string, meta Metadata, weights map[string]linearWeights) {
	t.Helper()
	mode, err := ParseMode(meta.Mode)
	require.NoError(t, err)
	dir := Dir(root, meta.TractType, mode)
	writeJSON(t, filepath.Join(dir, "metadata.json"), meta)
	for name, w := range weights {
		writeJSON(t, filepath.Join(dir, name+".json"), w)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("reg")
	require.NoError(t, err)
	assert.Equal(t, Regression, m)

	m, err = ParseMode("class")
	require.NoError(t, err)
	assert.Equal(t, Classification, m)

	_, err = ParseMode("regression")
	assert.Equal(t, errors.CodeInvalidConfiguration, errors.GetCode(err))
}

func TestLoadAndPredictFeatureEncoding(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, baseMetadata(Regression, EncodeAsFeature), map[string]linearWeights{
		// last weight multiplies the pulse width in milliseconds
		"model": {Weights: [][]float64{{1, 2, 3, 100}}, Bias: []float64{0.5}},
	})

	m, err := Load(root, "cst", Regression, LoadOptions{})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, []pulse.Width{60, 75}, m.PulseWidths())
	assert.Equal(t, 3, m.Layout().Len())
	assert.Equal(t, features.Pad, m.Layout().Policy)

	got, err := m.Predict(context.Background(), [][]float64{{1, 1, 1}, {0, 0, 2}}, 60)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 1+2+3+6+0.5, got[0].Threshold, 1e-9)
	assert.InDelta(t, 6+6+0.5, got[1].Threshold, 1e-9)

	got, err = m.Predict(context.Background(), [][]float64{{1, 1, 1}}, 75)
	require.NoError(t, err)
	assert.InDelta(t, 6+7.5+0.5, got[0].Threshold, 1e-9)
}

func TestLoadPerModel(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, baseMetadata(Regression, EncodePerModel), map[string]linearWeights{
		"model_0.06":  {Weights: [][]float64{{1, 0, 0}}, Bias: []float64{0}},
		"model_0.075": {Weights: [][]float64{{0, 0, 1}}, Bias: []float64{10}},
	})

	m, err := Load(root, "cst", Regression, LoadOptions{BatchSize: 1})
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 1, m.BatchSize())

	batch := [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	got, err := m.Predict(context.Background(), batch, 60)
	require.NoError(t, err)
	assert.Equal(t, []Prediction{Threshold(1), Threshold(4), Threshold(7)}, got)

	got, err = m.Predict(context.Background(), batch, 75)
	require.NoError(t, err)
	assert.Equal(t, []Prediction{Threshold(13), Threshold(16), Threshold(19)}, got)

	_, err = m.Predict(context.Background(), batch, 90)
	assert.Equal(t, errors.CodeInvalidConfiguration, errors.GetCode(err))
}

func TestPredictIsOrderIndependent(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, baseMetadata(Regression, EncodeAsFeature), map[string]linearWeights{
		"model": {Weights: [][]float64{{0.5, -1, 2, 4}}, Bias: []float64{1}},
	})
	m, err := Load(root, "cst", Regression, LoadOptions{BatchSize: 2})
	require.NoError(t, err)
	defer m.Close()

	batch := [][]float64{{1, 2, 3}, {-1, 0, 1}, {4, 4, 4}, {0.25, 0.5, 0.75}, {8, -8, 2}}
	forward, err := m.Predict(context.Background(), batch, 60)
	require.NoError(t, err)

	reversed := make([][]float64, len(batch))
	for i := range batch {
		reversed[len(batch)-1-i] = batch[i]
	}
	backward, err := m.Predict(context.Background(), reversed, 60)
	require.NoError(t, err)

	for i := range batch {
		assert.Equal(t, forward[i], backward[len(batch)-1-i])

		single, err := m.Predict(context.Background(), batch[i:i+1], 60)
		require.NoError(t, err)
		assert.Equal(t, forward[i], single[0])
	}
}

func TestClassification(t *testing.T) {
	t.Run("probability", func(t *testing.T) {
		root := t.TempDir()
		writeArtifact(t, root, baseMetadata(Classification, EncodeAsFeature), map[string]linearWeights{
			"model": {Weights: [][]float64{{1, 0, 0, 0}}, Bias: []float64{0}, Activation: "sigmoid"},
		})
		m, err := Load(root, "cst", Classification, LoadOptions{})
		require.NoError(t, err)
		defer m.Close()

		got, err := m.Predict(context.Background(), [][]float64{{3, 0, 0}, {-3, 0, 0}, {0, 0, 0}}, 60)
		require.NoError(t, err)
		assert.Equal(t, []Prediction{Activation(true), Activation(false), Activation(true)}, got)
	})

	t.Run("explicit zero threshold", func(t *testing.T) {
		root := t.TempDir()
		meta := baseMetadata(Classification, EncodeAsFeature)
		zero := 0.0
		meta.DecisionThreshold = &zero
		writeArtifact(t, root, meta, map[string]linearWeights{
			"model": {Weights: [][]float64{{1, 0, 0, 0}}, Bias: []float64{0}, Activation: "sigmoid"},
		})
		m, err := Load(root, "cst", Classification, LoadOptions{})
		require.NoError(t, err)
		defer m.Close()
		require.NotNil(t, m.Metadata().DecisionThreshold)
		assert.Equal(t, 0.0, *m.Metadata().DecisionThreshold)

		got, err := m.Predict(context.Background(), [][]float64{{-30, 0, 0}, {3, 0, 0}}, 60)
		require.NoError(t, err)
		assert.Equal(t, []Prediction{Activation(true), Activation(true)}, got)
	})

	t.Run("default threshold", func(t *testing.T) {
		root := t.TempDir()
		writeArtifact(t, root, baseMetadata(Classification, EncodeAsFeature), map[string]linearWeights{
			"model": {Weights: [][]float64{{1, 0, 0, 0}}, Bias: []float64{0}, Activation: "sigmoid"},
		})
		m, err := Load(root, "cst", Classification, LoadOptions{})
		require.NoError(t, err)
		defer m.Close()
		require.NotNil(t, m.Metadata().DecisionThreshold)
		assert.Equal(t, 0.5, *m.Metadata().DecisionThreshold)
	})

	t.Run("argmax", func(t *testing.T) {
		root := t.TempDir()
		meta := baseMetadata(Classification, EncodePerModel)
		meta.PulseWidthsUS = []int{60}
		meta.Classes = []string{"inactive", "activated"}
		writeArtifact(t, root, meta, map[string]linearWeights{
			"model_0.06": {Weights: [][]float64{{1, 0, 0}, {0, 1, 0}}, Bias: []float64{0, 0}},
		})
		m, err := Load(root, "cst", Classification, LoadOptions{})
		require.NoError(t, err)
		defer m.Close()
		assert.Equal(t, "activated", m.Metadata().PositiveClass)

		got, err := m.Predict(context.Background(), [][]float64{{2, 1, 0}, {1, 2, 0}}, 60)
		require.NoError(t, err)
		assert.Equal(t, []Prediction{Activation(false), Activation(true)}, got)
	})
}

func TestPredictRejectsWrongRowLength(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, baseMetadata(Regression, EncodeAsFeature), map[string]linearWeights{
		"model": {Weights: [][]float64{{1, 1, 1, 1}}, Bias: []float64{0}},
	})
	m, err := Load(root, "cst", Regression, LoadOptions{})
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Predict(context.Background(), [][]float64{{1, 1, 1}, {1, 1}}, 60)
	require.Error(t, err)
	assert.Equal(t, errors.CodeFeatureShapeMismatch, errors.GetCode(err))
	assert.Contains(t, err.Error(), "batch row 1")
}

func TestPredictHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	writeArtifact(t, root, baseMetadata(Regression, EncodeAsFeature), map[string]linearWeights{
		"model": {Weights: [][]float64{{1, 1, 1, 1}}, Bias: []float64{0}},
	})
	m, err := Load(root, "cst", Regression, LoadOptions{})
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Predict(ctx, [][]float64{{1, 1, 1}}, 60)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadErrors(t *testing.T) {
	good := map[string]linearWeights{"model": {Weights: [][]float64{{1, 1, 1, 1}}, Bias: []float64{0}}}

	tests := []struct {
		name     string
		mutate   func(*Metadata)
		weights  map[string]linearWeights
		wantCode string
	}{
		{
			name:     "format version",
			mutate:   func(m *Metadata) { m.FormatVersion = 2 },
			weights:  good,
			wantCode: errors.CodeModelLoad,
		},
		{
			name:     "missing pulse width encoding",
			mutate:   func(m *Metadata) { m.PulseWidthEncoding = "" },
			weights:  good,
			wantCode: errors.CodeModelLoad,
		},
		{
			name:     "wrong tract type",
			mutate:   func(m *Metadata) { m.TractType = "ml" },
			weights:  good,
			wantCode: errors.CodeModelLoad,
		},
		{
			name: "decision threshold out of range",
			mutate: func(m *Metadata) {
				v := 1.5
				m.DecisionThreshold = &v
			},
			weights:  good,
			wantCode: errors.CodeModelLoad,
		},
		{
			name:     "unknown backend",
			mutate:   func(m *Metadata) { m.Backend = "torch" },
			weights:  good,
			wantCode: errors.CodeModelLoad,
		},
		{
			name:     "even window",
			mutate:   func(m *Metadata) { m.Features.SpatialValues = 4 },
			weights:  good,
			wantCode: errors.CodeModelLoad,
		},
		{
			name:     "unknown pulse width",
			mutate:   func(m *Metadata) { m.PulseWidthsUS = []int{61} },
			weights:  good,
			wantCode: errors.CodeModelLoad,
		},
		{
			name:     "missing weights",
			mutate:   func(m *Metadata) {},
			weights:  nil,
			wantCode: errors.CodeModelLoad,
		},
		{
			name:     "input width mismatch",
			mutate:   func(m *Metadata) {},
			weights:  map[string]linearWeights{"model": {Weights: [][]float64{{1, 1, 1}}, Bias: []float64{0}}},
			wantCode: errors.CodeFeatureShapeMismatch,
		},
		{
			name:     "bias count",
			mutate:   func(m *Metadata) {},
			weights:  map[string]linearWeights{"model": {Weights: [][]float64{{1, 1, 1, 1}}}},
			wantCode: errors.CodeModelLoad,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			meta := baseMetadata(Regression, EncodeAsFeature)
			tt.mutate(&meta)

			// metadata always lives under the requested tract type
			dir := Dir(root, "cst", Regression)
			writeJSON(t, filepath.Join(dir, "metadata.json"), meta)
			for name, w := range tt.weights {
				writeJSON(t, filepath.Join(dir, name+".json"), w)
			}

			m, err := Load(root, "cst", Regression, LoadOptions{})
			require.Error(t, err)
			assert.Nil(t, m)
			assert.Equal(t, tt.wantCode, errors.GetCode(err), err.Error())
		})
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	_, err := Load(t.TempDir(), "cst", Regression, LoadOptions{})
	assert.Equal(t, errors.CodeModelLoad, errors.GetCode(err))

	_, err = Load(t.TempDir(), "../etc", Regression, LoadOptions{})
	assert.Equal(t, errors.CodeInvalidConfiguration, errors.GetCode(err))
}

func TestPredictionJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Prediction{"0": Threshold(1.25), "1": Activation(true)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"0": 1.25, "1": true}`, string(data))

	var back map[string]Prediction
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Threshold(1.25), back["0"])
	assert.Equal(t, Activation(true), back["1"])

	var p Prediction
	assert.Error(t, json.Unmarshal([]byte(`"x"`), &p))
}
