package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
	"github.com/Brownie44l1/fiber-thresholds/internal/features"
	"github.com/Brownie44l1/fiber-thresholds/internal/pulse"
)

// Predictor maps feature vectors to predictions. Each output depends only
// on its own input row.
type Predictor interface {
	Predict(ctx context.Context, batch [][]float64, pw pulse.Width) ([]Prediction, error)
}

// backend runs one network on raw input rows and returns raw output rows.
type backend interface {
	InputWidth() int
	// BatchSize is the largest batch Run accepts, 0 for unbounded.
	BatchSize() int
	Run(rows [][]float64) ([][]float64, error)
	Close()
}

// LoadOptions tune how artifacts are opened.
type LoadOptions struct {
	// ORTLibraryPath points at the onnxruntime shared library. Empty uses
	// the platform default.
	ORTLibraryPath string
	// BatchSize caps rows per backend call for backends without a fixed
	// batch. 0 keeps the backend default.
	BatchSize int
}

// Model is a loaded, read-only threshold model.
type Model struct {
	dir      string
	meta     Metadata
	mode     Mode
	widths   []pulse.Width
	shared   backend                 // EncodeAsFeature
	perWidth map[pulse.Width]backend // EncodePerModel
}

// Dir returns the artifact directory for a tract type and mode under root.
func Dir(root, tractType string, mode Mode) string {
	return filepath.Join(root, tractType, mode.String())
}

// Load opens the artifact for tractType and mode under root. This is the
// only place format and shape problems with an artifact are reported.
func Load(root, tractType string, mode Mode, opts LoadOptions) (*Model, error) {
	if tractType == "" || strings.ContainsAny(tractType, `/\`) || tractType == "." || tractType == ".." {
		return nil, errors.InvalidConfiguration("invalid tract type %q", tractType)
	}

	dir := Dir(root, tractType, mode)
	metaPath := filepath.Join(dir, "metadata.json")

	metaFile, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, errors.WithCode(errors.CodeModelLoad, err, "failed to read metadata "+metaPath)
	}

	var meta Metadata
	if err := json.Unmarshal(metaFile, &meta); err != nil {
		return nil, errors.WithCode(errors.CodeModelLoad, err, "failed to parse metadata "+metaPath)
	}
	if err := meta.Validate(tractType, mode); err != nil {
		return nil, errors.Wrapf(err, "model %s", dir)
	}

	m := &Model{
		dir:    dir,
		meta:   meta,
		mode:   mode,
		widths: meta.PulseWidths(),
	}

	open := func(name string) (backend, error) {
		return openBackend(dir, name, &m.meta, opts)
	}

	switch meta.PulseWidthEncoding {
	case EncodeAsFeature:
		b, err := open("model")
		if err != nil {
			return nil, err
		}
		m.shared = b
	case EncodePerModel:
		m.perWidth = make(map[pulse.Width]backend, len(m.widths))
		for _, w := range m.widths {
			b, err := open("model_" + w.Key())
			if err != nil {
				m.Close()
				return nil, err
			}
			m.perWidth[w] = b
		}
	}

	return m, nil
}

func openBackend(dir, name string, meta *Metadata, opts LoadOptions) (backend, error) {
	var (
		b   backend
		err error
	)
	switch meta.Backend {
	case BackendONNX:
		b, err = newONNXSession(filepath.Join(dir, name+".onnx"), meta, opts.ORTLibraryPath)
	case BackendLinear:
		b, err = loadLinear(filepath.Join(dir, name+".json"), opts.BatchSize)
	default:
		err = errors.ModelLoad("unknown backend %q", meta.Backend)
	}
	if err != nil {
		return nil, err
	}

	if b.InputWidth() != meta.InputWidth() {
		b.Close()
		return nil, errors.FeatureShapeMismatch(fmt.Sprintf("model %s/%s input", dir, name), meta.InputWidth(), b.InputWidth())
	}
	return b, nil
}

// Metadata returns the artifact metadata.
func (m *Model) Metadata() Metadata {
	return m.meta
}

// Mode returns the mode the model was loaded for.
func (m *Model) Mode() Mode {
	return m.mode
}

// Layout returns the feature layout the model expects.
func (m *Model) Layout() features.Layout {
	return m.meta.Features
}

// PulseWidths returns the pulse widths the model predicts for.
func (m *Model) PulseWidths() []pulse.Width {
	out := make([]pulse.Width, len(m.widths))
	copy(out, m.widths)
	return out
}

// BatchSize returns the preferred number of fibers per Predict call.
func (m *Model) BatchSize() int {
	b := m.shared
	if b == nil && len(m.widths) > 0 {
		b = m.perWidth[m.widths[0]]
	}
	if b == nil || b.BatchSize() == 0 {
		return 256
	}
	return b.BatchSize()
}

func (m *Model) backendFor(pw pulse.Width) (backend, error) {
	if m.shared != nil {
		for _, w := range m.widths {
			if w == pw {
				return m.shared, nil
			}
		}
	} else if b, ok := m.perWidth[pw]; ok {
		return b, nil
	}
	return nil, errors.InvalidConfiguration("model %s has no pulse width %s", m.dir, pw)
}

// Predict returns one prediction per row of batch for pulse width pw.
func (m *Model) Predict(ctx context.Context, batch [][]float64, pw pulse.Width) ([]Prediction, error) {
	b, err := m.backendFor(pw)
	if err != nil {
		return nil, err
	}

	width := m.meta.Features.Len()
	rows := make([][]float64, len(batch))
	for i, row := range batch {
		if len(row) != width {
			return nil, errors.FeatureShapeMismatch(fmt.Sprintf("batch row %d", i), width, len(row))
		}
		if m.meta.PulseWidthEncoding == EncodeAsFeature {
			in := make([]float64, width+1)
			copy(in, row)
			in[width] = pw.Milliseconds()
			rows[i] = in
		} else {
			rows[i] = row
		}
	}

	step := b.BatchSize()
	if step == 0 {
		step = len(rows)
	}

	out := make([]Prediction, 0, len(rows))
	for start := 0; start < len(rows); start += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+step, len(rows))

		raw, err := b.Run(rows[start:end])
		if err != nil {
			return nil, errors.Wrapf(err, "inference failed for %s", pw)
		}
		for i, r := range raw {
			p, err := m.decide(r)
			if err != nil {
				return nil, errors.Wrapf(err, "batch row %d at %s", start+i, pw)
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// decide turns one raw output row into a prediction.
func (m *Model) decide(raw []float64) (Prediction, error) {
	if len(raw) == 0 {
		return Prediction{}, errors.New(errors.CodeInternalError, "model returned an empty output row")
	}

	if m.mode == Regression {
		if math.IsNaN(raw[0]) || math.IsInf(raw[0], 0) {
			return Prediction{}, errors.Newf(errors.CodeInternalError, "model returned non-finite threshold %v", raw[0])
		}
		return Threshold(raw[0]), nil
	}

	if len(raw) == 1 {
		threshold := defaultDecisionThreshold
		if m.meta.DecisionThreshold != nil {
			threshold = *m.meta.DecisionThreshold
		}
		return Activation(raw[0] >= threshold), nil
	}

	maxIdx := 0
	for i, v := range raw {
		if v > raw[maxIdx] {
			maxIdx = i
		}
	}
	if maxIdx < len(m.meta.Classes) {
		return Activation(m.meta.Classes[maxIdx] == m.meta.PositiveClass), nil
	}
	return Activation(maxIdx == len(raw)-1), nil
}

// Close releases backend resources.
func (m *Model) Close() {
	if m.shared != nil {
		m.shared.Close()
	}
	for _, b := range m.perWidth {
		b.Close()
	}
}
