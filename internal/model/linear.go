package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
)

// linearWeights is the JSON form of a linear or logistic layer: one row of
// weights and one bias per output.
type linearWeights struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation,omitempty"`
}

// linearModel is a pure-Go forward pass, y = act(W x + b), evaluated for a
// whole batch with one matrix product.
type linearModel struct {
	w       *mat.Dense // outputs x width
	bias    []float64
	sigmoid bool
	batch   int
}

func loadLinear(path string, batchSize int) (*linearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithCode(errors.CodeModelLoad, err, "failed to read weights "+path)
	}

	var lw linearWeights
	if err := json.Unmarshal(data, &lw); err != nil {
		return nil, errors.WithCode(errors.CodeModelLoad, err, "failed to parse weights "+path)
	}

	m, err := newLinear(lw, batchSize)
	if err != nil {
		return nil, errors.Wrapf(err, "weights %s", path)
	}
	return m, nil
}

func newLinear(lw linearWeights, batchSize int) (*linearModel, error) {
	if len(lw.Weights) == 0 || len(lw.Weights[0]) == 0 {
		return nil, errors.ModelLoad("linear model has no weights")
	}
	if len(lw.Bias) != len(lw.Weights) {
		return nil, errors.ModelLoad("linear model has %d outputs but %d biases", len(lw.Weights), len(lw.Bias))
	}

	width := len(lw.Weights[0])
	flat := make([]float64, 0, len(lw.Weights)*width)
	for i, row := range lw.Weights {
		if len(row) != width {
			return nil, errors.ModelLoad("linear model weight row %d has %d values, want %d", i, len(row), width)
		}
		flat = append(flat, row...)
	}

	var sigmoid bool
	switch lw.Activation {
	case "", "identity":
	case "sigmoid":
		sigmoid = true
	default:
		return nil, errors.ModelLoad("unknown linear activation %q", lw.Activation)
	}

	return &linearModel{
		w:       mat.NewDense(len(lw.Weights), width, flat),
		bias:    append([]float64(nil), lw.Bias...),
		sigmoid: sigmoid,
		batch:   batchSize,
	}, nil
}

func (l *linearModel) InputWidth() int {
	_, c := l.w.Dims()
	return c
}

func (l *linearModel) BatchSize() int { return l.batch }

func (l *linearModel) Run(rows [][]float64) ([][]float64, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	outputs, width := l.w.Dims()
	flat := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, errors.FeatureShapeMismatch(fmt.Sprintf("linear row %d", i), width, len(row))
		}
		flat = append(flat, row...)
	}
	x := mat.NewDense(len(rows), width, flat)

	var y mat.Dense
	y.Mul(x, l.w.T())

	out := make([][]float64, len(rows))
	for i := range out {
		r := make([]float64, outputs)
		for j := range r {
			v := y.At(i, j) + l.bias[j]
			if l.sigmoid {
				v = 1 / (1 + math.Exp(-v))
			}
			r[j] = v
		}
		out[i] = r
	}
	return out, nil
}

func (l *linearModel) Close() {}
