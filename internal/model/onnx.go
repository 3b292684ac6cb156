package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
)

// The onnxruntime environment is process-wide; sessions share it.
var (
	envMu    sync.Mutex
	envUsers int
)

func acquireEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envUsers == 0 {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	envUsers++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()

	envUsers--
	if envUsers == 0 {
		ort.DestroyEnvironment()
	}
}

// onnxSession runs a fixed-shape ONNX network. The tensors are bound to the
// session, so runs are serialized.
type onnxSession struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	batch        int
	width        int
	outputs      int
}

func newONNXSession(modelPath string, meta *Metadata, libraryPath string) (*onnxSession, error) {
	if len(meta.InputShape) != 2 || len(meta.OutputShape) != 2 {
		return nil, errors.ModelLoad("onnx input_shape and output_shape must be [batch, n], got %v and %v", meta.InputShape, meta.OutputShape)
	}
	if meta.InputShape[0] < 1 || meta.InputShape[0] != meta.OutputShape[0] || meta.OutputShape[1] < 1 {
		return nil, errors.ModelLoad("onnx shapes %v -> %v do not describe a batch", meta.InputShape, meta.OutputShape)
	}

	if err := acquireEnvironment(libraryPath); err != nil {
		return nil, errors.WithCode(errors.CodeModelLoad, err, "onnx runtime unavailable")
	}

	inputShape := ort.NewShape(meta.InputShape...)
	outputShape := ort.NewShape(meta.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		releaseEnvironment()
		return nil, errors.WithCode(errors.CodeModelLoad, err, "failed to create input tensor")
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		releaseEnvironment()
		return nil, errors.WithCode(errors.CodeModelLoad, err, "failed to create output tensor")
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		releaseEnvironment()
		return nil, errors.WithCode(errors.CodeModelLoad, err, "failed to create ONNX session for "+modelPath)
	}

	return &onnxSession{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		batch:        int(meta.InputShape[0]),
		width:        int(meta.InputShape[1]),
		outputs:      int(meta.OutputShape[1]),
	}, nil
}

func (s *onnxSession) InputWidth() int { return s.width }

func (s *onnxSession) BatchSize() int { return s.batch }

// Run copies rows into the input tensor, zero-filling unused batch slots,
// and returns the outputs for the rows given.
func (s *onnxSession) Run(rows [][]float64) ([][]float64, error) {
	if len(rows) > s.batch {
		return nil, fmt.Errorf("batch of %d exceeds session batch %d", len(rows), s.batch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.inputTensor.GetData()
	clear(in)
	for i, row := range rows {
		if len(row) != s.width {
			return nil, errors.FeatureShapeMismatch(fmt.Sprintf("onnx row %d", i), s.width, len(row))
		}
		for j, v := range row {
			in[i*s.width+j] = float32(v)
		}
	}

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := s.outputTensor.GetData()
	out := make([][]float64, len(rows))
	for i := range out {
		r := make([]float64, s.outputs)
		for j := range r {
			r[j] = float64(outputData[i*s.outputs+j])
		}
		out[i] = r
	}
	return out, nil
}

func (s *onnxSession) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
		releaseEnvironment()
	}
	s.session = nil
	s.inputTensor = nil
	s.outputTensor = nil
}
