package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
	"github.com/Brownie44l1/fiber-thresholds/internal/features"
	"github.com/Brownie44l1/fiber-thresholds/internal/pulse"
)

// FormatVersion is the metadata format this package reads.
const FormatVersion = 1

// Mode selects between threshold regression and activation classification.
type Mode int

const (
	Regression Mode = iota
	Classification
)

func (m Mode) String() string {
	switch m {
	case Regression:
		return "reg"
	case Classification:
		return "class"
	}
	return "unknown"
}

// ParseMode maps "reg" or "class" to a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "reg":
		return Regression, nil
	case "class":
		return Classification, nil
	}
	return 0, errors.InvalidConfiguration("unknown mode %q (want reg or class)", name)
}

// PulseWidthEncoding records how an artifact handles pulse width. It is
// declared by the artifact and never inferred.
type PulseWidthEncoding string

const (
	// EncodeAsFeature means one network takes the pulse width, in
	// milliseconds, as its last input feature.
	EncodeAsFeature PulseWidthEncoding = "feature"
	// EncodePerModel means one network per pulse width.
	EncodePerModel PulseWidthEncoding = "per_model"
)

// Backend names the inference implementation behind an artifact.
type Backend string

const (
	BackendONNX   Backend = "onnx"
	BackendLinear Backend = "linear"
)

const defaultDecisionThreshold = 0.5

// Metadata is the metadata.json stored next to a model artifact.
type Metadata struct {
	FormatVersion      int                `json:"format_version"`
	TractType          string             `json:"tract_type"`
	Mode               string             `json:"mode"`
	Backend            Backend            `json:"backend"`
	PulseWidthEncoding PulseWidthEncoding `json:"pulse_width_encoding"`
	PulseWidthsUS      []int              `json:"pulse_widths_us,omitempty"`
	Features           features.Layout    `json:"features"`

	// ONNX tensor contract, [batch, width] in and [batch, outputs] out.
	InputShape  []int64 `json:"input_shape,omitempty"`
	OutputShape []int64 `json:"output_shape,omitempty"`
	InputName   string  `json:"input_name,omitempty"`
	OutputName  string  `json:"output_name,omitempty"`

	// Classification decision.
	Classes           []string `json:"classes,omitempty"`
	PositiveClass     string   `json:"positive_class,omitempty"`
	// DecisionThreshold is the probability at or above which a single
	// output counts as activated. Absent means 0.5.
	DecisionThreshold *float64 `json:"decision_threshold,omitempty"`
}

// PulseWidths returns the widths the artifact was trained for.
func (m *Metadata) PulseWidths() []pulse.Width {
	if len(m.PulseWidthsUS) == 0 {
		out := make([]pulse.Width, len(pulse.Defaults))
		copy(out, pulse.Defaults)
		return out
	}
	out := make([]pulse.Width, len(m.PulseWidthsUS))
	for i, us := range m.PulseWidthsUS {
		out[i] = pulse.Width(us)
	}
	return out
}

// InputWidth is the number of values the network takes per fiber.
func (m *Metadata) InputWidth() int {
	n := m.Features.Len()
	if m.PulseWidthEncoding == EncodeAsFeature {
		n++
	}
	return n
}

// Validate checks the metadata against the requested tract type and mode
// and fills in defaults.
func (m *Metadata) Validate(tractType string, mode Mode) error {
	if m.FormatVersion != FormatVersion {
		return errors.ModelLoad("unsupported metadata format_version %d (want %d)", m.FormatVersion, FormatVersion)
	}
	if m.TractType != tractType {
		return errors.ModelLoad("artifact is for tract type %q, not %q", m.TractType, tractType)
	}
	if m.Mode != mode.String() {
		return errors.ModelLoad("artifact is for mode %q, not %q", m.Mode, mode)
	}
	switch m.Backend {
	case BackendONNX, BackendLinear:
	default:
		return errors.ModelLoad("unknown backend %q", m.Backend)
	}
	switch m.PulseWidthEncoding {
	case EncodeAsFeature, EncodePerModel:
	case "":
		return errors.ModelLoad("pulse_width_encoding is required (feature or per_model)")
	default:
		return errors.ModelLoad("unknown pulse_width_encoding %q", m.PulseWidthEncoding)
	}
	if err := m.Features.Validate(); err != nil {
		return errors.WithCode(errors.CodeModelLoad, err, "invalid feature layout")
	}
	if err := pulse.Validate(m.PulseWidths()); err != nil {
		return errors.WithCode(errors.CodeModelLoad, err, "invalid pulse widths")
	}

	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if t := m.DecisionThreshold; t != nil && !(*t >= 0 && *t <= 1) {
		return errors.ModelLoad("decision_threshold must be within [0, 1], got %v", *t)
	}
	if mode == Classification {
		if m.DecisionThreshold == nil {
			t := defaultDecisionThreshold
			m.DecisionThreshold = &t
		}
		if len(m.Classes) > 0 && m.PositiveClass == "" {
			m.PositiveClass = m.Classes[len(m.Classes)-1]
		}
	}
	return nil
}

// Prediction is one fiber's model output for one pulse width: a threshold
// in regression mode or an activation flag in classification mode.
type Prediction struct {
	Mode      Mode
	Threshold float64
	Activated bool
}

func Threshold(v float64) Prediction { return Prediction{Mode: Regression, Threshold: v} }

func Activation(v bool) Prediction { return Prediction{Mode: Classification, Activated: v} }

// MarshalJSON writes a bare number or a bare boolean.
func (p Prediction) MarshalJSON() ([]byte, error) {
	if p.Mode == Classification {
		return json.Marshal(p.Activated)
	}
	return json.Marshal(p.Threshold)
}

func (p *Prediction) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("true")) || bytes.Equal(data, []byte("false")) {
		*p = Activation(data[0] == 't')
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("prediction must be a number or a boolean: %w", err)
	}
	*p = Threshold(v)
	return nil
}

// PredictionRequest is the body of a raw feature prediction call.
type PredictionRequest struct {
	Features     [][]float64 `json:"features"`
	PulseWidthUS int         `json:"pulse_width_us"`
}

// PredictionResponse answers a PredictionRequest, one entry per feature row.
type PredictionResponse struct {
	PulseWidth  string       `json:"pulse_width"`
	Mode        string       `json:"mode"`
	Predictions []Prediction `json:"predictions"`
}
