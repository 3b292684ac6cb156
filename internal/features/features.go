// Package features turns a centered fiber into the fixed-length vector a
// threshold model consumes.
package features

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/interp"

	"github.com/Brownie44l1/fiber-thresholds/internal/centering"
	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
)

// Kind is one per-compartment series that can be windowed into the vector.
type Kind string

const (
	EC  Kind = "ec"  // extracellular potential
	FSD Kind = "fsd" // first spatial derivative
	SSD Kind = "ssd" // second spatial derivative
	ERR Kind = "err" // zero placeholder kept for models trained with an error channel
)

// WindowPolicy decides what happens when the window reaches past the ends
// of a fiber.
type WindowPolicy string

const (
	// Pad reads positions outside the fiber as 0.
	Pad WindowPolicy = "pad"
	// Resample stretches fibers shorter than the window to exactly the
	// window length along arc length before windowing.
	Resample WindowPolicy = "resample"
)

// Layout describes the feature vector a model expects.
type Layout struct {
	Kinds         []Kind       `json:"kinds"`
	SpatialValues int          `json:"spatial_values"`
	Policy        WindowPolicy `json:"window_policy,omitempty"`
}

// Len is the number of features one fiber produces.
func (l Layout) Len() int {
	return len(l.Kinds) * l.SpatialValues
}

// Validate checks the layout and fills in the default policy.
func (l *Layout) Validate() error {
	if len(l.Kinds) == 0 {
		return errors.InvalidConfiguration("feature layout has no kinds")
	}
	for _, k := range l.Kinds {
		switch k {
		case EC, FSD, SSD, ERR:
		default:
			return errors.InvalidConfiguration("unknown feature kind %q", k)
		}
	}
	if l.SpatialValues < 1 || l.SpatialValues%2 == 0 {
		return errors.InvalidConfiguration("spatial_values must be a positive odd number, got %d", l.SpatialValues)
	}
	switch l.Policy {
	case "":
		l.Policy = Pad
	case Pad, Resample:
	default:
		return errors.InvalidConfiguration("unknown window policy %q", l.Policy)
	}
	return nil
}

// Extract builds the feature vector for c: for each kind in order, the
// SpatialValues values centered on the reference compartment.
func Extract(c centering.Centered, l Layout) ([]float64, error) {
	ecs, center := c.Potentials, c.Index
	if l.Policy == Resample && len(ecs) < l.SpatialValues {
		var err error
		ecs, center, err = resample(c, l.SpatialValues)
		if err != nil {
			return nil, err
		}
	}

	var fsds, ssds []float64
	out := make([]float64, 0, l.Len())
	for _, k := range l.Kinds {
		var series []float64
		switch k {
		case EC:
			series = ecs
		case FSD:
			if fsds == nil {
				fsds = centering.FirstDifferences(ecs)
			}
			series = fsds
		case SSD:
			if ssds == nil {
				ssds = centering.SecondDifferences(ecs)
			}
			series = ssds
		case ERR:
			series = nil
		default:
			return nil, errors.InvalidConfiguration("unknown feature kind %q", k)
		}
		out = appendWindow(out, series, center, l.SpatialValues)
	}

	if len(out) != l.Len() {
		return nil, errors.FeatureShapeMismatch("fiber "+strconv.Itoa(c.Fiber.Index), l.Len(), len(out))
	}
	return out, nil
}

func appendWindow(dst, series []float64, center, size int) []float64 {
	lower := center - size/2
	for k := 0; k < size; k++ {
		j := lower + k
		if j >= 0 && j < len(series) {
			dst = append(dst, series[j])
		} else {
			dst = append(dst, 0)
		}
	}
	return dst
}

// resample interpolates the potential profile linearly along arc length
// onto n evenly spaced nodes and maps the reference onto the nearest node.
func resample(c centering.Centered, n int) ([]float64, int, error) {
	xs := parameter(c)

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, c.Potentials); err != nil {
		return nil, 0, errors.WithCode(errors.CodeFeatureShapeMismatch, err, "resampling fiber "+strconv.Itoa(c.Fiber.Index))
	}

	total := xs[len(xs)-1]
	out := make([]float64, n)
	for i := range out {
		out[i] = pl.Predict(total * float64(i) / float64(n-1))
	}

	center := int(math.Round(xs[c.Index] / total * float64(n-1)))
	return out, center, nil
}

// parameter returns arc length per compartment, falling back to the
// compartment index when consecutive points coincide.
func parameter(c centering.Centered) []float64 {
	xs := c.Fiber.ArcLengths()
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			for j := range xs {
				xs[j] = float64(j)
			}
			break
		}
	}
	return xs
}
