package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Brownie44l1/fiber-thresholds/internal/centering"
	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
	"github.com/Brownie44l1/fiber-thresholds/internal/tract"
)

func centered(index int, ecs []float64) centering.Centered {
	pts := make([]r3.Vec, len(ecs))
	for i := range pts {
		pts[i] = r3.Vec{X: float64(i)}
	}
	return centering.Centered{
		Fiber:      tract.Fiber{Index: 0, Points: pts},
		Potentials: ecs,
		Index:      index,
	}
}

func TestLayoutValidate(t *testing.T) {
	tests := []struct {
		name    string
		layout  Layout
		wantErr bool
	}{
		{"ok", Layout{Kinds: []Kind{EC, SSD}, SpatialValues: 11}, false},
		{"resample", Layout{Kinds: []Kind{FSD}, SpatialValues: 3, Policy: Resample}, false},
		{"no kinds", Layout{SpatialValues: 11}, true},
		{"even window", Layout{Kinds: []Kind{EC}, SpatialValues: 10}, true},
		{"zero window", Layout{Kinds: []Kind{EC}, SpatialValues: 0}, true},
		{"bad kind", Layout{Kinds: []Kind{"voltage"}, SpatialValues: 3}, true},
		{"bad policy", Layout{Kinds: []Kind{EC}, SpatialValues: 3, Policy: "truncate"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layout.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CodeInvalidConfiguration, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tt.layout.Policy)
		})
	}
}

func TestExtractWindow(t *testing.T) {
	layout := Layout{Kinds: []Kind{EC, FSD, SSD, ERR}, SpatialValues: 3, Policy: Pad}

	got, err := Extract(centered(2, []float64{1, 2, 3, 4, 5}), layout)
	require.NoError(t, err)
	assert.Equal(t, []float64{
		2, 3, 4, // ec
		1, 1, 1, // fsd
		0, 0, 0, // ssd
		0, 0, 0, // err
	}, got)
	assert.Len(t, got, layout.Len())
}

func TestExtractPadsAtFiberEnds(t *testing.T) {
	layout := Layout{Kinds: []Kind{EC}, SpatialValues: 5, Policy: Pad}

	got, err := Extract(centered(0, []float64{5, 5, 5}), layout)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 5, 5, 5}, got)

	got, err = Extract(centered(2, []float64{5, 6, 7}), layout)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6, 7, 0, 0}, got)
}

func TestExtractResamplesShortFibers(t *testing.T) {
	layout := Layout{Kinds: []Kind{EC}, SpatialValues: 5, Policy: Resample}
	c := centering.Centered{
		Fiber:      tract.Fiber{Points: []r3.Vec{{}, {X: 2}}},
		Potentials: []float64{0, 2},
		Index:      1,
	}

	got, err := Extract(c, layout)
	require.NoError(t, err)
	// resampled to 0, 0.5, 1, 1.5, 2 with the reference on the last node
	assert.InDeltaSlice(t, []float64{1, 1.5, 2, 0, 0}, got, 1e-12)
}

func TestExtractResampleSkipsLongFibers(t *testing.T) {
	layout := Layout{Kinds: []Kind{EC}, SpatialValues: 3, Policy: Resample}

	got, err := Extract(centered(1, []float64{3, 1, 4, 1}), layout)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 4}, got)
}

func TestExtractResampleCoincidentPoints(t *testing.T) {
	layout := Layout{Kinds: []Kind{EC}, SpatialValues: 3, Policy: Resample}
	c := centering.Centered{
		Fiber:      tract.Fiber{Points: []r3.Vec{{X: 1}, {X: 1}}},
		Potentials: []float64{4, 8},
		Index:      0,
	}

	got, err := Extract(c, layout)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 4, 6}, got, 1e-12)
}

func TestExtractIsDeterministic(t *testing.T) {
	layout := Layout{Kinds: []Kind{EC, SSD}, SpatialValues: 5, Policy: Pad}
	c := centered(3, []float64{0.3, 0.1, -0.2, -0.9, -0.4, 0.0, 0.2})

	a, err := Extract(c, layout)
	require.NoError(t, err)
	b, err := Extract(c, layout)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
