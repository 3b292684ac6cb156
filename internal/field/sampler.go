package field

import (
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
)

// Conductivity selects the tissue conductance model, and with it the rule
// used to sample the field.
type Conductivity int

const (
	Isotropic Conductivity = iota
	Anisotropic
)

func (c Conductivity) String() string {
	switch c {
	case Isotropic:
		return "isotropic"
	case Anisotropic:
		return "anisotropic"
	}
	return "unknown"
}

// ParseConductivity maps a conductivity name to its type.
func ParseConductivity(name string) (Conductivity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "isotropic":
		return Isotropic, nil
	case "anisotropic":
		return Anisotropic, nil
	}
	return 0, errors.InvalidConfiguration("unknown conductivity %q (want isotropic or anisotropic)", name)
}

// Sampler returns the extracellular potential at a point. Implementations
// are deterministic and safe for concurrent use.
type Sampler interface {
	Potential(p r3.Vec) float64
}

// Neighbors is the number of samples the isotropic rule weights.
const Neighbors = 8

// exactHit is the squared distance below which a query snaps to a sample.
const exactHit = 1e-24

// NewSampler returns the sampler for the given conductivity. The anisotropic
// rule needs the field to be a complete regular grid.
func NewSampler(f *Field, c Conductivity) (Sampler, error) {
	switch c {
	case Isotropic:
		return isotropicSampler{field: f}, nil
	case Anisotropic:
		if f.grid == nil {
			return nil, errors.InvalidConfiguration("anisotropic conductivity needs a field sampled on a complete regular grid (%d samples do not form one)", f.Len())
		}
		return anisotropicSampler{grid: f.grid}, nil
	}
	return nil, errors.InvalidConfiguration("unknown conductivity %d", int(c))
}

// isotropicSampler applies inverse-distance weighting (power 2) over the
// nearest samples in continuous space.
type isotropicSampler struct {
	field *Field
}

func (s isotropicSampler) Potential(p r3.Vec) float64 {
	near := s.field.nearest(p, Neighbors)
	if near[0].Dist <= exactHit {
		return near[0].Comparable.(node).Potential
	}

	var num, den float64
	for _, cd := range near {
		w := 1 / cd.Dist
		num += w * cd.Comparable.(node).Potential
		den += w
	}
	return num / den
}

// anisotropicSampler interpolates trilinearly on the voxel lattice of a
// diffusion-tensor derived field.
type anisotropicSampler struct {
	grid *grid
}

func (s anisotropicSampler) Potential(p r3.Vec) float64 {
	return s.grid.trilinear(p)
}
