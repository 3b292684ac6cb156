// Package centering picks, for each fiber, the compartment where an action
// potential is expected to initiate and re-expresses the fiber around it.
package centering

import (
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
	"github.com/Brownie44l1/fiber-thresholds/internal/field"
	"github.com/Brownie44l1/fiber-thresholds/internal/tract"
)

// Strategy is a closed set of reference selection rules.
type Strategy int

const (
	// MinECS centers on the compartment with the lowest extracellular potential.
	MinECS Strategy = iota
	// MaxSSD centers on the interior compartment with the largest second
	// spatial derivative of the potential.
	MaxSSD
)

var strategies = map[string]Strategy{
	"min_ecs": MinECS,
	"ec":      MinECS,
	"max_ssd": MaxSSD,
	"ssd":     MaxSSD,
}

func (s Strategy) String() string {
	switch s {
	case MinECS:
		return "min_ecs"
	case MaxSSD:
		return "max_ssd"
	}
	return "unknown"
}

// ParseStrategy resolves a strategy name. Unknown names are rejected so a
// run fails before any fiber is processed.
func ParseStrategy(name string) (Strategy, error) {
	if s, ok := strategies[strings.ToLower(strings.TrimSpace(name))]; ok {
		return s, nil
	}
	return 0, errors.InvalidConfiguration("unknown centering strategy %q (want min_ecs or max_ssd)", name)
}

// Centered is a fiber together with its sampled potentials and the index of
// its reference compartment.
type Centered struct {
	Fiber      tract.Fiber
	Potentials []float64
	Index      int
}

// Reference returns the position of the reference compartment.
func (c Centered) Reference() r3.Vec {
	return c.Fiber.Points[c.Index]
}

// Relative returns the fiber's points translated so the reference
// compartment sits at the origin.
func (c Centered) Relative() []r3.Vec {
	ref := c.Reference()
	out := make([]r3.Vec, len(c.Fiber.Points))
	for i, p := range c.Fiber.Points {
		out[i] = r3.Sub(p, ref)
	}
	return out
}

// Valid reports whether a window of spatialValues compartments, plus one
// neighbour on each side for the derivatives, fits inside the fiber around
// the reference.
func (c Centered) Valid(spatialValues int) bool {
	bound := spatialValues / 2
	n := len(c.Potentials)
	return c.Index >= bound+1 && n-1-c.Index >= bound+1
}

// Center samples the potential at every compartment and selects the
// reference compartment. Ties go to the lowest index. The result depends
// only on the fiber, the sampler and the strategy.
func Center(fiber tract.Fiber, sampler field.Sampler, strategy Strategy) (Centered, error) {
	ecs := Potentials(fiber, sampler)

	var idx int
	switch strategy {
	case MinECS:
		idx = argMin(ecs)
	case MaxSSD:
		if len(ecs) < 3 {
			return Centered{}, errors.MalformedFiber("fiber %d has %d compartments, %s needs at least 3", fiber.Index, len(ecs), strategy)
		}
		idx = argMaxInterior(SecondDifferences(ecs))
	default:
		return Centered{}, errors.InvalidConfiguration("unknown centering strategy %d", int(strategy))
	}

	return Centered{Fiber: fiber, Potentials: ecs, Index: idx}, nil
}

// Potentials samples the extracellular potential at each compartment.
func Potentials(fiber tract.Fiber, sampler field.Sampler) []float64 {
	ecs := make([]float64, len(fiber.Points))
	for i, p := range fiber.Points {
		ecs[i] = sampler.Potential(p)
	}
	return ecs
}

// FirstDifferences returns (v[i+1]-v[i-1])/2 at interior points and 0 at
// both ends.
func FirstDifferences(v []float64) []float64 {
	out := make([]float64, len(v))
	for i := 1; i < len(v)-1; i++ {
		out[i] = (v[i+1] - v[i-1]) / 2
	}
	return out
}

// SecondDifferences returns v[i-1]-2v[i]+v[i+1] at interior points and 0 at
// both ends.
func SecondDifferences(v []float64) []float64 {
	out := make([]float64, len(v))
	for i := 1; i < len(v)-1; i++ {
		out[i] = v[i-1] - 2*v[i] + v[i+1]
	}
	return out
}

func argMin(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] < v[best] {
			best = i
		}
	}
	return best
}

func argMaxInterior(v []float64) int {
	best := 1
	for i := 2; i < len(v)-1; i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
