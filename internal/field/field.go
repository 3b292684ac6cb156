// Package field loads electrode potential fields and samples them at
// arbitrary points under an isotropic or anisotropic conductivity model.
package field

import (
	"bufio"
	stderrors "errors"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
)

// Sample is one field value at a point.
type Sample struct {
	Pos       r3.Vec
	Potential float64
}

// Field is an immutable set of potential samples with the lookup
// structures built once at load time.
type Field struct {
	samples []Sample
	tree    *kdtree.Tree
	grid    *grid // nil unless the samples form a complete regular grid
}

// ReadFile loads a field from a text file with one "x y z potential"
// sample per line. Blank lines and lines starting with '#' are ignored.
func ReadFile(path string) (*Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.InputLoad(path, err)
	}
	defer f.Close()

	field, err := Parse(f)
	if err != nil {
		return nil, errors.WithCode(errors.CodeInputLoad, err, "electrode file "+path)
	}
	return field, nil
}

// Parse reads field samples from r.
func Parse(r io.Reader) (*Field, error) {
	br := bufio.NewReader(r)
	var samples []Sample

	for lineNo := 1; ; lineNo++ {
		line, readErr := br.ReadString('\n')
		if readErr != nil && !stderrors.Is(readErr, io.EOF) {
			return nil, errors.WithCode(errors.CodeInputLoad, readErr, "failed to read field data")
		}

		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			s, err := parseSample(trimmed, lineNo)
			if err != nil {
				return nil, err
			}
			samples = append(samples, s)
		}

		if readErr != nil {
			break
		}
	}

	return New(samples)
}

func parseSample(line string, lineNo int) (Sample, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Sample{}, errors.Newf(errors.CodeInputLoad, "line %d: expected 4 values (x y z potential), got %d", lineNo, len(fields))
	}
	var v [4]float64
	for i, tok := range fields {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return Sample{}, errors.Newf(errors.CodeInputLoad, "line %d: invalid number %q", lineNo, tok)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Sample{}, errors.Newf(errors.CodeInputLoad, "line %d: value %q is not finite", lineNo, tok)
		}
		v[i] = f
	}
	return Sample{Pos: r3.Vec{X: v[0], Y: v[1], Z: v[2]}, Potential: v[3]}, nil
}

// New builds a field from samples. The slice is copied.
func New(samples []Sample) (*Field, error) {
	if len(samples) == 0 {
		return nil, errors.New(errors.CodeInputLoad, "field has no samples")
	}

	own := make([]Sample, len(samples))
	copy(own, samples)

	nodes := make(nodeList, len(own))
	for i, s := range own {
		nodes[i] = node(s)
	}

	return &Field{
		samples: own,
		tree:    kdtree.New(nodes, false),
		grid:    detectGrid(own),
	}, nil
}

// Len returns the number of samples.
func (f *Field) Len() int {
	return len(f.samples)
}

// IsGrid reports whether the samples form a complete regular grid.
func (f *Field) IsGrid() bool {
	return f.grid != nil
}

// Bounds returns the axis-aligned bounding box of the samples.
func (f *Field) Bounds() (lo, hi r3.Vec) {
	lo, hi = f.samples[0].Pos, f.samples[0].Pos
	for _, s := range f.samples[1:] {
		lo = r3.Vec{X: min(lo.X, s.Pos.X), Y: min(lo.Y, s.Pos.Y), Z: min(lo.Z, s.Pos.Z)}
		hi = r3.Vec{X: max(hi.X, s.Pos.X), Y: max(hi.Y, s.Pos.Y), Z: max(hi.Z, s.Pos.Z)}
	}
	return lo, hi
}

// nearest returns up to k samples closest to p with their squared distances,
// closest first.
func (f *Field) nearest(p r3.Vec, k int) []kdtree.ComparableDist {
	keeper := kdtree.NewNKeeper(k)
	f.tree.NearestSet(keeper, node{Pos: p})

	out := make([]kdtree.ComparableDist, 0, k)
	for _, cd := range keeper.Heap {
		if cd.Comparable != nil {
			out = append(out, cd)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Dist < out[j].Dist })
	return out
}
