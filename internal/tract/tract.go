// Package tract reads tractography fibers from plain-text tract files.
//
// A tract file holds one fiber per line. Each line is a whitespace-separated
// list of floats grouped into consecutive (x, y, z) triples. Blank lines are
// skipped and do not consume a fiber index.
package tract

import (
	"bufio"
	stderrors "errors"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Brownie44l1/fiber-thresholds/internal/errors"
)

// MinPoints is the minimum number of compartments a fiber must have.
const MinPoints = 2

// Fiber is one axon trajectory. Index is its zero-based position in the
// source file and is stable for the whole run.
type Fiber struct {
	Index  int
	Points []r3.Vec
}

// Len returns the number of compartments.
func (f Fiber) Len() int {
	return len(f.Points)
}

// ArcLengths returns the cumulative distance along the fiber at each point,
// starting at 0.
func (f Fiber) ArcLengths() []float64 {
	out := make([]float64, len(f.Points))
	for i := 1; i < len(f.Points); i++ {
		out[i] = out[i-1] + r3.Norm(r3.Sub(f.Points[i], f.Points[i-1]))
	}
	return out
}

// ReadFile loads all fibers from the tract file at path.
func ReadFile(path string) ([]Fiber, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.InputLoad(path, err)
	}
	defer f.Close()

	fibers, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "tract file %s", path)
	}
	return fibers, nil
}

// Parse reads fibers from r. Any malformed line fails the whole parse.
func Parse(r io.Reader) ([]Fiber, error) {
	br := bufio.NewReader(r)
	var fibers []Fiber

	for lineNo := 1; ; lineNo++ {
		line, readErr := br.ReadString('\n')
		if readErr != nil && !stderrors.Is(readErr, io.EOF) {
			return nil, errors.WithCode(errors.CodeInputLoad, readErr, "failed to read tract data")
		}

		fields := strings.Fields(line)
		if len(fields) > 0 {
			fiber, err := parseFiber(fields, len(fibers), lineNo)
			if err != nil {
				return nil, err
			}
			fibers = append(fibers, fiber)
		}

		if readErr != nil {
			break
		}
	}

	return fibers, nil
}

func parseFiber(fields []string, index, lineNo int) (Fiber, error) {
	if len(fields)%3 != 0 {
		return Fiber{}, errors.MalformedFiber("line %d (fiber %d) has %d values, not a multiple of 3", lineNo, index, len(fields))
	}
	if len(fields)/3 < MinPoints {
		return Fiber{}, errors.MalformedFiber("line %d (fiber %d) has %d points, need at least %d", lineNo, index, len(fields)/3, MinPoints)
	}

	points := make([]r3.Vec, len(fields)/3)
	for i := range points {
		var xyz [3]float64
		for j := 0; j < 3; j++ {
			v, err := strconv.ParseFloat(fields[3*i+j], 64)
			if err != nil {
				return Fiber{}, errors.MalformedFiber("line %d (fiber %d) value %d: invalid number %q", lineNo, index, 3*i+j, fields[3*i+j])
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Fiber{}, errors.MalformedFiber("line %d (fiber %d) value %d: coordinate %q is not finite", lineNo, index, 3*i+j, fields[3*i+j])
			}
			xyz[j] = v
		}
		points[i] = r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}

	return Fiber{Index: index, Points: points}, nil
}
