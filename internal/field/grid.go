package field

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// grid is a dense regular lattice of potentials, indexed [ix][iy][iz] in
// row-major order over sorted axis coordinates.
type grid struct {
	xs, ys, zs []float64
	values     []float64
}

// detectGrid returns a grid if every combination of the distinct axis
// coordinates appears exactly once among the samples.
func detectGrid(samples []Sample) *grid {
	xs := uniqueSorted(samples, func(p r3.Vec) float64 { return p.X })
	ys := uniqueSorted(samples, func(p r3.Vec) float64 { return p.Y })
	zs := uniqueSorted(samples, func(p r3.Vec) float64 { return p.Z })

	if len(xs)*len(ys)*len(zs) != len(samples) {
		return nil
	}

	g := &grid{xs: xs, ys: ys, zs: zs, values: make([]float64, len(samples))}
	filled := make([]bool, len(samples))
	for _, s := range samples {
		idx := g.offset(
			sort.SearchFloat64s(xs, s.Pos.X),
			sort.SearchFloat64s(ys, s.Pos.Y),
			sort.SearchFloat64s(zs, s.Pos.Z),
		)
		if filled[idx] {
			return nil
		}
		filled[idx] = true
		g.values[idx] = s.Potential
	}
	return g
}

func uniqueSorted(samples []Sample, axis func(r3.Vec) float64) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, s := range samples {
		v := axis(s.Pos)
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func (g *grid) offset(ix, iy, iz int) int {
	return (ix*len(g.ys)+iy)*len(g.zs) + iz
}

func (g *grid) at(ix, iy, iz int) float64 {
	return g.values[g.offset(ix, iy, iz)]
}

// trilinear interpolates the lattice at p. Coordinates outside the lattice
// are clamped to its faces.
func (g *grid) trilinear(p r3.Vec) float64 {
	ix, tx := cell(g.xs, p.X)
	iy, ty := cell(g.ys, p.Y)
	iz, tz := cell(g.zs, p.Z)

	jx, jy, jz := next(g.xs, ix), next(g.ys, iy), next(g.zs, iz)

	c00 := lerp(g.at(ix, iy, iz), g.at(jx, iy, iz), tx)
	c10 := lerp(g.at(ix, jy, iz), g.at(jx, jy, iz), tx)
	c01 := lerp(g.at(ix, iy, jz), g.at(jx, iy, jz), tx)
	c11 := lerp(g.at(ix, jy, jz), g.at(jx, jy, jz), tx)

	c0 := lerp(c00, c10, ty)
	c1 := lerp(c01, c11, ty)
	return lerp(c0, c1, tz)
}

// cell returns the lower lattice index for v and the fractional position
// towards the next index.
func cell(axis []float64, v float64) (int, float64) {
	n := len(axis)
	if n == 1 || v <= axis[0] {
		return 0, 0
	}
	if v >= axis[n-1] {
		return n - 1, 0
	}
	i := sort.SearchFloat64s(axis, v)
	if axis[i] == v {
		return i, 0
	}
	i--
	return i, (v - axis[i]) / (axis[i+1] - axis[i])
}

func next(axis []float64, i int) int {
	if i+1 < len(axis) {
		return i + 1
	}
	return i
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
