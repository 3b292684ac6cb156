package field

import (
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// node adapts a Sample to kdtree.Comparable. Only the position takes part
// in comparisons and distances.
type node Sample

func (n node) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(node)
	switch d {
	case 0:
		return n.Pos.X - q.Pos.X
	case 1:
		return n.Pos.Y - q.Pos.Y
	case 2:
		return n.Pos.Z - q.Pos.Z
	}
	panic("field: illegal dimension")
}

func (n node) Dims() int { return 3 }

// Distance returns the squared Euclidean distance, as kdtree expects.
func (n node) Distance(c kdtree.Comparable) float64 {
	q := c.(node)
	return r3.Norm2(r3.Sub(n.Pos, q.Pos))
}

type nodeList []node

func (l nodeList) Index(i int) kdtree.Comparable { return l[i] }
func (l nodeList) Len() int                      { return len(l) }
func (l nodeList) Slice(start, end int) kdtree.Interface {
	return l[start:end]
}
func (l nodeList) Pivot(d kdtree.Dim) int {
	return nodePlane{Dim: d, nodeList: l}.Pivot()
}

// nodePlane sorts a nodeList along one dimension.
type nodePlane struct {
	kdtree.Dim
	nodeList
}

func (p nodePlane) Less(i, j int) bool {
	return p.nodeList[i].Compare(p.nodeList[j], p.Dim) < 0
}
func (p nodePlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p nodePlane) Slice(start, end int) kdtree.SortSlicer {
	return nodePlane{Dim: p.Dim, nodeList: p.nodeList[start:end]}
}
func (p nodePlane) Swap(i, j int) {
	p.nodeList[i], p.nodeList[j] = p.nodeList[j], p.nodeList[i]
}
