// Package approach connects a user's coordinate to the nearest reachable
// junction: nearest-edge snapping via an R-tree spatial index, followed by
// a shortest path over the full graph from that edge's endpoints to the
// nearest reachable junction.
package approach

import (
	"errors"
	"math"

	"github.com/tidwall/rtree"

	"windloop/pkg/fullgraph"
	"windloop/pkg/geo"
)

// ErrStartUnreachable is returned when no junction lies within the
// configured approach radius of the snapped starting point.
var ErrStartUnreachable = errors.New("no junction reachable within approach radius")

// DefaultMaxApproachM is the default maximum network distance from the
// user's coordinate to the start junction.
const DefaultMaxApproachM = 5000.0

// Index is a nearest-edge spatial index over a full graph's edges, built
// once per request and used to snap the user's coordinate onto the street
// network (replaces a flat grid index with an R-tree: the same concern,
// a different data structure).
type Index struct {
	fg   *fullgraph.Graph
	tree rtree.RTreeG[uint32] // value is the CSR edge index
}

// Build constructs an Index over every edge of fg.
func Build(fg *fullgraph.Graph) *Index {
	idx := &Index{fg: fg}
	for u := uint32(0); u < fg.NumNodes; u++ {
		start, end := fg.EdgesFrom(u)
		for e := start; e < end; e++ {
			v := fg.Head[e]
			uCoord, vCoord := fg.NodeCoord[u], fg.NodeCoord[v]
			minLat := math.Min(uCoord.Lat, vCoord.Lat)
			minLon := math.Min(uCoord.Lon, vCoord.Lon)
			maxLat := math.Max(uCoord.Lat, vCoord.Lat)
			maxLon := math.Max(uCoord.Lon, vCoord.Lon)
			idx.tree.Insert([2]float64{minLat, minLon}, [2]float64{maxLat, maxLon}, e)
		}
	}
	return idx
}

// snapResult is the nearest street edge to a query coordinate.
type snapResult struct {
	edgeIdx uint32
	nodeU   uint32
	nodeV   uint32
	distM   float64
}

// nearest finds the edge whose segment is closest to coord, expanding the
// search window outward from a small box until at least one candidate is
// found.
func (idx *Index) nearest(coord geo.Coordinate) (snapResult, bool) {
	best := snapResult{distM: math.Inf(1)}
	found := false

	for pad := 0.005; pad <= 2.0; pad *= 4 {
		found = false
		best = snapResult{distM: math.Inf(1)}
		min := [2]float64{coord.Lat - pad, coord.Lon - pad}
		max := [2]float64{coord.Lat + pad, coord.Lon + pad}
		idx.tree.Search(min, max, func(_, _ [2]float64, edgeIdx uint32) bool {
			u := sourceOf(idx.fg, edgeIdx)
			v := idx.fg.Head[edgeIdx]
			dist, _ := geo.PointToSegmentDist(coord, idx.fg.NodeCoord[u], idx.fg.NodeCoord[v])
			if dist < best.distM {
				best = snapResult{edgeIdx: edgeIdx, nodeU: u, nodeV: v, distM: dist}
				found = true
			}
			return true
		})
		if found {
			break
		}
	}
	return best, found
}

func sourceOf(fg *fullgraph.Graph, edgeIdx uint32) uint32 {
	lo, hi := uint32(0), fg.NumNodes
	for lo < hi {
		mid := (lo + hi) / 2
		if fg.FirstOut[mid+1] <= edgeIdx {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Result is a successful approach: the shortest path in the street-level
// graph from the snapped street point to a junction, expressed as
// raw-edge indices in travel order plus the junction reached.
type Result struct {
	JunctionFull uint32
	RawEdges     []uint32
	DistanceM    float64
}

// Find snaps coord onto the street network and runs a single-source
// shortest path to the nearest reachable junction, bounded by maxM.
// Returns ErrStartUnreachable if no junction lies within maxM.
func Find(idx *Index, coord geo.Coordinate, maxM float64) (Result, error) {
	fg := idx.fg
	snap, ok := idx.nearest(coord)
	if !ok {
		return Result{}, ErrStartUnreachable
	}

	dist := make([]float64, fg.NumNodes)
	predEdge := make([]int64, fg.NumNodes)
	visited := make([]bool, fg.NumNodes)
	for i := range dist {
		dist[i] = posInf
		predEdge[i] = -1
	}

	var heap minHeap
	seed := func(node uint32, d float64) {
		if d < dist[node] {
			dist[node] = d
			heap.Push(node, d)
		}
	}
	uD, _ := geo.Distance(coord, fg.NodeCoord[snap.nodeU])
	vD, _ := geo.Distance(coord, fg.NodeCoord[snap.nodeV])
	seed(snap.nodeU, uD)
	seed(snap.nodeV, vD)

	for heap.Len() > 0 {
		item := heap.Pop()
		u := item.node
		if visited[u] {
			continue
		}
		if item.dist > dist[u] {
			continue
		}
		visited[u] = true

		if fg.NodeIsJunction[u] {
			if dist[u] > maxM {
				return Result{}, ErrStartUnreachable
			}
			return Result{
				JunctionFull: u,
				RawEdges:     reconstructPath(fg, predEdge, u),
				DistanceM:    dist[u],
			}, nil
		}
		if dist[u] > maxM {
			continue
		}

		s, e := fg.EdgesFrom(u)
		for ei := s; ei < e; ei++ {
			v := fg.Head[ei]
			if visited[v] {
				continue
			}
			nd := dist[u] + fg.Length[ei]
			if nd < dist[v] {
				dist[v] = nd
				predEdge[v] = int64(ei)
				heap.Push(v, nd)
			}
		}
	}

	return Result{}, ErrStartUnreachable
}

const posInf = 1e18

func reconstructPath(fg *fullgraph.Graph, predEdge []int64, target uint32) []uint32 {
	var revEdges []uint32
	node := target
	for predEdge[node] != -1 {
		ei := uint32(predEdge[node])
		revEdges = append(revEdges, ei)
		node = sourceOf(fg, ei)
	}
	path := make([]uint32, len(revEdges))
	for i, e := range revEdges {
		path[len(revEdges)-1-i] = e
	}
	return path
}
