// Package geometry expands a winning junction cycle back into a full
// polyline over the street-level graph.
package geometry

import (
	"windloop/pkg/fullgraph"
	"windloop/pkg/geo"
	"windloop/pkg/junctiongraph"
)

// ExpandEdge returns the coordinate sequence for one junction-graph edge,
// traversed starting at junction index fromJunction (one of e.U, e.V). e's
// RawEdges are stored in a fixed U->V order; if fromJunction is V, the
// raw-edge sequence is walked back to front and each raw edge's own
// direction is reversed (using the opposite-direction edge in the
// street-level graph; where none exists, only the endpoint is emitted).
func ExpandEdge(fg *fullgraph.Graph, jg *junctiongraph.Graph, e junctiongraph.Edge, fromJunction uint32) []geo.Coordinate {
	forward := fromJunction == e.U

	rawEdges := e.RawEdges
	coords := make([]geo.Coordinate, 0, len(rawEdges)+1)

	if forward {
		node := jg.FullIdx[e.U]
		coords = append(coords, fg.NodeCoord[node])
		for _, rawIdx := range rawEdges {
			appendEdgeShape(fg, rawIdx, &coords)
			node = fg.Head[rawIdx]
			coords = append(coords, fg.NodeCoord[node])
		}
		return coords
	}

	// Reverse traversal: walk RawEdges back to front. Each raw edge is
	// directional U->V in the street-level graph, so we use the reverse
	// edge covering the same segment, found by scanning the target's
	// outgoing edges.
	node := jg.FullIdx[e.V]
	coords = append(coords, fg.NodeCoord[node])
	for i := len(rawEdges) - 1; i >= 0; i-- {
		revIdx, ok := reverseOf(fg, rawEdges[i])
		if !ok {
			// Degenerate case: asymmetric input graph. Fall back to the
			// straight-line endpoint without intermediate shape points.
			node = sourceOf(fg, rawEdges[i])
			coords = append(coords, fg.NodeCoord[node])
			continue
		}
		appendEdgeShape(fg, revIdx, &coords)
		node = fg.Head[revIdx]
		coords = append(coords, fg.NodeCoord[node])
	}
	return coords
}

func appendEdgeShape(fg *fullgraph.Graph, edgeIdx uint32, coords *[]geo.Coordinate) {
	s, e := fg.GeoFirstOut[edgeIdx], fg.GeoFirstOut[edgeIdx+1]
	*coords = append(*coords, fg.GeoShape[s:e]...)
}

// reverseOf finds the edge index from Head[edgeIdx] back to sourceOf(edgeIdx).
// Returns ok=false when fg has no edge from v to u, as for a one-way
// street segment.
func reverseOf(fg *fullgraph.Graph, edgeIdx uint32) (uint32, bool) {
	u := sourceOf(fg, edgeIdx)
	v := fg.Head[edgeIdx]
	start, end := fg.EdgesFrom(v)
	for ei := start; ei < end; ei++ {
		if fg.Head[ei] == u {
			return ei, true
		}
	}
	return 0, false
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

// ExpandCycle expands a full junction cycle (a path of junction indices
// beginning and ending with the start junction, as produced by
// loopsearch.Candidate.Path) into one continuous polyline. Consecutive
// edges are spliced at their shared endpoint so no coordinate is
// duplicated at a joint.
func ExpandCycle(fg *fullgraph.Graph, jg *junctiongraph.Graph, path []uint32) []geo.Coordinate {
	if len(path) < 2 {
		return nil
	}

	var out []geo.Coordinate
	for i := 0; i+1 < len(path); i++ {
		u, v := path[i], path[i+1]
		edgeIdx, ok := edgeBetween(jg, u, v)
		if !ok {
			continue
		}
		seg := ExpandEdge(fg, jg, jg.Edges[edgeIdx], u)
		if i > 0 && len(out) > 0 && len(seg) > 0 {
			seg = seg[1:] // drop the duplicate shared endpoint
		}
		out = append(out, seg...)
	}
	return out
}

func edgeBetween(jg *junctiongraph.Graph, u, v uint32) (uint32, bool) {
	for _, nb := range jg.Neighbors(u) {
		if nb.Neighbor == v {
			return nb.EdgeIdx, true
		}
	}
	return 0, false
}
