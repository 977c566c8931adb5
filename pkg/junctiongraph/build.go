package junctiongraph

import (
	"log"

	"windloop/pkg/fullgraph"
	"windloop/pkg/geo"
)

type pairKey struct{ a, b uint32 }

func canonicalPair(a, b uint32) pairKey {
	if a < b {
		return pairKey{a, b}
	}
	return pairKey{b, a}
}

// Build condenses a fullgraph.Graph into a junction graph. For every
// junction j it runs a single-source search that halts expansion at any
// other junction it reaches: the search settles j's immediate junction
// neighbours and their shortest junction-free paths without ever exploring
// past a second junction, so each resulting edge is a genuine corridor of
// the physical network.
func Build(fg *fullgraph.Graph) *Graph {
	junctions := fullgraph.Junctions(fg)
	numJ := uint32(len(junctions))

	fullToJunction := make(map[uint32]uint32, numJ)
	for idx, fullIdx := range junctions {
		fullToJunction[fullIdx] = uint32(idx)
	}

	coord := make([]geo.Coordinate, numJ)
	label := make([]string, numJ)
	for idx, fullIdx := range junctions {
		coord[idx] = fg.NodeCoord[fullIdx]
		label[idx] = fg.NodeLabel[fullIdx]
	}

	edgeOf := make(map[pairKey]int)
	var edges []Edge
	adj := make([][]AdjEntry, numJ)

	dist := make([]float64, fg.NumNodes)
	predEdge := make([]int64, fg.NumNodes) // fullgraph edge idx into predecessor, -1 = none
	visited := make([]bool, fg.NumNodes)
	var heap minHeap

	for jIdx, jFull := range junctions {
		for i := range dist {
			dist[i] = posInf
			predEdge[i] = -1
			visited[i] = false
		}
		dist[jFull] = 0
		heap.Reset()
		heap.Push(jFull, 0)

		for heap.Len() > 0 {
			item := heap.Pop()
			u := item.node
			if visited[u] {
				continue
			}
			if item.dist > dist[u] {
				continue
			}

			if u != jFull && fg.NodeIsJunction[u] {
				visited[u] = true
				vJunction := fullToJunction[u]
				uJunction := uint32(jIdx)
				key := canonicalPair(uJunction, vJunction)

				length := dist[u]
				rawPath := reconstructPath(fg, predEdge, u)

				if existingIdx, ok := edgeOf[key]; ok {
					if length < edges[existingIdx].LengthM {
						// rawPath runs uJunction->vJunction; Edge.RawEdges must
						// stay in the edge's own U->V order regardless of which
						// junction's search found the shorter path.
						orderedPath := rawPath
						if edges[existingIdx].U != uJunction {
							if reversed, ok := reverseRawEdges(fg, rawPath); ok {
								orderedPath = reversed
							} else {
								orderedPath = nil
							}
						}
						if orderedPath != nil {
							edges[existingIdx].LengthM = length
							edges[existingIdx].RawEdges = orderedPath
							edges[existingIdx].EffortUV = length
							edges[existingIdx].EffortVU = length
						}
					}
					continue
				}

				bearing, _ := geo.Bearing(coord[uJunction], coord[vJunction])
				edgeIdx := uint32(len(edges))
				edges = append(edges, Edge{
					U: uJunction, V: vJunction,
					LengthM: length, BearingDeg: bearing,
					RawEdges: rawPath, EffortUV: length, EffortVU: length,
				})
				edgeOf[key] = int(edgeIdx)
				adj[uJunction] = append(adj[uJunction], AdjEntry{Neighbor: vJunction, EdgeIdx: edgeIdx})
				adj[vJunction] = append(adj[vJunction], AdjEntry{Neighbor: uJunction, EdgeIdx: edgeIdx})
				continue
			}

			visited[u] = true
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
	}

	log.Printf("junctiongraph: condensed %d junctions into %d corridor edges", numJ, len(edges))

	return &Graph{
		NumJunctions:   numJ,
		FullIdx:        junctions,
		Coord:          coord,
		Label:          label,
		Edges:          edges,
		adj:            adj,
		fullToJunction: fullToJunction,
	}
}

const posInf = 1e18

// reconstructPath walks predEdge backward from target to the search root,
// returning the raw fullgraph edge indices in root->target order.
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

// reverseRawEdges reverses a root->target raw-edge path into target->root
// order, swapping each segment for its opposite-direction CSR edge. Returns
// ok=false if some segment has no reverse edge in fg, which a symmetric
// street network never exhibits but an asymmetric or malformed extract
// might.
func reverseRawEdges(fg *fullgraph.Graph, path []uint32) ([]uint32, bool) {
	reversed := make([]uint32, len(path))
	for i, ei := range path {
		u, v := sourceOf(fg, ei), fg.Head[ei]
		s, e := fg.EdgesFrom(v)
		found := false
		for revEi := s; revEi < e; revEi++ {
			if fg.Head[revEi] == u {
				reversed[len(path)-1-i] = revEi
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return reversed, true
}

// sourceOf finds the source node of a CSR edge index via binary search over
// FirstOut.
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
