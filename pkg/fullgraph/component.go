package fullgraph

import (
	"windloop/pkg/geo"
	"windloop/pkg/network"
)

// unionFind implements a disjoint-set structure with path halving and union
// by rank, used to find the connected component containing a given node
// (so planning stays within the start's own component) and the largest
// component of a graph.
type unionFind struct {
	parent []uint32
	rank   []byte
	size   []uint32
}

func newUnionFind(n uint32) *unionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &unionFind{parent: parent, rank: make([]byte, n), size: size}
}

func (uf *unionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) Union(x, y uint32) bool {
	rx, ry := uf.Find(x), uf.Find(y)
	if rx == ry {
		return false
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// ComponentContaining returns the node indices of the weakly connected
// component (treating directed edges as undirected) that contains start.
func ComponentContaining(g *Graph, start uint32) []uint32 {
	if g.NumNodes == 0 {
		return nil
	}
	uf := newUnionFind(g.NumNodes)
	for u := uint32(0); u < g.NumNodes; u++ {
		s, e := g.EdgesFrom(u)
		for ei := s; ei < e; ei++ {
			uf.Union(u, g.Head[ei])
		}
	}
	root := uf.Find(start)
	nodes := make([]uint32, 0, uf.size[root])
	for i := uint32(0); i < g.NumNodes; i++ {
		if uf.Find(i) == root {
			nodes = append(nodes, i)
		}
	}
	return nodes
}

// LargestComponent returns the node indices of the largest weakly connected
// component in g, used by offline preprocessing to discard small fragments
// (a short disconnected service road, a data-extract seam) before the
// junction condensation runs.
func LargestComponent(g *Graph) []uint32 {
	if g.NumNodes == 0 {
		return nil
	}
	uf := newUnionFind(g.NumNodes)
	for u := uint32(0); u < g.NumNodes; u++ {
		s, e := g.EdgesFrom(u)
		for ei := s; ei < e; ei++ {
			uf.Union(u, g.Head[ei])
		}
	}
	bestRoot, bestSize := uint32(0), uint32(0)
	for i := uint32(0); i < g.NumNodes; i++ {
		root := uf.Find(i)
		if uf.size[root] > bestSize {
			bestRoot, bestSize = root, uf.size[root]
		}
	}
	nodes := make([]uint32, 0, bestSize)
	for i := uint32(0); i < g.NumNodes; i++ {
		if uf.Find(i) == bestRoot {
			nodes = append(nodes, i)
		}
	}
	return nodes
}

// FilterToComponent creates a new graph containing only the given node
// indices and the edges fully within that set, renumbering nodes densely.
func FilterToComponent(g *Graph, nodes []uint32) *Graph {
	if len(nodes) == 0 {
		return &Graph{idIndex: map[network.NodeID]uint32{}}
	}

	oldToNew := make(map[uint32]uint32, len(nodes))
	for newIdx, oldIdx := range nodes {
		oldToNew[oldIdx] = uint32(newIdx)
	}
	numNodes := uint32(len(nodes))

	type edge struct {
		from, to   uint32
		length     float64
		bearing    float64
		shapeCoord []geo.Coordinate
	}
	var edges []edge
	for _, oldU := range nodes {
		s, e := g.EdgesFrom(oldU)
		for ei := s; ei < e; ei++ {
			oldV := g.Head[ei]
			newV, ok := oldToNew[oldV]
			if !ok {
				continue
			}
			var shape []geo.Coordinate
			if g.GeoFirstOut != nil {
				gs, ge := g.GeoFirstOut[ei], g.GeoFirstOut[ei+1]
				if ge > gs {
					shape = append([]geo.Coordinate{}, g.GeoShape[gs:ge]...)
				}
			}
			edges = append(edges, edge{
				from: oldToNew[oldU], to: newV,
				length: g.Length[ei], bearing: g.Bearing[ei],
				shapeCoord: shape,
			})
		}
	}

	numEdges := uint32(len(edges))
	firstOut := make([]uint32, numNodes+1)
	head := make([]uint32, numEdges)
	length := make([]float64, numEdges)
	bearing := make([]float64, numEdges)
	geoFirstOut := make([]uint32, numEdges+1)
	var geoShape []geo.Coordinate

	for _, e := range edges {
		firstOut[e.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	pos := make([]uint32, numNodes)
	copy(pos, firstOut[:numNodes])
	for _, e := range edges {
		idx := pos[e.from]
		head[idx] = e.to
		length[idx] = e.length
		bearing[idx] = e.bearing
		geoFirstOut[idx] = uint32(len(geoShape))
		geoShape = append(geoShape, e.shapeCoord...)
		pos[e.from]++
	}
	geoFirstOut[numEdges] = uint32(len(geoShape))

	nodeID := make([]network.NodeID, numNodes)
	nodeCoord := make([]geo.Coordinate, numNodes)
	nodeIsJunction := make([]bool, numNodes)
	nodeLabel := make([]string, numNodes)
	idIndex := make(map[network.NodeID]uint32, numNodes)
	for newIdx, oldIdx := range nodes {
		nodeID[newIdx] = g.NodeID[oldIdx]
		nodeCoord[newIdx] = g.NodeCoord[oldIdx]
		nodeIsJunction[newIdx] = g.NodeIsJunction[oldIdx]
		nodeLabel[newIdx] = g.NodeLabel[oldIdx]
		idIndex[g.NodeID[oldIdx]] = uint32(newIdx)
	}

	return &Graph{
		NumNodes: numNodes, NumEdges: numEdges,
		FirstOut: firstOut, Head: head, Length: length, Bearing: bearing,
		NodeID: nodeID, NodeCoord: nodeCoord, NodeIsJunction: nodeIsJunction, NodeLabel: nodeLabel,
		GeoFirstOut: geoFirstOut, GeoShape: geoShape,
		idIndex: idIndex,
	}
}
