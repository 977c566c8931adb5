package fullgraph

import (
	"log"
	"sort"

	"windloop/pkg/geo"
	"windloop/pkg/network"
)

// Build creates a CSR Graph from a network.RawNetwork. It deduplicates
// nodes by identifier, drops zero-length edges and edges whose endpoints
// are missing from the node set, and compacts everything into dense
// uint32 indices.
func Build(raw *network.RawNetwork) *Graph {
	if raw == nil || len(raw.Nodes) == 0 {
		return &Graph{idIndex: map[network.NodeID]uint32{}}
	}

	// Deduplicate nodes by identifier, keeping the first occurrence.
	nodes := make([]network.RawNode, 0, len(raw.Nodes))
	nodeIndex := make(map[network.NodeID]uint32, len(raw.Nodes))
	for _, n := range raw.Nodes {
		if _, dup := nodeIndex[n.ID]; dup {
			continue
		}
		nodeIndex[n.ID] = uint32(len(nodes))
		nodes = append(nodes, n)
	}
	numNodes := uint32(len(nodes))

	type compactEdge struct {
		from, to   uint32
		length     float64
		bearing    float64
		shapeCoord []geo.Coordinate
	}

	compact := make([]compactEdge, 0, len(raw.Edges))
	var dropped int
	for _, e := range raw.Edges {
		fromIdx, fromOk := nodeIndex[e.FromID]
		toIdx, toOk := nodeIndex[e.ToID]
		if !fromOk || !toOk {
			dropped++
			continue
		}
		if e.LengthM <= 0 {
			dropped++
			continue
		}
		bearing := e.BearingDeg
		if bearing < 0 || bearing >= 360 {
			bearing = normalizeDeg(bearing)
		}

		var shape []geo.Coordinate
		if len(e.Polyline) > 2 {
			shape = make([]geo.Coordinate, 0, len(e.Polyline)-2)
			for _, id := range e.Polyline[1 : len(e.Polyline)-1] {
				if idx, ok := nodeIndex[id]; ok {
					shape = append(shape, nodes[idx].Coord)
				}
			}
		}

		compact = append(compact, compactEdge{
			from: fromIdx, to: toIdx,
			length: e.LengthM, bearing: bearing,
			shapeCoord: shape,
		})
	}

	sort.Slice(compact, func(i, j int) bool {
		if compact[i].from != compact[j].from {
			return compact[i].from < compact[j].from
		}
		return compact[i].to < compact[j].to
	})

	numEdges := uint32(len(compact))
	firstOut := make([]uint32, numNodes+1)
	head := make([]uint32, numEdges)
	length := make([]float64, numEdges)
	bearing := make([]float64, numEdges)
	geoFirstOut := make([]uint32, numEdges+1)
	var geoShape []geo.Coordinate

	for i, e := range compact {
		head[i] = e.to
		length[i] = e.length
		bearing[i] = e.bearing
		geoFirstOut[i] = uint32(len(geoShape))
		geoShape = append(geoShape, e.shapeCoord...)
	}
	geoFirstOut[numEdges] = uint32(len(geoShape))

	for _, e := range compact {
		firstOut[e.from+1]++
	}
	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	nodeID := make([]network.NodeID, numNodes)
	nodeCoord := make([]geo.Coordinate, numNodes)
	nodeIsJunction := make([]bool, numNodes)
	nodeLabel := make([]string, numNodes)
	for i, n := range nodes {
		nodeID[i] = n.ID
		nodeCoord[i] = n.Coord
		nodeIsJunction[i] = n.IsJunction
		nodeLabel[i] = n.Label
	}

	if dropped > 0 {
		log.Printf("fullgraph: dropped %d edges (missing endpoint or zero length)", dropped)
	}

	return &Graph{
		NumNodes:       numNodes,
		NumEdges:       numEdges,
		FirstOut:       firstOut,
		Head:           head,
		Length:         length,
		Bearing:        bearing,
		NodeID:         nodeID,
		NodeCoord:      nodeCoord,
		NodeIsJunction: nodeIsJunction,
		NodeLabel:      nodeLabel,
		GeoFirstOut:    geoFirstOut,
		GeoShape:       geoShape,
		idIndex:        nodeIndex,
	}
}

// AttachIndex rebuilds g's NodeID lookup index from its NodeID slice. Used
// by graphcache after deserializing a Graph whose idIndex is not persisted
// (it is cheaper to rebuild than to serialize a map).
func AttachIndex(g *Graph) {
	idx := make(map[network.NodeID]uint32, len(g.NodeID))
	for i, id := range g.NodeID {
		idx[id] = uint32(i)
	}
	g.idIndex = idx
}

func normalizeDeg(d float64) float64 {
	for d < 0 {
		d += 360
	}
	for d >= 360 {
		d -= 360
	}
	return d
}

// Junctions returns the internal node indices of every junction in g.
func Junctions(g *Graph) []uint32 {
	var js []uint32
	for i := uint32(0); i < g.NumNodes; i++ {
		if g.NodeIsJunction[i] {
			js = append(js, i)
		}
	}
	return js
}
