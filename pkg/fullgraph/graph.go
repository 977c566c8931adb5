// Package fullgraph builds and represents the street-level directed
// multigraph derived from a network.Loader's raw nodes and edges. Nodes
// are compacted to dense uint32 indices and edges are stored in CSR
// (Compressed Sparse Row) form.
package fullgraph

import (
	"windloop/pkg/geo"
	"windloop/pkg/network"
)

// Graph is a directed graph in CSR format. Edge index doubles as the raw
// edge identifier referenced by a junction graph edge's path.
type Graph struct {
	NumNodes uint32
	NumEdges uint32

	FirstOut []uint32 // len NumNodes+1; FirstOut[i]..FirstOut[i+1] are edges from node i
	Head     []uint32 // len NumEdges; target node index for each edge
	Length   []float64
	Bearing  []float64 // initial bearing in [0, 360) for each edge

	NodeID         []network.NodeID // original loader-assigned ID, len NumNodes
	NodeCoord      []geo.Coordinate
	NodeIsJunction []bool
	NodeLabel      []string

	// Edge geometry: intermediate shape nodes for polyline expansion.
	// GeoFirstOut[i]..GeoFirstOut[i+1] indexes into GeoShape for edge i.
	GeoFirstOut []uint32
	GeoShape    []geo.Coordinate

	idIndex map[network.NodeID]uint32
}

// EdgesFrom returns the range of edge indices for edges originating from
// node u.
func (g *Graph) EdgesFrom(u uint32) (start, end uint32) {
	return g.FirstOut[u], g.FirstOut[u+1]
}

// IndexOf returns the internal node index for a raw NodeID, or
// (0, false) if the network has no such node.
func (g *Graph) IndexOf(id network.NodeID) (uint32, bool) {
	idx, ok := g.idIndex[id]
	return idx, ok
}
