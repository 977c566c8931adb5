package geometry

import (
	"math"
	"testing"

	"windloop/pkg/fullgraph"
	"windloop/pkg/geo"
	"windloop/pkg/junctiongraph"
	"windloop/pkg/network"
)

// squareRaw builds 4 junctions at the corners of a ~1km square, each edge
// split by a non-junction midpoint so expansion has real shape points.
func squareRaw() *network.RawNetwork {
	spacing := 0.009
	coords := []geo.Coordinate{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: spacing},
		{Lat: spacing, Lon: spacing},
		{Lat: spacing, Lon: 0},
	}
	var nodes []network.RawNode
	for i, c := range coords {
		nodes = append(nodes, network.RawNode{ID: network.NodeID(i), Coord: c, IsJunction: true, Label: "J"})
	}

	var edges []network.RawEdge
	addBidir := func(i, j int) {
		mid := network.NodeID(100 + i)
		midCoord := geo.Coordinate{
			Lat: (coords[i].Lat + coords[j].Lat) / 2,
			Lon: (coords[i].Lon + coords[j].Lon) / 2,
		}
		nodes = append(nodes, network.RawNode{ID: mid, Coord: midCoord})
		l1, _ := geo.Distance(coords[i], midCoord)
		l2, _ := geo.Distance(midCoord, coords[j])
		b1, _ := geo.Bearing(coords[i], midCoord)
		b2, _ := geo.Bearing(midCoord, coords[j])
		edges = append(edges,
			network.RawEdge{FromID: network.NodeID(i), ToID: mid, LengthM: l1, BearingDeg: b1},
			network.RawEdge{FromID: mid, ToID: network.NodeID(i), LengthM: l1, BearingDeg: math.Mod(b1+180, 360)},
			network.RawEdge{FromID: mid, ToID: network.NodeID(j), LengthM: l2, BearingDeg: b2},
			network.RawEdge{FromID: network.NodeID(j), ToID: mid, LengthM: l2, BearingDeg: math.Mod(b2+180, 360)},
		)
	}
	addBidir(0, 1)
	addBidir(1, 2)
	addBidir(2, 3)
	addBidir(3, 0)

	return &network.RawNetwork{Nodes: nodes, Edges: edges}
}

func buildSquare(t *testing.T) (*fullgraph.Graph, *junctiongraph.Graph) {
	t.Helper()
	fg := fullgraph.Build(squareRaw())
	jg := junctiongraph.Build(fg)
	return fg, jg
}

func junctionIdx(t *testing.T, fg *fullgraph.Graph, jg *junctiongraph.Graph, rawID network.NodeID) uint32 {
	t.Helper()
	full, ok := fg.IndexOf(rawID)
	if !ok {
		t.Fatalf("raw node %d not found", rawID)
	}
	j, ok := jg.JunctionIndexOf(full)
	if !ok {
		t.Fatalf("node %d is not a junction", rawID)
	}
	return j
}

func TestExpandEdgeForwardAndReverseAreMirrored(t *testing.T) {
	fg, jg := buildSquare(t)
	j0 := junctionIdx(t, fg, jg, 0)
	j1 := junctionIdx(t, fg, jg, 1)

	edgeIdx, ok := edgeBetween(jg, j0, j1)
	if !ok {
		t.Fatal("no edge between junction 0 and 1")
	}
	edge := jg.Edges[edgeIdx]

	fwd := ExpandEdge(fg, jg, edge, j0)
	rev := ExpandEdge(fg, jg, edge, j1)

	if len(fwd) != len(rev) {
		t.Fatalf("forward len %d != reverse len %d", len(fwd), len(rev))
	}
	for i := range fwd {
		mirrored := rev[len(rev)-1-i]
		if math.Abs(fwd[i].Lat-mirrored.Lat) > 1e-9 || math.Abs(fwd[i].Lon-mirrored.Lon) > 1e-9 {
			t.Errorf("point %d: forward %v != reversed mirror %v", i, fwd[i], mirrored)
		}
	}
}

func TestExpandCycleClosesLoop(t *testing.T) {
	fg, jg := buildSquare(t)
	j0 := junctionIdx(t, fg, jg, 0)
	j1 := junctionIdx(t, fg, jg, 1)
	j2 := junctionIdx(t, fg, jg, 2)
	j3 := junctionIdx(t, fg, jg, 3)

	path := []uint32{j0, j1, j2, j3, j0}
	poly := ExpandCycle(fg, jg, path)

	if len(poly) < 2 {
		t.Fatalf("polyline too short: %d points", len(poly))
	}
	first, last := poly[0], poly[len(poly)-1]
	if math.Abs(first.Lat-last.Lat) > 1e-9 || math.Abs(first.Lon-last.Lon) > 1e-9 {
		t.Errorf("polyline does not close: first %v, last %v", first, last)
	}
}

func TestExpandCycleNoDuplicateJoints(t *testing.T) {
	fg, jg := buildSquare(t)
	j0 := junctionIdx(t, fg, jg, 0)
	j1 := junctionIdx(t, fg, jg, 1)
	j2 := junctionIdx(t, fg, jg, 2)

	path := []uint32{j0, j1, j2}
	poly := ExpandCycle(fg, jg, path)

	for i := 1; i < len(poly); i++ {
		if poly[i] == poly[i-1] {
			t.Errorf("duplicate consecutive coordinate at joint %d: %v", i, poly[i])
		}
	}
}
