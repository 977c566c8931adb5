package planner

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"windloop/pkg/fullgraph"
	"windloop/pkg/geo"
	"windloop/pkg/junctiongraph"
	"windloop/pkg/network"
)

// fakeLoader serves a fixed RawNetwork regardless of the query, so tests
// exercise the pipeline against a small in-memory fixture rather than
// reading real PBF bytes.
type fakeLoader struct {
	raw *network.RawNetwork
	err error
}

func (f *fakeLoader) Fetch(_ context.Context, _ geo.Coordinate, _ float64) (*network.RawNetwork, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.raw, nil
}

// gridRaw builds an n x n grid of junctions spaced ~1km apart.
func gridRaw(n int) *network.RawNetwork {
	var nodes []network.RawNode
	var edges []network.RawEdge
	spacing := 0.009

	id := func(r, c int) network.NodeID { return network.NodeID(r*1000 + c) }

	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			nodes = append(nodes, network.RawNode{
				ID:         id(r, c),
				Coord:      geo.Coordinate{Lat: float64(r) * spacing, Lon: float64(c) * spacing},
				IsJunction: true, Label: "J",
			})
		}
	}

	addBidir := func(fromID, toID network.NodeID, fromC, toC geo.Coordinate) {
		l, _ := geo.Distance(fromC, toC)
		b, _ := geo.Bearing(fromC, toC)
		edges = append(edges,
			network.RawEdge{FromID: fromID, ToID: toID, LengthM: l, BearingDeg: b},
			network.RawEdge{FromID: toID, ToID: fromID, LengthM: l, BearingDeg: math.Mod(b+180, 360)},
		)
	}

	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			here := geo.Coordinate{Lat: float64(r) * spacing, Lon: float64(c) * spacing}
			if c+1 < n {
				right := geo.Coordinate{Lat: here.Lat, Lon: float64(c+1) * spacing}
				addBidir(id(r, c), id(r, c+1), here, right)
			}
			if r+1 < n {
				down := geo.Coordinate{Lat: float64(r+1) * spacing, Lon: here.Lon}
				addBidir(id(r, c), id(r+1, c), here, down)
			}
		}
	}

	return &network.RawNetwork{Nodes: nodes, Edges: edges}
}

func TestPlanLoopEndToEndOnGrid(t *testing.T) {
	raw := gridRaw(5)
	// Start coordinate at the centre junction (2,2).
	start := geo.Coordinate{Lat: 2 * 0.009, Lon: 2 * 0.009}
	loader := &fakeLoader{raw: raw}

	plan, err := PlanLoop(context.Background(), loader, start, 4000, network.WindVector{SpeedMS: 0, BearingDeg: 0}, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.InDelta(t, 4000, plan.ActualLengthM, 4000*0.15+1)
	assert.GreaterOrEqual(t, len(plan.JunctionLabels), 4)
	assert.Equal(t, plan.JunctionLabels[0], plan.JunctionLabels[len(plan.JunctionLabels)-1])
	assert.NotEmpty(t, plan.LoopPolyline)
}

func TestPlanLoopInvalidTargetDistance(t *testing.T) {
	loader := &fakeLoader{raw: gridRaw(3)}
	_, err := PlanLoop(context.Background(), loader, geo.Coordinate{}, 0, network.WindVector{}, DefaultConfig())
	var pe *PlanError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, InvalidInput, pe.Kind)
}

func TestPlanLoopInvalidTolerance(t *testing.T) {
	loader := &fakeLoader{raw: gridRaw(3)}
	cfg := DefaultConfig()
	cfg.Tolerance = 1.5
	_, err := PlanLoop(context.Background(), loader, geo.Coordinate{Lat: 0, Lon: 0}, 1000, network.WindVector{}, cfg)
	var pe *PlanError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, InvalidInput, pe.Kind)
}

func TestPlanLoopNegativeWindSpeed(t *testing.T) {
	loader := &fakeLoader{raw: gridRaw(3)}
	_, err := PlanLoop(context.Background(), loader, geo.Coordinate{Lat: 0, Lon: 0}, 1000, network.WindVector{SpeedMS: -1}, DefaultConfig())
	var pe *PlanError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, InvalidInput, pe.Kind)
}

func TestPlanLoopNetworkUnavailable(t *testing.T) {
	loader := &fakeLoader{err: network.ErrUnavailable}
	_, err := PlanLoop(context.Background(), loader, geo.Coordinate{Lat: 0, Lon: 0}, 1000, network.WindVector{}, DefaultConfig())
	var pe *PlanError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, NetworkUnavailable, pe.Kind)
}

func TestPlanLoopNetworkEmpty(t *testing.T) {
	loader := &fakeLoader{err: network.ErrEmpty}
	_, err := PlanLoop(context.Background(), loader, geo.Coordinate{Lat: 0, Lon: 0}, 1000, network.WindVector{}, DefaultConfig())
	var pe *PlanError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, NetworkEmpty, pe.Kind)
}

func TestPlanLoopStartUnreachable(t *testing.T) {
	loader := &fakeLoader{raw: gridRaw(3)}
	// ~75km away: outside any plausible approach radius.
	_, err := PlanLoop(context.Background(), loader, geo.Coordinate{Lat: 0.5, Lon: 0.5}, 1000, network.WindVector{}, DefaultConfig())
	var pe *PlanError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StartUnreachable, pe.Kind)
}

func TestPlanLoopNoLoopFound(t *testing.T) {
	raw := gridRaw(5)
	start := geo.Coordinate{Lat: 2 * 0.009, Lon: 2 * 0.009}
	loader := &fakeLoader{raw: raw}

	_, err := PlanLoop(context.Background(), loader, start, 100, network.WindVector{}, DefaultConfig())
	var pe *PlanError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, NoLoopFound, pe.Kind)
}

func TestPlanLoopSingleJunctionNoLoopFound(t *testing.T) {
	raw := &network.RawNetwork{
		Nodes: []network.RawNode{{ID: 0, Coord: geo.Coordinate{Lat: 0, Lon: 0}, IsJunction: true, Label: "A"}},
	}
	loader := &fakeLoader{raw: raw}
	_, err := PlanLoop(context.Background(), loader, geo.Coordinate{Lat: 0, Lon: 0}, 1000, network.WindVector{}, DefaultConfig())
	var pe *PlanError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, []ErrorKind{NoLoopFound, StartUnreachable}, pe.Kind)
}

// TestPlanLoopDisconnectedRegion checks that a start coordinate inside one
// of two widely separated grids never pulls in junctions from the other.
func TestPlanLoopDisconnectedRegion(t *testing.T) {
	near := gridRaw(3)
	far := gridRaw(3)
	offsetDeg := 1.0 // ~111km, far beyond any approach or search radius
	for i := range far.Nodes {
		far.Nodes[i].ID += 100000
		far.Nodes[i].Coord.Lat += offsetDeg
	}
	for i := range far.Edges {
		far.Edges[i].FromID += 100000
		far.Edges[i].ToID += 100000
	}
	raw := &network.RawNetwork{
		Nodes: append(append([]network.RawNode{}, near.Nodes...), far.Nodes...),
		Edges: append(append([]network.RawEdge{}, near.Edges...), far.Edges...),
	}

	loader := &fakeLoader{raw: raw}
	start := geo.Coordinate{Lat: 0.009, Lon: 0.009} // centre of the near grid
	_, err := PlanLoop(context.Background(), loader, start, 100000, network.WindVector{}, DefaultConfig())
	var pe *PlanError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, NoLoopFound, pe.Kind, "target unreachable within the near grid's own component must fail NoLoopFound, never reach across the gap")
}

// TestPlanLoopMultiComponentFindsLoopInOwnComponent builds a raw network
// with two widely separated grids, so fullgraph.Build produces a
// multi-component graph and approach.Find's RawEdges index the unfiltered
// graph rather than the component-filtered one. A start inside one grid
// must still reach a winning loop and a correctly expanded approach
// polyline without panicking on an out-of-range index into the filtered
// graph's smaller edge array.
func TestPlanLoopMultiComponentFindsLoopInOwnComponent(t *testing.T) {
	near := gridRaw(5)
	far := gridRaw(5)
	offsetDeg := 1.0
	for i := range far.Nodes {
		far.Nodes[i].ID += 100000
		far.Nodes[i].Coord.Lat += offsetDeg
	}
	for i := range far.Edges {
		far.Edges[i].FromID += 100000
		far.Edges[i].ToID += 100000
	}
	raw := &network.RawNetwork{
		Nodes: append(append([]network.RawNode{}, near.Nodes...), far.Nodes...),
		Edges: append(append([]network.RawEdge{}, near.Edges...), far.Edges...),
	}

	loader := &fakeLoader{raw: raw}
	start := geo.Coordinate{Lat: 2 * 0.009, Lon: 2 * 0.009} // centre of the near grid
	plan, err := PlanLoop(context.Background(), loader, start, 4000, network.WindVector{SpeedMS: 0, BearingDeg: 0}, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.NotEmpty(t, plan.ApproachPolyline)
	assert.NotEmpty(t, plan.LoopPolyline)
}

// cachedGrid runs the same fullgraph.Build -> LargestComponent ->
// FilterToComponent -> junctiongraph.Build pipeline cmd/planjunctions runs
// offline, returning a (fg, jg) pair in the shape graphcache.Read hands to
// a running server.
func cachedGrid(t *testing.T, n int) (*fullgraph.Graph, *junctiongraph.Graph) {
	t.Helper()
	raw := gridRaw(n)
	fg := fullgraph.Build(raw)
	component := fullgraph.LargestComponent(fg)
	fg = fullgraph.FilterToComponent(fg, component)
	jg := junctiongraph.Build(fg)
	require.Greater(t, jg.NumJunctions, uint32(0))
	return fg, jg
}

func TestPlanLoopFromCacheEndToEnd(t *testing.T) {
	fg, jg := cachedGrid(t, 5)
	start := geo.Coordinate{Lat: 2 * 0.009, Lon: 2 * 0.009}

	plan, err := PlanLoopFromCache(context.Background(), fg, jg, start, 4000, network.WindVector{SpeedMS: 0, BearingDeg: 0}, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.InDelta(t, 4000, plan.ActualLengthM, 4000*0.15+1)
	assert.GreaterOrEqual(t, len(plan.JunctionLabels), 4)
	assert.Equal(t, plan.JunctionLabels[0], plan.JunctionLabels[len(plan.JunctionLabels)-1])
	assert.NotEmpty(t, plan.LoopPolyline)
}

func TestPlanLoopFromCacheStartUnreachable(t *testing.T) {
	fg, jg := cachedGrid(t, 3)
	_, err := PlanLoopFromCache(context.Background(), fg, jg, geo.Coordinate{Lat: 0.5, Lon: 0.5}, 1000, network.WindVector{}, DefaultConfig())
	var pe *PlanError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StartUnreachable, pe.Kind)
}

// TestPlanLoopFromCacheConcurrentRequestsDoNotCorruptSharedGraph runs many
// PlanLoopFromCache calls against one shared (fg, jg) pair concurrently,
// each with a different wind vector, mirroring how one server process
// serves overlapping requests against its preloaded cache. Every goroutine
// must still recover the same plan it would get running alone, which only
// holds if wind annotation never mutates jg's shared Edges in place.
func TestPlanLoopFromCacheConcurrentRequestsDoNotCorruptSharedGraph(t *testing.T) {
	fg, jg := cachedGrid(t, 5)
	start := geo.Coordinate{Lat: 2 * 0.009, Lon: 2 * 0.009}
	winds := []network.WindVector{
		{SpeedMS: 0, BearingDeg: 0},
		{SpeedMS: 8, BearingDeg: 0},
		{SpeedMS: 8, BearingDeg: 90},
		{SpeedMS: 8, BearingDeg: 180},
		{SpeedMS: 8, BearingDeg: 270},
	}

	want := make([]float64, len(winds))
	for i, w := range winds {
		plan, err := PlanLoopFromCache(context.Background(), fg, jg, start, 4000, w, DefaultConfig())
		require.NoError(t, err)
		want[i] = plan.ActualLengthM
	}

	var wg sync.WaitGroup
	got := make([]float64, len(winds))
	errs := make([]error, len(winds))
	for round := 0; round < 10; round++ {
		for i, w := range winds {
			wg.Add(1)
			go func(i int, w network.WindVector) {
				defer wg.Done()
				plan, err := PlanLoopFromCache(context.Background(), fg, jg, start, 4000, w, DefaultConfig())
				errs[i] = err
				if err == nil {
					got[i] = plan.ActualLengthM
				}
			}(i, w)
		}
		wg.Wait()
		for i := range winds {
			require.NoError(t, errs[i])
			assert.Equal(t, want[i], got[i], "wind %d's result must not drift across concurrent rounds", i)
		}
	}
}
