package scorer

import (
	"math"
	"testing"

	"windloop/pkg/junctiongraph"
	"windloop/pkg/loopsearch"
)

// twoEdgeGraph returns a 3-junction path graph 0-1-2 with both edges of
// length 1000m and a fixed effort, used to exercise scoring arithmetic
// without depending on the wind package.
func twoEdgeGraph(effort01, effort12 float64) *junctiongraph.Graph {
	g := &junctiongraph.Graph{
		NumJunctions: 3,
		Edges: []junctiongraph.Edge{
			{U: 0, V: 1, LengthM: 1000, EffortUV: effort01, EffortVU: effort01},
			{U: 1, V: 2, LengthM: 1000, EffortUV: effort12, EffortVU: effort12},
		},
	}
	g.SetNeighborsForTest(0, []junctiongraph.AdjEntry{{Neighbor: 1, EdgeIdx: 0}})
	g.SetNeighborsForTest(1, []junctiongraph.AdjEntry{{Neighbor: 0, EdgeIdx: 0}, {Neighbor: 2, EdgeIdx: 1}})
	g.SetNeighborsForTest(2, []junctiongraph.AdjEntry{{Neighbor: 1, EdgeIdx: 1}})
	return g
}

func TestScoreSumsEffortAlongPath(t *testing.T) {
	g := twoEdgeGraph(600, 800)
	c := loopsearch.Candidate{Path: []uint32{0, 1, 2}, LengthM: 2000}
	got := Score(g, c, 2000, DefaultAlpha)
	if math.Abs(got.EffortM-1400) > 1e-9 {
		t.Errorf("EffortM = %f, want 1400", got.EffortM)
	}
	if got.DistPenalty != 0 {
		t.Errorf("DistPenalty = %f, want 0 (length matches target)", got.DistPenalty)
	}
	if math.Abs(got.Score-1400) > 1e-9 {
		t.Errorf("Score = %f, want 1400 (zero dist penalty leaves effort unscaled)", got.Score)
	}
}

func TestScoreAppliesDistancePenalty(t *testing.T) {
	g := twoEdgeGraph(1000, 1000)
	c := loopsearch.Candidate{Path: []uint32{0, 1, 2}, LengthM: 2000}
	got := Score(g, c, 1000, DefaultAlpha) // target is half the actual length
	wantPenalty := 1.0                     // |2000-1000|/1000
	if math.Abs(got.DistPenalty-wantPenalty) > 1e-9 {
		t.Errorf("DistPenalty = %f, want %f", got.DistPenalty, wantPenalty)
	}
	wantScore := 2000.0 * (1 + DefaultAlpha*wantPenalty)
	if math.Abs(got.Score-wantScore) > 1e-9 {
		t.Errorf("Score = %f, want %f", got.Score, wantScore)
	}
}

func TestSelectPicksLowestScore(t *testing.T) {
	g := twoEdgeGraph(1000, 1000)
	candidates := []loopsearch.Candidate{
		{Path: []uint32{0, 1, 2}, LengthM: 2000, DiscoveryIndex: 0},
	}
	best, ok := Select(g, candidates, 2000, DefaultAlpha)
	if !ok {
		t.Fatal("Select() ok = false, want true")
	}
	if best.Candidate.DiscoveryIndex != 0 {
		t.Errorf("winner discovery index = %d, want 0", best.Candidate.DiscoveryIndex)
	}
}

func TestSelectEmptyReturnsFalse(t *testing.T) {
	g := twoEdgeGraph(1000, 1000)
	_, ok := Select(g, nil, 2000, DefaultAlpha)
	if ok {
		t.Error("Select(nil) ok = true, want false")
	}
}

// TestSelectTieBreaksByDistancePenaltyThenDiscovery exercises the full
// tie-break chain: equal score falls back to distance penalty, then to
// earlier discovery order.
func TestSelectTieBreaksByDistancePenaltyThenDiscovery(t *testing.T) {
	g := twoEdgeGraph(1000, 1000)

	// Equal score (4000), different distance penalty: 0-1-2 has effort 2000
	// and penalty 0.5; 0-1 has effort 1000 and penalty 1.5. The smaller
	// penalty wins despite later discovery.
	near := loopsearch.Candidate{Path: []uint32{0, 1, 2}, LengthM: 3000, DiscoveryIndex: 1}
	far := loopsearch.Candidate{Path: []uint32{0, 1}, LengthM: 5000, DiscoveryIndex: 0}
	best, ok := Select(g, []loopsearch.Candidate{far, near}, 2000, DefaultAlpha)
	if !ok {
		t.Fatal("Select() ok = false")
	}
	if best.Candidate.DiscoveryIndex != 1 {
		t.Errorf("winner discovery index = %d, want 1 (smaller distance penalty wins a score tie)", best.Candidate.DiscoveryIndex)
	}

	// Two candidates with identical effort and identical length (so
	// identical score and distance penalty); the earlier one must win.
	a := loopsearch.Candidate{Path: []uint32{0, 1, 2}, LengthM: 2000, DiscoveryIndex: 0}
	b := loopsearch.Candidate{Path: []uint32{0, 1, 2}, LengthM: 2000, DiscoveryIndex: 1}

	best, ok = Select(g, []loopsearch.Candidate{b, a}, 2000, DefaultAlpha)
	if !ok {
		t.Fatal("Select() ok = false")
	}
	if best.Candidate.DiscoveryIndex != 0 {
		t.Errorf("winner discovery index = %d, want 0 (earlier discovery wins a tie)", best.Candidate.DiscoveryIndex)
	}
}

func TestZeroWindFavorsDistanceFit(t *testing.T) {
	// With uniform effort per metre, the winner among same-effort-density
	// candidates is the one closest to target.
	g := &junctiongraph.Graph{
		NumJunctions: 4,
		Edges: []junctiongraph.Edge{
			{U: 0, V: 1, LengthM: 900, EffortUV: 900, EffortVU: 900},
			{U: 0, V: 2, LengthM: 1000, EffortUV: 1000, EffortVU: 1000},
			{U: 0, V: 3, LengthM: 1100, EffortUV: 1100, EffortVU: 1100},
		},
	}
	g.SetNeighborsForTest(0, []junctiongraph.AdjEntry{
		{Neighbor: 1, EdgeIdx: 0}, {Neighbor: 2, EdgeIdx: 1}, {Neighbor: 3, EdgeIdx: 2},
	})
	g.SetNeighborsForTest(1, []junctiongraph.AdjEntry{{Neighbor: 0, EdgeIdx: 0}})
	g.SetNeighborsForTest(2, []junctiongraph.AdjEntry{{Neighbor: 0, EdgeIdx: 1}})
	g.SetNeighborsForTest(3, []junctiongraph.AdjEntry{{Neighbor: 0, EdgeIdx: 2}})

	candidates := []loopsearch.Candidate{
		{Path: []uint32{0, 1, 0}, LengthM: 1800, DiscoveryIndex: 0},
		{Path: []uint32{0, 2, 0}, LengthM: 2000, DiscoveryIndex: 1},
		{Path: []uint32{0, 3, 0}, LengthM: 2200, DiscoveryIndex: 2},
	}
	best, ok := Select(g, candidates, 2000, DefaultAlpha)
	if !ok {
		t.Fatal("Select() ok = false")
	}
	if best.Candidate.DiscoveryIndex != 1 {
		t.Errorf("winner discovery index = %d, want 1 (candidate matching target exactly)", best.Candidate.DiscoveryIndex)
	}
}
