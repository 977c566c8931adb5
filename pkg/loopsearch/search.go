// Package loopsearch enumerates candidate loop cycles rooted at a start
// junction: a depth-bounded recursive DFS over the condensed junction
// graph, pruned on accumulated distance and on return feasibility.
package loopsearch

import (
	"context"
	"time"

	"windloop/pkg/geo"
	"windloop/pkg/junctiongraph"
)

const (
	DefaultTolerance         = 0.15
	DefaultMaxDepth          = 15
	DefaultTimeBudgetS       = 30.0
	DefaultCandidateCap      = 500
	DefaultReturnPruneFactor = 0.7
	DefaultMinLoopEdges      = 3

	// checkEvery is the number of recursive entries between cooperative
	// wall-clock / cancellation checks.
	checkEvery = 10000
)

// Config parameterizes Search. Zero value is invalid; use DefaultConfig().
type Config struct {
	Tolerance         float64
	MaxDepth          int
	TimeBudgetS       float64
	CandidateCap      int
	ReturnPruneFactor float64
	MinLoopEdges      int
}

// DefaultConfig returns the contract defaults.
func DefaultConfig() Config {
	return Config{
		Tolerance:         DefaultTolerance,
		MaxDepth:          DefaultMaxDepth,
		TimeBudgetS:       DefaultTimeBudgetS,
		CandidateCap:      DefaultCandidateCap,
		ReturnPruneFactor: DefaultReturnPruneFactor,
		MinLoopEdges:      DefaultMinLoopEdges,
	}
}

// Candidate is one accepted loop: a sequence of junction indices beginning
// and ending at the start junction, with no interior repeat. DiscoveryIndex
// records enumeration order, used by the scorer's stable tie-break since
// the search performs no rotation/reflection dedup.
type Candidate struct {
	Path           []uint32
	LengthM        float64
	DiscoveryIndex int
}

// clonePath returns an independent copy of path, since the search frame mutates
// its path slice in place and candidates must survive past the pop that
// follows acceptance.
func clonePath(path []uint32) []uint32 {
	out := make([]uint32, len(path))
	copy(out, path)
	return out
}

// search holds the shared mutable state for one enumeration run: a visited
// set and path list reused across the whole recursion instead of allocating
// a fresh path on every step.
type search struct {
	g   *junctiongraph.Graph
	cfg Config

	start   uint32
	targetM float64
	lowM    float64
	highM   float64

	dHome []float64 // straight-line distance from every junction to start

	visited []bool
	path    []uint32

	candidates []Candidate
	steps      int64
	deadline   time.Time
	stop       bool

	ctx context.Context
}

// Search enumerates up to cfg.CandidateCap candidate loops rooted at start,
// of length within [target*(1-tol), target*(1+tol)], depth-bounded and
// pruned. It returns whatever candidates were found even if ctx is
// cancelled or the time budget is exceeded — a partial result is not an
// error.
func Search(ctx context.Context, g *junctiongraph.Graph, start uint32, targetM float64, cfg Config) []Candidate {
	maxDepth := adjustedMaxDepth(g, cfg.MaxDepth)

	s := &search{
		g:        g,
		cfg:      cfg,
		start:    start,
		targetM:  targetM,
		lowM:     targetM * (1 - cfg.Tolerance),
		highM:    targetM * (1 + cfg.Tolerance),
		dHome:    make([]float64, g.NumJunctions),
		visited:  make([]bool, g.NumJunctions),
		path:     make([]uint32, 0, maxDepth+1),
		deadline: time.Now().Add(time.Duration(cfg.TimeBudgetS * float64(time.Second))),
		ctx:      ctx,
	}
	startCoord := g.Coord[start]
	for n := uint32(0); n < g.NumJunctions; n++ {
		s.dHome[n] = geo.MustDistance(g.Coord[n], startCoord)
	}

	s.visited[start] = true
	s.path = append(s.path, start)
	s.dfs(start, 0, maxDepth)

	return s.candidates
}

// adjustedMaxDepth lowers maxDepth on dense graphs, where combinatorial
// blow-up would otherwise make the search intractable.
func adjustedMaxDepth(g *junctiongraph.Graph, maxDepth int) int {
	avgDegree := g.AverageDegree()
	switch {
	case avgDegree > 10:
		if maxDepth > 10 {
			return 10
		}
	case avgDegree > 6:
		if maxDepth > 12 {
			return 12
		}
	}
	return maxDepth
}

func (s *search) dfs(node uint32, accumM float64, maxDepth int) {
	if s.stop {
		return
	}

	depth := len(s.path) - 1
	for _, nb := range s.g.Neighbors(node) {
		edgeLen := s.g.Edges[nb.EdgeIdx].LengthM
		next := accumM + edgeLen

		if nb.Neighbor == s.start {
			if depth+1 >= s.cfg.MinLoopEdges && next >= s.lowM && next <= s.highM {
				s.candidates = append(s.candidates, Candidate{
					Path:           clonePath(append(s.path, s.start)),
					LengthM:        next,
					DiscoveryIndex: len(s.candidates),
				})
				if len(s.candidates) >= s.cfg.CandidateCap {
					s.stop = true
					return
				}
			}
			continue
		}

		if s.visited[nb.Neighbor] {
			continue
		}
		if next > s.highM {
			continue
		}
		if depth+1 >= maxDepth {
			continue
		}
		if next+s.cfg.ReturnPruneFactor*s.dHome[nb.Neighbor] > s.highM {
			continue
		}

		s.steps++
		if s.steps%checkEvery == 0 {
			if time.Now().After(s.deadline) || (s.ctx != nil && s.ctx.Err() != nil) {
				s.stop = true
				return
			}
		}

		s.visited[nb.Neighbor] = true
		s.path = append(s.path, nb.Neighbor)

		s.dfs(nb.Neighbor, next, maxDepth)

		s.path = s.path[:len(s.path)-1]
		s.visited[nb.Neighbor] = false

		if s.stop {
			return
		}
	}
}
