// Package planner sequences the full wind-optimised loop-planning pipeline:
// network loader -> full graph -> junction graph -> wind annotation -> loop
// enumeration -> scoring -> approach path -> geometry expansion, behind a
// single PlanLoop call.
package planner

import (
	"context"
	"errors"
	"fmt"

	"windloop/pkg/approach"
	"windloop/pkg/fullgraph"
	"windloop/pkg/geo"
	"windloop/pkg/geometry"
	"windloop/pkg/junctiongraph"
	"windloop/pkg/loopsearch"
	"windloop/pkg/network"
	"windloop/pkg/scorer"
	"windloop/pkg/wind"
)

// ErrorKind classifies the reason a PlanError was returned.
type ErrorKind int

const (
	InvalidInput ErrorKind = iota
	NetworkUnavailable
	NetworkEmpty
	StartUnreachable
	NoLoopFound
	Internal
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case NetworkUnavailable:
		return "network_unavailable"
	case NetworkEmpty:
		return "network_empty"
	case StartUnreachable:
		return "start_unreachable"
	case NoLoopFound:
		return "no_loop_found"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// PlanError is the single error type PlanLoop returns. Context is a short,
// human-readable string describing the specific failure.
type PlanError struct {
	Kind    ErrorKind
	Context string
}

func (e *PlanError) Error() string {
	if e.Context == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

func newErr(kind ErrorKind, format string, args ...any) *PlanError {
	return &PlanError{Kind: kind, Context: fmt.Sprintf(format, args...)}
}

// Config is the full set of tunables for the planning pipeline.
type Config struct {
	Tolerance         float64
	MaxDepth          int
	TimeBudgetS       float64
	CandidateCap      int
	Kappa             float64
	VRef              float64
	Alpha             float64
	ReturnPruneFactor float64
	MinLoopEdges      int
	ApproachMaxM      float64
}

// DefaultConfig returns the recommended defaults for every tunable.
func DefaultConfig() Config {
	return Config{
		Tolerance:         loopsearch.DefaultTolerance,
		MaxDepth:          loopsearch.DefaultMaxDepth,
		TimeBudgetS:       loopsearch.DefaultTimeBudgetS,
		CandidateCap:      loopsearch.DefaultCandidateCap,
		Kappa:             wind.DefaultKappa,
		VRef:              wind.DefaultVRef,
		Alpha:             scorer.DefaultAlpha,
		ReturnPruneFactor: loopsearch.DefaultReturnPruneFactor,
		MinLoopEdges:      loopsearch.DefaultMinLoopEdges,
		ApproachMaxM:      approach.DefaultMaxApproachM,
	}
}

// Plan is the result of a successful PlanLoop call.
type Plan struct {
	ActualLengthM     float64
	JunctionLabels    []string
	JunctionCoords    []geo.Coordinate
	ApproachPolyline  []geo.Coordinate
	LoopPolyline      []geo.Coordinate
	WindUsed          network.WindVector
	SearchRadiusM     float64
}

// PlanLoop runs the fetch, graph-build, condensation, wind-annotation,
// search, scoring, approach-snap, and geometry-expansion stages in strict
// order and returns the winning loop, or a typed PlanError.
func PlanLoop(ctx context.Context, loader network.Loader, start geo.Coordinate, targetM float64, w network.WindVector, cfg Config) (*Plan, error) {
	if err := validateInput(start, targetM, cfg.Tolerance, w); err != nil {
		return nil, err
	}

	// The furthest a loop candidate's farthest point can plausibly sit from
	// the start is half the target distance, widened by tolerance, plus the
	// approach slack.
	radiusM := targetM*0.5*(1+cfg.Tolerance) + cfg.ApproachMaxM
	raw, err := loader.Fetch(ctx, start, radiusM)
	if err != nil {
		if errors.Is(err, network.ErrEmpty) {
			return nil, newErr(NetworkEmpty, "loader returned no junctions within %.0fm", radiusM)
		}
		if errors.Is(err, network.ErrUnavailable) {
			return nil, newErr(NetworkUnavailable, "%v", err)
		}
		return nil, newErr(NetworkUnavailable, "%v", err)
	}
	if raw == nil || len(raw.Nodes) == 0 {
		return nil, newErr(NetworkEmpty, "loader returned an empty network")
	}

	fg := fullgraph.Build(raw)
	plan, err := planOnGraph(ctx, fg, start, targetM, w, cfg)
	if err != nil {
		return nil, err
	}
	plan.SearchRadiusM = radiusM
	return plan, nil
}

// Planner abstracts a single Plan call over whatever network source backs
// it, so callers like pkg/api can depend on one entry point regardless of
// whether it is fetching from a network.Loader on every call or reusing a
// preprocessed cache.
type Planner interface {
	Plan(ctx context.Context, start geo.Coordinate, targetM float64, w network.WindVector) (*Plan, error)
}

// LoaderPlanner implements Planner by calling PlanLoop against Loader on
// every request, rebuilding the full and junction graphs from scratch each
// time. This is the right choice when the network is small enough, or
// changes often enough, that a preprocessed cache isn't worth maintaining.
type LoaderPlanner struct {
	Loader network.Loader
	Config Config
}

func (p *LoaderPlanner) Plan(ctx context.Context, start geo.Coordinate, targetM float64, w network.WindVector) (*Plan, error) {
	return PlanLoop(ctx, p.Loader, start, targetM, w, p.Config)
}

// CachePlanner implements Planner by calling PlanLoopFromCache against a
// full graph and junction graph preloaded once at process startup, as
// cmd/planjunctions produces and graphcache.Read loads. A server serving a
// fixed region should construct one of these instead of a LoaderPlanner, so
// the preprocessing work done offline is never repeated per request.
type CachePlanner struct {
	FullGraph     *fullgraph.Graph
	JunctionGraph *junctiongraph.Graph
	Config        Config
}

func (p *CachePlanner) Plan(ctx context.Context, start geo.Coordinate, targetM float64, w network.WindVector) (*Plan, error) {
	return PlanLoopFromCache(ctx, p.FullGraph, p.JunctionGraph, start, targetM, w, p.Config)
}

// PlanLoopFromCache runs the approach-snap, search, scoring, and geometry
// expansion stages directly against a preprocessed full graph and its
// matching junction graph, as produced by cmd/planjunctions and loaded via
// graphcache.Read — skipping fullgraph.Build, the component filter, and
// junctiongraph.Build entirely, since the offline preprocessing step
// already did all three once. fg and jg must correspond to each other
// (jg's FullIdx and RawEdges reference fg's node/edge indices) and must
// already be filtered to a single connected component.
//
// jg's topology (U, V, LengthM, BearingDeg, RawEdges, adjacency) is read
// only here; wind annotation runs against a private per-request copy of
// its edges so concurrent requests sharing one cached jg never race on the
// wind-dependent effort fields.
func PlanLoopFromCache(ctx context.Context, fg *fullgraph.Graph, jg *junctiongraph.Graph, start geo.Coordinate, targetM float64, w network.WindVector, cfg Config) (*Plan, error) {
	if err := validateInput(start, targetM, cfg.Tolerance, w); err != nil {
		return nil, err
	}
	if fg == nil || fg.NumNodes == 0 || jg == nil || jg.NumJunctions == 0 {
		return nil, newErr(NetworkEmpty, "graph is empty")
	}

	approachIdx := approach.Build(fg)
	ap, err := approach.Find(approachIdx, start, cfg.ApproachMaxM)
	if err != nil {
		return nil, newErr(StartUnreachable, "no junction within %.0fm of the supplied coordinate", cfg.ApproachMaxM)
	}

	startJ, ok := jg.JunctionIndexOf(ap.JunctionFull)
	if !ok {
		return nil, &PlanError{Kind: Internal, Context: "start node is not a junction in the cached graph"}
	}

	reqGraph := cloneForAnnotation(jg)
	plan, err := finishPlan(ctx, fg, fg, reqGraph, startJ, ap.RawEdges, start, targetM, w, cfg)
	if err != nil {
		return nil, err
	}
	plan.SearchRadiusM = targetM*0.5*(1+cfg.Tolerance) + cfg.ApproachMaxM
	return plan, nil
}

// cloneForAnnotation returns a Graph sharing jg's read-only topology fields
// but with its own Edges slice, so wind.Annotate's in-place effort rewrite
// on the clone never races with another request annotating the same
// cached graph.
func cloneForAnnotation(jg *junctiongraph.Graph) *junctiongraph.Graph {
	edges := make([]junctiongraph.Edge, len(jg.Edges))
	copy(edges, jg.Edges)
	clone := &junctiongraph.Graph{
		NumJunctions: jg.NumJunctions,
		FullIdx:      jg.FullIdx,
		Coord:        jg.Coord,
		Label:        jg.Label,
		Edges:        edges,
	}
	junctiongraph.RebuildAdjacency(clone)
	return clone
}

func planOnGraph(ctx context.Context, fg *fullgraph.Graph, start geo.Coordinate, targetM float64, w network.WindVector, cfg Config) (*Plan, error) {
	approachIdx := approach.Build(fg)
	ap, err := approach.Find(approachIdx, start, cfg.ApproachMaxM)
	if err != nil {
		return nil, newErr(StartUnreachable, "no junction within %.0fm of the supplied coordinate", cfg.ApproachMaxM)
	}

	component := fullgraph.ComponentContaining(fg, ap.JunctionFull)
	fgComp := fullgraph.FilterToComponent(fg, component)

	startFullIdx, ok := fgComp.IndexOf(fg.NodeID[ap.JunctionFull])
	if !ok {
		return nil, &PlanError{Kind: Internal, Context: "start junction missing after component filter"}
	}

	jg := junctiongraph.Build(fgComp)
	if jg.NumJunctions == 0 {
		return nil, newErr(NetworkEmpty, "connected component has no junctions")
	}

	startJ, ok := jg.JunctionIndexOf(startFullIdx)
	if !ok {
		return nil, &PlanError{Kind: Internal, Context: "start node is not a junction in its own component"}
	}

	// ap.RawEdges indexes fg, not fgComp: approach.Find ran before the
	// component filter, so its edge indices predate fgComp's renumbering.
	// The approach path lies entirely within the start's own component, so
	// expanding it against the original fg is correct and avoids having to
	// remap indices through fgComp's renumbering.
	return finishPlan(ctx, fgComp, fg, jg, startJ, ap.RawEdges, start, targetM, w, cfg)
}

// finishPlan runs wind annotation, loop search, scoring, and geometry
// expansion once a junction graph and a start junction within it are known.
// jg is mutated in place by wind annotation; callers sharing jg across
// concurrent calls must pass a private copy. fgExpand is the graph jg was
// condensed from, used to expand the winning cycle; fgApproach is the graph
// approachEdges indexes into, used to expand the approach path — the two
// may differ when jg's graph was filtered down from a larger fg that the
// approach snap ran against.
func finishPlan(ctx context.Context, fgExpand, fgApproach *fullgraph.Graph, jg *junctiongraph.Graph, startJ uint32, approachEdges []uint32, start geo.Coordinate, targetM float64, w network.WindVector, cfg Config) (*Plan, error) {
	wind.Annotate(jg, w, wind.Config{Kappa: cfg.Kappa, VRef: cfg.VRef})

	candidates := loopsearch.Search(ctx, jg, startJ, targetM, loopsearch.Config{
		Tolerance:         cfg.Tolerance,
		MaxDepth:          cfg.MaxDepth,
		TimeBudgetS:       cfg.TimeBudgetS,
		CandidateCap:      cfg.CandidateCap,
		ReturnPruneFactor: cfg.ReturnPruneFactor,
		MinLoopEdges:      cfg.MinLoopEdges,
	})
	if len(candidates) == 0 {
		return nil, newErr(NoLoopFound, "no candidate loop within tolerance of %.0fm", targetM)
	}

	winner, ok := scorer.Select(jg, candidates, targetM, cfg.Alpha)
	if !ok {
		return nil, &PlanError{Kind: Internal, Context: "scorer found no winner despite non-empty candidates"}
	}

	loopPolyline := geometry.ExpandCycle(fgExpand, jg, winner.Candidate.Path)
	approachPolyline := expandApproach(fgApproach, approachEdges, start)

	labels := make([]string, len(winner.Candidate.Path))
	coords := make([]geo.Coordinate, len(winner.Candidate.Path))
	for i, j := range winner.Candidate.Path {
		fullIdx := jg.FullIdx[j]
		labels[i] = fgExpand.NodeLabel[fullIdx]
		coords[i] = fgExpand.NodeCoord[fullIdx]
	}

	return &Plan{
		ActualLengthM:    winner.Candidate.LengthM,
		JunctionLabels:   labels,
		JunctionCoords:   coords,
		ApproachPolyline: approachPolyline,
		LoopPolyline:     loopPolyline,
		WindUsed:         w,
	}, nil
}

func expandApproach(fg *fullgraph.Graph, rawEdges []uint32, start geo.Coordinate) []geo.Coordinate {
	poly := []geo.Coordinate{start}
	for _, edgeIdx := range rawEdges {
		s, e := fg.GeoFirstOut[edgeIdx], fg.GeoFirstOut[edgeIdx+1]
		poly = append(poly, fg.GeoShape[s:e]...)
		poly = append(poly, fg.NodeCoord[fg.Head[edgeIdx]])
	}
	return poly
}

func validateInput(start geo.Coordinate, targetM, tolerance float64, w network.WindVector) error {
	if !start.Valid() {
		return newErr(InvalidInput, "coordinate out of range: %+v", start)
	}
	if targetM <= 0 {
		return newErr(InvalidInput, "target distance must be positive, got %f", targetM)
	}
	if tolerance < 0 || tolerance >= 1 {
		return newErr(InvalidInput, "tolerance must be in [0, 1), got %f", tolerance)
	}
	if w.SpeedMS < 0 {
		return newErr(InvalidInput, "wind speed must be non-negative, got %f", w.SpeedMS)
	}
	return nil
}
