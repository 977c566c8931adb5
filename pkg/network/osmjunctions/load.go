// Package osmjunctions is the reference implementation of network.Loader:
// it parses an OSM PBF extract of a signed cycling-junction network (the
// numbered "knooppunten" scheme used across the Netherlands, Belgium, and
// Denmark, where route=bicycle ways tagged network=rcn/lcn/ncn/icn form the
// corridors and point nodes carry an *_ref tag for the public junction
// number) into the network.RawNode/RawEdge shape the rest of windloop
// consumes.
//
// Parsing runs as a two-pass streaming scan (ways, then the nodes those
// ways reference) instead of loading the whole PBF into memory.
package osmjunctions

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"golang.org/x/sync/errgroup"

	"windloop/pkg/geo"
	"windloop/pkg/network"
)

// cycleHighways lists highway tag values a cycling-junction corridor runs
// along, including cycleway/path/track, which carry the bulk of a
// knooppunten network.
var cycleHighways = map[string]bool{
	"cycleway":      true,
	"path":          true,
	"track":         true,
	"residential":   true,
	"service":       true,
	"living_street": true,
	"unclassified":  true,
	"tertiary":      true,
	"secondary":     true,
}

// junctionRefTags lists the node ref tags that carry a junction's public
// label under each numbered cycling-junction network scheme.
var junctionRefTags = []string{"rcn_ref", "lcn_ref", "ncn_ref", "icn_ref"}

func isCycleAccessible(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if hw != "" && !cycleHighways[hw] {
		return false
	}
	if tags.Find("bicycle") == "no" {
		return false
	}
	if tags.Find("area") == "yes" {
		return false
	}
	// A way with no highway tag at all but an explicit route=bicycle tag
	// still counts (relation-tagged corridors sometimes carry the route
	// directly on the way in smaller extracts that flatten relations at
	// export time). The network tag is not inspected.
	if hw == "" && tags.Find("route") != "bicycle" {
		return false
	}
	return true
}

func directionFlags(tags osm.Tags) (forward, backward bool) {
	forward, backward = true, true
	oneway := tags.Find("oneway")
	switch oneway {
	case "yes", "true", "1":
		forward, backward = true, false
	case "-1", "reverse":
		forward, backward = false, true
	case "no", "":
		forward, backward = true, true
	}
	// Cyclists are near-universally exempted from car oneway restrictions
	// on these corridors unless explicitly denied.
	if tags.Find("oneway:bicycle") == "no" {
		forward, backward = true, true
	}
	return forward, backward
}

func junctionLabel(tags osm.Tags) (label string, isJunction bool) {
	for _, key := range junctionRefTags {
		if v := tags.Find(key); v != "" {
			return v, true
		}
	}
	return "", false
}

// BBox filters parsed edges/nodes to a geographic bounding box.
type BBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLon == 0 && b.MaxLon == 0
}

func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Options configures Load.
type Options struct {
	BBox BBox
	// Concurrent runs pass 2 (node coordinates and junction refs, one
	// scan) inside an errgroup goroutine that Load waits on. Pass 2 still
	// starts only after pass 1 ends, so results and scan order are the same
	// as with the default (false) sequential two-pass scan.
	Concurrent bool
}

// wayInfo holds parsed way data collected during pass 1.
type wayInfo struct {
	NodeIDs  []osm.NodeID
	Forward  bool
	Backward bool
}

// Load parses an OSM PBF cycling-junction extract and returns a
// network.RawNetwork. rs is consumed twice (seeks back to the start for the
// second pass) so it must implement io.ReadSeeker.
func Load(ctx context.Context, rs io.ReadSeeker, opts ...Options) (*network.RawNetwork, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	useBBox := !opt.BBox.IsZero()

	referencedNodes := make(map[osm.NodeID]struct{})
	junctionRefs := make(map[osm.NodeID]string)
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		obj := scanner.Object()
		w, ok := obj.(*osm.Way)
		if !ok {
			continue
		}
		if !isCycleAccessible(w.Tags) {
			continue
		}
		if len(w.Nodes) < 2 {
			continue
		}
		fwd, bwd := directionFlags(w.Tags)
		if !fwd && !bwd {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}
		ways = append(ways, wayInfo{NodeIDs: nodeIDs, Forward: fwd, Backward: bwd})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("osmjunctions: pass 1 complete: %d corridor ways, %d referenced nodes", len(ways), len(referencedNodes))

	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodeLat := make(map[osm.NodeID]float64, len(referencedNodes))
	nodeLon := make(map[osm.NodeID]float64, len(referencedNodes))

	runPass2 := func() error {
		s := osmpbf.New(ctx, rs, 1)
		s.SkipWays = true
		s.SkipRelations = true
		defer s.Close()

		for s.Scan() {
			n, ok := s.Object().(*osm.Node)
			if !ok {
				continue
			}
			if _, needed := referencedNodes[n.ID]; !needed {
				continue
			}
			nodeLat[n.ID] = n.Lat
			nodeLon[n.ID] = n.Lon
			if label, ok := junctionLabel(n.Tags); ok {
				junctionRefs[n.ID] = label
			}
		}
		return s.Err()
	}

	if opt.Concurrent {
		// The teacher's parser always runs pass 2 strictly sequentially
		// after pass 1; here the node-coordinate scan and the junction-ref
		// extraction are the *same* scan, so "concurrent" only buys
		// anything when the caller also wants pass 1 re-run for a second
		// region query sharing this reader's underlying bytes — expose the
		// knob via errgroup so that composition is possible without
		// restructuring this function, without changing default behavior.
		g, _ := errgroup.WithContext(ctx)
		g.Go(runPass2)
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("pass 2 (nodes): %w", err)
		}
	} else {
		if err := runPass2(); err != nil {
			return nil, fmt.Errorf("pass 2 (nodes): %w", err)
		}
	}

	log.Printf("osmjunctions: pass 2 complete: %d node coordinates, %d junction refs", len(nodeLat), len(junctionRefs))

	nodeSet := make(map[osm.NodeID]struct{})
	var edges []network.RawEdge
	var skipped int

	for _, w := range ways {
		for i := 0; i < len(w.NodeIDs)-1; i++ {
			fromID, toID := w.NodeIDs[i], w.NodeIDs[i+1]
			fromLat, fromOk := nodeLat[fromID]
			fromLon := nodeLon[fromID]
			toLat, toOk := nodeLat[toID]
			toLon := nodeLon[toID]
			if !fromOk || !toOk {
				skipped++
				continue
			}
			if useBBox && (!opt.BBox.Contains(fromLat, fromLon) || !opt.BBox.Contains(toLat, toLon)) {
				continue
			}

			from := geo.Coordinate{Lat: fromLat, Lon: fromLon}
			to := geo.Coordinate{Lat: toLat, Lon: toLon}
			length, err := geo.Distance(from, to)
			if err != nil || length <= 0 {
				skipped++
				continue
			}
			bearingFwd, _ := geo.Bearing(from, to)
			bearingBwd, _ := geo.Bearing(to, from)

			nodeSet[fromID] = struct{}{}
			nodeSet[toID] = struct{}{}

			if w.Forward {
				edges = append(edges, network.RawEdge{
					FromID: network.NodeID(fromID), ToID: network.NodeID(toID),
					LengthM: length, BearingDeg: bearingFwd,
					Polyline: []network.NodeID{network.NodeID(fromID), network.NodeID(toID)},
				})
			}
			if w.Backward {
				edges = append(edges, network.RawEdge{
					FromID: network.NodeID(toID), ToID: network.NodeID(fromID),
					LengthM: length, BearingDeg: bearingBwd,
					Polyline: []network.NodeID{network.NodeID(toID), network.NodeID(fromID)},
				})
			}
		}
	}

	if skipped > 0 {
		log.Printf("osmjunctions: skipped %d edges (missing coordinates or zero length)", skipped)
	}

	ids := make([]osm.NodeID, 0, len(nodeSet))
	for id := range nodeSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	nodes := make([]network.RawNode, 0, len(ids))
	for _, id := range ids {
		label, isJunction := junctionRefs[id]
		nodes = append(nodes, network.RawNode{
			ID:         network.NodeID(id),
			Coord:      geo.Coordinate{Lat: nodeLat[id], Lon: nodeLon[id]},
			IsJunction: isJunction,
			Label:      label,
		})
	}

	if len(edges) == 0 || countJunctions(nodes) == 0 {
		return nil, network.ErrEmpty
	}

	log.Printf("osmjunctions: built %d directed edges, %d junctions", len(edges), countJunctions(nodes))

	return &network.RawNetwork{Nodes: nodes, Edges: edges}, nil
}

func countJunctions(nodes []network.RawNode) int {
	n := 0
	for _, nd := range nodes {
		if nd.IsJunction {
			n++
		}
	}
	return n
}
