// Package scorer selects the winning candidate from a loop enumeration:
// scores by wind effort adjusted for distance fit, and picks the minimum,
// breaking ties by distance fit then discovery order.
package scorer

import (
	"math"

	"windloop/pkg/junctiongraph"
	"windloop/pkg/loopsearch"
)

// DefaultAlpha is the default distance-penalty weight in the scoring
// formula.
const DefaultAlpha = 2.0

// Scored pairs a candidate with its computed effort, distance penalty, and
// score.
type Scored struct {
	Candidate   loopsearch.Candidate
	EffortM     float64
	DistPenalty float64
	Score       float64
}

// Score computes the total wind effort of a candidate by summing
// EdgeEffort over its consecutive junction pairs, and its score against the
// target distance:
//
//	dist_penalty(c) = |L(c) - T| / T
//	score(c)         = E(c) * (1 + alpha * dist_penalty(c))
func Score(g *junctiongraph.Graph, c loopsearch.Candidate, targetM, alpha float64) Scored {
	var effort float64
	for i := 0; i+1 < len(c.Path); i++ {
		u, v := c.Path[i], c.Path[i+1]
		for _, nb := range g.Neighbors(u) {
			if nb.Neighbor == v {
				effort += g.EdgeEffort(u, nb)
				break
			}
		}
	}
	distPenalty := math.Abs(c.LengthM-targetM) / targetM
	score := effort * (1 + alpha*distPenalty)
	return Scored{Candidate: c, EffortM: effort, DistPenalty: distPenalty, Score: score}
}

// Select scores every candidate and returns the winner: the smallest score,
// ties broken by smaller distance penalty, then by earlier discovery order.
// Returns false if candidates is empty.
func Select(g *junctiongraph.Graph, candidates []loopsearch.Candidate, targetM, alpha float64) (Scored, bool) {
	if len(candidates) == 0 {
		return Scored{}, false
	}

	best := Score(g, candidates[0], targetM, alpha)
	for _, c := range candidates[1:] {
		s := Score(g, c, targetM, alpha)
		if better(s, best) {
			best = s
		}
	}
	return best, true
}

func better(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if a.DistPenalty != b.DistPenalty {
		return a.DistPenalty < b.DistPenalty
	}
	return a.Candidate.DiscoveryIndex < b.Candidate.DiscoveryIndex
}
