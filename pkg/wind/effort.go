// Package wind rewrites a junction graph's edge weights with a wind-effort
// scalar: a length-equivalent cost that amplifies headwind legs and
// discounts tailwind legs relative to a fixed reference speed.
package wind

import (
	"math"

	"windloop/pkg/junctiongraph"
	"windloop/pkg/network"
)

// DefaultKappa and DefaultVRef calibrate the effort model so a pure
// headwind at 10 m/s feels 60% harder and a pure tailwind 40% easier.
// Override them via Config only for a wind sensitivity different from
// this baseline.
const (
	DefaultKappa = 0.6
	DefaultVRef  = 10.0
)

// Config parameterizes Annotate. Zero value is invalid; use
// DefaultConfig().
type Config struct {
	Kappa float64
	VRef  float64
}

// DefaultConfig returns the baseline wind-sensitivity constants.
func DefaultConfig() Config {
	return Config{Kappa: DefaultKappa, VRef: DefaultVRef}
}

// Annotate rewrites every edge's EffortUV/EffortVU fields in place given a
// wind vector. LengthM is never modified. Travelling U->V sees the edge's
// representative bearing; travelling V->U sees it reversed by 180 degrees,
// so a leg that is a headwind in one direction is a tailwind in the other.
//
// For an edge of length L and bearing β:
//
//	δ = angle_diff(β, wind.BearingDeg)                         // in [0, 180]
//	c = wind.SpeedMS * -cos(δ * π/180)                          // signed component along travel, tailwind positive
//	effort = L * (1 + kappa * clip(-c / vRef, -1, 1))
//
// effort(e) is in [0.4*L, 1.6*L] at the reference wind speed, and equals L
// when wind speed is zero.
func Annotate(g *junctiongraph.Graph, w network.WindVector, cfg Config) {
	for i := range g.Edges {
		e := &g.Edges[i]
		e.EffortUV = effort(e.LengthM, e.BearingDeg, w, cfg)
		e.EffortVU = effort(e.LengthM, math.Mod(e.BearingDeg+180, 360), w, cfg)
	}
}

func effort(lengthM, bearingDeg float64, w network.WindVector, cfg Config) float64 {
	delta := angleDiff(bearingDeg, w.BearingDeg)
	// Equivalent to w.SpeedMS * cos((180-delta)*pi/180); tailwind is
	// positive, headwind negative.
	c := -w.SpeedMS * math.Cos(delta*math.Pi/180)
	factor := 1 + cfg.Kappa*clip(-c/cfg.VRef, -1, 1)
	return lengthM * factor
}

func angleDiff(alpha, beta float64) float64 {
	d := math.Mod(math.Abs(alpha-beta), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
