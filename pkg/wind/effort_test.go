package wind

import (
	"math"
	"testing"

	"windloop/pkg/junctiongraph"
	"windloop/pkg/network"
)

func TestEffortZeroWind(t *testing.T) {
	got := effort(1000, 45, network.WindVector{SpeedMS: 0, BearingDeg: 90}, DefaultConfig())
	if got != 1000 {
		t.Errorf("effort() = %f, want 1000 (zero wind leaves length unchanged)", got)
	}
}

func TestEffortPureHeadwindAtRefSpeed(t *testing.T) {
	// Travelling due east (bearing 90); wind blowing from the east (90) is
	// a pure headwind.
	got := effort(1000, 90, network.WindVector{SpeedMS: DefaultVRef, BearingDeg: 90}, DefaultConfig())
	want := 1600.0
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("effort() = %f, want %f (1.6x at full headwind, ref speed)", got, want)
	}
}

func TestEffortPureTailwindAtRefSpeed(t *testing.T) {
	// Travelling due east (bearing 90); wind blowing from the west (270) is
	// a pure tailwind.
	got := effort(1000, 90, network.WindVector{SpeedMS: DefaultVRef, BearingDeg: 270}, DefaultConfig())
	want := 400.0
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("effort() = %f, want %f (0.4x at full tailwind, ref speed)", got, want)
	}
}

func TestEffortBounds(t *testing.T) {
	length := 1000.0
	for bearing := 0.0; bearing < 360; bearing += 15 {
		for windBearing := 0.0; windBearing < 360; windBearing += 15 {
			got := effort(length, bearing, network.WindVector{SpeedMS: DefaultVRef, BearingDeg: windBearing}, DefaultConfig())
			if got < 0.4*length-1e-9 || got > 1.6*length+1e-9 {
				t.Fatalf("effort(bearing=%f, wind=%f) = %f, out of [0.4L, 1.6L]", bearing, windBearing, got)
			}
		}
	}
}

func TestAnnotateRewritesEdges(t *testing.T) {
	g := &junctiongraph.Graph{
		NumJunctions: 2,
		Edges: []junctiongraph.Edge{
			{U: 0, V: 1, LengthM: 1000, BearingDeg: 90, EffortUV: 1000, EffortVU: 1000},
		},
	}
	Annotate(g, network.WindVector{SpeedMS: DefaultVRef, BearingDeg: 90}, DefaultConfig())
	if math.Abs(g.Edges[0].EffortUV-1600) > 1e-6 {
		t.Errorf("Annotate() EffortUV = %f, want 1600 (U->V bearing 90 is a pure headwind)", g.Edges[0].EffortUV)
	}
	if math.Abs(g.Edges[0].EffortVU-400) > 1e-6 {
		t.Errorf("Annotate() EffortVU = %f, want 400 (V->U bearing 270 is a pure tailwind)", g.Edges[0].EffortVU)
	}
	if g.Edges[0].LengthM != 1000 {
		t.Errorf("Annotate() must not modify LengthM, got %f", g.Edges[0].LengthM)
	}
}

func TestReversingWindReversesHeadwindTailwind(t *testing.T) {
	length, bearing := 1000.0, 90.0
	forward := effort(length, bearing, network.WindVector{SpeedMS: DefaultVRef, BearingDeg: 90}, DefaultConfig())
	reversedWind := effort(length, bearing, network.WindVector{SpeedMS: DefaultVRef, BearingDeg: math.Mod(90+180, 360)}, DefaultConfig())
	if math.Abs(forward-1600) > 1e-6 || math.Abs(reversedWind-400) > 1e-6 {
		t.Errorf("expected headwind/tailwind swap, got forward=%f reversed=%f", forward, reversedWind)
	}
}
