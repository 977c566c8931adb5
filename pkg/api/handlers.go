package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"

	"windloop/pkg/geo"
	"windloop/pkg/network"
	"windloop/pkg/planner"
)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	planner planner.Planner
	stats   StatsResponse
}

// NewHandlers creates handlers backed by p, which may be a LoaderPlanner
// fetching from a network.Loader on every request or a CachePlanner serving
// a preloaded region.
func NewHandlers(p planner.Planner, stats StatsResponse) *Handlers {
	return &Handlers{
		planner: p,
		stats:   stats,
	}
}

// HandlePlan handles POST /api/v1/plan.
func (h *Handlers) HandlePlan(w http.ResponseWriter, r *http.Request) {
	// Enforce Content-Type.
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "", "")
		return
	}

	// Parse request.
	var req PlanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "", "")
		return
	}

	if err := validateCoord(req.Start); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "start", "")
		return
	}

	start := geo.Coordinate{Lat: req.Start.Lat, Lon: req.Start.Lng}
	wind := network.WindVector{SpeedMS: req.WindSpeedMS, BearingDeg: req.WindBearingDeg}

	plan, err := h.planner.Plan(r.Context(), start, req.TargetDistanceMeters, wind)
	if err != nil {
		writePlanError(w, err)
		return
	}

	resp := PlanResponse{
		ActualDistanceMeters: plan.ActualLengthM,
		JunctionLabels:       plan.JunctionLabels,
		JunctionCoords:       toLatLngs(plan.JunctionCoords),
		ApproachPolyline:     toLatLngs(plan.ApproachPolyline),
		LoopPolyline:         toLatLngs(plan.LoopPolyline),
		WindSpeedMS:          plan.WindUsed.SpeedMS,
		WindBearingDeg:       plan.WindUsed.BearingDeg,
		SearchRadiusMeters:   plan.SearchRadiusM,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.stats)
}

func writePlanError(w http.ResponseWriter, err error) {
	var pe *planner.PlanError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case planner.InvalidInput:
			writeError(w, http.StatusBadRequest, "invalid_request", "", pe.Context)
		case planner.NetworkUnavailable:
			writeError(w, http.StatusServiceUnavailable, "network_unavailable", "", pe.Context)
		case planner.NetworkEmpty:
			writeError(w, http.StatusUnprocessableEntity, "network_empty", "", pe.Context)
		case planner.StartUnreachable:
			writeError(w, http.StatusUnprocessableEntity, "point_too_far_from_road", "", pe.Context)
		case planner.NoLoopFound:
			writeError(w, http.StatusNotFound, "no_loop_found", "", pe.Context)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "", pe.Context)
		}
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "", "")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", "", "")
}

func toLatLngs(coords []geo.Coordinate) []LatLngJSON {
	out := make([]LatLngJSON, len(coords))
	for i, c := range coords {
		out[i] = LatLngJSON{Lat: c.Lat, Lng: c.Lon}
	}
	return out
}

func validateCoord(ll LatLngJSON) error {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lat, 0) || math.IsInf(ll.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if ll.Lat < -90 || ll.Lat > 90 || ll.Lng < -180 || ll.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, field, context string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Field: field, Context: context})
}
