package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/walkthru-earth/elevationd/internal/geo"
)

// newRouter builds the chi mux for the service's external interfaces (spec
// §4.11), mirroring the nested route-group + middleware-chain shape of a
// production chi server rather than the teacher's Wails JS bindings.
func (a *app) newRouter(m *metrics, jobs *jobTracker) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", a.handleHealthz)
	r.Get("/elevation", a.withMetric(m, "elevation", a.handleElevation))
	r.Post("/elevations", a.withMetric(m, "elevations", a.handleElevations))
	r.Get("/extremes", a.withMetric(m, "extremes", a.handleExtremes))
	r.Post("/bulk", a.withMetric(m, "bulk_start", a.handleBulkStart(jobs, m)))
	r.Get("/bulk/{id}", a.withMetric(m, "bulk_status", a.handleBulkStatus(jobs)))

	return r
}

func (a *app) withMetric(m *metrics, route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.elevationRequests.WithLabelValues(route).Inc()
		h(w, r)
	}
}

func (a *app) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleElevation answers a single-point query: GET
// /elevation?lat=..&lon=..&resolution=..&mapMissing=..
func (a *app) handleElevation(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseLatLon(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resolution := parseFloatDefault(r, "resolution", a.model.BestResolution(a.levels.Coverage))
	mapMissing := parseBoolDefault(r, "mapMissing", true)

	p := geo.NewLatLonDegrees(lat, lon)
	sector := geo.Sector{MinLat: p.Lat, MaxLat: p.Lat, MinLon: p.Lon, MaxLon: p.Lon}
	out := make([]float64, 1)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	achieved, err := a.source.GetElevations(ctx, sector, []geo.LatLon{p}, resolution, out, mapMissing)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"elevation":          out[0],
		"achievedResolution": achieved,
	})
}

type elevationsRequest struct {
	Sector           sectorDTO   `json:"sector"`
	Locations        []latLonDTO `json:"locations"`
	TargetResolution float64     `json:"targetResolution"`
	MapMissing       bool        `json:"mapMissing"`
}

type sectorDTO struct {
	MinLat, MaxLat, MinLon, MaxLon float64
}

type latLonDTO struct {
	Lat, Lon float64
}

// handleElevations answers a batch query: POST /elevations with a JSON
// body of {sector, locations, targetResolution, mapMissing}.
func (a *app) handleElevations(w http.ResponseWriter, r *http.Request) {
	var req elevationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sector := geo.NewSectorDegrees(req.Sector.MinLat, req.Sector.MaxLat, req.Sector.MinLon, req.Sector.MaxLon)
	locations := make([]geo.LatLon, len(req.Locations))
	for i, l := range req.Locations {
		locations[i] = geo.NewLatLonDegrees(l.Lat, l.Lon)
	}
	out := make([]float64, len(locations))

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	achieved, err := a.source.GetElevations(ctx, sector, locations, req.TargetResolution, out, req.MapMissing)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"elevations":         out,
		"achievedResolution": achieved,
	})
}

// handleExtremes answers GET /extremes?lat=&lon= or ?minLat=&maxLat=&minLon=&maxLon=.
func (a *app) handleExtremes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("lat") && q.Has("lon") {
		lat, lon, err := parseLatLon(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ext, ok := a.source.ExtremesPoint(geo.NewLatLonDegrees(lat, lon))
		if !ok {
			writeError(w, http.StatusNotFound, errOutOfCoverage)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"min": ext.Min, "max": ext.Max})
		return
	}

	sector := geo.NewSectorDegrees(
		parseFloatDefault(r, "minLat", -90), parseFloatDefault(r, "maxLat", 90),
		parseFloatDefault(r, "minLon", -180), parseFloatDefault(r, "maxLon", 180),
	)
	ext, ok := a.source.ExtremesSector(sector)
	if !ok {
		writeError(w, http.StatusNotFound, errOutOfCoverage)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"min": ext.Min, "max": ext.Max})
}

type bulkRequest struct {
	Sector     sectorDTO `json:"sector"`
	Resolution float64   `json:"resolution"`
}

func (req bulkRequest) sector() geo.Sector {
	return geo.NewSectorDegrees(req.Sector.MinLat, req.Sector.MaxLat, req.Sector.MinLon, req.Sector.MaxLon)
}

// handleBulkStart launches a background pre-fetch and returns its job id
// (spec §4.7, exposed over HTTP per spec §4.11).
func (a *app) handleBulkStart(jobs *jobTracker, m *metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		id := jobs.start(context.Background(), a, req, m)
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id})
	}
}

func (a *app) handleBulkStatus(jobs *jobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, ok := jobs.get(id)
		if !ok {
			writeError(w, http.StatusNotFound, errJobNotFound)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func parseLatLon(r *http.Request) (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		return 0, 0, errInvalidLatLon
	}
	lon, err = strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		return 0, 0, errInvalidLatLon
	}
	return lat, lon, nil
}

func parseFloatDefault(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func parseBoolDefault(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
