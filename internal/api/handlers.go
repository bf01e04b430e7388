package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/landslide-cli/internal/model"
	"github.com/sells-group/landslide-cli/internal/overlay"
	"github.com/sells-group/landslide-cli/internal/pipeline"
	"github.com/sells-group/landslide-cli/internal/report"
	"github.com/sells-group/landslide-cli/internal/source"
	"github.com/sells-group/landslide-cli/internal/stats"
	"github.com/sells-group/landslide-cli/internal/store"
)

// SusceptibilityRequest is the body of POST /v1/susceptibility.
type SusceptibilityRequest struct {
	Name string `json:"name,omitempty"`
	// AOI is a GeoJSON Geometry, Feature or FeatureCollection in the
	// projected meter CRS of the datasets, not RFC 7946 lon/lat. Geometries
	// that fit inside ±180/±90 are rejected. Multiple features are merged.
	AOI      json.RawMessage    `json:"aoi"`
	Weights  map[string]float64 `json:"weights,omitempty"`
	CellSize float64            `json:"cell_size,omitempty"`
	Save     bool               `json:"save,omitempty"`
}

// SusceptibilityResponse is the outcome of one request.
type SusceptibilityResponse struct {
	RunID     string              `json:"run_id,omitempty"`
	AOIName   string              `json:"aoi_name"`
	CellSize  float64             `json:"cell_size"`
	Weights   map[string]float64  `json:"weights"`
	Summary   *stats.Summary      `json:"summary"`
	Histogram *stats.Histogram    `json:"histogram"`
	Coverage  map[string]float64  `json:"coverage,omitempty"`
	Stages    []model.StageResult `json:"stages"`
}

func (s *Server) handleSusceptibility(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var body SusceptibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.AOI) == 0 {
		writeError(w, http.StatusBadRequest, "aoi is required")
		return
	}

	aoi, err := source.ParseAOIGeoJSON(body.AOI, s.opts.AOIBufferM)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if aoi.LooksGeographic() {
		writeError(w, http.StatusBadRequest, "aoi looks like lon/lat degrees; reproject it to the datasets' projected CRS in meters")
		return
	}
	if body.Name != "" {
		aoi.Name = body.Name
	}

	req := s.opts.Defaults
	req.AOI = aoi
	if body.Weights != nil {
		req.Weights = overlay.WeightsFromMap(body.Weights)
	}
	if body.CellSize != 0 {
		req.CellSize = body.CellSize
	}

	var (
		res *pipeline.Result
		run *model.Run
	)
	if body.Save && s.store != nil {
		res, run, err = s.runner.RunRecorded(r.Context(), s.store, req)
	} else {
		res, err = s.runner.Run(r.Context(), req)
	}
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.log.Error("api: susceptibility run failed", zap.String("aoi", aoi.Name), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	resp := SusceptibilityResponse{
		AOIName:   res.AOIName,
		CellSize:  res.CellSize,
		Weights:   res.Weights.Map(),
		Summary:   res.Summary,
		Histogram: res.Histogram,
		Coverage:  res.Coverage,
		Stages:    res.Stages,
	}
	if run != nil {
		resp.RunID = run.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps pipeline errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case pipeline.IsConfigError(err), errors.Is(err, source.ErrEmptyAOI):
		return http.StatusBadRequest
	case errors.Is(err, stats.ErrTooManyPixels):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}
	filter, err := parseRunFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.log.Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func parseRunFilter(r *http.Request) (store.RunFilter, error) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:  model.RunStatus(q.Get("status")),
		AOIName: q.Get("aoi"),
	}
	switch filter.Status {
	case "", model.RunStatusRunning, model.RunStatusComplete, model.RunStatusFailed:
	default:
		return filter, errors.New("invalid status")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid since, want RFC 3339")
		}
		filter.CreatedAfter = t
	}
	return filter, nil
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return nil, false
	}
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		s.log.Error("api: get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	format := report.FormatJSON
	if v := r.URL.Query().Get("format"); v != "" {
		f, err := report.ParseFormat(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unsupported report format")
			return
		}
		format = f
	}

	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	rep, err := s.opts.Reports.FromRun(run)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}

	w.Header().Set("Content-Type", report.ContentType(format))
	if format == report.FormatXLSX {
		w.Header().Set("Content-Disposition", `attachment; filename="`+run.ID+`.xlsx"`)
	}
	if err := report.Render(w, format, rep); err != nil {
		s.log.Error("api: render report", zap.String("run_id", run.ID), zap.Error(err))
	}
}
