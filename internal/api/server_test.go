package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landslide-cli/internal/model"
	"github.com/sells-group/landslide-cli/internal/pipeline"
	"github.com/sells-group/landslide-cli/internal/raster"
	"github.com/sells-group/landslide-cli/internal/source"
	"github.com/sells-group/landslide-cli/internal/stats"
	"github.com/sells-group/landslide-cli/internal/store"
)

const squareAOI = `{"type":"Polygon","coordinates":[[[0,0],[150,0],[150,150],[0,150],[0,0]]]}`

// flatLoader lays flat forest with no water or roads over the AOI grid,
// which scores 1 on every predictor.
type flatLoader struct {
	err error
}

func (f flatLoader) Load(_ context.Context, aoi *source.AOI, cellSize float64) (*source.Layers, error) {
	if f.err != nil {
		return nil, f.err
	}
	g, err := aoi.Grid(cellSize)
	if err != nil {
		return nil, err
	}
	mask, err := aoi.Mask(g)
	if err != nil {
		return nil, err
	}
	return &source.Layers{
		Grid:            g,
		AOIMask:         mask,
		Elevation:       raster.NewLayer(source.NameElevation, raster.Continuous, g, 120),
		LandCover:       raster.NewLayer(source.NameLandCover, raster.Categorical, g, 10),
		WaterOccurrence: raster.NewLayer(source.NameWaterOccurrence, raster.Continuous, g, 0),
		RoadMask:        raster.NewLayer(source.NameRoadMask, raster.Categorical, g, 0),
		Coverage:        map[string]float64{source.NameElevation: 1},
	}, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestServer(t *testing.T, loader pipeline.Loader, st store.Store, opts Options) http.Handler {
	t.Helper()
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.NewRegistry()
	}
	return NewServer(pipeline.New(loader, nil, nil), st, opts).Routes()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, flatLoader{}, nil, Options{})

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestSusceptibility_Defaults(t *testing.T) {
	h := newTestServer(t, flatLoader{}, nil, Options{})

	rec := do(t, h, http.MethodPost, "/v1/susceptibility", `{"name":"hillside","aoi":`+squareAOI+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[SusceptibilityResponse](t, rec)
	assert.Empty(t, resp.RunID)
	assert.Equal(t, "hillside", resp.AOIName)
	assert.InDelta(t, 30.0, resp.CellSize, 1e-9)
	assert.InDelta(t, 0.45, resp.Weights["slope"], 1e-12)
	require.NotNil(t, resp.Summary)
	assert.Positive(t, resp.Summary.Count)
	for _, p := range resp.Summary.Percentiles {
		assert.InDelta(t, 0.2, p.Value, 1e-12, p.Name())
	}
	require.NotNil(t, resp.Histogram)
	assert.Equal(t, resp.Summary.Count, resp.Histogram.Classes[0].Pixels)
	assert.Len(t, resp.Stages, 6)
}

func TestSusceptibility_Overrides(t *testing.T) {
	h := newTestServer(t, flatLoader{}, nil, Options{})

	body := `{"aoi":` + squareAOI + `,"cell_size":50,"weights":{"slope":1,"roughness":0,"land_cover":0,"dist_water":0,"dist_road":0}}`
	rec := do(t, h, http.MethodPost, "/v1/susceptibility", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[SusceptibilityResponse](t, rec)
	assert.InDelta(t, 50.0, resp.CellSize, 1e-9)
	assert.InDelta(t, 1.0, resp.Weights["slope"], 1e-12)
	assert.Equal(t, "aoi", resp.AOIName)
}

func TestSusceptibility_Errors(t *testing.T) {
	tests := []struct {
		name   string
		loader pipeline.Loader
		opts   Options
		body   string
		status int
	}{
		{"bad json", flatLoader{}, Options{}, `{"aoi":`, http.StatusBadRequest},
		{"missing aoi", flatLoader{}, Options{}, `{"cell_size":30}`, http.StatusBadRequest},
		{"bad geometry", flatLoader{}, Options{}, `{"aoi":{"type":"Point","coordinates":[1,2]}}`, http.StatusBadRequest},
		{"lon/lat geometry", flatLoader{}, Options{}, `{"aoi":{"type":"Polygon","coordinates":[[[10.7,59.9],[10.8,59.9],[10.8,60.0],[10.7,59.9]]]}}`, http.StatusBadRequest},
		{"missing weight", flatLoader{}, Options{}, `{"aoi":` + squareAOI + `,"weights":{"slope":1}}`, http.StatusBadRequest},
		{"negative weight", flatLoader{}, Options{}, `{"aoi":` + squareAOI + `,"weights":{"slope":-1,"roughness":1,"land_cover":1,"dist_water":1,"dist_road":1}}`, http.StatusBadRequest},
		{"negative cell size", flatLoader{}, Options{}, `{"aoi":` + squareAOI + `,"cell_size":-5}`, http.StatusBadRequest},
		{"pixel cap", flatLoader{}, Options{Defaults: pipeline.Request{MaxPixels: 4}}, `{"aoi":` + squareAOI + `}`, http.StatusRequestEntityTooLarge},
		{"body too large", flatLoader{}, Options{MaxBodyBytes: 16}, `{"aoi":` + squareAOI + `}`, http.StatusRequestEntityTooLarge},
		{"load failure", flatLoader{err: errors.New("dem unreadable")}, Options{}, `{"aoi":` + squareAOI + `}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, tt.loader, nil, tt.opts)
			rec := do(t, h, http.MethodPost, "/v1/susceptibility", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[errorBody](t, rec).Error)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(pipeline.ErrInvalidRequest))
	assert.Equal(t, http.StatusBadRequest, statusFor(source.ErrEmptyAOI))
	assert.Equal(t, http.StatusRequestEntityTooLarge, statusFor(stats.ErrTooManyPixels))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestSusceptibility_SaveAndFetch(t *testing.T) {
	st := newTestStore(t)
	h := newTestServer(t, flatLoader{}, st, Options{})

	rec := do(t, h, http.MethodPost, "/v1/susceptibility", `{"name":"saved","aoi":`+squareAOI+`,"save":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SusceptibilityResponse](t, rec)
	require.NotEmpty(t, resp.RunID)

	rec = do(t, h, http.MethodGet, "/v1/runs/"+resp.RunID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[model.Run](t, rec)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "saved", run.AOIName)
	require.NotNil(t, run.Result)
	assert.Equal(t, resp.Summary.Count, run.Result.Summary.Count)

	rec = do(t, h, http.MethodGet, "/v1/runs?status=complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Run](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/v1/runs/"+resp.RunID+"/report?format=xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = do(t, h, http.MethodGet, "/v1/runs/"+resp.RunID+"/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "saved", decode[map[string]any](t, rec)["aoi_name"])
}

func TestSusceptibility_FailedRunIsRecorded(t *testing.T) {
	st := newTestStore(t)
	h := newTestServer(t, flatLoader{err: errors.New("tile missing")}, st, Options{})

	rec := do(t, h, http.MethodPost, "/v1/susceptibility", `{"aoi":`+squareAOI+`,"save":true}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "tile missing")
}

func TestRuns_Errors(t *testing.T) {
	st := newTestStore(t)
	h := newTestServer(t, flatLoader{}, st, Options{})

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unknown run", "/v1/runs/nope", http.StatusNotFound},
		{"unknown run report", "/v1/runs/nope/report", http.StatusNotFound},
		{"bad report format", "/v1/runs/nope/report?format=pdf", http.StatusBadRequest},
		{"bad status", "/v1/runs?status=queued", http.StatusBadRequest},
		{"bad limit", "/v1/runs?limit=x", http.StatusBadRequest},
		{"negative offset", "/v1/runs?offset=-1", http.StatusBadRequest},
		{"bad since", "/v1/runs?since=yesterday", http.StatusBadRequest},
		{"empty list", "/v1/runs?since=2020-01-01T00:00:00Z", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRuns_NoStore(t *testing.T) {
	h := newTestServer(t, flatLoader{}, nil, Options{})

	for _, target := range []string{"/v1/runs", "/v1/runs/abc", "/v1/runs/abc/report"} {
		rec := do(t, h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "landslide_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := newTestServer(t, flatLoader{}, nil, Options{Gatherer: reg})
	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "landslide_test_total 1")
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, flatLoader{}, nil, Options{CORSOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
