// Package pipeline runs the landslide susceptibility overlay for one AOI:
// load, terrain and proximity derivation, ordinal scoring, weighted
// combination and statistics.
package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/landslide-cli/internal/model"
	"github.com/sells-group/landslide-cli/internal/observability"
	"github.com/sells-group/landslide-cli/internal/overlay"
	"github.com/sells-group/landslide-cli/internal/proximity"
	"github.com/sells-group/landslide-cli/internal/raster"
	"github.com/sells-group/landslide-cli/internal/score"
	"github.com/sells-group/landslide-cli/internal/source"
	"github.com/sells-group/landslide-cli/internal/stats"
	"github.com/sells-group/landslide-cli/internal/terrain"
)

// Stage names, in execution order. Terrain and proximity run concurrently.
const (
	StageLoad      = "load"
	StageTerrain   = "terrain"
	StageProximity = "proximity"
	StageScore     = "score"
	StageCombine   = "combine"
	StageStats     = "stats"
)

// DefaultRoughnessRadius is the roughness window radius in cells (3x3).
const DefaultRoughnessRadius = 1

// ErrInvalidRequest is returned for malformed requests.
var ErrInvalidRequest = eris.New("pipeline: invalid request")

// IsConfigError reports whether err comes from bad parameters rather than
// data or I/O.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, overlay.ErrInvalidWeights) ||
		errors.Is(err, raster.ErrMisaligned)
}

// Loader produces the aligned input layers for an AOI.
type Loader interface {
	Load(ctx context.Context, aoi *source.AOI, cellSize float64) (*source.Layers, error)
}

// Request is the full parameter set of one run.
type Request struct {
	AOI     *source.AOI
	Weights overlay.Weights
	// CellSize in meters; 0 means raster.DefaultCellSize.
	CellSize float64
	// MaxPixels caps the AOI cell count; 0 means stats.DefaultMaxPixels and
	// a negative value disables the cap.
	MaxPixels   int64
	Percentiles []float64
	// RoughnessRadius in cells; 0 means DefaultRoughnessRadius.
	RoughnessRadius int
	// KeepLayers retains the predictor and score layers on the Result.
	KeepLayers bool
}

// normalize fills defaults and validates the request.
func (r Request) normalize() (Request, error) {
	if r.AOI == nil {
		return r, eris.Wrap(ErrInvalidRequest, "aoi is required")
	}
	if r.Weights == nil {
		r.Weights = overlay.DefaultWeights()
	}
	if err := r.Weights.Validate(); err != nil {
		return r, err
	}
	if r.CellSize == 0 {
		r.CellSize = raster.DefaultCellSize
	}
	if r.CellSize < 0 || math.IsNaN(r.CellSize) || math.IsInf(r.CellSize, 0) {
		return r, eris.Wrapf(ErrInvalidRequest, "cell size %v", r.CellSize)
	}
	switch {
	case r.MaxPixels == 0:
		r.MaxPixels = stats.DefaultMaxPixels
	case r.MaxPixels < 0:
		r.MaxPixels = 0
	}
	if r.Percentiles == nil {
		r.Percentiles = stats.DefaultPercentiles()
	}
	for _, p := range r.Percentiles {
		if math.IsNaN(p) || p < 0 || p > 100 {
			return r, eris.Wrapf(ErrInvalidRequest, "percentile %v outside 0..100", p)
		}
	}
	if r.RoughnessRadius == 0 {
		r.RoughnessRadius = DefaultRoughnessRadius
	}
	if r.RoughnessRadius < 0 {
		return r, eris.Wrapf(ErrInvalidRequest, "roughness radius %d", r.RoughnessRadius)
	}
	return r, nil
}

// Result is the output of one run.
type Result struct {
	AOIName        string
	Grid           raster.Grid
	CellSize       float64
	Weights        overlay.Weights
	AOIMask        *raster.Layer
	Susceptibility *raster.Layer
	Classes        *raster.Layer
	// Predictors and Scores are set when the request keeps layers.
	Predictors map[string]*raster.Layer
	Scores     overlay.Scores

	Summary   *stats.Summary
	Histogram *stats.Histogram
	Coverage  map[string]float64
	Stages    []model.StageResult
}

// RunResult converts r into the stored run outcome.
func (r *Result) RunResult() *model.RunResult {
	return &model.RunResult{
		Summary:   r.Summary,
		Histogram: r.Histogram,
		Coverage:  r.Coverage,
		Stages:    r.Stages,
	}
}

// Pipeline runs susceptibility requests. It holds no per-run state, so one
// Pipeline serves concurrent runs.
type Pipeline struct {
	loader  Loader
	ops     raster.Ops
	metrics *observability.Metrics
	clock   clockwork.Clock
	log     *zap.Logger
}

// New creates a Pipeline. A nil ops uses LocalOps; nil metrics disables
// instrumentation.
func New(loader Loader, ops raster.Ops, metrics *observability.Metrics) *Pipeline {
	if ops == nil {
		ops = LocalOps{}
	}
	return &Pipeline{
		loader:  loader,
		ops:     ops,
		metrics: metrics,
		clock:   clockwork.NewRealClock(),
		log:     zap.L().With(zap.String("component", "pipeline")),
	}
}

// WithClock replaces the clock used for stage timings.
func (p *Pipeline) WithClock(c clockwork.Clock) *Pipeline {
	p.clock = c
	return p
}

// derived holds the predictor rasters.
type derived struct {
	slope, aspect, roughness *raster.Layer
	distWater, distRoad      *raster.Layer
}

// Run executes every stage for one AOI.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	log := p.log.With(zap.String("aoi", req.AOI.Name))
	if err := checkAreaCap(req); err != nil {
		p.observeOutcome(observability.OutcomeFailed, 0)
		return nil, err
	}

	start := p.clock.Now()
	log.Info("pipeline: starting run",
		zap.Float64("cell_size", req.CellSize),
		zap.Float64("weight_sum", req.Weights.Sum()),
	)
	res := &Result{AOIName: req.AOI.Name, CellSize: req.CellSize, Weights: req.Weights}

	var stagesMu sync.Mutex
	track := func(name string, fn func() error) error {
		t0 := p.clock.Now()
		fnErr := fn()
		elapsed := p.clock.Since(t0)

		sr := model.StageResult{Name: name, Duration: elapsed.Milliseconds()}
		if fnErr != nil {
			sr.Status = model.StageStatusFailed
			sr.Error = fnErr.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", sr.Duration),
				zap.Error(fnErr),
			)
		} else {
			sr.Status = model.StageStatusComplete
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", sr.Duration),
			)
		}
		if p.metrics != nil {
			p.metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		}
		stagesMu.Lock()
		res.Stages = append(res.Stages, sr)
		stagesMu.Unlock()
		return fnErr
	}
	fail := func(err error) (*Result, error) {
		p.observeOutcome(observability.OutcomeFailed, p.clock.Since(start).Seconds())
		return nil, err
	}

	// Load.
	var layers *source.Layers
	if err := track(StageLoad, func() error {
		var loadErr error
		layers, loadErr = p.loader.Load(ctx, req.AOI, req.CellSize)
		if loadErr != nil {
			return eris.Wrap(loadErr, "pipeline: load sources")
		}
		return nil
	}); err != nil {
		return fail(err)
	}
	res.Grid = layers.Grid
	res.AOIMask = layers.AOIMask
	res.Coverage = layers.Coverage

	// Terrain and proximity.
	var d derived
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return track(StageTerrain, func() error { return p.deriveTerrain(gctx, layers, req.RoughnessRadius, &d) })
	})
	g.Go(func() error {
		return track(StageProximity, func() error { return p.deriveProximity(gctx, layers, &d) })
	})
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	// Score.
	var scores overlay.Scores
	if err := track(StageScore, func() error {
		var scoreErr error
		scores, scoreErr = scoreLayers(&d, layers.LandCover)
		return scoreErr
	}); err != nil {
		return fail(err)
	}

	// Combine and classify.
	if err := track(StageCombine, func() error {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: combine cancelled")
		}
		s, err := overlay.Combine(scores, req.Weights)
		if err != nil {
			return err
		}
		c, err := overlay.ClassifyLayer(s)
		if err != nil {
			return err
		}
		res.Susceptibility, res.Classes = s, c
		return nil
	}); err != nil {
		return fail(err)
	}

	// Statistics.
	if err := track(StageStats, func() error {
		sum, err := stats.Percentiles(res.Susceptibility, layers.AOIMask, req.Percentiles, req.MaxPixels)
		if err != nil {
			return err
		}
		hist, err := stats.ClassHistogram(res.Classes, layers.AOIMask)
		if err != nil {
			return err
		}
		res.Summary, res.Histogram = sum, hist
		return nil
	}); err != nil {
		return fail(err)
	}

	if req.KeepLayers {
		res.Scores = scores
		res.Predictors = map[string]*raster.Layer{
			terrain.NameSlope:       d.slope,
			terrain.NameAspect:      d.aspect,
			terrain.NameRoughness:   d.roughness,
			proximity.NameDistWater: d.distWater,
			proximity.NameDistRoad:  d.distRoad,
		}
	}

	elapsed := p.clock.Since(start)
	p.observeOutcome(observability.OutcomeComplete, elapsed.Seconds())
	if p.metrics != nil {
		p.metrics.CellsProcessed.Add(float64(res.Summary.Count))
		p.metrics.NodataCells.Add(float64(res.Summary.Nodata))
	}
	log.Info("pipeline: run complete",
		zap.Int("cells", res.Summary.Count),
		zap.Int("nodata", res.Summary.Nodata),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	)
	return res, nil
}

func (p *Pipeline) deriveTerrain(ctx context.Context, layers *source.Layers, radius int, d *derived) error {
	var err error
	if d.slope, err = p.ops.Slope(layers.Elevation); err != nil {
		return eris.Wrap(err, "pipeline: slope")
	}
	if d.aspect, err = p.ops.Aspect(layers.Elevation); err != nil {
		return eris.Wrap(err, "pipeline: aspect")
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "pipeline: terrain cancelled")
	}
	if d.roughness, err = p.ops.Roughness(layers.Elevation, radius); err != nil {
		return eris.Wrap(err, "pipeline: roughness")
	}
	return nil
}

func (p *Pipeline) deriveProximity(ctx context.Context, layers *source.Layers, d *derived) error {
	var err error
	if d.distWater, err = proximity.DistanceToWater(p.ops.DistanceTransform, layers.WaterOccurrence, layers.AOIMask); err != nil {
		return eris.Wrap(err, "pipeline: distance to water")
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "pipeline: proximity cancelled")
	}
	if d.distRoad, err = proximity.DistanceToRoad(p.ops.DistanceTransform, layers.RoadMask, layers.AOIMask); err != nil {
		return eris.Wrap(err, "pipeline: distance to road")
	}
	return nil
}

// scoreLayers reclassifies every predictor into ordinal scores.
func scoreLayers(d *derived, landCover *raster.Layer) (overlay.Scores, error) {
	inputs := []struct {
		p      overlay.Predictor
		layer  *raster.Layer
		scorer score.Scorer
	}{
		{overlay.Slope, d.slope, score.Slope},
		{overlay.Roughness, d.roughness, score.Roughness},
		{overlay.LandCover, landCover, score.LandCover()},
		{overlay.DistWater, d.distWater, score.DistWater},
		{overlay.DistRoad, d.distRoad, score.DistRoad},
	}
	out := make(overlay.Scores, len(inputs))
	for _, in := range inputs {
		l, err := score.ScoreLayer(string(in.p)+"_score", in.layer, in.scorer)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: score %s", in.p)
		}
		out[in.p] = l
	}
	return out, nil
}

// checkAreaCap rejects AOIs whose analysis grid has more cells than the
// cap, before any data is read. Every layer of a run is allocated over the
// whole buffered bounding-box grid, so the grid size bounds the work, not
// the polygon area.
func checkAreaCap(req Request) error {
	if req.MaxPixels <= 0 {
		return nil
	}
	g, err := req.AOI.Grid(req.CellSize)
	if err != nil {
		return eris.Wrap(err, "pipeline: aoi grid")
	}
	if cells := int64(g.Cols) * int64(g.Rows); cells > req.MaxPixels {
		return eris.Wrapf(stats.ErrTooManyPixels, "aoi %s grid is %dx%d (%d cells), cap is %d",
			req.AOI.Name, g.Cols, g.Rows, cells, req.MaxPixels)
	}
	return nil
}

func (p *Pipeline) observeOutcome(outcome string, seconds float64) {
	if p.metrics == nil {
		return
	}
	p.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	if outcome == observability.OutcomeComplete {
		p.metrics.RunDuration.Observe(seconds)
	}
}
