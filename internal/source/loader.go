package source

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/landslide-cli/internal/raster"
)

// Layer names produced by the loader.
const (
	NameElevation       = "elevation"
	NameLandCover       = "land_cover"
	NameWaterOccurrence = "water_occurrence"
	NameRoadMask        = "road_mask"
)

// Sources are the dataset identifiers: local paths or http(s)/ftp URLs.
// Rasters are ESRI ASCII grids, roads a line shapefile; either may be
// zipped.
type Sources struct {
	Elevation       string `json:"elevation" yaml:"elevation"`
	LandCover       string `json:"land_cover" yaml:"land_cover"`
	WaterOccurrence string `json:"water_occurrence" yaml:"water_occurrence"`
	Roads           string `json:"roads" yaml:"roads"`
}

// Validate checks the required rasters are configured. Roads are optional.
func (s Sources) Validate() error {
	switch {
	case s.Elevation == "":
		return eris.New("source: elevation dataset is required")
	case s.LandCover == "":
		return eris.New("source: land cover dataset is required")
	case s.WaterOccurrence == "":
		return eris.New("source: water occurrence dataset is required")
	}
	return nil
}

// Resolver turns a dataset identifier into a local file path.
type Resolver interface {
	Resolve(ctx context.Context, id string, exts ...string) (string, error)
}

// Rasterizer burns vector lines into a presence layer.
type Rasterizer interface {
	Rasterize(g raster.Grid, lines []*geom.LineString) (*raster.Layer, error)
}

// Layers is the aligned input bundle for one AOI.
type Layers struct {
	Grid            raster.Grid
	AOIMask         *raster.Layer
	Elevation       *raster.Layer
	LandCover       *raster.Layer
	WaterOccurrence *raster.Layer
	RoadMask        *raster.Layer
	// Coverage is the fraction of AOI cells each raster source covers.
	Coverage map[string]float64
}

// Loader clips, resamples and masks the configured sources to an AOI.
type Loader struct {
	sources    Sources
	resolver   Resolver
	rasterizer Rasterizer
	clock      clockwork.Clock
	log        *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader(sources Sources, resolver Resolver, rasterizer Rasterizer) *Loader {
	return &Loader{
		sources:    sources,
		resolver:   resolver,
		rasterizer: rasterizer,
		clock:      clockwork.NewRealClock(),
		log:        zap.L().With(zap.String("component", "source")),
	}
}

// WithClock sets the clock used for load timing.
func (l *Loader) WithClock(c clockwork.Clock) *Loader {
	l.clock = c
	return l
}

// Load reads every source onto the AOI grid. Sources that do not cover the
// AOI load as nodata rather than failing.
func (l *Loader) Load(ctx context.Context, aoi *AOI, cellSize float64) (*Layers, error) {
	if aoi == nil {
		return nil, eris.New("source: nil aoi")
	}
	if err := l.sources.Validate(); err != nil {
		return nil, err
	}
	start := l.clock.Now()

	g, err := aoi.Grid(cellSize)
	if err != nil {
		return nil, err
	}
	mask, err := aoi.Mask(g)
	if err != nil {
		return nil, err
	}
	out := &Layers{Grid: g, AOIMask: mask}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		out.Elevation, err = l.loadRaster(gctx, l.sources.Elevation, NameElevation, raster.Continuous, g, mask)
		return err
	})
	eg.Go(func() error {
		var err error
		out.LandCover, err = l.loadRaster(gctx, l.sources.LandCover, NameLandCover, raster.Categorical, g, mask)
		return err
	})
	eg.Go(func() error {
		var err error
		out.WaterOccurrence, err = l.loadRaster(gctx, l.sources.WaterOccurrence, NameWaterOccurrence, raster.Continuous, g, mask)
		return err
	})
	eg.Go(func() error {
		var err error
		out.RoadMask, err = l.loadRoads(gctx, g)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out.Coverage = map[string]float64{
		NameElevation:       raster.Coverage(out.Elevation),
		NameLandCover:       raster.Coverage(out.LandCover),
		NameWaterOccurrence: raster.Coverage(out.WaterOccurrence),
	}
	l.log.Info("sources loaded",
		zap.String("aoi", aoi.Name),
		zap.Int("cols", g.Cols),
		zap.Int("rows", g.Rows),
		zap.Int("aoi_cells", mask.CountValid()),
		zap.Float64("elevation_coverage", out.Coverage[NameElevation]),
		zap.Duration("elapsed", l.clock.Since(start)),
	)
	return out, nil
}

func (l *Loader) loadRaster(ctx context.Context, id, name string, kind raster.Kind, g raster.Grid, mask *raster.Layer) (*raster.Layer, error) {
	path, err := l.resolver.Resolve(ctx, id, ".asc")
	if err != nil {
		return nil, eris.Wrapf(err, "source: resolve %s", name)
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "source: load cancelled")
	}
	src, err := raster.ReadASCIIGridFile(path, name, kind)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", name)
	}
	if !raster.Overlaps(src.Grid, g) {
		l.log.Warn("source does not cover aoi", zap.String("layer", name), zap.String("path", path))
	}

	out := raster.Resample(src, g)
	out.Name = name
	if err := out.ApplyMask(mask); err != nil {
		return nil, err
	}
	return out, nil
}

// loadRoads burns the road network over the whole grid. Roads just outside
// the AOI still matter for distance, so the result is not masked.
func (l *Loader) loadRoads(ctx context.Context, g raster.Grid) (*raster.Layer, error) {
	if l.sources.Roads == "" {
		l.log.Warn("no road dataset configured, road mask is empty")
		return raster.NewLayer(NameRoadMask, raster.Categorical, g, 0), nil
	}
	path, err := l.resolver.Resolve(ctx, l.sources.Roads, ".shp")
	if err != nil {
		return nil, eris.Wrap(err, "source: resolve roads")
	}
	lines, err := ReadLines(path)
	if err != nil {
		return nil, err
	}
	roads, err := l.rasterizer.Rasterize(g, lines)
	if err != nil {
		return nil, eris.Wrap(err, "source: rasterize roads")
	}
	roads.Name = NameRoadMask
	return roads, nil
}
