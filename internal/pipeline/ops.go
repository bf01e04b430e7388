package pipeline

import (
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landslide-cli/internal/proximity"
	"github.com/sells-group/landslide-cli/internal/raster"
	"github.com/sells-group/landslide-cli/internal/terrain"
)

// LocalOps is the in-process raster engine.
type LocalOps struct{}

var _ raster.Ops = LocalOps{}

func (LocalOps) Slope(dem *raster.Layer) (*raster.Layer, error) { return terrain.Slope(dem) }

func (LocalOps) Aspect(dem *raster.Layer) (*raster.Layer, error) { return terrain.Aspect(dem) }

func (LocalOps) Roughness(dem *raster.Layer, radius int) (*raster.Layer, error) {
	return terrain.Roughness(dem, radius)
}

func (LocalOps) DistanceTransform(mask *raster.Layer) (*raster.Layer, error) {
	return proximity.DistanceTransform(mask)
}

func (LocalOps) Rasterize(g raster.Grid, lines []*geom.LineString) (*raster.Layer, error) {
	return proximity.Rasterize(g, lines)
}
