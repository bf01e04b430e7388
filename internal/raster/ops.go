package raster

import "github.com/twpayne/go-geom"

// Ops is the set of raster primitives the pipeline depends on. Swapping the
// implementation swaps the raster engine without touching scoring logic.
type Ops interface {
	// Slope returns terrain slope in degrees.
	Slope(dem *Layer) (*Layer, error)
	// Aspect returns downslope direction in compass degrees.
	Aspect(dem *Layer) (*Layer, error)
	// Roughness returns the standard deviation of elevation in a square
	// window of the given radius in cells.
	Roughness(dem *Layer, radius int) (*Layer, error)
	// DistanceTransform returns the Euclidean distance in meters from each
	// cell to the nearest cell where mask is 1.
	DistanceTransform(mask *Layer) (*Layer, error)
	// Rasterize burns line geometries into a binary presence layer.
	Rasterize(g Grid, lines []*geom.LineString) (*Layer, error)
}
