// Package proximity builds feature masks and distance-to-feature rasters.
package proximity

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landslide-cli/internal/raster"
)

// WaterThreshold is the surface-water occurrence (percent) above which a
// cell counts as water.
const WaterThreshold = 10.0

// Layer names produced by this package.
const (
	NameWaterMask     = "water_mask"
	NameRoadMask      = "road_mask"
	NameDistWater     = "dist_water"
	NameDistRoad      = "dist_road"
	nameDistTransform = "distance"
)

// WaterMask marks cells whose occurrence exceeds WaterThreshold. Nodata
// counts as absent.
func WaterMask(occurrence *raster.Layer) (*raster.Layer, error) {
	if occurrence == nil {
		return nil, eris.New("proximity: nil occurrence layer")
	}
	out := raster.NewLayer(NameWaterMask, raster.Categorical, occurrence.Grid, 0)
	for i, v := range occurrence.Data {
		if !math.IsNaN(v) && v > WaterThreshold {
			out.Data[i] = 1
		}
	}
	return out, nil
}

// DistanceTransform returns the exact Euclidean distance in meters from each
// cell to the nearest cell where mask == 1. Cells with no feature anywhere
// on the grid get +Inf.
func DistanceTransform(mask *raster.Layer) (*raster.Layer, error) {
	if mask == nil {
		return nil, eris.New("proximity: nil mask")
	}
	g := mask.Grid
	sq := SquaredDistanceCells(mask)

	out := raster.NewLayer(nameDistTransform, raster.Continuous, g, 0)
	for i, d := range sq {
		if math.IsInf(d, 1) {
			out.Data[i] = d
			continue
		}
		out.Data[i] = math.Sqrt(d) * g.CellSize
	}
	return out, nil
}

// SquaredDistanceCells returns the squared distance in cell units to the
// nearest present cell, using the two-pass separable algorithm of
// Felzenszwalb and Huttenlocher.
func SquaredDistanceCells(mask *raster.Layer) []float64 {
	g := mask.Grid
	// Larger than any in-grid squared distance, and finite so the envelope
	// arithmetic never sees Inf-Inf.
	far := float64(g.Cols*g.Cols+g.Rows*g.Rows) + 1

	grid := make([]float64, g.Len())
	for i, v := range mask.Data {
		if v == 1 {
			grid[i] = 0
		} else {
			grid[i] = far
		}
	}

	n := max(g.Cols, g.Rows)
	f := make([]float64, n)
	d := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	// Columns.
	for col := 0; col < g.Cols; col++ {
		for row := 0; row < g.Rows; row++ {
			f[row] = grid[g.Index(col, row)]
		}
		lowerEnvelope(f[:g.Rows], d[:g.Rows], v, z)
		for row := 0; row < g.Rows; row++ {
			grid[g.Index(col, row)] = d[row]
		}
	}
	// Rows.
	for row := 0; row < g.Rows; row++ {
		copy(f[:g.Cols], grid[row*g.Cols:(row+1)*g.Cols])
		lowerEnvelope(f[:g.Cols], d[:g.Cols], v, z)
		copy(grid[row*g.Cols:(row+1)*g.Cols], d[:g.Cols])
	}

	for i, x := range grid {
		if x >= far {
			grid[i] = math.Inf(1)
		}
	}
	return grid
}

// lowerEnvelope computes the 1-D squared distance transform of f into d.
func lowerEnvelope(f, d []float64, v []int, z []float64) {
	n := len(f)
	if n == 0 {
		return
	}
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		s := intersect(f, q, v[k])
		for s <= z[k] {
			k--
			s = intersect(f, q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}
	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}

func intersect(f []float64, q, p int) float64 {
	fq, fp := float64(q), float64(p)
	return ((f[q] + fq*fq) - (f[p] + fp*fp)) / (2*fq - 2*fp)
}

// TransformFunc computes a distance field in meters from a presence mask.
type TransformFunc func(mask *raster.Layer) (*raster.Layer, error)

// DistanceTo converts a presence mask into a distance-in-meters layer named
// name, then re-applies the AOI mask so cells outside the AOI are nodata.
// A nil transform uses DistanceTransform.
func DistanceTo(transform TransformFunc, name string, mask, aoi *raster.Layer) (*raster.Layer, error) {
	if transform == nil {
		transform = DistanceTransform
	}
	dist, err := transform(mask)
	if err != nil {
		return nil, eris.Wrapf(err, "proximity: distance transform for %s", name)
	}
	dist.Name = name
	dist.Kind = raster.Continuous
	if err := dist.ApplyMask(aoi); err != nil {
		return nil, eris.Wrapf(err, "proximity: mask %s", name)
	}
	return dist, nil
}

// DistanceToWater thresholds the occurrence layer into a water mask and
// returns the distance to the nearest water cell inside the AOI.
func DistanceToWater(transform TransformFunc, occurrence, aoi *raster.Layer) (*raster.Layer, error) {
	water, err := WaterMask(occurrence)
	if err != nil {
		return nil, err
	}
	return DistanceTo(transform, NameDistWater, water, aoi)
}

// DistanceToRoad returns the distance to the nearest burned road cell inside
// the AOI.
func DistanceToRoad(transform TransformFunc, roads, aoi *raster.Layer) (*raster.Layer, error) {
	if roads == nil {
		return nil, eris.New("proximity: nil road mask")
	}
	return DistanceTo(transform, NameDistRoad, roads, aoi)
}
