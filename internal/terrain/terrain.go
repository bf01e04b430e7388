// Package terrain derives slope, aspect and roughness from an elevation grid.
//
// Boundary policy is "ignore-missing". Slope and aspect replace a neighbour
// that is outside the grid or nodata with the center value, so edges see a
// flattened gradient instead of a reflected one. Roughness computes its
// statistic over whichever window cells are valid. A nodata center always
// yields nodata.
package terrain

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/landslide-cli/internal/raster"
)

// Layer names produced by this package.
const (
	NameSlope     = "slope"
	NameAspect    = "aspect"
	NameRoughness = "roughness"
)

const radToDeg = 180 / math.Pi

// window holds the 3x3 neighbourhood around a cell, row-major from the
// north-west corner.
type window [9]float64

// neighbourhood fills the 3x3 window at (col, row). ok is false when the
// center is nodata.
func neighbourhood(dem *raster.Layer, col, row int) (w window, ok bool) {
	center := dem.At(col, row)
	if math.IsNaN(center) {
		return w, false
	}
	i := 0
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			v := dem.At(col+dc, row+dr)
			if math.IsNaN(v) {
				v = center
			}
			w[i] = v
			i++
		}
	}
	return w, true
}

// hornGradient returns dz/dx (eastward) and dz/dy (southward) by Horn's
// method.
func hornGradient(w window, cellSize float64) (dzdx, dzdy float64) {
	a, b, c := w[0], w[1], w[2]
	d, f := w[3], w[5]
	g, h, i := w[6], w[7], w[8]
	dzdx = ((c + 2*f + i) - (a + 2*d + g)) / (8 * cellSize)
	dzdy = ((g + 2*h + i) - (a + 2*b + c)) / (8 * cellSize)
	return dzdx, dzdy
}

// Slope returns the slope angle in degrees, in [0, 90).
func Slope(dem *raster.Layer) (*raster.Layer, error) {
	if dem == nil {
		return nil, eris.New("terrain: nil elevation layer")
	}
	g := dem.Grid
	out := raster.NewNodataLayer(NameSlope, raster.Continuous, g)
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			w, ok := neighbourhood(dem, col, row)
			if !ok {
				continue
			}
			dzdx, dzdy := hornGradient(w, g.CellSize)
			out.Data[g.Index(col, row)] = math.Atan(math.Hypot(dzdx, dzdy)) * radToDeg
		}
	}
	return out, nil
}

// Aspect returns the downslope direction in compass degrees clockwise from
// north, in [0, 360). Flat cells are 0.
func Aspect(dem *raster.Layer) (*raster.Layer, error) {
	if dem == nil {
		return nil, eris.New("terrain: nil elevation layer")
	}
	g := dem.Grid
	out := raster.NewNodataLayer(NameAspect, raster.Continuous, g)
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			w, ok := neighbourhood(dem, col, row)
			if !ok {
				continue
			}
			dzdx, dzdy := hornGradient(w, g.CellSize)
			out.Data[g.Index(col, row)] = compassAspect(dzdx, dzdy)
		}
	}
	return out, nil
}

func compassAspect(dzdx, dzdy float64) float64 {
	if dzdx == 0 && dzdy == 0 {
		return 0
	}
	a := math.Atan2(dzdy, -dzdx) * radToDeg
	var out float64
	switch {
	case a < 0:
		out = 90 - a
	case a > 90:
		out = 360 - a + 90
	default:
		out = 90 - a
	}
	if out >= 360 {
		out -= 360
	}
	return out
}

// Roughness returns the population standard deviation of elevation within
// a (2*radius+1)^2 window, unnormalized.
func Roughness(dem *raster.Layer, radius int) (*raster.Layer, error) {
	if dem == nil {
		return nil, eris.New("terrain: nil elevation layer")
	}
	if radius < 1 {
		return nil, eris.Errorf("terrain: roughness radius must be >= 1, got %d", radius)
	}
	g := dem.Grid
	out := raster.NewNodataLayer(NameRoughness, raster.Continuous, g)
	vals := make([]float64, 0, (2*radius+1)*(2*radius+1))

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if math.IsNaN(dem.At(col, row)) {
				continue
			}
			vals = vals[:0]
			for dr := -radius; dr <= radius; dr++ {
				for dc := -radius; dc <= radius; dc++ {
					if v := dem.At(col+dc, row+dr); !math.IsNaN(v) {
						vals = append(vals, v)
					}
				}
			}
			_, sd := stat.PopMeanStdDev(vals, nil)
			out.Data[g.Index(col, row)] = sd
		}
	}
	return out, nil
}
