package proximity

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landslide-cli/internal/raster"
)

// Rasterize burns line strings into a binary layer: 1 for every cell any
// segment passes through, 0 elsewhere.
func Rasterize(g raster.Grid, lines []*geom.LineString) (*raster.Layer, error) {
	out := raster.NewLayer(NameRoadMask, raster.Categorical, g, 0)
	extent := g.Bounds()

	for _, ls := range lines {
		if ls == nil || ls.NumCoords() == 0 {
			continue
		}
		if ls.Layout().Stride() < 2 {
			return nil, eris.Errorf("proximity: unsupported layout %v", ls.Layout())
		}
		if !extent.Overlaps(geom.XY, ls.Bounds()) {
			continue
		}
		if ls.NumCoords() == 1 {
			c := ls.Coord(0)
			burnCell(out, c.X(), c.Y())
			continue
		}
		for i := 1; i < ls.NumCoords(); i++ {
			a, b := ls.Coord(i-1), ls.Coord(i)
			burnSegment(out, a.X(), a.Y(), b.X(), b.Y())
		}
	}
	return out, nil
}

func burnCell(l *raster.Layer, x, y float64) {
	col, row := l.Grid.CellOf(x, y)
	if l.Grid.Contains(col, row) {
		l.Set(col, row, 1)
	}
}

// burnSegment walks every cell crossed by the segment (Amanatides-Woo grid
// traversal) in continuous grid coordinates.
func burnSegment(l *raster.Layer, x0, y0, x1, y1 float64) {
	g := l.Grid
	gx0, gy0 := (x0-g.MinX)/g.CellSize, (g.MaxY-y0)/g.CellSize
	gx1, gy1 := (x1-g.MinX)/g.CellSize, (g.MaxY-y1)/g.CellSize

	cx, cy := int(math.Floor(gx0)), int(math.Floor(gy0))
	ex, ey := int(math.Floor(gx1)), int(math.Floor(gy1))
	dx, dy := gx1-gx0, gy1-gy0

	stepX, tMaxX, tDeltaX := axisStep(gx0, dx, cx)
	stepY, tMaxY, tDeltaY := axisStep(gy0, dy, cy)

	mark := func() {
		if g.Contains(cx, cy) {
			l.Set(cx, cy, 1)
		}
	}
	mark()

	steps := abs(ex-cx) + abs(ey-cy)
	for range steps {
		if tMaxX < tMaxY {
			cx += stepX
			tMaxX += tDeltaX
		} else {
			cy += stepY
			tMaxY += tDeltaY
		}
		mark()
	}
}

// axisStep returns the step direction, the parametric distance to the first
// cell boundary and the parametric size of one cell along an axis.
func axisStep(origin, delta float64, cell int) (step int, tMax, tDelta float64) {
	switch {
	case delta > 0:
		return 1, (float64(cell+1) - origin) / delta, 1 / delta
	case delta < 0:
		return -1, (origin - float64(cell)) / -delta, 1 / -delta
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
