// Package raster provides the grid and layer model shared by every stage of
// the susceptibility pipeline.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// DefaultCellSize is the nominal pixel size in meters.
const DefaultCellSize = 30.0

// alignTolerance is the fraction of a cell two grids may differ by and still
// be considered co-registered.
const alignTolerance = 1e-6

// ErrEmptyGrid is returned when a grid would have no cells.
var ErrEmptyGrid = eris.New("raster: grid has no cells")

// Grid describes the extent and alignment of a raster. The origin is the
// upper-left corner; rows increase southward.
type Grid struct {
	MinX     float64 `json:"min_x"`
	MaxY     float64 `json:"max_y"`
	CellSize float64 `json:"cell_size"`
	Cols     int     `json:"cols"`
	Rows     int     `json:"rows"`
}

// NewGrid validates and returns a grid.
func NewGrid(minX, maxY, cellSize float64, cols, rows int) (Grid, error) {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		return Grid{}, eris.Errorf("raster: invalid cell size %v", cellSize)
	}
	if cols <= 0 || rows <= 0 {
		return Grid{}, ErrEmptyGrid
	}
	return Grid{MinX: minX, MaxY: maxY, CellSize: cellSize, Cols: cols, Rows: rows}, nil
}

// GridForBounds snaps a bounding box outward to whole cells of the given size.
func GridForBounds(b *geom.Bounds, cellSize float64) (Grid, error) {
	if b == nil || b.IsEmpty() {
		return Grid{}, ErrEmptyGrid
	}
	if cellSize <= 0 {
		return Grid{}, eris.Errorf("raster: invalid cell size %v", cellSize)
	}
	minX := math.Floor(b.Min(0)/cellSize) * cellSize
	minY := math.Floor(b.Min(1)/cellSize) * cellSize
	maxX := math.Ceil(b.Max(0)/cellSize) * cellSize
	maxY := math.Ceil(b.Max(1)/cellSize) * cellSize

	cols := int(math.Round((maxX - minX) / cellSize))
	rows := int(math.Round((maxY - minY) / cellSize))
	// Degenerate (zero-width) bounds still cover one cell.
	if cols == 0 {
		cols = 1
	}
	if rows == 0 {
		rows = 1
	}
	return NewGrid(minX, maxY, cellSize, cols, rows)
}

// Len returns the number of cells.
func (g Grid) Len() int { return g.Cols * g.Rows }

// MaxX returns the eastern edge.
func (g Grid) MaxX() float64 { return g.MinX + float64(g.Cols)*g.CellSize }

// MinY returns the southern edge.
func (g Grid) MinY() float64 { return g.MaxY - float64(g.Rows)*g.CellSize }

// Bounds returns the grid extent as go-geom bounds.
func (g Grid) Bounds() *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(g.MinX, g.MinY(), g.MaxX(), g.MaxY)
}

// Index returns the flat index of (col, row).
func (g Grid) Index(col, row int) int { return row*g.Cols + col }

// Contains reports whether (col, row) lies inside the grid.
func (g Grid) Contains(col, row int) bool {
	return col >= 0 && row >= 0 && col < g.Cols && row < g.Rows
}

// CellCenter returns the map coordinates of a cell center.
func (g Grid) CellCenter(col, row int) (x, y float64) {
	return g.MinX + (float64(col)+0.5)*g.CellSize, g.MaxY - (float64(row)+0.5)*g.CellSize
}

// CellOf returns the cell containing a map coordinate. The result may lie
// outside the grid; check with Contains.
func (g Grid) CellOf(x, y float64) (col, row int) {
	return int(math.Floor((x - g.MinX) / g.CellSize)), int(math.Floor((g.MaxY - y) / g.CellSize))
}

// Aligned reports whether two grids share extent, resolution and alignment.
func (g Grid) Aligned(o Grid) bool {
	if g.Cols != o.Cols || g.Rows != o.Rows {
		return false
	}
	tol := alignTolerance * g.CellSize
	return math.Abs(g.CellSize-o.CellSize) <= tol &&
		math.Abs(g.MinX-o.MinX) <= tol &&
		math.Abs(g.MaxY-o.MaxY) <= tol
}
