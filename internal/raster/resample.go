package raster

// Resample samples src onto target by nearest neighbour at cell centers.
// Target cells outside the source extent are nodata, so a source with no
// coverage yields an all-nodata layer rather than an error.
func Resample(src *Layer, target Grid) *Layer {
	if src.Grid.Aligned(target) {
		return src.Clone(src.Name)
	}

	out := NewNodataLayer(src.Name, src.Kind, target)
	for row := 0; row < target.Rows; row++ {
		for col := 0; col < target.Cols; col++ {
			x, y := target.CellCenter(col, row)
			sc, sr := src.Grid.CellOf(x, y)
			if !src.Grid.Contains(sc, sr) {
				continue
			}
			out.Data[target.Index(col, row)] = src.Data[src.Grid.Index(sc, sr)]
		}
	}
	return out
}

// Overlaps reports whether two grids share any area.
func Overlaps(a, b Grid) bool {
	return a.MinX < b.MaxX() && b.MinX < a.MaxX() &&
		a.MinY() < b.MaxY && b.MinY() < a.MaxY
}

// Coverage returns the fraction of cells holding data.
func Coverage(l *Layer) float64 {
	if len(l.Data) == 0 {
		return 0
	}
	return float64(l.CountValid()) / float64(len(l.Data))
}
