// Package source loads the AOI and the raster and vector datasets the
// susceptibility pipeline consumes, clipped and aligned to the AOI grid.
package source

import (
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/landslide-cli/internal/proximity"
	"github.com/sells-group/landslide-cli/internal/raster"
)

// DefaultBufferM is the margin added around an AOI.
const DefaultBufferM = 1000.0

// NameAOIMask is the layer name of the AOI mask.
const NameAOIMask = "aoi_mask"

// ErrEmptyAOI is returned for AOIs with no polygon area.
var ErrEmptyAOI = eris.New("source: aoi has no polygons")

// AOI is an area of interest: one or more polygons in the projected CRS of
// the datasets, plus a buffer margin in meters.
type AOI struct {
	Name     string
	Geometry *geom.MultiPolygon
	BufferM  float64
}

// NewAOI wraps a Polygon or MultiPolygon.
func NewAOI(name string, g geom.T, bufferM float64) (*AOI, error) {
	if bufferM < 0 || math.IsNaN(bufferM) || math.IsInf(bufferM, 0) {
		return nil, eris.Errorf("source: invalid aoi buffer %v", bufferM)
	}
	mp := geom.NewMultiPolygon(geom.XY)
	if err := appendPolygons(mp, g); err != nil {
		return nil, err
	}
	if mp.NumPolygons() == 0 {
		return nil, ErrEmptyAOI
	}
	return &AOI{Name: name, Geometry: mp, BufferM: bufferM}, nil
}

// appendPolygons flattens g into dst as XY polygons.
func appendPolygons(dst *geom.MultiPolygon, g geom.T) error {
	switch t := g.(type) {
	case *geom.Polygon:
		if t.Empty() {
			return nil
		}
		return dst.Push(toXY(t))
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if err := appendPolygons(dst, t.Polygon(i)); err != nil {
				return err
			}
		}
		return nil
	case *geom.GeometryCollection:
		for _, c := range t.Geoms() {
			if err := appendPolygons(dst, c); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return eris.New("source: nil aoi geometry")
	default:
		return eris.Errorf("source: aoi must be polygonal, got %T", g)
	}
}

// toXY drops any Z or M ordinates.
func toXY(p *geom.Polygon) *geom.Polygon {
	if p.Layout() == geom.XY {
		return p
	}
	stride := p.Stride()
	flat := p.FlatCoords()
	ends := p.Ends()
	out := make([]float64, 0, len(flat)/stride*2)
	newEnds := make([]int, len(ends))
	for i := 0; i < len(flat); i += stride {
		out = append(out, flat[i], flat[i+1])
	}
	for i, e := range ends {
		newEnds[i] = e / stride * 2
	}
	return geom.NewPolygonFlat(geom.XY, out, newEnds)
}

// Bounds returns the buffered bounding box.
func (a *AOI) Bounds() *geom.Bounds {
	b := a.Geometry.Bounds()
	return geom.NewBounds(geom.XY).Set(
		b.Min(0)-a.BufferM, b.Min(1)-a.BufferM,
		b.Max(0)+a.BufferM, b.Max(1)+a.BufferM,
	)
}

// Area returns the unbuffered polygon area in square meters.
func (a *AOI) Area() float64 {
	return a.Geometry.Area()
}

// LooksGeographic reports whether every vertex fits in ±180 by ±90, the
// range of lon/lat degrees. Projected AOIs in meters never fit there in
// practice, so such an AOI was almost certainly not reprojected.
func (a *AOI) LooksGeographic() bool {
	b := a.Geometry.Bounds()
	return b.Min(0) >= -180 && b.Max(0) <= 180 && b.Min(1) >= -90 && b.Max(1) <= 90
}

// Grid returns the analysis grid covering the buffered AOI.
func (a *AOI) Grid(cellSize float64) (raster.Grid, error) {
	g, err := raster.GridForBounds(a.Bounds(), cellSize)
	if err != nil {
		return raster.Grid{}, eris.Wrapf(err, "source: grid for aoi %s", a.Name)
	}
	return g, nil
}

// Mask returns 1 for cells inside the buffered AOI and 0 elsewhere. A cell
// is inside the polygon when its center is, or when a polygon edge crosses
// it; the buffer then grows that footprint by BufferM.
func (a *AOI) Mask(g raster.Grid) (*raster.Layer, error) {
	inside := raster.NewLayer(NameAOIMask, raster.Categorical, g, 0)

	var edges []*geom.LineString
	for i := 0; i < a.Geometry.NumPolygons(); i++ {
		p := a.Geometry.Polygon(i)
		fillPolygon(inside, p)
		for r := 0; r < p.NumLinearRings(); r++ {
			edges = append(edges, geom.NewLineStringFlat(geom.XY, p.LinearRing(r).FlatCoords()))
		}
	}

	boundary, err := proximity.Rasterize(g, edges)
	if err != nil {
		return nil, eris.Wrap(err, "source: rasterize aoi boundary")
	}
	for i, v := range boundary.Data {
		if v == 1 {
			inside.Data[i] = 1
		}
	}

	if a.BufferM == 0 {
		return inside, nil
	}
	dist, err := proximity.DistanceTransform(inside)
	if err != nil {
		return nil, eris.Wrap(err, "source: buffer aoi")
	}
	out := raster.NewLayer(NameAOIMask, raster.Categorical, g, 0)
	for i, d := range dist.Data {
		if d <= a.BufferM {
			out.Data[i] = 1
		}
	}
	return out, nil
}

// fillPolygon marks cells whose centers lie inside the exterior ring and
// outside every hole.
func fillPolygon(l *raster.Layer, p *geom.Polygon) {
	if p.NumLinearRings() == 0 {
		return
	}
	g := l.Grid
	b := p.Bounds()
	c0, r0 := g.CellOf(b.Min(0), b.Max(1))
	c1, r1 := g.CellOf(b.Max(0), b.Min(1))
	c0, r0 = max(c0, 0), max(r0, 0)
	c1, r1 = min(c1, g.Cols-1), min(r1, g.Rows-1)

	outer := p.LinearRing(0).FlatCoords()
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			x, y := g.CellCenter(col, row)
			pt := geom.Coord{x, y}
			if !xy.IsPointInRing(geom.XY, pt, outer) {
				continue
			}
			hole := false
			for h := 1; h < p.NumLinearRings(); h++ {
				if xy.IsPointInRing(geom.XY, pt, p.LinearRing(h).FlatCoords()) {
					hole = true
					break
				}
			}
			if !hole {
				l.Set(col, row, 1)
			}
		}
	}
}

// LoadAOIFile reads a shapefile (.shp) or GeoJSON (.geojson, .json) as a
// single AOI.
func LoadAOIFile(path string, bufferM float64) (*AOI, error) {
	aois, err := LoadAOIsFile(path, "name", bufferM)
	if err != nil {
		return nil, err
	}
	return Merge(aois)
}

// LoadAOIsFile reads one AOI per polygon feature of a shapefile or GeoJSON
// file.
func LoadAOIsFile(path, nameField string, bufferM float64) ([]*AOI, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return LoadAOIsShapefile(path, nameField, bufferM)
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "source: read %s", path)
		}
		return ParseAOIsGeoJSON(data, bufferM)
	default:
		return nil, eris.Errorf("source: unsupported aoi format %q", filepath.Ext(path))
	}
}
