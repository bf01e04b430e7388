package source

import (
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// record is one shapefile feature with trimmed attributes keyed by
// lower-case field name.
type record struct {
	Shape shp.Shape
	Attrs map[string]string
}

func readShapefile(path string) ([]record, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var recs []record
	for reader.Next() {
		_, shape := reader.Shape()
		attrs := make(map[string]string, len(names))
		for i, n := range names {
			attrs[n] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}
		recs = append(recs, record{Shape: shape, Attrs: attrs})
	}
	return recs, nil
}

// parts splits shapefile points into their parts.
func parts(numParts int32, starts []int32, points []shp.Point) [][]float64 {
	out := make([][]float64, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := starts[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = starts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, p := range points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		out = append(out, flat)
	}
	return out
}

// shapePolygon assembles a shapefile polygon into polygons with holes.
// Clockwise rings are exteriors; counter-clockwise rings are holes of the
// preceding exterior.
func shapePolygon(p *shp.Polygon) (*geom.MultiPolygon, error) {
	mp := geom.NewMultiPolygon(geom.XY)
	var cur *geom.Polygon
	flush := func() error {
		if cur == nil {
			return nil
		}
		return mp.Push(cur)
	}
	for _, ring := range parts(p.NumParts, p.Parts, p.Points) {
		if len(ring) < 8 {
			continue // fewer than four points
		}
		lr := geom.NewLinearRingFlat(geom.XY, ring)
		if cur == nil || !xy.IsRingCounterClockwise(geom.XY, ring) {
			if err := flush(); err != nil {
				return nil, err
			}
			cur = geom.NewPolygon(geom.XY)
		}
		if err := cur.Push(lr); err != nil {
			return nil, eris.Wrap(err, "source: push ring")
		}
	}
	if err := flush(); err != nil {
		return nil, eris.Wrap(err, "source: push polygon")
	}
	return mp, nil
}

// LoadAOIsShapefile reads one AOI per polygon record. nameField selects the
// attribute used as the AOI name.
func LoadAOIsShapefile(path, nameField string, bufferM float64) ([]*AOI, error) {
	recs, err := readShapefile(path)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "source"), zap.String("path", path))

	var aois []*AOI
	skipped := 0
	for i, r := range recs {
		poly, ok := r.Shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		mp, err := shapePolygon(poly)
		if err != nil {
			return nil, eris.Wrapf(err, "source: record %d", i)
		}
		if mp.NumPolygons() == 0 {
			skipped++
			continue
		}
		name := r.Attrs[strings.ToLower(nameField)]
		if name == "" {
			name = fmt.Sprintf("feature-%d", i+1)
		}
		a, err := NewAOI(name, mp, bufferM)
		if err != nil {
			return nil, eris.Wrapf(err, "source: record %d", i)
		}
		aois = append(aois, a)
	}
	if skipped > 0 {
		log.Debug("skipped non-polygon records", zap.Int("skipped", skipped))
	}
	if len(aois) == 0 {
		return nil, eris.Wrapf(ErrEmptyAOI, "source: %s", path)
	}
	return aois, nil
}

// LoadAOIShapefile reads every polygon of a shapefile as a single AOI.
func LoadAOIShapefile(path string, bufferM float64) (*AOI, error) {
	aois, err := LoadAOIsShapefile(path, "name", bufferM)
	if err != nil {
		return nil, err
	}
	return Merge(aois)
}

// ReadLines reads PolyLine records, and the boundaries of Polygon records,
// as XY line strings.
func ReadLines(path string) ([]*geom.LineString, error) {
	recs, err := readShapefile(path)
	if err != nil {
		return nil, err
	}
	var lines []*geom.LineString
	for _, r := range recs {
		switch s := r.Shape.(type) {
		case *shp.PolyLine:
			for _, part := range parts(s.NumParts, s.Parts, s.Points) {
				lines = append(lines, geom.NewLineStringFlat(geom.XY, part))
			}
		case *shp.Polygon:
			for _, part := range parts(s.NumParts, s.Parts, s.Points) {
				lines = append(lines, geom.NewLineStringFlat(geom.XY, part))
			}
		}
	}
	return lines, nil
}
