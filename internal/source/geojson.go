package source

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// geoJSONType peeks at the "type" member of a GeoJSON object.
type geoJSONType struct {
	Type string `json:"type"`
}

// ParseAOIsGeoJSON parses a GeoJSON Geometry, Feature or FeatureCollection
// into one AOI per polygonal feature. Features are named by their "name"
// property, then their id, then their position.
func ParseAOIsGeoJSON(data []byte, bufferM float64) ([]*AOI, error) {
	var head geoJSONType
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(err, "source: parse geojson")
	}

	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrap(err, "source: parse feature collection")
		}
		aois := make([]*AOI, 0, len(fc.Features))
		for i, f := range fc.Features {
			a, err := NewAOI(featureName(f, i), f.Geometry, bufferM)
			if err != nil {
				return nil, eris.Wrapf(err, "source: feature %d", i)
			}
			aois = append(aois, a)
		}
		if len(aois) == 0 {
			return nil, ErrEmptyAOI
		}
		return aois, nil

	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrap(err, "source: parse feature")
		}
		a, err := NewAOI(featureName(&f, 0), f.Geometry, bufferM)
		if err != nil {
			return nil, err
		}
		return []*AOI{a}, nil

	case "":
		return nil, eris.New("source: geojson object has no type")

	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrap(err, "source: parse geometry")
		}
		a, err := NewAOI("aoi", g, bufferM)
		if err != nil {
			return nil, err
		}
		return []*AOI{a}, nil
	}
}

// ParseAOIGeoJSON parses GeoJSON into a single AOI, merging all features.
func ParseAOIGeoJSON(data []byte, bufferM float64) (*AOI, error) {
	aois, err := ParseAOIsGeoJSON(data, bufferM)
	if err != nil {
		return nil, err
	}
	return Merge(aois)
}

// Merge combines AOIs into one. The first AOI's name and buffer are kept.
func Merge(aois []*AOI) (*AOI, error) {
	if len(aois) == 0 {
		return nil, ErrEmptyAOI
	}
	if len(aois) == 1 {
		return aois[0], nil
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, a := range aois {
		if err := appendPolygons(mp, a.Geometry); err != nil {
			return nil, err
		}
	}
	return &AOI{Name: aois[0].Name, Geometry: mp, BufferM: aois[0].BufferM}, nil
}

func featureName(f *geojson.Feature, i int) string {
	if v, ok := f.Properties["name"].(string); ok && v != "" {
		return v
	}
	if f.ID != "" {
		return f.ID
	}
	return fmt.Sprintf("feature-%d", i+1)
}
