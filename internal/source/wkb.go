package source

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeEWKB returns the AOI polygons as little-endian EWKB. The SRID is 0:
// the datasets' projected CRS is implied by configuration.
func (a *AOI) EncodeEWKB() ([]byte, error) {
	data, err := ewkb.Marshal(a.Geometry, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "source: encode aoi %s", a.Name)
	}
	return data, nil
}

// DecodeAOI rebuilds an AOI from EWKB written by EncodeEWKB.
func DecodeAOI(name string, data []byte, bufferM float64) (*AOI, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrapf(err, "source: decode aoi %s", name)
	}
	return NewAOI(name, g, bufferM)
}
