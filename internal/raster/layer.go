package raster

import (
	"math"

	"github.com/rotisserie/eris"
)

// Kind distinguishes continuous from categorical layers.
type Kind string

// Layer kinds.
const (
	Continuous  Kind = "continuous"
	Categorical Kind = "categorical"
)

// ErrMisaligned is returned when layers that must share a grid do not.
var ErrMisaligned = eris.New("raster: layers are not co-registered")

// Layer is a single-band raster. Nodata cells hold NaN.
type Layer struct {
	Name string
	Kind Kind
	Grid Grid
	Data []float64
}

// NewLayer allocates a layer filled with fill.
func NewLayer(name string, kind Kind, g Grid, fill float64) *Layer {
	data := make([]float64, g.Len())
	for i := range data {
		data[i] = fill
	}
	return &Layer{Name: name, Kind: kind, Grid: g, Data: data}
}

// NewNodataLayer allocates an all-nodata layer.
func NewNodataLayer(name string, kind Kind, g Grid) *Layer {
	return NewLayer(name, kind, g, math.NaN())
}

// FromValues wraps an existing slice. The slice length must match the grid.
func FromValues(name string, kind Kind, g Grid, data []float64) (*Layer, error) {
	if len(data) != g.Len() {
		return nil, eris.Errorf("raster: %s has %d values, grid needs %d", name, len(data), g.Len())
	}
	return &Layer{Name: name, Kind: kind, Grid: g, Data: data}, nil
}

// IsNodata reports whether v is the nodata sentinel.
func IsNodata(v float64) bool { return math.IsNaN(v) }

// At returns the value at (col, row), or NaN outside the grid.
func (l *Layer) At(col, row int) float64 {
	if !l.Grid.Contains(col, row) {
		return math.NaN()
	}
	return l.Data[l.Grid.Index(col, row)]
}

// Set writes v at (col, row).
func (l *Layer) Set(col, row int, v float64) {
	l.Data[l.Grid.Index(col, row)] = v
}

// Clone returns a deep copy under a new name.
func (l *Layer) Clone(name string) *Layer {
	data := make([]float64, len(l.Data))
	copy(data, l.Data)
	return &Layer{Name: name, Kind: l.Kind, Grid: l.Grid, Data: data}
}

// Map returns a new layer with fn applied to every valid cell. Nodata cells
// stay nodata.
func (l *Layer) Map(name string, kind Kind, fn func(float64) float64) *Layer {
	out := &Layer{Name: name, Kind: kind, Grid: l.Grid, Data: make([]float64, len(l.Data))}
	for i, v := range l.Data {
		if math.IsNaN(v) {
			out.Data[i] = v
			continue
		}
		out.Data[i] = fn(v)
	}
	return out
}

// ApplyMask sets every cell where mask is zero or nodata to nodata, in place.
func (l *Layer) ApplyMask(mask *Layer) error {
	if mask == nil {
		return nil
	}
	if !l.Grid.Aligned(mask.Grid) {
		return eris.Wrapf(ErrMisaligned, "raster: mask %s on %s", mask.Name, l.Name)
	}
	for i, m := range mask.Data {
		if math.IsNaN(m) || m == 0 {
			l.Data[i] = math.NaN()
		}
	}
	return nil
}

// CountValid returns the number of non-nodata cells.
func (l *Layer) CountValid() int {
	n := 0
	for _, v := range l.Data {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// CheckAligned returns ErrMisaligned unless every layer shares the first
// layer's grid.
func CheckAligned(layers ...*Layer) error {
	if len(layers) == 0 {
		return nil
	}
	ref := layers[0]
	for _, l := range layers[1:] {
		if l == nil || ref == nil {
			return eris.New("raster: nil layer")
		}
		if !ref.Grid.Aligned(l.Grid) {
			return eris.Wrapf(ErrMisaligned, "raster: %s vs %s", ref.Name, l.Name)
		}
	}
	return nil
}
