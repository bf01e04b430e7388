// Package stats summarizes susceptibility rasters over an AOI.
package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/landslide-cli/internal/raster"
)

// DefaultMaxPixels caps the number of AOI cells a summary will process.
const DefaultMaxPixels int64 = 1_000_000_000

// ErrTooManyPixels is returned when an AOI exceeds the pixel cap.
var ErrTooManyPixels = eris.New("stats: pixel cap exceeded")

// DefaultPercentiles are reported when none are requested.
func DefaultPercentiles() []float64 {
	return []float64{10, 25, 50, 75, 90}
}

// Percentile is one requested percentile and its value.
type Percentile struct {
	P     float64 `json:"p" yaml:"p"`
	Value float64 `json:"value" yaml:"value"`
}

// Name returns the conventional key, e.g. "p50".
func (p Percentile) Name() string {
	return fmt.Sprintf("p%g", p.P)
}

// Summary describes the valid cells of a layer inside the AOI.
type Summary struct {
	Count       int          `json:"count" yaml:"count"`
	Nodata      int          `json:"nodata" yaml:"nodata"`
	Min         float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max         float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Mean        float64      `json:"mean,omitempty" yaml:"mean,omitempty"`
	Percentiles []Percentile `json:"percentiles,omitempty" yaml:"percentiles,omitempty"`
}

// Percentiles computes the requested percentiles (0..100) of the valid
// cells of l that fall inside mask. A nil mask selects every cell. When more
// than maxPixels cells are selected it fails with ErrTooManyPixels before
// reading any values; maxPixels <= 0 disables the cap. An AOI with no valid
// cells yields Count 0 and no percentiles.
func Percentiles(l, mask *raster.Layer, ps []float64, maxPixels int64) (*Summary, error) {
	if l == nil {
		return nil, eris.New("stats: nil layer")
	}
	for _, p := range ps {
		if math.IsNaN(p) || p < 0 || p > 100 {
			return nil, eris.Errorf("stats: percentile %g outside 0..100", p)
		}
	}
	if mask != nil && !l.Grid.Aligned(mask.Grid) {
		return nil, eris.Wrapf(raster.ErrMisaligned, "stats: mask %s on %s", mask.Name, l.Name)
	}

	candidates := selected(l, mask)
	if maxPixels > 0 && int64(candidates) > maxPixels {
		return nil, eris.Wrapf(ErrTooManyPixels, "stats: %d cells exceeds cap of %d", candidates, maxPixels)
	}

	vals := make([]float64, 0, candidates)
	for i, v := range l.Data {
		if !inMask(mask, i) || math.IsNaN(v) {
			continue
		}
		vals = append(vals, v)
	}

	out := &Summary{Count: len(vals), Nodata: candidates - len(vals)}
	if len(vals) == 0 {
		return out, nil
	}
	sort.Float64s(vals)
	out.Min = vals[0]
	out.Max = vals[len(vals)-1]
	out.Mean = stat.Mean(vals, nil)
	out.Percentiles = make([]Percentile, len(ps))
	for i, p := range ps {
		out.Percentiles[i] = Percentile{P: p, Value: stat.Quantile(p/100, stat.Empirical, vals, nil)}
	}
	return out, nil
}

func inMask(mask *raster.Layer, i int) bool {
	if mask == nil {
		return true
	}
	m := mask.Data[i]
	return !math.IsNaN(m) && m != 0
}

func selected(l, mask *raster.Layer) int {
	if mask == nil {
		return l.Grid.Len()
	}
	n := 0
	for i := range mask.Data {
		if inMask(mask, i) {
			n++
		}
	}
	return n
}
