package stats

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landslide-cli/internal/overlay"
	"github.com/sells-group/landslide-cli/internal/raster"
)

const sqMetersPerHectare = 10_000

// ClassCount is the area of one susceptibility class.
type ClassCount struct {
	Class    int     `json:"class" yaml:"class"`
	Label    string  `json:"label" yaml:"label"`
	Pixels   int     `json:"pixels" yaml:"pixels"`
	Hectares float64 `json:"hectares" yaml:"hectares"`
	Share    float64 `json:"share" yaml:"share"`
}

// Histogram is the per-class area breakdown of a classified AOI.
type Histogram struct {
	Classes []ClassCount `json:"classes" yaml:"classes"`
	Nodata  int          `json:"nodata" yaml:"nodata"`
}

// TotalPixels returns the classified pixel count.
func (h Histogram) TotalPixels() int {
	n := 0
	for _, c := range h.Classes {
		n += c.Pixels
	}
	return n
}

// ClassHistogram counts class cells inside mask. Every class 1..5 is
// present in the result, in order, even when empty.
func ClassHistogram(classes, mask *raster.Layer) (*Histogram, error) {
	if classes == nil {
		return nil, eris.New("stats: nil class layer")
	}
	if mask != nil && !classes.Grid.Aligned(mask.Grid) {
		return nil, eris.Wrapf(raster.ErrMisaligned, "stats: mask %s on %s", mask.Name, classes.Name)
	}

	counts := make([]int, overlay.ClassVeryHigh+1)
	h := &Histogram{}
	for i, v := range classes.Data {
		if !inMask(mask, i) {
			continue
		}
		if math.IsNaN(v) || v < overlay.ClassVeryLow || v > overlay.ClassVeryHigh {
			h.Nodata++
			continue
		}
		counts[int(v)]++
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	cellArea := classes.Grid.CellSize * classes.Grid.CellSize / sqMetersPerHectare
	for c := overlay.ClassVeryLow; c <= overlay.ClassVeryHigh; c++ {
		cc := ClassCount{
			Class:    c,
			Label:    overlay.ClassLabel(c),
			Pixels:   counts[c],
			Hectares: float64(counts[c]) * cellArea,
		}
		if total > 0 {
			cc.Share = float64(counts[c]) / float64(total)
		}
		h.Classes = append(h.Classes, cc)
	}
	return h, nil
}
