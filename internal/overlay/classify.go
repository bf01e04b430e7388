package overlay

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landslide-cli/internal/raster"
)

// Susceptibility classes.
const (
	ClassVeryLow  = 1
	ClassLow      = 2
	ClassModerate = 3
	ClassHigh     = 4
	ClassVeryHigh = 5
)

// ClassBreaks are the upper-inclusive bounds of classes 1 through 4.
var ClassBreaks = [4]float64{0.2, 0.4, 0.6, 0.8}

// breakTolerance is how far the combiner's floating-point rounding may
// move a value off a class break.
const breakTolerance = 1e-9

var classLabels = map[int]string{
	ClassVeryLow:  "very_low",
	ClassLow:      "low",
	ClassModerate: "moderate",
	ClassHigh:     "high",
	ClassVeryHigh: "very_high",
}

// Classify returns the class 1..5 for a susceptibility value. The classes
// partition [0, 1] with upper-inclusive bounds and no gaps. Nodata returns 0.
func Classify(s float64) int {
	if math.IsNaN(s) {
		return 0
	}
	for i, b := range ClassBreaks {
		if s <= b {
			return i + 1
		}
	}
	return ClassVeryHigh
}

// snapToBreak moves a value within breakTolerance of a class break onto the
// break.
func snapToBreak(v float64) float64 {
	for _, b := range ClassBreaks {
		if math.Abs(v-b) <= breakTolerance {
			return b
		}
	}
	return v
}

// ClassLabel returns the snake_case name of a class, or "" if unknown.
func ClassLabel(class int) string {
	return classLabels[class]
}

// ClassifyLayer maps a susceptibility layer to a categorical class layer.
func ClassifyLayer(susceptibility *raster.Layer) (*raster.Layer, error) {
	if susceptibility == nil {
		return nil, eris.New("overlay: nil susceptibility layer")
	}
	return susceptibility.Map(NameClass, raster.Categorical, func(v float64) float64 {
		return float64(Classify(v))
	}), nil
}
