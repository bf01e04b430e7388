// Package overlay combines predictor scores into a susceptibility index and
// its five-tier classification.
package overlay

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landslide-cli/internal/raster"
	"github.com/sells-group/landslide-cli/internal/score"
)

// Predictor names one scored input of the overlay.
type Predictor string

// Predictors.
const (
	Slope     Predictor = "slope"
	Roughness Predictor = "roughness"
	LandCover Predictor = "land_cover"
	DistWater Predictor = "dist_water"
	DistRoad  Predictor = "dist_road"
)

// Predictors lists every predictor in the order the weighted sum is taken.
var Predictors = []Predictor{Slope, Roughness, LandCover, DistWater, DistRoad}

// Layer names produced by this package.
const (
	NameSusceptibility = "susceptibility"
	NameClass          = "susceptibility_class"
)

var (
	// ErrInvalidWeights marks a weight vector that cannot be used.
	ErrInvalidWeights = eris.New("overlay: invalid weights")
	// ErrMisaligned is returned when score layers are not co-registered.
	ErrMisaligned = raster.ErrMisaligned
)

// Weights maps each predictor to a non-negative weight. Weights need not sum
// to one.
type Weights map[Predictor]float64

// DefaultWeights returns the reference weighting.
func DefaultWeights() Weights {
	return Weights{
		Slope:     0.45,
		Roughness: 0.15,
		LandCover: 0.20,
		DistWater: 0.10,
		DistRoad:  0.10,
	}
}

// WeightsFromMap converts string-keyed weights, as read from config or a
// request body. Keys are not checked; call Validate.
func WeightsFromMap(m map[string]float64) Weights {
	if m == nil {
		return nil
	}
	w := make(Weights, len(m))
	for k, v := range m {
		w[Predictor(k)] = v
	}
	return w
}

// Map returns w keyed by predictor name.
func (w Weights) Map() map[string]float64 {
	m := make(map[string]float64, len(w))
	for p, v := range w {
		m[string(p)] = v
	}
	return m
}

// Sum returns the total weight in predictor order.
func (w Weights) Sum() float64 {
	var sum float64
	for _, p := range Predictors {
		sum += w[p]
	}
	return sum
}

// Validate checks that every predictor has a finite, non-negative weight
// and that the weights sum to a positive number.
func (w Weights) Validate() error {
	var errs []string
	for _, p := range Predictors {
		v, ok := w[p]
		switch {
		case !ok:
			errs = append(errs, fmt.Sprintf("missing weight for %s", p))
		case math.IsNaN(v) || math.IsInf(v, 0):
			errs = append(errs, fmt.Sprintf("%s weight must be finite", p))
		case v < 0:
			errs = append(errs, fmt.Sprintf("%s weight must be >= 0, got %g", p, v))
		}
	}

	var unknown []string
	for p := range w {
		if !p.Valid() {
			unknown = append(unknown, string(p))
		}
	}
	sort.Strings(unknown)
	for _, u := range unknown {
		errs = append(errs, fmt.Sprintf("unknown predictor %q", u))
	}

	if len(errs) == 0 && w.Sum() <= 0 {
		errs = append(errs, "weights must sum to a positive number")
	}
	if len(errs) > 0 {
		return eris.Wrap(ErrInvalidWeights, strings.Join(errs, "; "))
	}
	return nil
}

// Valid reports whether p is a known predictor.
func (p Predictor) Valid() bool {
	for _, k := range Predictors {
		if p == k {
			return true
		}
	}
	return false
}

// Scores holds one ordinal score layer per predictor.
type Scores map[Predictor]*raster.Layer

// Combine computes the susceptibility index for every cell as the weighted
// mean score divided by the maximum score, so uniform scores of 1 give 0.2
// and uniform scores of 5 give 1.0. A cell with nodata in any predictor is
// nodata. The result is clamped to [0, 1], and rounding noise around a class
// break is snapped onto the break.
func Combine(scores Scores, w Weights) (*raster.Layer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	layers := make([]*raster.Layer, 0, len(Predictors))
	for _, p := range Predictors {
		l, ok := scores[p]
		if !ok || l == nil {
			return nil, eris.Errorf("overlay: missing score layer for %s", p)
		}
		layers = append(layers, l)
	}
	if err := raster.CheckAligned(layers...); err != nil {
		return nil, eris.Wrap(err, "overlay: combine")
	}

	weights := make([]float64, len(Predictors))
	for i, p := range Predictors {
		weights[i] = w[p]
	}
	sum := w.Sum()

	g := layers[0].Grid
	out := raster.NewNodataLayer(NameSusceptibility, raster.Continuous, g)
	for i := range out.Data {
		// Accumulating score-1 keeps the uniform cases exact: all ones sum
		// to zero and all fives to 4×Σw.
		var excess float64
		valid := true
		for k, l := range layers {
			s := l.Data[i]
			if math.IsNaN(s) {
				valid = false
				break
			}
			excess += (s - score.MinScore) * weights[k]
		}
		if !valid {
			continue
		}
		out.Data[i] = snapToBreak(clamp((score.MinScore + excess/sum) / score.MaxScore))
	}
	return out, nil
}

func clamp(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
