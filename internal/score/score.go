// Package score maps predictor values to ordinal hazard scores in 1..5.
package score

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landslide-cli/internal/raster"
)

// Score bounds.
const (
	MinScore = 1
	MaxScore = 5
)

// Scorer assigns an ordinal score to a single cell value. Nodata input
// returns NaN.
type Scorer interface {
	Score(v float64) float64
}

// Table is an interval lookup. Thresholds are ascending upper-inclusive
// bounds; Scores has one more entry than Thresholds, the last covering
// everything above the final threshold.
type Table struct {
	Name       string    `json:"name" yaml:"name"`
	Unit       string    `json:"unit" yaml:"unit"`
	Thresholds []float64 `json:"thresholds" yaml:"thresholds"`
	Scores     []int     `json:"scores" yaml:"scores"`
}

// Validate checks the table partitions the real line into scored intervals.
func (t Table) Validate() error {
	var errs []string
	if len(t.Scores) != len(t.Thresholds)+1 {
		errs = append(errs, fmt.Sprintf("want %d scores for %d thresholds, got %d",
			len(t.Thresholds)+1, len(t.Thresholds), len(t.Scores)))
	}
	for i, th := range t.Thresholds {
		if math.IsNaN(th) || math.IsInf(th, 0) {
			errs = append(errs, fmt.Sprintf("threshold %d is not finite", i))
			continue
		}
		if i > 0 && th <= t.Thresholds[i-1] {
			errs = append(errs, fmt.Sprintf("threshold %d (%g) must exceed %g", i, th, t.Thresholds[i-1]))
		}
	}
	for i, s := range t.Scores {
		if s < MinScore || s > MaxScore {
			errs = append(errs, fmt.Sprintf("score %d (%d) outside %d..%d", i, s, MinScore, MaxScore))
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("score: invalid table %q: %s", t.Name, strings.Join(errs, "; "))
	}
	return nil
}

// Lookup returns the score for v. A value equal to a threshold falls in the
// interval that threshold closes.
func (t Table) Lookup(v float64) int {
	return t.Scores[sort.SearchFloat64s(t.Thresholds, v)]
}

// Score implements Scorer.
func (t Table) Score(v float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}
	return float64(t.Lookup(v))
}

// Category is one entry of a categorical lookup.
type Category struct {
	Code  int    `json:"code" yaml:"code"`
	Label string `json:"label" yaml:"label"`
	Score int    `json:"score" yaml:"score"`
}

// CategoryLookup scores categorical codes. Codes not in the lookup score as
// nodata.
type CategoryLookup struct {
	Name       string     `json:"name" yaml:"name"`
	Categories []Category `json:"categories" yaml:"categories"`

	byCode map[int]int
}

// NewCategoryLookup indexes categories by code.
func NewCategoryLookup(name string, cats []Category) (*CategoryLookup, error) {
	byCode := make(map[int]int, len(cats))
	for _, c := range cats {
		if c.Score < MinScore || c.Score > MaxScore {
			return nil, eris.Errorf("score: category %d (%s) score %d outside %d..%d",
				c.Code, c.Label, c.Score, MinScore, MaxScore)
		}
		if _, dup := byCode[c.Code]; dup {
			return nil, eris.Errorf("score: duplicate category code %d", c.Code)
		}
		byCode[c.Code] = c.Score
	}
	return &CategoryLookup{Name: name, Categories: cats, byCode: byCode}, nil
}

// Score implements Scorer. Non-integral codes are nodata.
func (c *CategoryLookup) Score(v float64) float64 {
	if math.IsNaN(v) || v != math.Trunc(v) {
		return math.NaN()
	}
	s, ok := c.byCode[int(v)]
	if !ok {
		return math.NaN()
	}
	return float64(s)
}

// ScoreLayer maps every cell of l through s into a categorical layer named
// name. Nodata stays nodata.
func ScoreLayer(name string, l *raster.Layer, s Scorer) (*raster.Layer, error) {
	if l == nil {
		return nil, eris.Errorf("score: nil layer for %s", name)
	}
	if s == nil {
		return nil, eris.Errorf("score: nil scorer for %s", name)
	}
	return l.Map(name, raster.Categorical, s.Score), nil
}
