// Package report renders run summaries as JSON, YAML or XLSX files.
package report

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/landslide-cli/internal/model"
	"github.com/sells-group/landslide-cli/internal/stats"
)

// Format is a report file format.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatXLSX Format = "xlsx"
)

// Weight is one predictor weight in predictor order.
type Weight struct {
	Predictor string  `json:"predictor" yaml:"predictor"`
	Weight    float64 `json:"weight" yaml:"weight"`
}

// Class is one row of the class area table.
type Class struct {
	Class    int     `json:"class" yaml:"class"`
	Label    string  `json:"label" yaml:"label"`
	Pixels   int     `json:"pixels" yaml:"pixels"`
	Hectares float64 `json:"hectares" yaml:"hectares"`
	Share    float64 `json:"share" yaml:"share"`
}

// Report is the rendered summary of one run.
type Report struct {
	RunID       string             `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	AOIName     string             `json:"aoi_name" yaml:"aoi_name"`
	Status      string             `json:"status" yaml:"status"`
	CellSize    float64            `json:"cell_size" yaml:"cell_size"`
	Weights     []Weight           `json:"weights" yaml:"weights"`
	Count       int                `json:"count" yaml:"count"`
	Nodata      int                `json:"nodata" yaml:"nodata"`
	Min         float64            `json:"min" yaml:"min"`
	Max         float64            `json:"max" yaml:"max"`
	Mean        float64            `json:"mean" yaml:"mean"`
	Percentiles []stats.Percentile `json:"percentiles" yaml:"percentiles"`
	Classes     []Class            `json:"classes" yaml:"classes"`
	Coverage    map[string]float64 `json:"coverage,omitempty" yaml:"coverage,omitempty"`
	Error       string             `json:"error,omitempty" yaml:"error,omitempty"`
	GeneratedAt time.Time          `json:"generated_at" yaml:"generated_at"`
}

var titler = cases.Title(language.English)

// Label turns a snake_case class label into a display label ("very_high"
// becomes "Very High").
func Label(s string) string {
	return titler.String(strings.ReplaceAll(s, "_", " "))
}

// Builder creates reports stamped with its clock.
type Builder struct {
	clock clockwork.Clock
	order []string
}

// NewBuilder creates a Builder. order lists predictor names in the order
// weights are reported; names not in order follow alphabetically.
func NewBuilder(clock clockwork.Clock, order []string) *Builder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Builder{clock: clock, order: order}
}

// FromRun builds a report from a stored or just-finished run.
func (b *Builder) FromRun(run *model.Run) (*Report, error) {
	if run == nil {
		return nil, eris.New("report: nil run")
	}
	r := &Report{
		RunID:       run.ID,
		AOIName:     run.AOIName,
		Status:      string(run.Status),
		CellSize:    run.CellSize,
		Weights:     b.weights(run.Weights),
		Error:       run.Error,
		GeneratedAt: b.clock.Now().UTC(),
	}
	if run.Result == nil {
		return r, nil
	}
	if s := run.Result.Summary; s != nil {
		r.Count, r.Nodata = s.Count, s.Nodata
		r.Min, r.Max, r.Mean = s.Min, s.Max, s.Mean
		r.Percentiles = s.Percentiles
	}
	if h := run.Result.Histogram; h != nil {
		for _, c := range h.Classes {
			r.Classes = append(r.Classes, Class{
				Class:    c.Class,
				Label:    Label(c.Label),
				Pixels:   c.Pixels,
				Hectares: c.Hectares,
				Share:    c.Share,
			})
		}
	}
	r.Coverage = run.Result.Coverage
	return r, nil
}

func (b *Builder) weights(w map[string]float64) []Weight {
	out := make([]Weight, 0, len(w))
	seen := make(map[string]bool, len(w))
	for _, name := range b.order {
		if v, ok := w[name]; ok {
			out = append(out, Weight{Predictor: name, Weight: v})
			seen[name] = true
		}
	}
	var rest []string
	for name := range w {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, Weight{Predictor: name, Weight: w[name]})
	}
	return out
}

// FormatFor picks a format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", eris.Errorf("report: unsupported report extension %q", filepath.Ext(path))
}

// ParseFormat parses a format name such as "xlsx" or "yml".
func ParseFormat(s string) (Format, error) {
	return FormatFor("report." + s)
}

// Write renders r to path in the format implied by its extension.
func Write(path string, r *Report) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "report: create directory")
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	if err := Render(f, format, r); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "report: close %s", path)
	}
	return nil
}

// Render encodes r to w.
func Render(w io.Writer, format Format, r *Report) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "report: encode json")
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "report: encode yaml")
		}
		if err := enc.Close(); err != nil {
			return eris.Wrap(err, "report: flush yaml")
		}
		return nil
	case FormatXLSX:
		wb, err := workbook(r)
		if err != nil {
			return err
		}
		if err := wb.Write(w); err != nil {
			return eris.Wrap(err, "report: write xlsx")
		}
		return nil
	}
	return eris.Errorf("report: unsupported format %q", format)
}

// ContentType returns the MIME type of a format.
func ContentType(f Format) string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// Hectares formats an area with English digit grouping and one decimal,
// e.g. "12,345.6".
func Hectares(v float64) string {
	return message.NewPrinter(language.English).Sprintf("%.1f", v)
}
