package report

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Sheet names.
const (
	SheetSummary = "Summary"
	SheetClasses = "Classes"
	SheetWeights = "Weights"
)

// workbook lays r out as summary, class and weight sheets.
func workbook(r *Report) (*xlsx.File, error) {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return nil, eris.Wrap(err, "report: add summary sheet")
	}
	addPair(summary, "Run", r.RunID)
	addPair(summary, "AOI", r.AOIName)
	addPair(summary, "Status", r.Status)
	addFloatPair(summary, "Cell size (m)", r.CellSize)
	addIntPair(summary, "Valid cells", r.Count)
	addIntPair(summary, "Nodata cells", r.Nodata)
	if r.Count > 0 {
		addFloatPair(summary, "Min", r.Min)
		addFloatPair(summary, "Max", r.Max)
		addFloatPair(summary, "Mean", r.Mean)
	}
	for _, p := range r.Percentiles {
		addFloatPair(summary, p.Name(), p.Value)
	}
	if r.Error != "" {
		addPair(summary, "Error", r.Error)
	}
	addPair(summary, "Generated", r.GeneratedAt.Format(time.RFC3339))

	classes, err := f.AddSheet(SheetClasses)
	if err != nil {
		return nil, eris.Wrap(err, "report: add classes sheet")
	}
	addHeader(classes, "Class", "Label", "Pixels", "Hectares", "Area", "Share")
	for _, c := range r.Classes {
		row := classes.AddRow()
		row.AddCell().SetInt(c.Class)
		row.AddCell().SetString(c.Label)
		row.AddCell().SetInt(c.Pixels)
		row.AddCell().SetFloat(c.Hectares)
		row.AddCell().SetString(Hectares(c.Hectares) + " ha")
		row.AddCell().SetFloat(c.Share)
	}

	weights, err := f.AddSheet(SheetWeights)
	if err != nil {
		return nil, eris.Wrap(err, "report: add weights sheet")
	}
	addHeader(weights, "Predictor", "Weight")
	for _, w := range r.Weights {
		row := weights.AddRow()
		row.AddCell().SetString(w.Predictor)
		row.AddCell().SetFloat(w.Weight)
	}

	return f, nil
}

func addHeader(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, n := range names {
		row.AddCell().SetString(n)
	}
}

func addPair(sheet *xlsx.Sheet, key, value string) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetString(value)
}

func addIntPair(sheet *xlsx.Sheet, key string, value int) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetInt(value)
}

func addFloatPair(sheet *xlsx.Sheet, key string, value float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetFloat(value)
}
