package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/landslide-cli/internal/overlay"
	"github.com/sells-group/landslide-cli/internal/report"
	"github.com/sells-group/landslide-cli/internal/score"
)

// scoringTables is the machine-readable form printed by --yaml.
type scoringTables struct {
	Tables      []score.Table      `yaml:"tables"`
	LandCover   []score.Category   `yaml:"land_cover"`
	ClassBreaks []float64          `yaml:"class_breaks"`
	Weights     map[string]float64 `yaml:"weights"`
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Print the scoring tables, class breaks and configured weights",
	RunE: func(cmd *cobra.Command, _ []string) error {
		weights := cfg.Model.Weights
		if len(weights) == 0 {
			weights = overlay.DefaultWeights().Map()
		}

		if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(scoringTables{
				Tables:      score.Tables(),
				LandCover:   score.LandCover().Categories,
				ClassBreaks: overlay.ClassBreaks[:],
				Weights:     weights,
			}); err != nil {
				return eris.Wrap(err, "tables: encode yaml")
			}
			return enc.Close()
		}

		formatTables(os.Stdout, weights)
		return nil
	},
}

func init() {
	tablesCmd.Flags().Bool("yaml", false, "print as YAML")
	rootCmd.AddCommand(tablesCmd)
}

// formatTables writes every lookup in human-readable form to out.
func formatTables(out io.Writer, weights map[string]float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PREDICTOR\tRANGE\tSCORE")
	for _, t := range score.Tables() {
		for i, s := range t.Scores {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", t.Name, intervalLabel(t, i), s)
		}
	}
	for _, c := range score.LandCover().Categories {
		_, _ = fmt.Fprintf(w, "%s\t%d %s\t%d\n", overlay.LandCover, c.Code, c.Label, c.Score)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CLASS\tLABEL\tSUSCEPTIBILITY")
	lo := 0.0
	for c := overlay.ClassVeryLow; c <= overlay.ClassVeryHigh; c++ {
		hi := 1.0
		if c <= len(overlay.ClassBreaks) {
			hi = overlay.ClassBreaks[c-1]
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.1f .. %.1f\n", c, report.Label(overlay.ClassLabel(c)), lo, hi)
		lo = hi
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PREDICTOR\tWEIGHT")
	for _, p := range overlay.Predictors {
		_, _ = fmt.Fprintf(w, "%s\t%g\n", p, weights[string(p)])
	}
	_ = w.Flush()
}

// intervalLabel describes the i-th interval of t. Thresholds close the
// interval below them.
func intervalLabel(t score.Table, i int) string {
	switch {
	case i == 0:
		return fmt.Sprintf("<= %g %s", t.Thresholds[0], t.Unit)
	case i == len(t.Thresholds):
		return fmt.Sprintf("> %g %s", t.Thresholds[i-1], t.Unit)
	}
	return fmt.Sprintf("%g .. %g %s", t.Thresholds[i-1], t.Thresholds[i], t.Unit)
}
