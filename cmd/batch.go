package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/landslide-cli/internal/overlay"
	"github.com/sells-group/landslide-cli/internal/pipeline"
	"github.com/sells-group/landslide-cli/internal/report"
	"github.com/sells-group/landslide-cli/internal/source"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Compute susceptibility for every feature of an AOI file",
	Long:  "Runs each polygon feature of a shapefile or GeoJSON file as its own AOI, with bounded concurrency. A failed AOI does not stop the others.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		save, _ := cmd.Flags().GetBool("save")
		env, err := initPipeline(ctx, "batch", save)
		if err != nil {
			return err
		}
		defer env.Close()

		path, _ := cmd.Flags().GetString("aois")
		nameField, _ := cmd.Flags().GetString("name-field")
		aois, err := source.LoadAOIsFile(path, nameField, cfg.Model.AOIBufferM)
		if err != nil {
			return err
		}
		if len(aois) == 0 {
			fmt.Fprintln(os.Stderr, "No AOIs found.")
			return nil
		}

		base, err := buildRequest(cmd, cfg.Model)
		if err != nil {
			return err
		}
		reqs := batchRequests(base, aois)

		limit, _ := cmd.Flags().GetInt("concurrency")
		if limit <= 0 {
			limit = cfg.Batch.MaxConcurrentAOIs
		}

		outDir, _ := cmd.Flags().GetString("out-dir")
		builder := report.NewBuilder(nil, overlayOrder())
		var done atomic.Int64
		onDone := func(o pipeline.Outcome) {
			n := done.Add(1)
			log := zap.L().With(zap.String("aoi", o.Request.AOI.Name), zap.Int64("done", n), zap.Int("total", len(reqs)))
			if o.Err != nil {
				log.Warn("batch: aoi failed", zap.Error(o.Err))
				return
			}
			log.Info("batch: aoi complete")
			if outDir != "" {
				if err := writeBatchOutput(filepath.Join(outDir, safeName(o.Request.AOI.Name)), builder, o); err != nil {
					log.Error("batch: write output", zap.Error(err))
				}
			}
		}

		var rec pipeline.Recorder
		if env.Store != nil {
			rec = env.Store
		}
		outcomes := env.Pipeline.RunBatch(ctx, rec, reqs, limit, onDone)

		formatOutcomes(os.Stdout, outcomes)
		if failed := countFailed(outcomes); failed > 0 {
			return eris.Errorf("batch: %d of %d AOIs failed", failed, len(outcomes))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().String("aois", "", "AOI file (.shp, .geojson or .json) with one polygon feature per AOI")
	batchCmd.Flags().String("name-field", "name", "attribute holding each AOI's name")
	addModelFlags(batchCmd)
	batchCmd.Flags().Int("concurrency", 0, "AOIs in flight (default batch.max_concurrent_aois)")
	batchCmd.Flags().String("out-dir", "", "write grids and a JSON report per AOI under this directory")
	batchCmd.Flags().Bool("save", false, "record each run in the run store")
	_ = batchCmd.MarkFlagRequired("aois")
	rootCmd.AddCommand(batchCmd)
}

// batchRequests copies base once per AOI. Unnamed AOIs get their position
// as a name.
func batchRequests(base pipeline.Request, aois []*source.AOI) []pipeline.Request {
	reqs := make([]pipeline.Request, len(aois))
	for i, aoi := range aois {
		if aoi.Name == "" {
			aoi.Name = fmt.Sprintf("aoi-%03d", i+1)
		}
		reqs[i] = base
		reqs[i].AOI = aoi
	}
	return reqs
}

func writeBatchOutput(dir string, builder *report.Builder, o pipeline.Outcome) error {
	if _, err := writeLayers(dir, o.Result); err != nil {
		return err
	}
	run := o.Run
	if run == nil {
		run = unsavedRun(o.Result)
	}
	rep, err := builder.FromRun(run)
	if err != nil {
		return err
	}
	return report.Write(filepath.Join(dir, "report.json"), rep)
}

// safeName turns an AOI name into a directory name.
func safeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "aoi"
	}
	return name
}

func countFailed(outcomes []pipeline.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// formatOutcomes writes one line per AOI to out.
func formatOutcomes(out io.Writer, outcomes []pipeline.Outcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AOI\tSTATUS\tRUN\tMEAN\tVERY_HIGH_HA\tERROR")
	for _, o := range outcomes {
		name := ""
		if o.Request.AOI != nil {
			name = o.Request.AOI.Name
		}
		runID := "-"
		if o.Run != nil {
			runID = shortID(o.Run.ID)
		}
		if o.Err != nil {
			_, _ = fmt.Fprintf(w, "%s\tfailed\t%s\t-\t-\t%s\n", name, runID, truncate(o.Err.Error(), 60))
			continue
		}
		mean := "-"
		if s := o.Result.Summary; s != nil && s.Count > 0 {
			mean = fmt.Sprintf("%.3f", s.Mean)
		}
		_, _ = fmt.Fprintf(w, "%s\tcomplete\t%s\t%s\t%s\t\n", name, runID, mean, report.Hectares(veryHighHectares(o.Result)))
	}
	_ = w.Flush()
}

func veryHighHectares(res *pipeline.Result) float64 {
	if res == nil || res.Histogram == nil {
		return 0
	}
	for _, c := range res.Histogram.Classes {
		if c.Class == overlay.ClassVeryHigh {
			return c.Hectares
		}
	}
	return 0
}
