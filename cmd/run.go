package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/landslide-cli/internal/config"
	"github.com/sells-group/landslide-cli/internal/model"
	"github.com/sells-group/landslide-cli/internal/overlay"
	"github.com/sells-group/landslide-cli/internal/pipeline"
	"github.com/sells-group/landslide-cli/internal/raster"
	"github.com/sells-group/landslide-cli/internal/report"
	"github.com/sells-group/landslide-cli/internal/source"
)

// Output file names written to --out-dir.
const (
	susceptibilityFile = "susceptibility.asc"
	classesFile        = "classes.asc"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute susceptibility for one AOI",
	Long:  "Loads the configured datasets onto the AOI grid, derives the predictors, scores and combines them, and prints the class breakdown.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		save, _ := cmd.Flags().GetBool("save")
		env, err := initPipeline(ctx, "run", save)
		if err != nil {
			return err
		}
		defer env.Close()

		aoiPath, _ := cmd.Flags().GetString("aoi")
		if aoiPath == "" {
			aoiPath = cfg.Sources.DefaultAOI
		}
		if aoiPath == "" {
			return eris.New("run: --aoi is required (or set sources.default_aoi)")
		}
		aoi, err := source.LoadAOIFile(aoiPath, cfg.Model.AOIBufferM)
		if err != nil {
			return err
		}
		if name, _ := cmd.Flags().GetString("name"); name != "" {
			aoi.Name = name
		}

		req, err := buildRequest(cmd, cfg.Model)
		if err != nil {
			return err
		}
		req.AOI = aoi
		outDir, _ := cmd.Flags().GetString("out-dir")
		allLayers, _ := cmd.Flags().GetBool("all-layers")
		req.KeepLayers = outDir != "" && allLayers

		var (
			res *pipeline.Result
			run *model.Run
		)
		if save {
			res, run, err = env.Pipeline.RunRecorded(ctx, env.Store, req)
		} else {
			res, err = env.Pipeline.Run(ctx, req)
		}
		if err != nil {
			return eris.Wrap(err, "run")
		}

		if outDir != "" {
			written, err := writeLayers(outDir, res)
			if err != nil {
				return err
			}
			zap.L().Info("wrote layers", zap.String("dir", outDir), zap.Int("files", written))
		}

		if path, _ := cmd.Flags().GetString("report"); path != "" {
			if run == nil {
				run = unsavedRun(res)
			}
			rep, err := report.NewBuilder(nil, overlayOrder()).FromRun(run)
			if err != nil {
				return err
			}
			if err := report.Write(path, rep); err != nil {
				return err
			}
			zap.L().Info("wrote report", zap.String("path", path))
		}

		if run != nil {
			fmt.Fprintf(os.Stdout, "Run %s\n", run.ID)
		}
		formatResult(os.Stdout, res)
		return nil
	},
}

func init() {
	runCmd.Flags().String("aoi", "", "AOI file (.shp, .geojson or .json); defaults to sources.default_aoi")
	runCmd.Flags().String("name", "", "AOI name recorded with the run")
	addModelFlags(runCmd)
	runCmd.Flags().String("out-dir", "", "write susceptibility and class grids to this directory")
	runCmd.Flags().Bool("all-layers", false, "with --out-dir, also write every predictor and score grid")
	runCmd.Flags().String("report", "", "write a report (.json, .yaml or .xlsx)")
	runCmd.Flags().Bool("save", false, "record the run in the run store")
	rootCmd.AddCommand(runCmd)
}

// weightFlags maps each predictor to its weight override flag.
var weightFlags = map[overlay.Predictor]string{
	overlay.Slope:     "w-slope",
	overlay.Roughness: "w-roughness",
	overlay.LandCover: "w-land-cover",
	overlay.DistWater: "w-dist-water",
	overlay.DistRoad:  "w-dist-road",
}

// addModelFlags registers the weight and grid flags shared by run and batch.
func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().String("weights-file", "", "YAML weight profile replacing the configured weights")
	for _, p := range overlay.Predictors {
		cmd.Flags().Float64(weightFlags[p], 0, fmt.Sprintf("weight of the %s predictor", p))
	}
	cmd.Flags().Float64("cell-size", 0, "output cell size in meters (default from config)")
}

// buildRequest layers the command's flags over the configured model.
// Precedence, lowest first: config, --weights-file, per-predictor flags.
func buildRequest(cmd *cobra.Command, m config.ModelConfig) (pipeline.Request, error) {
	req := requestDefaults(m)

	if path, _ := cmd.Flags().GetString("weights-file"); path != "" {
		profile, err := config.LoadWeightProfile(path)
		if err != nil {
			return req, err
		}
		req.Weights = overlay.WeightsFromMap(profile.Weights)
		zap.L().Debug("loaded weight profile", zap.String("profile", profile.Name))
	}

	for _, p := range overlay.Predictors {
		name := weightFlags[p]
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, _ := cmd.Flags().GetFloat64(name)
		w := make(overlay.Weights, len(req.Weights)+1)
		for k, x := range req.Weights {
			w[k] = x
		}
		w[p] = v
		req.Weights = w
	}

	if cmd.Flags().Changed("cell-size") {
		req.CellSize, _ = cmd.Flags().GetFloat64("cell-size")
	}
	return req, nil
}

func overlayOrder() []string {
	order := make([]string, len(overlay.Predictors))
	for i, p := range overlay.Predictors {
		order[i] = string(p)
	}
	return order
}

// unsavedRun describes a result that was not recorded, for reporting.
func unsavedRun(res *pipeline.Result) *model.Run {
	return &model.Run{
		AOIName:  res.AOIName,
		Weights:  res.Weights.Map(),
		CellSize: res.CellSize,
		Status:   model.RunStatusComplete,
		Result:   res.RunResult(),
	}
}

// writeLayers writes the output grids of res into dir and returns the
// number of files written.
func writeLayers(dir string, res *pipeline.Result) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, eris.Wrapf(err, "create output dir %s", dir)
	}

	files := map[string]*raster.Layer{
		susceptibilityFile: res.Susceptibility,
		classesFile:        res.Classes,
	}
	for name, l := range res.Predictors {
		files[name+".asc"] = l
	}
	for p, l := range res.Scores {
		files["score_"+string(p)+".asc"] = l
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	written := 0
	for _, name := range names {
		if files[name] == nil {
			continue
		}
		if err := raster.WriteASCIIGridFile(filepath.Join(dir, name), files[name]); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// formatResult writes the summary and class breakdown of res to out.
func formatResult(out io.Writer, res *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "AOI\t%s\n", res.AOIName)
	_, _ = fmt.Fprintf(w, "Cell size\t%g m\n", res.CellSize)
	if s := res.Summary; s != nil {
		_, _ = fmt.Fprintf(w, "Valid cells\t%d\n", s.Count)
		_, _ = fmt.Fprintf(w, "Nodata cells\t%d\n", s.Nodata)
		if s.Count > 0 {
			_, _ = fmt.Fprintf(w, "Mean\t%.3f\n", s.Mean)
			_, _ = fmt.Fprintf(w, "Range\t%.3f .. %.3f\n", s.Min, s.Max)
		}
		for _, p := range s.Percentiles {
			_, _ = fmt.Fprintf(w, "%s\t%.3f\n", p.Name(), p.Value)
		}
	}
	_ = w.Flush()

	if res.Histogram == nil {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CLASS\tLABEL\tPIXELS\tHECTARES\tSHARE")
	for _, c := range res.Histogram.Classes {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%.1f%%\n",
			c.Class, report.Label(c.Label), c.Pixels, report.Hectares(c.Hectares), c.Share*100)
	}
	_ = w.Flush()
}
