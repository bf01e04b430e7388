package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/landslide-cli/internal/config"
	"github.com/sells-group/landslide-cli/internal/model"
	"github.com/sells-group/landslide-cli/internal/overlay"
	"github.com/sells-group/landslide-cli/internal/pipeline"
	"github.com/sells-group/landslide-cli/internal/source"
)

var runsRerunCmd = &cobra.Command{
	Use:   "rerun <run-id>",
	Short: "Recompute a recorded run against the current datasets",
	Long:  "Restores the AOI, weights and cell size of a recorded run and records a new run with them.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run", true)
		if err != nil {
			return err
		}
		defer env.Close()

		prev, err := env.Store.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs rerun")
		}
		req, err := rerunRequest(prev, cfg.Model)
		if err != nil {
			return err
		}

		res, run, err := env.Pipeline.RunRecorded(ctx, env.Store, req)
		if err != nil {
			return eris.Wrapf(err, "runs rerun %s", prev.ID)
		}

		fmt.Fprintf(os.Stdout, "Run %s (rerun of %s)\n", run.ID, prev.ID)
		formatResult(os.Stdout, res)
		return nil
	},
}

func init() {
	runsCmd.AddCommand(runsRerunCmd)
}

// rerunRequest rebuilds the request of a recorded run. The buffer, pixel cap
// and percentiles come from the current model config.
func rerunRequest(run *model.Run, m config.ModelConfig) (pipeline.Request, error) {
	if len(run.AOI) == 0 {
		return pipeline.Request{}, eris.Errorf("runs rerun: run %s has no stored AOI", run.ID)
	}
	aoi, err := source.DecodeAOI(run.AOIName, run.AOI, m.AOIBufferM)
	if err != nil {
		return pipeline.Request{}, err
	}

	req := requestDefaults(m)
	req.AOI = aoi
	if len(run.Weights) > 0 {
		req.Weights = overlay.WeightsFromMap(run.Weights)
	}
	if run.CellSize > 0 {
		req.CellSize = run.CellSize
	}
	return req, nil
}
