package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/landslide-cli/internal/model"
	"github.com/sells-group/landslide-cli/internal/store"
)

// Recorder persists the lifecycle of a run.
type Recorder interface {
	CreateRun(ctx context.Context, in store.NewRun) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, runErr string) error
}

// RunRecorded executes req and records it through rec. Invalid requests are
// rejected before a run is created. A pipeline failure marks the run failed
// and is returned together with the failed run.
func (p *Pipeline) RunRecorded(ctx context.Context, rec Recorder, req Request) (*Result, *model.Run, error) {
	norm, err := req.normalize()
	if err != nil {
		return nil, nil, err
	}
	aoi, err := norm.AOI.EncodeEWKB()
	if err != nil {
		return nil, nil, err
	}

	run, err := rec.CreateRun(ctx, store.NewRun{
		AOIName:  norm.AOI.Name,
		AOI:      aoi,
		Weights:  norm.Weights.Map(),
		CellSize: norm.CellSize,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: create run")
	}
	log := p.log.With(zap.String("run_id", run.ID), zap.String("aoi", run.AOIName))

	res, runErr := p.Run(ctx, req)
	if runErr != nil {
		// The caller's context may already be cancelled; the failure must
		// still be written.
		if err := rec.FailRun(context.WithoutCancel(ctx), run.ID, runErr.Error()); err != nil {
			log.Error("pipeline: record failed run", zap.Error(err))
		}
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
		return nil, run, runErr
	}

	out := res.RunResult()
	if err := rec.CompleteRun(ctx, run.ID, out); err != nil {
		return res, run, eris.Wrapf(err, "pipeline: complete run %s", run.ID)
	}
	run.Status = model.RunStatusComplete
	run.Result = out
	log.Info("pipeline: run recorded")
	return res, run, nil
}
