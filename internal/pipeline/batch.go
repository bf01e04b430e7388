package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/landslide-cli/internal/model"
)

// Outcome is the result of one request in a batch.
type Outcome struct {
	Request Request
	Result  *Result
	// Run is the stored run when the batch records runs.
	Run *model.Run
	Err error
}

// RunBatch runs every request with at most limit in flight. A failed AOI
// does not stop the others; outcomes keep the order of reqs. A non-nil rec
// records each run. onDone, when set, is called as each run finishes and
// must be safe for concurrent use.
func (p *Pipeline) RunBatch(ctx context.Context, rec Recorder, reqs []Request, limit int, onDone func(Outcome)) []Outcome {
	if limit <= 0 {
		limit = 1
	}
	out := make([]Outcome, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, req := range reqs {
		g.Go(func() error {
			o := Outcome{Request: req}
			if rec != nil {
				o.Result, o.Run, o.Err = p.RunRecorded(gctx, rec, req)
			} else {
				o.Result, o.Err = p.Run(gctx, req)
			}
			out[i] = o
			if onDone != nil {
				onDone(out[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range out {
		if o.Err != nil {
			failed++
		}
	}
	p.log.Info("pipeline: batch complete",
		zap.Int("runs", len(reqs)),
		zap.Int("failed", failed),
	)
	return out
}
