// Package monitoring watches the run store and raises alerts when runs
// start failing or stall.
package monitoring

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/landslide-cli/internal/model"
	"github.com/sells-group/landslide-cli/internal/store"
)

const snapshotListLimit = 10000

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsFailed    int     `json:"runs_failed"`
	RunsRunning   int     `json:"runs_running"`
	RunsStale     int     `json:"runs_stale"`
	FailRate      float64 `json:"fail_rate"`
	AvgDurationMs int64   `json:"avg_duration_ms"`

	// Area classified very high across completed runs.
	VeryHighHectares float64 `json:"very_high_hectares"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the store capability the collector needs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers run metrics from the store.
type Collector struct {
	runs       RunLister
	clock      clockwork.Clock
	staleAfter time.Duration
}

// NewCollector creates a metrics collector. Runs still running after
// staleAfter count as stale; zero disables the check.
func NewCollector(runs RunLister, clock clockwork.Clock, staleAfter time.Duration) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{runs: runs, clock: clock, staleAfter: staleAfter}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.clock.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        snapshotListLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalDuration int64
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			totalDuration += r.UpdatedAt.Sub(r.CreatedAt).Milliseconds()
			snap.VeryHighHectares += veryHighHectares(r.Result)
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
			if c.staleAfter > 0 && now.Sub(r.CreatedAt) > c.staleAfter {
				snap.RunsStale++
			}
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.RunsComplete > 0 {
		snap.AvgDurationMs = totalDuration / int64(snap.RunsComplete)
	}
	return snap, nil
}

func veryHighHectares(res *model.RunResult) float64 {
	if res == nil || res.Histogram == nil {
		return 0
	}
	var ha float64
	for _, c := range res.Histogram.Classes {
		if c.Label == "very_high" {
			ha += c.Hectares
		}
	}
	return ha
}
