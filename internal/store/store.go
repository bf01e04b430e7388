// Package store persists susceptibility runs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landslide-cli/internal/model"
	"github.com/sells-group/landslide-cli/internal/stats"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = eris.New("store: run not found")

const defaultListLimit = 100

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	AOIName      string          `json:"aoi_name,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// NewRun is the input recorded when a run starts.
type NewRun struct {
	AOIName string
	// AOI is the analysed geometry as EWKB.
	AOI      []byte
	Weights  map[string]float64
	CellSize float64
}

// Store defines the persistence interface for susceptibility runs.
type Store interface {
	CreateRun(ctx context.Context, in NewRun) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

var classColumns = []string{"run_id", "class", "label", "pixels", "hectares", "share"}

var percentileColumns = []string{"run_id", "p", "value"}

// classRows flattens a histogram into run_classes rows.
func classRows(runID string, h *stats.Histogram) [][]any {
	if h == nil {
		return nil
	}
	rows := make([][]any, 0, len(h.Classes))
	for _, c := range h.Classes {
		rows = append(rows, []any{runID, c.Class, c.Label, c.Pixels, c.Hectares, c.Share})
	}
	return rows
}

// percentileRows flattens a summary into run_percentiles rows.
func percentileRows(runID string, s *stats.Summary) [][]any {
	if s == nil {
		return nil
	}
	rows := make([][]any, 0, len(s.Percentiles))
	for _, p := range s.Percentiles {
		rows = append(rows, []any{runID, p.P, p.Value})
	}
	return rows
}

func listLimit(filter RunFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}
