// Package model holds the records shared by the pipeline, the run store and
// the API.
package model

import (
	"time"

	"github.com/sells-group/landslide-cli/internal/stats"
)

// RunStatus represents the current state of a susceptibility run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// Run is one susceptibility computation over one AOI.
type Run struct {
	ID      string `json:"id"`
	AOIName string `json:"aoi_name"`
	// AOI is the analysed geometry as EWKB.
	AOI      []byte             `json:"-"`
	Weights  map[string]float64 `json:"weights"`
	CellSize float64            `json:"cell_size"`
	Status   RunStatus          `json:"status"`
	Result   *RunResult         `json:"result,omitempty"`
	Error    string             `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Summary   *stats.Summary     `json:"summary"`
	Histogram *stats.Histogram   `json:"histogram"`
	Coverage  map[string]float64 `json:"coverage,omitempty"`
	Stages    []StageResult      `json:"stages"`
}

// StageStatus represents the outcome of a pipeline stage.
type StageStatus string

const (
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
)

// StageResult holds the outcome of one pipeline stage.
type StageResult struct {
	Name     string      `json:"name"`
	Status   StageStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}
