package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landslide-cli/internal/model"
	"github.com/sells-group/landslide-cli/internal/stats"
)

var epoch = time.Date(2025, time.May, 12, 8, 30, 0, 0, time.UTC)

func newTestSQLite(t *testing.T, clock clockwork.Clock) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	s.WithClock(clock)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleRun(name string) NewRun {
	return NewRun{
		AOIName:  name,
		AOI:      []byte{0x01, 0x06, 0x00, 0x00, 0x00},
		Weights:  map[string]float64{"slope": 0.45, "roughness": 0.15, "land_cover": 0.2, "dist_water": 0.1, "dist_road": 0.1},
		CellSize: 30,
	}
}

func sampleResult() *model.RunResult {
	return &model.RunResult{
		Summary: &stats.Summary{
			Count: 100, Nodata: 4, Min: 0.2, Max: 0.9, Mean: 0.47,
			Percentiles: []stats.Percentile{{P: 10, Value: 0.24}, {P: 50, Value: 0.46}, {P: 90, Value: 0.8}},
		},
		Histogram: &stats.Histogram{
			Classes: []stats.ClassCount{
				{Class: 1, Label: "very_low", Pixels: 10, Hectares: 0.9, Share: 0.1},
				{Class: 2, Label: "low", Pixels: 30, Hectares: 2.7, Share: 0.3},
				{Class: 3, Label: "moderate", Pixels: 40, Hectares: 3.6, Share: 0.4},
				{Class: 4, Label: "high", Pixels: 15, Hectares: 1.35, Share: 0.15},
				{Class: 5, Label: "very_high", Pixels: 5, Hectares: 0.45, Share: 0.05},
			},
			Nodata: 4,
		},
		Coverage: map[string]float64{"elevation": 1},
		Stages:   []model.StageResult{{Name: "load", Status: model.StageStatusComplete, Duration: 120}},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T, clock clockwork.Clock) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t, clockwork.NewFakeClockAt(epoch))
		ctx := context.Background()

		run, err := s.CreateRun(ctx, sampleRun("ridge"))
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)
		assert.True(t, epoch.Equal(run.CreatedAt))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, "ridge", got.AOIName)
		assert.Equal(t, []byte{0x01, 0x06, 0x00, 0x00, 0x00}, got.AOI)
		assert.Equal(t, 0.45, got.Weights["slope"])
		assert.Equal(t, 30.0, got.CellSize)
		assert.Nil(t, got.Result)
		assert.True(t, epoch.Equal(got.CreatedAt))
	})

	t.Run("CompleteRun", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		s := newStore(t, clock)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, sampleRun("valley"))
		require.NoError(t, err)

		clock.Advance(90 * time.Second)
		require.NoError(t, s.CompleteRun(ctx, run.ID, sampleResult()))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, 100, got.Result.Summary.Count)
		assert.Equal(t, 0.46, got.Result.Summary.Percentiles[1].Value)
		assert.Equal(t, 40, got.Result.Histogram.Classes[2].Pixels)
		assert.Equal(t, int64(120), got.Result.Stages[0].Duration)
		assert.True(t, epoch.Add(90*time.Second).Equal(got.UpdatedAt))
	})

	t.Run("CompleteRunTwice", func(t *testing.T) {
		s := newStore(t, clockwork.NewFakeClockAt(epoch))
		ctx := context.Background()

		run, err := s.CreateRun(ctx, sampleRun("repeat"))
		require.NoError(t, err)
		require.NoError(t, s.CompleteRun(ctx, run.ID, sampleResult()))
		require.NoError(t, s.CompleteRun(ctx, run.ID, sampleResult()))
	})

	t.Run("FailRun", func(t *testing.T) {
		s := newStore(t, clockwork.NewFakeClockAt(epoch))
		ctx := context.Background()

		run, err := s.CreateRun(ctx, sampleRun("gully"))
		require.NoError(t, err)
		require.NoError(t, s.FailRun(ctx, run.ID, "source: resolve elevation: no such file"))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		assert.Equal(t, "source: resolve elevation: no such file", got.Error)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t, clockwork.NewFakeClockAt(epoch))
		ctx := context.Background()

		_, err := s.GetRun(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.True(t, errors.Is(s.FailRun(ctx, "missing", "x"), ErrNotFound))
		assert.True(t, errors.Is(s.CompleteRun(ctx, "missing", sampleResult()), ErrNotFound))
	})

	t.Run("ListRuns", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		s := newStore(t, clock)
		ctx := context.Background()

		var ids []string
		for _, name := range []string{"a", "b", "a"} {
			run, err := s.CreateRun(ctx, sampleRun(name))
			require.NoError(t, err)
			ids = append(ids, run.ID)
			clock.Advance(time.Minute)
		}
		require.NoError(t, s.FailRun(ctx, ids[1], "boom"))

		tests := []struct {
			name   string
			filter RunFilter
			want   []string
		}{
			{"all newest first", RunFilter{}, []string{ids[2], ids[1], ids[0]}},
			{"by status", RunFilter{Status: model.RunStatusFailed}, []string{ids[1]}},
			{"by aoi", RunFilter{AOIName: "a"}, []string{ids[2], ids[0]}},
			{"created after", RunFilter{CreatedAfter: epoch.Add(30 * time.Second)}, []string{ids[2], ids[1]}},
			{"limit", RunFilter{Limit: 1}, []string{ids[2]}},
			{"offset", RunFilter{Limit: 1, Offset: 1}, []string{ids[1]}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				runs, err := s.ListRuns(ctx, tt.filter)
				require.NoError(t, err)
				got := make([]string, len(runs))
				for i, r := range runs {
					got[i] = r.ID
				}
				assert.Equal(t, tt.want, got)
			})
		}
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestClassRows(t *testing.T) {
	rows := classRows("r1", sampleResult().Histogram)
	require.Len(t, rows, 5)
	assert.Equal(t, []any{"r1", 3, "moderate", 40, 3.6, 0.4}, rows[2])
	assert.Nil(t, classRows("r1", nil))
}

func TestPercentileRows(t *testing.T) {
	rows := percentileRows("r1", sampleResult().Summary)
	require.Len(t, rows, 3)
	assert.Equal(t, []any{"r1", 90.0, 0.8}, rows[2])
	assert.Nil(t, percentileRows("r1", nil))
}
