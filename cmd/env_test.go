package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landslide-cli/internal/config"
	"github.com/sells-group/landslide-cli/internal/overlay"
	"github.com/sells-group/landslide-cli/internal/store"
)

func TestInitStore_SQLite(t *testing.T) {
	ctx := context.Background()
	st, err := initStore(ctx, config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "runs.db"),
	})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	run, err := st.CreateRun(ctx, store.NewRun{AOIName: "ridge", CellSize: 30})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	_, err := initStore(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitStore_BadPostgresURL(t *testing.T) {
	_, err := initStore(context.Background(), config.StoreConfig{Driver: "postgres", DatabaseURL: "::not a url::"})
	assert.Error(t, err)
}

func TestRequestDefaults(t *testing.T) {
	req := requestDefaults(config.ModelConfig{
		Weights:     map[string]float64{"slope": 1},
		CellSize:    10,
		MaxPixels:   500,
		Percentiles: []float64{90},
	})
	assert.Equal(t, overlay.Weights{overlay.Slope: 1}, req.Weights)
	assert.Equal(t, 10.0, req.CellSize)
	assert.Equal(t, int64(500), req.MaxPixels)
	assert.Equal(t, []float64{90}, req.Percentiles)
	assert.Nil(t, req.AOI)
}

func TestRequestDefaults_NoWeights(t *testing.T) {
	req := requestDefaults(config.ModelConfig{})
	assert.Nil(t, req.Weights, "nil weights fall back to the pipeline defaults")
}

func TestSourcesFrom(t *testing.T) {
	s := sourcesFrom(config.SourcesConfig{
		Elevation:       "dem.asc",
		LandCover:       "lc.asc",
		WaterOccurrence: "water.asc",
		Roads:           "roads.shp",
		CacheDir:        "/tmp/cache",
	})
	assert.Equal(t, "dem.asc", s.Elevation)
	assert.Equal(t, "roads.shp", s.Roads)
	assert.NoError(t, s.Validate())
}

func TestNewCache(t *testing.T) {
	c := &config.Config{
		Sources: config.SourcesConfig{CacheDir: t.TempDir()},
		Fetch:   config.FetchConfig{UserAgent: "test", TimeoutSecs: 5, MaxRetries: 1, FTPTimeoutSecs: 5, Refresh: true},
	}
	cache := newCache(c)
	assert.Equal(t, c.Sources.CacheDir, cache.Dir)
	assert.True(t, cache.Refresh)
}
