package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landslide-cli/internal/config"
	"github.com/sells-group/landslide-cli/internal/model"
	"github.com/sells-group/landslide-cli/internal/overlay"
	"github.com/sells-group/landslide-cli/internal/pipeline"
	"github.com/sells-group/landslide-cli/internal/raster"
	"github.com/sells-group/landslide-cli/internal/stats"
)

func newModelCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	addModelFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func testModelConfig() config.ModelConfig {
	return config.ModelConfig{
		Weights:     overlay.DefaultWeights().Map(),
		CellSize:    30,
		MaxPixels:   -1,
		Percentiles: []float64{50},
	}
}

func TestBuildRequest_ConfigDefaults(t *testing.T) {
	req, err := buildRequest(newModelCmd(t), testModelConfig())
	require.NoError(t, err)

	assert.Equal(t, overlay.DefaultWeights(), req.Weights)
	assert.Equal(t, 30.0, req.CellSize)
	assert.Equal(t, int64(-1), req.MaxPixels)
	assert.Equal(t, []float64{50}, req.Percentiles)
}

func TestBuildRequest_WeightFlagsOverride(t *testing.T) {
	m := testModelConfig()
	req, err := buildRequest(newModelCmd(t, "--w-slope", "0.9", "--cell-size", "10"), m)
	require.NoError(t, err)

	assert.Equal(t, 0.9, req.Weights[overlay.Slope])
	assert.Equal(t, 0.15, req.Weights[overlay.Roughness])
	assert.Equal(t, 10.0, req.CellSize)
	assert.Equal(t, 0.45, m.Weights["slope"], "config weights are not mutated")
}

func TestBuildRequest_WeightsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: steep
weights:
  slope: 0.6
  roughness: 0.2
  land_cover: 0.1
  dist_water: 0.05
  dist_road: 0.05
`), 0o644))

	req, err := buildRequest(newModelCmd(t, "--weights-file", path, "--w-dist-road", "0"), testModelConfig())
	require.NoError(t, err)

	assert.Equal(t, 0.6, req.Weights[overlay.Slope])
	assert.Equal(t, 0.2, req.Weights[overlay.Roughness])
	assert.Equal(t, 0.0, req.Weights[overlay.DistRoad])
}

func TestBuildRequest_WeightsFileMissing(t *testing.T) {
	_, err := buildRequest(newModelCmd(t, "--weights-file", filepath.Join(t.TempDir(), "nope.yaml")), testModelConfig())
	assert.Error(t, err)
}

func testResult(t *testing.T) *pipeline.Result {
	t.Helper()
	g, err := raster.NewGrid(0, 60, 30, 2, 2)
	require.NoError(t, err)
	return &pipeline.Result{
		AOIName:        "ridge",
		Grid:           g,
		CellSize:       30,
		Weights:        overlay.DefaultWeights(),
		Susceptibility: raster.NewLayer("susceptibility", raster.Continuous, g, 0.7),
		Classes:        raster.NewLayer("classes", raster.Categorical, g, 4),
		Summary: &stats.Summary{
			Count: 4, Min: 0.7, Max: 0.7, Mean: 0.7,
			Percentiles: []stats.Percentile{{P: 50, Value: 0.7}},
		},
		Histogram: &stats.Histogram{
			Classes: []stats.ClassCount{{Class: 4, Label: "high", Pixels: 4, Hectares: 0.36, Share: 1}},
		},
	}
}

func TestWriteLayers(t *testing.T) {
	res := testResult(t)
	dir := filepath.Join(t.TempDir(), "out")

	n, err := writeLayers(dir, res)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	l, err := raster.ReadASCIIGridFile(filepath.Join(dir, susceptibilityFile), "s", raster.Continuous)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, l.At(1, 1), 1e-9)

	c, err := raster.ReadASCIIGridFile(filepath.Join(dir, classesFile), "c", raster.Categorical)
	require.NoError(t, err)
	assert.Equal(t, 4.0, c.At(0, 0))
}

func TestWriteLayers_AllLayers(t *testing.T) {
	res := testResult(t)
	res.Predictors = map[string]*raster.Layer{"slope": raster.NewLayer("slope", raster.Continuous, res.Grid, 12)}
	res.Scores = overlay.Scores{overlay.Slope: raster.NewLayer("slope", raster.Categorical, res.Grid, 2)}
	dir := t.TempDir()

	n, err := writeLayers(dir, res)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.FileExists(t, filepath.Join(dir, "slope.asc"))
	assert.FileExists(t, filepath.Join(dir, "score_slope.asc"))
}

func TestFormatResult(t *testing.T) {
	var buf bytes.Buffer
	formatResult(&buf, testResult(t))

	out := buf.String()
	assert.Contains(t, out, "ridge")
	assert.Contains(t, out, "p50")
	assert.Contains(t, out, "CLASS")
	assert.Contains(t, out, "High")
	assert.Contains(t, out, "100.0%")
}

func TestUnsavedRun(t *testing.T) {
	run := unsavedRun(testResult(t))
	assert.Empty(t, run.ID)
	assert.Equal(t, "ridge", run.AOIName)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 0.45, run.Weights["slope"])
	require.NotNil(t, run.Result)
	assert.Equal(t, 4, run.Result.Summary.Count)
}

func TestOverlayOrder(t *testing.T) {
	assert.Equal(t, []string{"slope", "roughness", "land_cover", "dist_water", "dist_road"}, overlayOrder())
}
