package overlay

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landslide-cli/internal/raster"
)

func testGrid(t *testing.T, cols int) raster.Grid {
	t.Helper()
	g, err := raster.NewGrid(0, 30, 30, cols, 1)
	require.NoError(t, err)
	return g
}

// uniformScores builds single-row score layers from per-predictor values.
func uniformScores(t *testing.T, vals map[Predictor][]float64) Scores {
	t.Helper()
	out := Scores{}
	for p, v := range vals {
		l, err := raster.FromValues(string(p), raster.Categorical, testGrid(t, len(v)), v)
		require.NoError(t, err)
		out[p] = l
	}
	return out
}

func allScores(t *testing.T, s float64) Scores {
	t.Helper()
	vals := map[Predictor][]float64{}
	for _, p := range Predictors {
		vals[p] = []float64{s}
	}
	return uniformScores(t, vals)
}

func TestCombine_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		scores    map[Predictor][]float64
		weights   Weights
		want      float64
		wantClass int
	}{
		{
			name: "reference cell",
			scores: map[Predictor][]float64{
				Slope: {2}, Roughness: {2}, LandCover: {3}, DistWater: {2}, DistRoad: {4},
			},
			weights:   DefaultWeights(),
			want:      0.48,
			wantClass: ClassModerate,
		},
		{
			name: "unnormalized weights give the same index",
			scores: map[Predictor][]float64{
				Slope: {2}, Roughness: {2}, LandCover: {3}, DistWater: {2}, DistRoad: {4},
			},
			weights:   Weights{Slope: 45, Roughness: 15, LandCover: 20, DistWater: 10, DistRoad: 10},
			want:      0.48,
			wantClass: ClassModerate,
		},
		{
			name: "single nonzero weight",
			scores: map[Predictor][]float64{
				Slope: {5}, Roughness: {1}, LandCover: {1}, DistWater: {1}, DistRoad: {1},
			},
			weights:   Weights{Slope: 1, Roughness: 0, LandCover: 0, DistWater: 0, DistRoad: 0},
			want:      1,
			wantClass: ClassVeryHigh,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Combine(uniformScores(t, tt.scores), tt.weights)
			require.NoError(t, err)
			assert.Equal(t, NameSusceptibility, out.Name)
			assert.InDelta(t, tt.want, out.Data[0], 1e-12)
			assert.Equal(t, tt.wantClass, Classify(out.Data[0]))
		})
	}
}

func TestCombine_UniformScoresAreExact(t *testing.T) {
	weights := []Weights{
		DefaultWeights(),
		{Slope: 0.1, Roughness: 0.2, LandCover: 0.3, DistWater: 0.7, DistRoad: 1.3},
		{Slope: 3, Roughness: 7, LandCover: 11, DistWater: 0, DistRoad: 0.01},
	}
	for _, w := range weights {
		low, err := Combine(allScores(t, 1), w)
		require.NoError(t, err)
		assert.Equal(t, 0.2, low.Data[0])
		assert.Equal(t, ClassVeryLow, Classify(low.Data[0]))

		high, err := Combine(allScores(t, 5), w)
		require.NoError(t, err)
		assert.Equal(t, 1.0, high.Data[0])
		assert.Equal(t, ClassVeryHigh, Classify(high.Data[0]))
	}
}

func TestCombine_RangeBounded(t *testing.T) {
	w := Weights{Slope: 0.3, Roughness: 0.01, LandCover: 2, DistWater: 0.5, DistRoad: 0.7}
	for a := 1.0; a <= 5; a++ {
		for b := 1.0; b <= 5; b++ {
			scores := uniformScores(t, map[Predictor][]float64{
				Slope: {a}, Roughness: {b}, LandCover: {a}, DistWater: {b}, DistRoad: {6 - a},
			})
			out, err := Combine(scores, w)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, out.Data[0], 0.2)
			assert.LessOrEqual(t, out.Data[0], 1.0)
		}
	}
}

func TestCombine_NodataPropagates(t *testing.T) {
	scores := uniformScores(t, map[Predictor][]float64{
		Slope:     {1, 2},
		Roughness: {1, math.NaN()},
		LandCover: {1, 3},
		DistWater: {1, 2},
		DistRoad:  {1, 4},
	})
	out, err := Combine(scores, DefaultWeights())
	require.NoError(t, err)
	assert.Equal(t, 0.2, out.Data[0])
	assert.True(t, math.IsNaN(out.Data[1]))
}

func TestCombine_Deterministic(t *testing.T) {
	scores := uniformScores(t, map[Predictor][]float64{
		Slope: {1, 2, 5}, Roughness: {3, 2, 1}, LandCover: {4, 4, 5}, DistWater: {2, 5, 1}, DistRoad: {1, 1, 3},
	})
	w := Weights{Slope: 0.37, Roughness: 0.11, LandCover: 0.29, DistWater: 0.13, DistRoad: 0.07}
	first, err := Combine(scores, w)
	require.NoError(t, err)
	for range 20 {
		again, err := Combine(scores, w)
		require.NoError(t, err)
		for i := range first.Data {
			assert.Equal(t, math.Float64bits(first.Data[i]), math.Float64bits(again.Data[i]))
		}
	}
}

func TestCombine_Misaligned(t *testing.T) {
	scores := allScores(t, 1)
	shifted, err := raster.NewGrid(30, 30, 30, 1, 1)
	require.NoError(t, err)
	scores[DistRoad] = raster.NewLayer("dist_road", raster.Categorical, shifted, 1)

	_, err = Combine(scores, DefaultWeights())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMisaligned))
}

func TestCombine_MissingLayer(t *testing.T) {
	scores := allScores(t, 1)
	delete(scores, LandCover)
	_, err := Combine(scores, DefaultWeights())
	assert.Error(t, err)
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{name: "defaults", weights: DefaultWeights()},
		{name: "do not need to sum to one", weights: Weights{Slope: 4, Roughness: 1, LandCover: 1, DistWater: 1, DistRoad: 1}},
		{name: "zero allowed", weights: Weights{Slope: 1, Roughness: 0, LandCover: 0, DistWater: 0, DistRoad: 0}},
		{name: "negative", weights: Weights{Slope: -0.1, Roughness: 1, LandCover: 1, DistWater: 1, DistRoad: 1}, wantErr: true},
		{name: "nan", weights: Weights{Slope: math.NaN(), Roughness: 1, LandCover: 1, DistWater: 1, DistRoad: 1}, wantErr: true},
		{name: "inf", weights: Weights{Slope: math.Inf(1), Roughness: 1, LandCover: 1, DistWater: 1, DistRoad: 1}, wantErr: true},
		{name: "missing", weights: Weights{Slope: 1, Roughness: 1, LandCover: 1, DistWater: 1}, wantErr: true},
		{name: "unknown", weights: Weights{Slope: 1, Roughness: 1, LandCover: 1, DistWater: 1, DistRoad: 1, "aspect": 1}, wantErr: true},
		{name: "all zero", weights: Weights{Slope: 0, Roughness: 0, LandCover: 0, DistWater: 0, DistRoad: 0}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidWeights))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCombine_RejectsWeightsBeforeComputing(t *testing.T) {
	_, err := Combine(nil, Weights{Slope: -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidWeights))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		s    float64
		want int
	}{
		{name: "zero", s: 0, want: ClassVeryLow},
		{name: "on 0.2", s: 0.2, want: ClassVeryLow},
		{name: "just above 0.2", s: 0.2000001, want: ClassLow},
		{name: "on 0.4", s: 0.4, want: ClassLow},
		{name: "0.48", s: 0.48, want: ClassModerate},
		{name: "on 0.6", s: 0.6, want: ClassModerate},
		{name: "0.7", s: 0.7, want: ClassHigh},
		{name: "on 0.8", s: 0.8, want: ClassHigh},
		{name: "0.81", s: 0.81, want: ClassVeryHigh},
		{name: "one", s: 1, want: ClassVeryHigh},
		{name: "just above 0.6", s: 0.1 + 0.2 + 0.3, want: ClassHigh},
		{name: "just above 0.4", s: 0.4 + 1e-10, want: ClassModerate},
		{name: "nodata", s: math.NaN(), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.s))
		})
	}
}

func TestSnapToBreak(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		want float64
	}{
		{name: "rounded above 0.6", v: 0.1 + 0.2 + 0.3, want: 0.6},
		{name: "rounded below 0.4", v: 0.4 - 1e-15, want: 0.4},
		{name: "off break", v: 0.41, want: 0.41},
		{name: "beyond tolerance", v: 0.2 + 1e-6, want: 0.2 + 1e-6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snapToBreak(tt.v))
		})
	}
}

func TestCombine_WeightedMeanOnBreakIsExact(t *testing.T) {
	// The weighted mean score is exactly 3, so the index sits on 0.6.
	scores := map[Predictor][]float64{
		Slope: {5}, Roughness: {2}, LandCover: {3}, DistWater: {1}, DistRoad: {1},
	}
	w := Weights{Slope: 0.1, Roughness: 0.2, LandCover: 0.3, DistWater: 0, DistRoad: 0}

	out, err := Combine(uniformScores(t, scores), w)
	require.NoError(t, err)
	assert.Equal(t, 0.6, out.Data[0])
	assert.Equal(t, ClassModerate, Classify(out.Data[0]))
}

func TestClassifyLayer(t *testing.T) {
	l, err := raster.FromValues("s", raster.Continuous, testGrid(t, 3), []float64{0.1, math.NaN(), 0.9})
	require.NoError(t, err)

	c, err := ClassifyLayer(l)
	require.NoError(t, err)
	assert.Equal(t, NameClass, c.Name)
	assert.Equal(t, 1.0, c.Data[0])
	assert.True(t, math.IsNaN(c.Data[1]))
	assert.Equal(t, 5.0, c.Data[2])
}

func TestClassLabel(t *testing.T) {
	assert.Equal(t, "very_low", ClassLabel(ClassVeryLow))
	assert.Equal(t, "moderate", ClassLabel(ClassModerate))
	assert.Equal(t, "very_high", ClassLabel(ClassVeryHigh))
	assert.Equal(t, "", ClassLabel(9))
}

func TestWeightsFromMap(t *testing.T) {
	assert.Nil(t, WeightsFromMap(nil))

	m := DefaultWeights().Map()
	assert.InDelta(t, 0.45, m["slope"], 1e-12)

	w := WeightsFromMap(m)
	require.NoError(t, w.Validate())
	assert.Equal(t, DefaultWeights(), w)

	bad := WeightsFromMap(map[string]float64{"slope": 1, "aspect": 1})
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidWeights)
	assert.Contains(t, err.Error(), `unknown predictor "aspect"`)
}
