package gauge_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platemark/platemark/pkg/gauge"
)

func TestInferNoValidRange(t *testing.T) {
	samples := []gauge.Sample{
		{Distance: 0.3, Area: 100},
		{Distance: 40.0, Area: 900},
		{Distance: 0.59, Area: 50},
		{Distance: 25.01, Area: 50},
	}

	est := gauge.Infer(samples)
	assert.False(t, est.Valid)
	assert.Equal(t, gauge.MethodNone, est.Method)
	assert.Zero(t, est.Count)
	assert.Contains(t, est.Rationale, "no distance in valid range")
}

func TestInferEmptyInput(t *testing.T) {
	est := gauge.Infer(nil)
	assert.False(t, est.Valid)
	assert.Equal(t, gauge.MethodNone, est.Method)
}

func TestInferRangeBoundsInclusive(t *testing.T) {
	est := gauge.Infer([]gauge.Sample{
		{Distance: 0.6, Area: 10},
		{Distance: 25.0, Area: 10},
	})
	assert.True(t, est.Valid)
}

func TestInferAreaDominant(t *testing.T) {
	// The cluster at 2.00 carries four times the area of its neighbours and
	// sits within 1.4x of the thinnest gap, so the area vote wins.
	samples := []gauge.Sample{
		{Distance: 1.98, Area: 100},
		{Distance: 2.01, Area: 100},
		{Distance: 2.00, Area: 400},
	}

	est := gauge.Infer(samples)
	require.True(t, est.Valid)
	assert.InDelta(t, 2.00, est.Value, 1e-9)
	assert.Equal(t, gauge.MethodAreaDominant, est.Method)
	assert.Equal(t, 1, est.Count)
}

func TestInferMinBelowMode(t *testing.T) {
	// Thin part: the single 1.0 mm wall gap must beat the hole-pattern mode
	// at 2.5 mm even though the mode carries more area and more votes.
	samples := []gauge.Sample{
		{Distance: 1.0, Area: 20},
		{Distance: 2.5, Area: 300},
		{Distance: 2.5, Area: 300},
		{Distance: 2.5, Area: 300},
	}

	est := gauge.Infer(samples)
	require.True(t, est.Valid)
	assert.InDelta(t, 1.0, est.Value, 1e-9)
	assert.Equal(t, gauge.MethodMinBelowMode, est.Method)
	assert.Equal(t, 1, est.Count)
}

func TestInferModeStrong(t *testing.T) {
	// Mode frequency 0.6 and the area-dominant cluster is the mode itself.
	samples := []gauge.Sample{
		{Distance: 2.0, Area: 10},
		{Distance: 3.0, Area: 200},
		{Distance: 3.0, Area: 150},
		{Distance: 3.0, Area: 150},
		{Distance: 4.0, Area: 20},
	}

	est := gauge.Infer(samples)
	require.True(t, est.Valid)
	assert.InDelta(t, 3.0, est.Value, 1e-9)
	assert.Equal(t, gauge.MethodModeStrong, est.Method)
	assert.Equal(t, 3, est.Count)
}

func TestInferHighestConfidence(t *testing.T) {
	// Rules 1-3 all fail: the area-dominant 3.5 mm cluster is far from the
	// thinnest gap, the part is not thin, and mode and area disagree. The
	// blended score then favours the frequent cluster at the minimum.
	samples := []gauge.Sample{
		{Distance: 2.0, Area: 10},
		{Distance: 2.0, Area: 10},
		{Distance: 2.0, Area: 10},
		{Distance: 3.5, Area: 50},
		{Distance: 3.5, Area: 50},
	}

	est := gauge.Infer(samples)
	require.True(t, est.Valid)
	assert.InDelta(t, 2.0, est.Value, 1e-9)
	assert.Equal(t, gauge.MethodConfidence, est.Method)
	assert.Equal(t, 3, est.Count)
}

func TestInferClusteringRoundsToTwoDecimals(t *testing.T) {
	// 2.001 and 2.004 land in the 2.00 cluster; 2.006 lands in 2.01.
	samples := []gauge.Sample{
		{Distance: 2.001, Area: 100},
		{Distance: 2.004, Area: 100},
		{Distance: 2.006, Area: 10},
	}

	est := gauge.Infer(samples)
	require.True(t, est.Valid)
	assert.InDelta(t, 2.00, est.Value, 1e-9)
	assert.Equal(t, 2, est.Count)
}

func TestInferOrderIndependent(t *testing.T) {
	samples := []gauge.Sample{
		{Distance: 1.98, Area: 100},
		{Distance: 2.01, Area: 100},
		{Distance: 2.00, Area: 400},
		{Distance: 2.00, Area: 30},
		{Distance: 5.75, Area: 900},
		{Distance: 0.3, Area: 5000},
		{Distance: 12.5, Area: 60},
	}

	want := gauge.Infer(samples)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := make([]gauge.Sample, len(samples))
		copy(shuffled, samples)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, gauge.Infer(shuffled))
	}
}

func TestInferTieBreaksToSmallest(t *testing.T) {
	// Two clusters with identical counts and identical areas inside the
	// area-dominant window: the smaller value must win, every time.
	samples := []gauge.Sample{
		{Distance: 2.0, Area: 100},
		{Distance: 2.2, Area: 100},
	}

	for i := 0; i < 10; i++ {
		est := gauge.Infer(samples)
		require.True(t, est.Valid)
		assert.InDelta(t, 2.0, est.Value, 1e-9)
	}
}

func TestDefaultParams(t *testing.T) {
	p := gauge.DefaultParams()
	assert.InDelta(t, 0.6, p.MinThickness, 1e-9)
	assert.InDelta(t, 25.0, p.MaxThickness, 1e-9)
	assert.InDelta(t, 1.0, p.FrequencyWeight+p.AreaWeight+p.ClosenessWeight, 1e-9)
	require.NoError(t, p.Validate())
}

func TestParamsValidate(t *testing.T) {
	p := gauge.DefaultParams()
	p.MaxThickness = 0.1
	assert.Error(t, p.Validate())

	p = gauge.DefaultParams()
	p.AreaWeight = -0.3
	assert.Error(t, p.Validate())
}

func TestLoadParams(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gauge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_thickness: 0.5\nmax_thickness: 30.0\n"), 0o644))

	p, err := gauge.LoadParams(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.MinThickness, 1e-9)
	assert.InDelta(t, 30.0, p.MaxThickness, 1e-9)
	// Untouched fields keep their defaults.
	assert.InDelta(t, 0.4, p.FrequencyWeight, 1e-9)

	_, err = gauge.LoadParams(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
