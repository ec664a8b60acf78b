package zonal

import (
	"math"
	"math/rand"
	"testing"

	mstats "github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorMatchesReferenceStats(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 5000)
	for i := range values {
		values[i] = rng.Float64()*10000 + 1e6
	}

	var acc accumulator
	for _, v := range values {
		acc.add(v, 1, 2)
	}
	res := acc.result()
	require.NotNil(t, res.RasterMean)

	wantMean, err := mstats.Mean(values)
	require.NoError(t, err)
	wantStd, err := mstats.StandardDeviationPopulation(values)
	require.NoError(t, err)
	wantMin, _ := mstats.Min(values)
	wantMax, _ := mstats.Max(values)
	wantSum, _ := mstats.Sum(values)

	assert.InEpsilon(t, wantMean, *res.RasterMean, 1e-12)
	assert.InEpsilon(t, wantStd, *res.RasterStdDev, 1e-9)
	assert.Equal(t, wantMin, *res.RasterMin)
	assert.Equal(t, wantMax, *res.RasterMax)
	assert.InEpsilon(t, wantSum, *res.RasterSum, 1e-12)
	assert.InEpsilon(t, 10000.0, *res.AreaSum, 1e-12)
}

func TestAccumulatorWeights(t *testing.T) {
	var acc accumulator
	acc.add(10, 1, 1)
	acc.add(20, 0.25, 0.25)
	acc.add(99, 0, 0)

	res := acc.result()
	// weighted mean (10*1 + 20*0.25) / 1.25
	assert.InDelta(t, 12, *res.RasterMean, 1e-12)
	// weighted variance (1*4 + 0.25*64) / 1.25
	assert.InDelta(t, math.Sqrt(16), *res.RasterStdDev, 1e-12)
	assert.Equal(t, 20.0, *res.RasterMax, "zero-weight pixels are ignored")
	assert.InDelta(t, 15, *res.RasterSum, 1e-12)
	assert.InDelta(t, 1.25, *res.AreaSum, 1e-12)
}

func TestAccumulatorEmpty(t *testing.T) {
	var acc accumulator
	assert.True(t, acc.result().Empty())
}

func TestAccumulatorSingleValue(t *testing.T) {
	var acc accumulator
	acc.add(7, 0.3, 1)
	res := acc.result()
	assert.Equal(t, 7.0, *res.RasterMean)
	assert.Equal(t, 0.0, *res.RasterStdDev)
}
