package projection

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfin/planner/internal/clientdata"
)

const testSchema = `
CREATE TABLE prices (isin TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE technical_snapshots (isin TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
`

func newTestRepo(t *testing.T) *clientdata.Repository {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return clientdata.NewRepository(db)
}

func closingSeries(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestComputeTechnicalSnapshot_ReturnsSMAAndRSI(t *testing.T) {
	closes := closingSeries(30, 100, 0.5)
	snap := ComputeTechnicalSnapshot("VTI", closes, 10, 14)

	require.NotNil(t, snap.SMA)
	require.NotNil(t, snap.RSI)
	assert.InDelta(t, 100, *snap.RSI, 50)
}

func TestComputeTechnicalSnapshot_TooShortSeriesReturnsNilFields(t *testing.T) {
	snap := ComputeTechnicalSnapshot("VTI", []float64{100, 101}, 10, 14)
	assert.Nil(t, snap.SMA)
	assert.Nil(t, snap.RSI)
}

func TestCacheSnapshot_ThenFreshSnapshot_RoundTrips(t *testing.T) {
	repo := newTestRepo(t)
	sma := 101.2
	snap := TechnicalSnapshot{Symbol: "VTI", SMA: &sma}

	require.NoError(t, CacheSnapshot(repo, snap))

	got, ok := FreshSnapshot(repo, "VTI")
	require.True(t, ok)
	require.NotNil(t, got.SMA)
	assert.Equal(t, 101.2, *got.SMA)
}

func TestFreshSnapshot_MissingReturnsFalse(t *testing.T) {
	repo := newTestRepo(t)
	_, ok := FreshSnapshot(repo, "NONE")
	assert.False(t, ok)
}

func TestReturnsFromPrices(t *testing.T) {
	returns := ReturnsFromPrices([]float64{100, 110, 99})
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)
}

func TestReturnsFromPrices_TooShortReturnsNil(t *testing.T) {
	assert.Nil(t, ReturnsFromPrices([]float64{100}))
}

func TestEstimateFromDailyReturns_WeightsBySymbol(t *testing.T) {
	returns := map[string][]float64{
		"VTI": {0.001, 0.002, -0.001},
		"BND": {0.0001, 0.0002, -0.0001},
	}
	weights := map[string]float64{"VTI": 0.6, "BND": 0.4}

	est := EstimateFromDailyReturns(returns, weights)
	assert.Greater(t, est.ExpectedAnnualReturn, 0.0)
	assert.GreaterOrEqual(t, est.AnnualVolatility, 0.0)
}

func TestEstimateFromDailyReturns_EmptyInputReturnsZeroEstimate(t *testing.T) {
	est := EstimateFromDailyReturns(nil, nil)
	assert.Equal(t, Estimate{}, est)
}
