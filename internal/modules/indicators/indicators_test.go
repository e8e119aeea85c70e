package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/etf-backtester/internal/domain"
)

func bar(symbol, date string, close float64) domain.Bar {
	return domain.Bar{Symbol: symbol, Date: date, Open: close, High: close, Low: close, Close: close, Sector: "Other"}
}

func TestCompute_GroupsAndSortsPerSymbol(t *testing.T) {
	// Deliberately unsorted and interleaved
	bars := []domain.Bar{
		bar("B", "2024-01-03", 30),
		bar("A", "2024-01-02", 11),
		bar("B", "2024-01-01", 10),
		bar("A", "2024-01-03", 12),
		bar("A", "2024-01-01", 10),
		bar("B", "2024-01-02", 20),
	}

	set := Compute(bars, 2)

	require.Len(t, set, 2)
	a := set["A"]
	require.Len(t, a, 3)
	assert.Equal(t, "2024-01-01", a[0].Date)
	assert.True(t, math.IsNaN(a[0].MovingAverage))
	assert.InDelta(t, 10.5, a[1].MovingAverage, 1e-9)
	assert.InDelta(t, 11.5, a[2].MovingAverage, 1e-9)

	b := set["B"]
	assert.InDelta(t, 15.0, b[1].MovingAverage, 1e-9)
	assert.InDelta(t, 25.0, b[2].MovingAverage, 1e-9)
	assert.InDelta(t, 20.0, b[2].PercentDeviation, 1e-9)
}

func TestForDate_SkipsUndefined(t *testing.T) {
	bars := []domain.Bar{
		bar("A", "2024-01-01", 10),
		bar("A", "2024-01-02", 12),
		bar("B", "2024-01-02", 50),
	}
	set := Compute(bars, 2)

	records := set.ForDate("2024-01-02")
	require.Len(t, records, 1)
	assert.Equal(t, "A", records[0].Symbol)

	assert.Empty(t, set.ForDate("2024-01-01"))
	assert.Empty(t, set.ForDate("2023-12-31"))
}

func TestRankByDeviation_AscendingAndStable(t *testing.T) {
	records := []Record{
		{Symbol: "A", PercentDeviation: 1.0, MovingAverage: 1},
		{Symbol: "B", PercentDeviation: -3.0, MovingAverage: 1},
		{Symbol: "C", PercentDeviation: math.NaN(), MovingAverage: 1},
		{Symbol: "D", PercentDeviation: 1.0, MovingAverage: 1},
		{Symbol: "E", PercentDeviation: -5.0, MovingAverage: 1},
	}

	ranked := RankByDeviation(records)

	symbols := make([]string, len(ranked))
	for i, r := range ranked {
		symbols[i] = r.Symbol
	}
	assert.Equal(t, []string{"E", "B", "A", "D"}, symbols)
}

func TestTopK(t *testing.T) {
	date := "2024-02-01"
	records := []Record{
		{Symbol: "A", Date: date, PercentDeviation: 2, MovingAverage: 10},
		{Symbol: "B", Date: date, PercentDeviation: -1, MovingAverage: 10},
		{Symbol: "C", Date: date, PercentDeviation: -4, MovingAverage: 10},
		{Symbol: "D", Date: "2024-02-02", PercentDeviation: -9, MovingAverage: 10},
		{Symbol: "E", Date: date, PercentDeviation: -8, MovingAverage: math.NaN()},
	}

	t.Run("truncates to k", func(t *testing.T) {
		top := TopK(records, date, 2)
		require.Len(t, top, 2)
		assert.Equal(t, "C", top[0].Symbol)
		assert.Equal(t, "B", top[1].Symbol)
	})

	t.Run("fewer eligible than k", func(t *testing.T) {
		assert.Len(t, TopK(records, date, 10), 3)
	})

	t.Run("non-positive k", func(t *testing.T) {
		assert.Empty(t, TopK(records, date, 0))
	})

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, TopK(records, date, 3), TopK(records, date, 3))
	})
}

func TestValidate(t *testing.T) {
	problems := Validate([]Record{
		{Symbol: "A", Date: "2024-01-01", MovingAverage: math.NaN(), PercentDeviation: math.NaN(), Close: 0},
		{Symbol: "B", Date: "2024-01-01", MovingAverage: 10, PercentDeviation: 1, Close: 10},
	})
	assert.Len(t, problems, 3)
}
