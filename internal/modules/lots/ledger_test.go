package lots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioALedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger("GOLDBEES", "Gold")
	_, err := l.AddLot(100, 50, "2024-01-01")
	require.NoError(t, err)
	_, err = l.AddLot(200, 55, "2024-01-02")
	require.NoError(t, err)
	_, err = l.AddLot(150, 52, "2024-01-03")
	require.NoError(t, err)
	return l
}

func TestSellLots_ScenarioA(t *testing.T) {
	l := scenarioALedger(t)

	result := l.SellLots(250, 60, "2024-01-04")

	require.Len(t, result.SoldLots, 2)
	assert.Equal(t, "2024-01-03", result.SoldLots[0].Lot.Date)
	assert.Equal(t, 150, result.SoldLots[0].Quantity)
	assert.InDelta(t, 1200.0, result.SoldLots[0].Profit, 1e-9)
	assert.Equal(t, "2024-01-02", result.SoldLots[1].Lot.Date)
	assert.Equal(t, 100, result.SoldLots[1].Quantity)
	assert.InDelta(t, 500.0, result.SoldLots[1].Profit, 1e-9)
	assert.Equal(t, 0, result.RemainingQuantity)
	assert.Equal(t, result.SoldLots[0].Lot.ID, result.LastConsumedLotID())

	remaining := l.Lots()
	require.Len(t, remaining, 2)
	assert.Equal(t, 100, remaining[0].Quantity)
	assert.Equal(t, 55.0, remaining[0].Price)
	assert.Equal(t, "2024-01-02", remaining[0].Date)
	assert.Equal(t, 100, remaining[1].Quantity)
	assert.Equal(t, 50.0, remaining[1].Price)
}

func TestSellLots_LIFOIgnoresInsertionOrder(t *testing.T) {
	l := NewLedger("A", "Other")
	_, err := l.AddLot(10, 30, "2024-03-01")
	require.NoError(t, err)
	_, err = l.AddLot(10, 10, "2024-01-01")
	require.NoError(t, err)
	_, err = l.AddLot(10, 20, "2024-02-01")
	require.NoError(t, err)

	result := l.SellLots(5, 40, "2024-03-02")

	require.Len(t, result.SoldLots, 1)
	assert.Equal(t, 30.0, result.SoldLots[0].Lot.Price)
}

func TestSellLots_SameDateNewestFirst(t *testing.T) {
	l := NewLedger("A", "Other")
	_, err := l.AddLot(10, 10, "2024-01-01")
	require.NoError(t, err)
	second, err := l.AddLot(10, 11, "2024-01-01")
	require.NoError(t, err)

	result := l.SellLots(10, 12, "2024-01-02")

	require.Len(t, result.SoldLots, 1)
	assert.Equal(t, second.ID, result.SoldLots[0].Lot.ID)
}

func TestSellLots_LIFOOrderProperty(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 14}
	dates := []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}

	for qty := 1; qty <= 7; qty++ {
		l := NewLedger("A", "Other")
		for i := range prices {
			_, err := l.AddLot(7, prices[i], dates[i])
			require.NoError(t, err)
		}

		result := l.SellLots(qty, 20, "2024-01-06")

		require.Len(t, result.SoldLots, 1, "qty %d", qty)
		assert.Equal(t, 14.0, result.SoldLots[0].Lot.Price)
		assert.Equal(t, 7*5-qty, l.Quantity())
	}
}

func TestSellLots_Insufficient(t *testing.T) {
	l := NewLedger("A", "Other")
	_, err := l.AddLot(10, 10, "2024-01-01")
	require.NoError(t, err)

	result := l.SellLots(25, 12, "2024-01-02")

	assert.Equal(t, 10, result.SoldQuantity())
	assert.Equal(t, 15, result.RemainingQuantity)
	assert.Equal(t, 0, l.Quantity())
}

func TestSellLots_NonPositiveIsNoop(t *testing.T) {
	l := scenarioALedger(t)
	result := l.SellLots(0, 60, "2024-01-04")
	assert.Empty(t, result.SoldLots)
	assert.Equal(t, 450, l.Quantity())
}

func TestConservation(t *testing.T) {
	l := NewLedger("A", "Other")
	ops := []struct {
		buy  int
		sell int
	}{
		{buy: 10}, {buy: 25}, {sell: 12}, {buy: 3}, {sell: 30}, {sell: 10}, {buy: 8}, {sell: 1},
	}

	bought, sold := 0, 0
	for i, op := range ops {
		date := []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"}[i%4]
		if op.buy > 0 {
			_, err := l.AddLot(op.buy, 10+float64(i), date)
			require.NoError(t, err)
			bought += op.buy
			continue
		}
		result := l.SellLots(op.sell, 15, date)
		sold += result.SoldQuantity()

		assert.Equal(t, bought-sold, l.Quantity())
		assert.GreaterOrEqual(t, l.Quantity(), 0)
		for _, lot := range l.Lots() {
			assert.Greater(t, lot.Quantity, 0)
		}
	}
}

func TestAddLot_Rejects(t *testing.T) {
	l := NewLedger("A", "Other")
	_, err := l.AddLot(0, 10, "2024-01-01")
	assert.Error(t, err)
	_, err = l.AddLot(10, 0, "2024-01-01")
	assert.Error(t, err)
}

func TestAddLot_UniqueIDs(t *testing.T) {
	l := NewLedger("A", "Other")
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		lot, err := l.AddLot(1, 10, "2024-01-01")
		require.NoError(t, err)
		assert.False(t, seen[lot.ID])
		seen[lot.ID] = true
	}
}

func TestPosition(t *testing.T) {
	l := NewLedger("A", "Gold")
	_, err := l.AddLot(100, 50, "2024-01-01")
	require.NoError(t, err)
	_, err = l.AddLot(100, 60, "2024-01-02")
	require.NoError(t, err)

	pos := l.Position(66)

	assert.Equal(t, 200, pos.TotalQuantity)
	assert.Equal(t, 11000.0, pos.TotalCost)
	assert.Equal(t, 55.0, pos.AveragePrice)
	assert.Equal(t, 13200.0, pos.MarketValue)
	assert.InDelta(t, 2200.0, pos.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 20.0, pos.UnrealizedPnLPercent, 1e-9)

	empty := NewLedger("B", "Gold").Position(10)
	assert.Equal(t, 0.0, empty.AveragePrice)
	assert.Equal(t, 0.0, empty.UnrealizedPnLPercent)
}

func TestEligibleLotsForSelling_SortedByAbsoluteProfit(t *testing.T) {
	l := NewLedger("A", "Other")
	_, err := l.AddLot(10, 50, "2024-01-01")   // +20%, profit 100
	require.NoError(t, err)
	_, err = l.AddLot(1000, 57, "2024-01-02") // ~5.26%, profit 3000
	require.NoError(t, err)
	_, err = l.AddLot(100, 61, "2024-01-03") // below target
	require.NoError(t, err)

	eligible := l.EligibleLotsForSelling(60, 5)

	require.Len(t, eligible, 2)
	assert.Equal(t, 57.0, eligible[0].Lot.Price)
	assert.InDelta(t, 3000.0, eligible[0].Profit, 1e-9)
	assert.Equal(t, 50.0, eligible[1].Lot.Price)
	assert.InDelta(t, 20.0, eligible[1].ProfitPercent, 1e-9)
}

func TestIsEligibleForAveraging_ScenarioC(t *testing.T) {
	l := NewLedger("A", "Other")
	_, err := l.AddLot(10, 70, "2024-01-01")
	require.NoError(t, err)
	_, err = l.AddLot(10, 55, "2024-01-02")
	require.NoError(t, err)

	fall, ok := l.FallPercent(45)
	require.True(t, ok)
	assert.InDelta(t, 18.18, fall, 0.01)
	assert.True(t, l.IsEligibleForAveraging(45, 10))

	fall, _ = l.FallPercent(50)
	assert.InDelta(t, 9.09, fall, 0.01)
	assert.False(t, l.IsEligibleForAveraging(50, 10))
}

func TestIsEligibleForAveraging_EmptyLedger(t *testing.T) {
	assert.False(t, NewLedger("A", "Other").IsEligibleForAveraging(1, 0))
}
