package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/etf-backtester/internal/domain"
)

func TestComputeMetrics(t *testing.T) {
	p := testParams("2024-01-01", "2024-12-31")
	p.InitialCapital = 100000

	state := State{
		CurrentDate: "2024-12-31",
		Equity:      110000,
		Cash:        50000,
		Trades: []domain.Trade{
			{Action: domain.ActionBuy},
			{Action: domain.ActionBuy},
			{Action: domain.ActionSell, RealizedPnL: 300},
			{Action: domain.ActionSell, RealizedPnL: 100},
			{Action: domain.ActionSell, RealizedPnL: -200},
			{Action: domain.ActionSell, RealizedPnL: 0},
		},
		TotalTrades:        6,
		WinningTrades:      2,
		LosingTrades:       2,
		MaxDrawdown:        5000,
		MaxDrawdownPercent: 4.5,
		EquityCurve: []EquityPoint{
			{Equity: 100000}, {Equity: 101000}, {Equity: 100500}, {Equity: 110000},
		},
	}

	m := ComputeMetrics(p, state)

	assert.Equal(t, 10000.0, m.TotalReturn)
	assert.Equal(t, 10.0, m.TotalReturnPercent)
	assert.Equal(t, 365, m.TotalDays)
	assert.InDelta(t, 10.0, m.AnnualizedReturn, 0.05)
	assert.Equal(t, 2, m.BuyTrades)
	assert.Equal(t, 4, m.SellTrades)
	assert.Equal(t, 50.0, m.WinRate)
	assert.Equal(t, 200.0, m.AverageWin)
	assert.Equal(t, 100.0, m.AverageLoss, "zero P&L counts as a loss")
	assert.Equal(t, 2.0, m.ProfitFactor)
	assert.Equal(t, 5000.0, m.MaxDrawdown)
	assert.Equal(t, 4.5, m.MaxDrawdownPercent)
	assert.Greater(t, m.SharpeRatio, 0.0)
	assert.Equal(t, 110000.0, m.FinalEquity)
	assert.Equal(t, 50000.0, m.FinalCash)
}

func TestComputeMetrics_Empty(t *testing.T) {
	p := testParams("2024-01-01", "2024-01-31")
	state := State{CurrentDate: "2024-01-01", Equity: p.InitialCapital, Cash: p.InitialCapital}

	m := ComputeMetrics(p, state)
	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.AnnualizedReturn)
	assert.Zero(t, m.TotalDays)
	assert.Zero(t, m.SharpeRatio)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.ProfitFactor)
}

func TestComputeMetrics_NoLossesHasZeroProfitFactor(t *testing.T) {
	p := testParams("2024-01-01", "2024-01-31")
	state := State{
		CurrentDate: "2024-01-31",
		Equity:      p.InitialCapital + 50,
		Trades:      []domain.Trade{{Action: domain.ActionSell, RealizedPnL: 50}},
	}

	m := ComputeMetrics(p, state)
	assert.Equal(t, 100.0, m.WinRate)
	assert.Zero(t, m.ProfitFactor)
	assert.Zero(t, m.AverageLoss)
}
