package backtest

import (
	"math"

	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/pkg/formulas"
)

// ComputeMetrics summarises state. Day counts run from the start date to the
// current simulation date (capped at the end date), so partial runs report
// figures for the span actually simulated.
func ComputeMetrics(params Params, state State) Metrics {
	m := Metrics{
		MaxDrawdown:        state.MaxDrawdown,
		MaxDrawdownPercent: state.MaxDrawdownPercent,
		TotalTrades:        state.TotalTrades,
		WinningTrades:      state.WinningTrades,
		LosingTrades:       state.LosingTrades,
		RealizedPnL:        state.RealizedPnL,
		FinalEquity:        state.Equity,
		FinalCash:          state.Cash,
	}

	initial := params.InitialCapital
	m.TotalReturn = state.Equity - initial
	if initial > 0 {
		m.TotalReturnPercent = m.TotalReturn / initial * 100
	}

	end := state.CurrentDate
	if end == "" || end > params.EndDate {
		end = params.EndDate
	}
	if days, err := domain.DaysBetween(params.StartDate, end); err == nil && days > 0 {
		m.TotalDays = days
		if annual, ok := formulas.AnnualizedReturn(m.TotalReturnPercent/100, float64(days)); ok {
			m.AnnualizedReturn = annual * 100
		}
	}

	equity := make([]float64, len(state.EquityCurve))
	for i, point := range state.EquityCurve {
		equity[i] = point.Equity
	}
	if sharpe := formulas.SharpeRatio(formulas.CalculateReturns(equity)); !math.IsNaN(sharpe) {
		m.SharpeRatio = sharpe
	}

	var wins, losses []float64
	for _, trade := range state.Trades {
		switch trade.Action {
		case domain.ActionBuy:
			m.BuyTrades++
		case domain.ActionSell:
			m.SellTrades++
			if trade.RealizedPnL > 0 {
				wins = append(wins, trade.RealizedPnL)
			} else {
				losses = append(losses, -trade.RealizedPnL)
			}
		}
	}

	if m.SellTrades > 0 {
		m.WinRate = float64(len(wins)) / float64(m.SellTrades) * 100
	}
	if len(wins) > 0 {
		m.AverageWin = formulas.Mean(wins)
	}
	if len(losses) > 0 {
		m.AverageLoss = formulas.Mean(losses)
	}
	// Zero when there are no losing sells
	if grossLoss := formulas.Sum(losses); grossLoss > 0 {
		m.ProfitFactor = formulas.Sum(wins) / grossLoss
	}

	return m
}
