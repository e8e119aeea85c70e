package backtest

import (
	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/internal/modules/strategy"
)

// Status is the lifecycle state of a run
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// EquityPoint is one sample of the equity curve
type EquityPoint struct {
	Date   string  `json:"date" msgpack:"date"`
	Equity float64 `json:"equity" msgpack:"equity"`
	Cash   float64 `json:"cash" msgpack:"cash"`
}

// State is the full mutable simulation state. Positions and sector counts
// are not stored; they are derived from the lot ledger.
type State struct {
	Status       Status                `msgpack:"status"`
	CurrentDate  string                `msgpack:"current_date"`
	Cash         float64               `msgpack:"cash"`
	Equity       float64               `msgpack:"equity"`
	DailyActions strategy.DailyActions `msgpack:"daily_actions"`
	Trades       []domain.Trade        `msgpack:"trades"`
	EquityCurve  []EquityPoint         `msgpack:"equity_curve"`
	RealizedPnL  float64               `msgpack:"realized_pnl"`

	TotalTrades   int `msgpack:"total_trades"`
	WinningTrades int `msgpack:"winning_trades"`
	LosingTrades  int `msgpack:"losing_trades"`

	PeakEquity         float64 `msgpack:"peak_equity"`
	MaxDrawdown        float64 `msgpack:"max_drawdown"`
	MaxDrawdownPercent float64 `msgpack:"max_drawdown_percent"`

	// LastPrices holds the latest close of every symbol seen so far, used to
	// mark positions on days a symbol has no bar
	LastPrices map[string]float64 `msgpack:"last_prices"`
	TradeSeq   int64              `msgpack:"trade_seq"`
	Error      string             `msgpack:"error"`
}

// StatusReport is the externally visible progress of a run
type StatusReport struct {
	ID          string  `json:"id"`
	Status      Status  `json:"status"`
	Progress    float64 `json:"progress"`
	CurrentDate string  `json:"currentDate"`
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	TotalTrades int     `json:"totalTrades"`
	Error       string  `json:"error,omitempty"`
}

// StepResult reports a step batch; Trades holds only the trades executed in it
type StepResult struct {
	Status      Status         `json:"status"`
	CurrentDate string         `json:"currentDate"`
	Equity      float64        `json:"equity"`
	Trades      []domain.Trade `json:"trades"`
	DaysStepped int            `json:"daysStepped"`
}

// Holding is the portfolio at a date
type Holding struct {
	Date      string            `json:"date"`
	Positions []domain.Position `json:"positions"`
}

// Metrics summarises a run
type Metrics struct {
	TotalReturn        float64 `json:"totalReturn"`
	TotalReturnPercent float64 `json:"totalReturnPercent"`
	AnnualizedReturn   float64 `json:"annualizedReturn"`
	MaxDrawdown        float64 `json:"maxDrawdown"`
	MaxDrawdownPercent float64 `json:"maxDrawdownPercent"`
	SharpeRatio        float64 `json:"sharpeRatio"`
	WinRate            float64 `json:"winRate"`
	AverageWin         float64 `json:"averageWin"`
	AverageLoss        float64 `json:"averageLoss"`
	ProfitFactor       float64 `json:"profitFactor"`
	TotalTrades        int     `json:"totalTrades"`
	BuyTrades          int     `json:"buyTrades"`
	SellTrades         int     `json:"sellTrades"`
	WinningTrades      int     `json:"winningTrades"`
	LosingTrades       int     `json:"losingTrades"`
	RealizedPnL        float64 `json:"realizedPnL"`
	FinalEquity        float64 `json:"finalEquity"`
	FinalCash          float64 `json:"finalCash"`
	TotalDays          int     `json:"totalDays"`
}

// Artifacts is the exportable result of a run
type Artifacts struct {
	Trades   []domain.Trade `json:"trades"`
	Equity   []EquityPoint  `json:"equity"`
	Holdings []Holding      `json:"holdings"`
	Metrics  Metrics        `json:"metrics"`
}
