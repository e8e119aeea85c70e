package sizing

import (
	"fmt"
	"math"

	"github.com/aristath/etf-backtester/internal/domain"
)

// Strategy is a position sizing algorithm. The implementations in this
// package are the only ones; callers switch on Mode when they need to.
type Strategy interface {
	// Mode identifies the variant
	Mode() CompoundingMode
	// Size returns the amount to invest in symbol, or 0 when no capital
	// satisfies the minimum trade amount
	Size(symbol string, price, availableCash, equity float64) float64
	// OnTradeSettled lets the strategy learn from an executed trade
	OnTradeSettled(trade domain.Trade, availableCash, equity float64)
	// ObserveEquity is called once per simulated trading day with closing equity
	ObserveEquity(equity float64)
	// AvailableCapital returns the capital the strategy would still deploy
	AvailableCapital(equity float64) float64
	// State exports the internal state for persistence
	State() State
	// Restore replaces the internal state with a persisted one
	Restore(State) error

	sealed()
}

// ChunkState is one capital slice of the chunk progression strategy
type ChunkState struct {
	ID             int     `json:"id" msgpack:"id"`
	Capital        float64 `json:"capital" msgpack:"capital"`
	IsActive       bool    `json:"isActive" msgpack:"is_active"`
	CurrentLevel   int     `json:"currentLevel" msgpack:"current_level"`
	LastEquityHigh float64 `json:"lastEquityHigh" msgpack:"last_equity_high"`
}

// State is the persisted form of a strategy's memory
type State struct {
	Mode         CompoundingMode  `json:"mode" msgpack:"mode"`
	Chunks       []ChunkState     `json:"chunks,omitempty" msgpack:"chunks,omitempty"`
	ChunkIndex   int              `json:"chunkIndex,omitempty" msgpack:"chunk_index,omitempty"`
	EquityHigh   float64          `json:"equityHigh,omitempty" msgpack:"equity_high,omitempty"`
	SymbolChunks map[string][]int `json:"symbolChunks,omitempty" msgpack:"symbol_chunks,omitempty"`
	Outcomes     []float64        `json:"outcomes,omitempty" msgpack:"outcomes,omitempty"`
}

// New creates the strategy selected by cfg.CompoundingMode
func New(cfg Config) (Strategy, error) {
	cfg = cfg.WithDefaults()
	switch cfg.CompoundingMode {
	case ModeFixedFractional:
		return NewFixedFractional(cfg), nil
	case ModeKellyFractional:
		return NewKelly(cfg), nil
	case ModeChunkProgression:
		return NewChunkProgression(cfg), nil
	default:
		return nil, fmt.Errorf("unknown compounding mode %q", cfg.CompoundingMode)
	}
}

// Quantity returns the whole units amount buys at price
func Quantity(amount, price float64) int {
	if price <= 0 || amount <= 0 {
		return 0
	}
	return int(math.Floor(amount / price))
}

// applyCaps bounds amount by the trade ceiling and cash and zeroes anything
// below the minimum trade amount
func applyCaps(amount, maxTradeCap, availableCash, minTrade float64) float64 {
	amount = math.Min(amount, maxTradeCap)
	amount = math.Min(amount, availableCash)
	if math.IsNaN(amount) || amount < minTrade {
		return 0
	}
	return amount
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
