package sizing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/etf-backtester/internal/domain"
)

// Kelly sizes trades with a half-Kelly fraction estimated from a rolling
// window of realized trade outcomes.
type Kelly struct {
	lookback       int
	maxFraction    float64
	maxTradeCap    float64
	minTradeAmount float64
	outcomes       []float64
}

// NewKelly creates a Kelly-derived strategy with an empty outcome history
func NewKelly(cfg Config) *Kelly {
	cfg = cfg.WithDefaults()
	return &Kelly{
		lookback:       cfg.Kelly.LookbackPeriod,
		maxFraction:    cfg.Kelly.MaxFraction,
		maxTradeCap:    cfg.Fractional.MaxTradeCap,
		minTradeAmount: cfg.MinTradeAmount,
	}
}

func (k *Kelly) sealed() {}

// Mode implements Strategy
func (k *Kelly) Mode() CompoundingMode { return ModeKellyFractional }

// Record appends a realized P&L outcome, keeping only the lookback window
func (k *Kelly) Record(pnl float64) {
	k.outcomes = append(k.outcomes, pnl)
	if len(k.outcomes) > k.lookback {
		k.outcomes = k.outcomes[len(k.outcomes)-k.lookback:]
	}
}

// Outcomes returns a copy of the recorded outcomes
func (k *Kelly) Outcomes() []float64 {
	return append([]float64(nil), k.outcomes...)
}

// Fraction returns the half-Kelly fraction, always within [0, maxFraction].
// A conservative default is used until enough wins and losses are recorded.
func (k *Kelly) Fraction() float64 {
	fallback := clamp(kellyDefaultFraction, 0, k.maxFraction)
	if len(k.outcomes) < kellyMinHistory {
		return fallback
	}

	var wins, losses []float64
	for _, pnl := range k.outcomes {
		switch {
		case pnl > 0:
			wins = append(wins, pnl)
		case pnl < 0:
			losses = append(losses, -pnl)
		}
	}
	if len(wins) == 0 || len(losses) == 0 {
		return fallback
	}

	winRate := float64(len(wins)) / float64(len(k.outcomes))
	avgWin := stat.Mean(wins, nil)
	avgLoss := stat.Mean(losses, nil)
	if avgLoss == 0 || avgWin == 0 {
		return fallback
	}

	kelly := winRate - (1-winRate)/(avgWin/avgLoss)
	safe := kelly * kellyMultiplier
	if math.IsNaN(safe) {
		return 0
	}
	return clamp(safe, 0, k.maxFraction)
}

// Size implements Strategy
func (k *Kelly) Size(_ string, _, availableCash, equity float64) float64 {
	return applyCaps(equity*k.Fraction(), k.maxTradeCap, availableCash, k.minTradeAmount)
}

// OnTradeSettled records the realized P&L of sells
func (k *Kelly) OnTradeSettled(trade domain.Trade, _, _ float64) {
	if trade.IsSell() {
		k.Record(trade.RealizedPnL)
	}
}

// ObserveEquity implements Strategy
func (k *Kelly) ObserveEquity(float64) {}

// AvailableCapital implements Strategy
func (k *Kelly) AvailableCapital(equity float64) float64 { return equity }

// State implements Strategy
func (k *Kelly) State() State {
	return State{Mode: ModeKellyFractional, Outcomes: k.Outcomes()}
}

// Restore implements Strategy
func (k *Kelly) Restore(s State) error {
	if err := checkMode(s, ModeKellyFractional); err != nil {
		return err
	}
	k.outcomes = nil
	for _, pnl := range s.Outcomes {
		k.Record(pnl)
	}
	return nil
}

func checkMode(s State, want CompoundingMode) error {
	if s.Mode != "" && s.Mode != want {
		return fmt.Errorf("cannot restore %s state into %s strategy", s.Mode, want)
	}
	return nil
}
