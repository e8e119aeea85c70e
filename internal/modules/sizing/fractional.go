package sizing

import "github.com/aristath/etf-backtester/internal/domain"

// FixedFractional invests a fixed fraction of equity per trade. Stateless.
type FixedFractional struct {
	fraction       float64
	maxTradeCap    float64
	minTradeAmount float64
}

// NewFixedFractional creates a fixed fractional strategy; the fraction is clamped to [1%, 5%]
func NewFixedFractional(cfg Config) *FixedFractional {
	cfg = cfg.WithDefaults()
	return &FixedFractional{
		fraction:       clamp(cfg.Fractional.Fraction, MinFraction, MaxFraction),
		maxTradeCap:    cfg.Fractional.MaxTradeCap,
		minTradeAmount: cfg.MinTradeAmount,
	}
}

func (f *FixedFractional) sealed() {}

// Mode implements Strategy
func (f *FixedFractional) Mode() CompoundingMode { return ModeFixedFractional }

// Fraction returns the effective fraction after clamping
func (f *FixedFractional) Fraction() float64 { return f.fraction }

// Size implements Strategy
func (f *FixedFractional) Size(_ string, _, availableCash, equity float64) float64 {
	return applyCaps(equity*f.fraction, f.maxTradeCap, availableCash, f.minTradeAmount)
}

// OnTradeSettled implements Strategy
func (f *FixedFractional) OnTradeSettled(domain.Trade, float64, float64) {}

// ObserveEquity implements Strategy
func (f *FixedFractional) ObserveEquity(float64) {}

// AvailableCapital implements Strategy
func (f *FixedFractional) AvailableCapital(equity float64) float64 { return equity }

// State implements Strategy
func (f *FixedFractional) State() State { return State{Mode: ModeFixedFractional} }

// Restore implements Strategy
func (f *FixedFractional) Restore(s State) error {
	return checkMode(s, ModeFixedFractional)
}
