// Package strategy implements the daily decision cycle: a sell phase that
// takes profits and a buy phase that opens, diversifies or averages down.
package strategy

import (
	"fmt"

	"github.com/aristath/etf-backtester/internal/domain"
)

// ReasonCategory classifies a decision for audit and reporting
type ReasonCategory string

const (
	ReasonSellProfitTarget        ReasonCategory = "SELL_PROFIT_TARGET"
	ReasonBuyNewSymbol            ReasonCategory = "BUY_NEW_SYMBOL"
	ReasonBuyDiversification      ReasonCategory = "BUY_DIVERSIFICATION"
	ReasonBuyAveragingDown        ReasonCategory = "BUY_AVERAGING_DOWN"
	ReasonHoldNoOpportunity       ReasonCategory = "HOLD_NO_OPPORTUNITY"
	ReasonHoldNoSell              ReasonCategory = "HOLD_NO_SELL"
	ReasonHoldInsufficientCapital ReasonCategory = "HOLD_INSUFFICIENT_CAPITAL"
	ReasonHoldZeroQuantity        ReasonCategory = "HOLD_ZERO_QUANTITY"
	ReasonHoldDailyLimit          ReasonCategory = "HOLD_DAILY_LIMIT"
	ReasonHoldNoData              ReasonCategory = "HOLD_NO_DATA"
)

// Decision is the outcome of one phase of the daily cycle
type Decision struct {
	Action   domain.TradeAction `json:"action"`
	Symbol   string             `json:"symbol,omitempty"`
	Sector   string             `json:"sector,omitempty"`
	Quantity int                `json:"quantity,omitempty"`
	Price    float64            `json:"price,omitempty"`
	Reason   string             `json:"reason"`
	Category ReasonCategory     `json:"category"`
	// LotID is the lot the sell targets
	LotID string `json:"lotId,omitempty"`
}

// Amount returns quantity * price
func (d Decision) Amount() float64 {
	return float64(d.Quantity) * d.Price
}

// IsTrade reports whether the decision executes a BUY or SELL
func (d Decision) IsTrade() bool {
	return d.Action == domain.ActionBuy || d.Action == domain.ActionSell
}

func hold(category ReasonCategory, format string, args ...interface{}) Decision {
	return Decision{
		Action:   domain.ActionHold,
		Reason:   fmt.Sprintf(format, args...),
		Category: category,
	}
}

// ValidateDecision checks that a trade decision can be executed with the
// available cash. HOLD decisions are always valid.
func ValidateDecision(d Decision, availableCash float64) error {
	if !d.IsTrade() {
		return nil
	}
	var errs domain.ValidationErrors
	if d.Symbol == "" {
		errs = append(errs, domain.ValidationError{Field: "symbol", Message: "required for BUY/SELL"})
	}
	if d.Quantity <= 0 {
		errs = append(errs, domain.ValidationError{Field: "quantity", Message: "must be positive"})
	}
	if d.Price <= 0 {
		errs = append(errs, domain.ValidationError{Field: "price", Message: "must be positive"})
	}
	if d.Action == domain.ActionBuy && d.Amount() > availableCash {
		errs = append(errs, domain.ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("%.2f exceeds available cash %.2f", d.Amount(), availableCash),
		})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
