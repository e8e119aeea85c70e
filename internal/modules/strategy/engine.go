package strategy

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/internal/modules/indicators"
	"github.com/aristath/etf-backtester/internal/modules/lots"
	"github.com/aristath/etf-backtester/internal/modules/sizing"
)

// Rules are the strategy thresholds taken from the backtest parameters
type Rules struct {
	ProfitTarget       float64
	AveragingThreshold float64
	MaxETFsPerSector   int
	TopK               int
}

// Day is the market view for one simulated trading day
type Day struct {
	Date string
	// Prices holds the execution price of every symbol trading today
	Prices map[string]float64
	// Ranked is today's top-K, most fallen first
	Ranked []indicators.Record
	// Sectors maps every known symbol to its sector
	Sectors map[string]string
}

// DailyActions tracks which phases already traded today
type DailyActions struct {
	HasBought bool `json:"hasBought" msgpack:"has_bought"`
	HasSold   bool `json:"hasSold" msgpack:"has_sold"`
}

// Engine produces and commits daily decisions. It reads and mutates the
// portfolio it is given but never copies lot state.
type Engine struct {
	rules     Rules
	portfolio *lots.Portfolio
	sizer     sizing.Strategy
	log       zerolog.Logger
}

// NewEngine creates a decision engine over a portfolio and sizing strategy
func NewEngine(rules Rules, portfolio *lots.Portfolio, sizer sizing.Strategy, log zerolog.Logger) *Engine {
	return &Engine{
		rules:     rules,
		portfolio: portfolio,
		sizer:     sizer,
		log:       log.With().Str("component", "decision_engine").Logger(),
	}
}

// Sizer returns the engine's sizing strategy
func (e *Engine) Sizer() sizing.Strategy {
	return e.sizer
}

// DecideSell picks the held position whose best eligible lot has the highest
// absolute profit and sells the quantity of its most recent lot.
func (e *Engine) DecideSell(day Day, actions DailyActions) Decision {
	if actions.HasSold {
		return hold(ReasonHoldDailyLimit, "Already sold today")
	}

	candidates := e.portfolio.EligiblePositionsForSelling(day.Prices, e.rules.ProfitTarget)
	if len(candidates) == 0 {
		return hold(ReasonHoldNoSell, "No positions eligible for selling (below %.2f%% profit target)", e.rules.ProfitTarget)
	}

	best := candidates[0]
	return Decision{
		Action:   domain.ActionSell,
		Symbol:   best.Symbol,
		Sector:   best.Sector,
		Quantity: best.MostRecentLot.Quantity,
		Price:    day.Prices[best.Symbol],
		LotID:    best.MostRecentLot.ID,
		Category: ReasonSellProfitTarget,
		Reason: fmt.Sprintf("Selling %s - %.2f%% profit (%.2f) on best lot",
			best.Symbol, best.BestLot.ProfitPercent, best.BestLot.Profit),
	}
}

// DecideBuy applies the new-symbol, diversification and averaging-down rules
// in priority order. A rule whose size rounds to zero units passes the day to
// the next rule; when none of them trades, the last sizing HOLD is returned.
func (e *Engine) DecideBuy(day Day, actions DailyActions, availableCash, equity float64) Decision {
	if actions.HasBought {
		return hold(ReasonHoldDailyLimit, "Already bought today")
	}

	var skipped *Decision
	try := func(d Decision) bool {
		if d.Action == domain.ActionBuy {
			return true
		}
		skipped = &d
		return false
	}

	if symbol, ok := e.newSymbol(day); ok {
		if d := e.buy(day, symbol, availableCash, equity, ReasonBuyNewSymbol, "New symbol in top %d", e.rules.TopK); try(d) {
			return d
		}
	}
	if symbol, ok := e.diversification(day); ok {
		if d := e.buy(day, symbol, availableCash, equity, ReasonBuyDiversification, "Diversification opportunity (rank 1 %s already held)", day.Ranked[0].Symbol); try(d) {
			return d
		}
	}

	averaging := e.portfolio.EligiblePositionsForAveraging(day.Prices, e.rules.AveragingThreshold)
	if len(averaging) > 0 {
		best := averaging[0]
		d := e.buy(day, best.Symbol, availableCash, equity, ReasonBuyAveragingDown,
			"Averaging down %s - %.2f%% below reference price %.2f", best.Symbol, best.FallPercent, best.ReferencePrice)
		if try(d) {
			return d
		}
	}

	if skipped != nil {
		return *skipped
	}
	if len(day.Ranked) == 0 {
		return hold(ReasonHoldNoData, "No symbols ranked for %s", day.Date)
	}
	return hold(ReasonHoldNoOpportunity, "No buying opportunities found")
}

func (e *Engine) newSymbol(day Day) (string, bool) {
	for _, r := range day.Ranked {
		if e.buyable(day, r.Symbol) {
			return r.Symbol, true
		}
	}
	return "", false
}

func (e *Engine) diversification(day Day) (string, bool) {
	if len(day.Ranked) == 0 || !e.portfolio.Holds(day.Ranked[0].Symbol) {
		return "", false
	}
	for i := len(day.Ranked) - 1; i >= 1; i-- {
		if e.buyable(day, day.Ranked[i].Symbol) {
			return day.Ranked[i].Symbol, true
		}
	}
	return "", false
}

func (e *Engine) buyable(day Day, symbol string) bool {
	if e.portfolio.Holds(symbol) {
		return false
	}
	if _, ok := day.Prices[symbol]; !ok {
		return false
	}
	return e.portfolio.CanAddToSector(e.sectorOf(day, symbol), e.rules.MaxETFsPerSector)
}

func (e *Engine) sectorOf(day Day, symbol string) string {
	return domain.NormalizeSector(day.Sectors[symbol])
}

func (e *Engine) buy(day Day, symbol string, availableCash, equity float64, category ReasonCategory, format string, args ...interface{}) Decision {
	price := day.Prices[symbol]
	amount := e.sizer.Size(symbol, price, availableCash, equity)
	if amount <= 0 {
		return hold(ReasonHoldInsufficientCapital, "Insufficient capital for %s (cash %.2f)", symbol, availableCash)
	}
	quantity := sizing.Quantity(amount, price)
	if quantity <= 0 {
		return hold(ReasonHoldZeroQuantity, "Position size %.2f too small for %s at %.2f", amount, symbol, price)
	}
	return Decision{
		Action:   domain.ActionBuy,
		Symbol:   symbol,
		Sector:   e.sectorOf(day, symbol),
		Quantity: quantity,
		Price:    price,
		Category: category,
		Reason:   fmt.Sprintf(format, args...),
	}
}

// Commit applies a trade decision to the portfolio and notifies the sizing
// strategy. Cash movement is left to the caller. A sell that finds less
// inventory than requested is truncated and the returned trade reflects the
// quantity actually sold; the inventory error is returned alongside it.
func (e *Engine) Commit(d Decision, date, tradeID string, availableCash, equity float64) (domain.Trade, error) {
	if err := ValidateDecision(d, availableCash); err != nil {
		return domain.Trade{}, err
	}

	trade := domain.Trade{
		ID:       tradeID,
		Date:     date,
		Symbol:   d.Symbol,
		Action:   d.Action,
		Quantity: d.Quantity,
		Price:    d.Price,
		Amount:   d.Amount(),
		Sector:   d.Sector,
		Reason:   d.Reason,
	}

	var inventoryErr error
	switch d.Action {
	case domain.ActionBuy:
		if _, err := e.portfolio.Buy(d.Symbol, d.Sector, d.Quantity, d.Price, date); err != nil {
			return domain.Trade{}, fmt.Errorf("failed to add lot for %s: %w", d.Symbol, err)
		}
	case domain.ActionSell:
		result, err := e.portfolio.Sell(d.Symbol, d.Quantity, d.Price, date)
		if err != nil {
			inventoryErr = err
			e.log.Warn().Err(err).Str("symbol", d.Symbol).Str("date", date).Msg("Sell truncated to available inventory")
		}
		sold := result.SoldQuantity()
		if sold == 0 {
			return domain.Trade{}, err
		}
		trade.Quantity = sold
		trade.Amount = float64(sold) * d.Price
		trade.LotID = result.LastConsumedLotID()
		trade.RealizedPnL = trade.Amount - result.CostBasis()
	}

	e.sizer.OnTradeSettled(trade, availableCash, equity)

	e.log.Debug().
		Str("date", date).
		Str("action", string(trade.Action)).
		Str("symbol", trade.Symbol).
		Int("quantity", trade.Quantity).
		Float64("price", trade.Price).
		Str("category", string(d.Category)).
		Msg("Trade committed")

	return trade, inventoryErr
}
