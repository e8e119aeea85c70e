package backtest

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/internal/modules/indicators"
	"github.com/aristath/etf-backtester/internal/modules/lots"
	"github.com/aristath/etf-backtester/internal/modules/marketdata"
	"github.com/aristath/etf-backtester/internal/modules/sizing"
	"github.com/aristath/etf-backtester/internal/modules/strategy"
)

// Orchestrator runs one backtest. It is not safe for concurrent use; the
// Manager serialises access per run.
type Orchestrator struct {
	id     string
	params Params
	bars   []domain.Bar

	byDate  map[string]map[string]domain.Bar
	sectors map[string]string
	ind     indicators.Set

	portfolio *lots.Portfolio
	sizer     sizing.Strategy
	engine    *strategy.Engine
	state     State

	log zerolog.Logger
}

// Start validates params, computes indicators over bars and initialises a
// fresh run with all capital in cash.
func Start(id string, params Params, bars []domain.Bar, log zerolog.Logger) (*Orchestrator, error) {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, &domain.DataLoadError{Source: "bars", Err: errors.New("no historical bars")}
	}

	sizer, err := sizing.New(params.SizingConfig())
	if err != nil {
		return nil, err
	}

	o := newOrchestrator(id, params, bars, lots.NewPortfolio(), sizer, log)
	capital := params.InitialCapital
	o.state = State{
		Status:      StatusRunning,
		CurrentDate: params.StartDate,
		Cash:        capital,
		Equity:      capital,
		PeakEquity:  capital,
		EquityCurve: []EquityPoint{{Date: params.StartDate, Equity: capital, Cash: capital}},
		LastPrices:  make(map[string]float64),
	}

	o.log.Info().
		Str("start", params.StartDate).
		Str("end", params.EndDate).
		Float64("capital", capital).
		Str("sizing", string(params.CompoundingMode)).
		Int("symbols", len(o.sectors)).
		Msg("Backtest started")
	return o, nil
}

// Resume rebuilds a run from a snapshot and the bars it was started with
func Resume(snap *Snapshot, bars []domain.Bar, log zerolog.Logger) (*Orchestrator, error) {
	portfolio, err := lots.Restore(snap.Lots, snap.LotSequence)
	if err != nil {
		return nil, fmt.Errorf("failed to restore lots: %w", err)
	}
	sizer, err := sizing.New(snap.Params.SizingConfig())
	if err != nil {
		return nil, err
	}
	if err := sizer.Restore(snap.Sizing); err != nil {
		return nil, fmt.Errorf("failed to restore sizing state: %w", err)
	}

	o := newOrchestrator(snap.ID, snap.Params, bars, portfolio, sizer, log)
	o.state = snap.State
	if o.state.LastPrices == nil {
		o.state.LastPrices = make(map[string]float64)
	}
	return o, nil
}

func newOrchestrator(id string, params Params, bars []domain.Bar, portfolio *lots.Portfolio, sizer sizing.Strategy, log zerolog.Logger) *Orchestrator {
	log = log.With().Str("component", "orchestrator").Str("backtest_id", id).Logger()

	byDate := make(map[string]map[string]domain.Bar)
	for _, bar := range bars {
		day, ok := byDate[bar.Date]
		if !ok {
			day = make(map[string]domain.Bar)
			byDate[bar.Date] = day
		}
		day[bar.Symbol] = bar
	}

	ind := indicators.Compute(bars, params.IndicatorPeriod)
	for _, problem := range indicators.Validate(ind.ForDate(params.StartDate)) {
		log.Debug().Str("problem", problem).Msg("Indicator issue on start date")
	}

	return &Orchestrator{
		id:        id,
		params:    params,
		bars:      bars,
		byDate:    byDate,
		sectors:   marketdata.Sectors(bars),
		ind:       ind,
		portfolio: portfolio,
		sizer:     sizer,
		engine:    strategy.NewEngine(params.Rules(), portfolio, sizer, log),
		log:       log,
	}
}

// ID returns the run id
func (o *Orchestrator) ID() string { return o.id }

// Params returns the run parameters
func (o *Orchestrator) Params() Params { return o.params }

// Bars returns the bars the run was started with
func (o *Orchestrator) Bars() []domain.Bar { return o.bars }

// Done reports whether the run can no longer step
func (o *Orchestrator) Done() bool {
	return o.state.Status == StatusCompleted
}

// Step simulates up to days calendar steps. Any failure is returned as a
// *domain.StepExecutionError and leaves the orchestrator unusable; callers
// must resume from the last snapshot.
func (o *Orchestrator) Step(days int) (result StepResult, err error) {
	if days < 1 {
		days = 1
	}
	if o.Done() {
		return o.stepResult(nil, 0), nil
	}
	o.state.Status = StatusRunning
	o.state.Error = ""

	firstTrade := len(o.state.Trades)
	stepped := 0

	defer func() {
		if r := recover(); r != nil {
			err = o.fail(fmt.Errorf("panic: %v", r))
		}
	}()

	for stepped < days && !o.reachedEnd() {
		if err := o.advance(); err != nil {
			return StepResult{}, o.fail(err)
		}
		stepped++
	}
	if o.reachedEnd() {
		o.complete()
	}

	return o.stepResult(o.state.Trades[firstTrade:], stepped), nil
}

func (o *Orchestrator) reachedEnd() bool {
	return o.state.CurrentDate >= o.params.EndDate
}

func (o *Orchestrator) complete() {
	if o.state.Status == StatusCompleted {
		return
	}
	o.state.Status = StatusCompleted
	o.log.Info().
		Float64("equity", o.state.Equity).
		Int("trades", o.state.TotalTrades).
		Msg("Backtest completed")
}

func (o *Orchestrator) fail(err error) error {
	stepErr := &domain.StepExecutionError{BacktestID: o.id, Date: o.state.CurrentDate, Err: err}
	o.state.Status = StatusError
	o.state.Error = stepErr.Error()
	o.log.Error().Err(err).Str("date", o.state.CurrentDate).Msg("Backtest step failed")
	return stepErr
}

func (o *Orchestrator) stepResult(trades []domain.Trade, stepped int) StepResult {
	out := make([]domain.Trade, len(trades))
	copy(out, trades)
	return StepResult{
		Status:      o.state.Status,
		CurrentDate: o.state.CurrentDate,
		Equity:      o.state.Equity,
		Trades:      out,
		DaysStepped: stepped,
	}
}

// advance processes the current date (if it is a trading day) and moves to
// the next trading day
func (o *Orchestrator) advance() error {
	date := o.state.CurrentDate
	if indicators.IsTradingDay(date) {
		if err := o.processDay(date); err != nil {
			return err
		}
	}
	next, err := indicators.NextTradingDate(date)
	if err != nil {
		return err
	}
	o.state.CurrentDate = next
	return nil
}

func (o *Orchestrator) processDay(date string) error {
	o.state.DailyActions = strategy.DailyActions{}

	prices := make(map[string]float64)
	for symbol, bar := range o.byDate[date] {
		prices[symbol] = o.executionPrice(bar)
		o.state.LastPrices[symbol] = bar.Close
	}

	day := strategy.Day{
		Date:    date,
		Prices:  prices,
		Ranked:  indicators.TopK(o.ind.ForDate(date), date, o.params.TopK),
		Sectors: o.sectors,
	}

	sell := o.engine.DecideSell(day, o.state.DailyActions)
	if sell.IsTrade() {
		if err := o.settle(sell, date); err != nil {
			return err
		}
		o.state.DailyActions.HasSold = true
	}

	buy := o.engine.DecideBuy(day, o.state.DailyActions, o.state.Cash, o.state.Equity)
	if buy.IsTrade() {
		if err := o.settle(buy, date); err != nil {
			return err
		}
		o.state.DailyActions.HasBought = true
	} else {
		o.log.Debug().Str("date", date).Str("category", string(buy.Category)).Msg(buy.Reason)
	}

	o.markToMarket(date)
	return nil
}

func (o *Orchestrator) executionPrice(bar domain.Bar) float64 {
	if o.params.ExecutionPrice == ExecuteAtOpen && bar.Open > 0 {
		return bar.Open
	}
	return bar.Close
}

func (o *Orchestrator) settle(d strategy.Decision, date string) error {
	o.state.TradeSeq++
	tradeID := fmt.Sprintf("T%06d", o.state.TradeSeq)

	trade, err := o.engine.Commit(d, date, tradeID, o.state.Cash, o.state.Equity)
	if err != nil {
		var inventory *domain.InsufficientInventoryError
		if !errors.As(err, &inventory) {
			return fmt.Errorf("failed to commit %s %s: %w", d.Action, d.Symbol, err)
		}
		if trade.Quantity == 0 {
			return nil
		}
	}

	switch trade.Action {
	case domain.ActionBuy:
		o.state.Cash -= trade.Amount
	case domain.ActionSell:
		o.state.Cash += trade.Amount
		o.state.RealizedPnL += trade.RealizedPnL
		if trade.RealizedPnL > 0 {
			o.state.WinningTrades++
		} else {
			o.state.LosingTrades++
		}
	}
	o.state.Trades = append(o.state.Trades, trade)
	o.state.TotalTrades++
	return nil
}

func (o *Orchestrator) markToMarket(date string) {
	equity := o.state.Cash + o.portfolio.MarketValue(o.state.LastPrices)
	o.state.Equity = equity

	if equity > o.state.PeakEquity {
		o.state.PeakEquity = equity
	}
	if o.state.PeakEquity > 0 {
		drawdown := o.state.PeakEquity - equity
		if drawdown > o.state.MaxDrawdown {
			o.state.MaxDrawdown = drawdown
		}
		pct := drawdown / o.state.PeakEquity * 100
		if pct > o.state.MaxDrawdownPercent {
			o.state.MaxDrawdownPercent = pct
		}
	}

	o.sizer.ObserveEquity(equity)
	o.state.EquityCurve = append(o.state.EquityCurve, EquityPoint{Date: date, Equity: equity, Cash: o.state.Cash})
}

// Status reports progress as elapsed calendar days over the run's span
func (o *Orchestrator) Status() StatusReport {
	status := o.state.Status
	if status == "" {
		status = StatusCreated
	}
	return StatusReport{
		ID:          o.id,
		Status:      status,
		Progress:    progress(o.params.StartDate, o.params.EndDate, o.state.CurrentDate),
		CurrentDate: o.state.CurrentDate,
		Equity:      o.state.Equity,
		Cash:        o.state.Cash,
		TotalTrades: o.state.TotalTrades,
		Error:       o.state.Error,
	}
}

func progress(start, end, current string) float64 {
	total, err := domain.DaysBetween(start, end)
	if err != nil || total <= 0 {
		return 0
	}
	elapsed, err := domain.DaysBetween(start, current)
	if err != nil {
		return 0
	}
	return math.Max(0, math.Min(100, float64(elapsed)/float64(total)*100))
}

// Positions returns the current holdings marked at the latest closes
func (o *Orchestrator) Positions() []domain.Position {
	return o.portfolio.Positions(o.state.LastPrices)
}

// SectorCounts returns the derived number of held symbols per sector
func (o *Orchestrator) SectorCounts() map[string]int {
	return o.portfolio.SectorCounts()
}

// Artifacts exports trades, the equity curve, the final holdings and metrics
func (o *Orchestrator) Artifacts() Artifacts {
	trades := append([]domain.Trade{}, o.state.Trades...)
	curve := append([]EquityPoint{}, o.state.EquityCurve...)

	holdingsDate := o.params.StartDate
	if n := len(curve); n > 0 {
		holdingsDate = curve[n-1].Date
	}
	return Artifacts{
		Trades:   trades,
		Equity:   curve,
		Holdings: []Holding{{Date: holdingsDate, Positions: o.Positions()}},
		Metrics:  ComputeMetrics(o.params, o.state),
	}
}

// Snapshot captures everything needed to resume the run
func (o *Orchestrator) Snapshot() *Snapshot {
	state := o.state
	state.Trades = append([]domain.Trade(nil), o.state.Trades...)
	state.EquityCurve = append([]EquityPoint(nil), o.state.EquityCurve...)
	state.LastPrices = make(map[string]float64, len(o.state.LastPrices))
	for k, v := range o.state.LastPrices {
		state.LastPrices[k] = v
	}

	return &Snapshot{
		Version:     snapshotVersion,
		ID:          o.id,
		Params:      o.params,
		State:       state,
		Lots:        o.portfolio.Lots(),
		LotSequence: o.portfolio.Sequence(),
		Sizing:      o.sizer.State(),
	}
}
