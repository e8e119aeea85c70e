package lots

import (
	"fmt"
	"sort"

	"github.com/aristath/etf-backtester/internal/domain"
)

// SellCandidate is a held symbol with at least one lot above the profit target
type SellCandidate struct {
	Symbol        string      `json:"symbol"`
	Sector        string      `json:"sector"`
	BestLot       EligibleLot `json:"bestLot"`
	MostRecentLot domain.Lot  `json:"mostRecentLot"`
}

// AveragingCandidate is a held symbol trading below its most recent purchase price
type AveragingCandidate struct {
	Symbol         string  `json:"symbol"`
	Sector         string  `json:"sector"`
	ReferencePrice float64 `json:"referencePrice"`
	CurrentPrice   float64 `json:"currentPrice"`
	FallPercent    float64 `json:"fallPercent"`
}

// Portfolio composes one Ledger per symbol. It is the single owner of lot
// state for a backtest run; sector occupancy is always derived from it.
type Portfolio struct {
	ledgers map[string]*Ledger
	seq     *sequence
}

// NewPortfolio creates an empty portfolio
func NewPortfolio() *Portfolio {
	return &Portfolio{
		ledgers: make(map[string]*Ledger),
		seq:     &sequence{},
	}
}

func (p *Portfolio) ledger(symbol, sector string) *Ledger {
	l, ok := p.ledgers[symbol]
	if !ok {
		l = newLedger(symbol, sector, p.seq)
		p.ledgers[symbol] = l
	}
	return l
}

// Buy adds a lot for symbol
func (p *Portfolio) Buy(symbol, sector string, quantity int, price float64, date string) (domain.Lot, error) {
	return p.ledger(symbol, sector).AddLot(quantity, price, date)
}

// Sell consumes quantity of symbol LIFO. When the ledger holds less than
// quantity the sale is truncated and an *domain.InsufficientInventoryError is
// returned together with the partial result.
func (p *Portfolio) Sell(symbol string, quantity int, price float64, date string) (SellResult, error) {
	l, ok := p.ledgers[symbol]
	if !ok {
		if quantity <= 0 {
			return SellResult{}, nil
		}
		return SellResult{RemainingQuantity: quantity}, &domain.InsufficientInventoryError{
			Symbol:    symbol,
			Requested: quantity,
		}
	}

	available := l.Quantity()
	result := l.SellLots(quantity, price, date)
	if l.Quantity() == 0 {
		delete(p.ledgers, symbol)
	}
	if result.RemainingQuantity > 0 {
		return result, &domain.InsufficientInventoryError{
			Symbol:    symbol,
			Requested: quantity,
			Available: available,
		}
	}
	return result, nil
}

// Ledger returns the ledger for symbol if it holds any lots
func (p *Portfolio) Ledger(symbol string) (*Ledger, bool) {
	l, ok := p.ledgers[symbol]
	return l, ok
}

// Holds reports whether symbol has a live quantity
func (p *Portfolio) Holds(symbol string) bool {
	l, ok := p.ledgers[symbol]
	return ok && l.Quantity() > 0
}

// Quantity returns the live quantity of symbol
func (p *Portfolio) Quantity(symbol string) int {
	if l, ok := p.ledgers[symbol]; ok {
		return l.Quantity()
	}
	return 0
}

// HeldSymbols returns the symbols with a live quantity, sorted
func (p *Portfolio) HeldSymbols() []string {
	symbols := make([]string, 0, len(p.ledgers))
	for symbol, l := range p.ledgers {
		if l.Quantity() > 0 {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Position returns the derived position of symbol at price
func (p *Portfolio) Position(symbol string, price float64) domain.Position {
	if l, ok := p.ledgers[symbol]; ok {
		return l.Position(price)
	}
	return domain.Position{Symbol: symbol, CurrentPrice: price}
}

// Positions returns every held position priced from prices, sorted by symbol.
// A symbol missing from prices is valued at zero.
func (p *Portfolio) Positions(prices map[string]float64) []domain.Position {
	symbols := p.HeldSymbols()
	out := make([]domain.Position, 0, len(symbols))
	for _, symbol := range symbols {
		out = append(out, p.ledgers[symbol].Position(prices[symbol]))
	}
	return out
}

// MarketValue returns the sum of quantity * price over held symbols
func (p *Portfolio) MarketValue(prices map[string]float64) float64 {
	total := 0.0
	for _, symbol := range p.HeldSymbols() {
		total += float64(p.ledgers[symbol].Quantity()) * prices[symbol]
	}
	return total
}

// SectorCounts returns the number of held symbols per sector
func (p *Portfolio) SectorCounts() map[string]int {
	counts := make(map[string]int)
	for _, l := range p.ledgers {
		if l.Quantity() > 0 {
			counts[l.Sector()]++
		}
	}
	return counts
}

// CanAddToSector reports whether another symbol may be bought into sector
func (p *Portfolio) CanAddToSector(sector string, maxPerSector int) bool {
	return p.SectorCounts()[domain.NormalizeSector(sector)] < maxPerSector
}

// EligiblePositionsForSelling returns held symbols with at least one lot at or
// above thresholdPct, ordered by the absolute profit of their best lot.
func (p *Portfolio) EligiblePositionsForSelling(prices map[string]float64, thresholdPct float64) []SellCandidate {
	var candidates []SellCandidate
	for _, symbol := range p.HeldSymbols() {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		l := p.ledgers[symbol]
		eligible := l.EligibleLotsForSelling(price, thresholdPct)
		if len(eligible) == 0 {
			continue
		}
		recent, _ := l.MostRecentLot()
		candidates = append(candidates, SellCandidate{
			Symbol:        symbol,
			Sector:        l.Sector(),
			BestLot:       eligible[0],
			MostRecentLot: recent,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].BestLot.Profit > candidates[j].BestLot.Profit
	})
	return candidates
}

// EligiblePositionsForAveraging returns held symbols that fell more than
// thresholdPct below their most recent lot, largest fall first.
func (p *Portfolio) EligiblePositionsForAveraging(prices map[string]float64, thresholdPct float64) []AveragingCandidate {
	var candidates []AveragingCandidate
	for _, symbol := range p.HeldSymbols() {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		l := p.ledgers[symbol]
		if !l.IsEligibleForAveraging(price, thresholdPct) {
			continue
		}
		ref, _ := l.MostRecentLot()
		fall, _ := l.FallPercent(price)
		candidates = append(candidates, AveragingCandidate{
			Symbol:         symbol,
			Sector:         l.Sector(),
			ReferencePrice: ref.Price,
			CurrentPrice:   price,
			FallPercent:    fall,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FallPercent > candidates[j].FallPercent
	})
	return candidates
}

// Lots returns every live lot, ordered by symbol and then most recent first
func (p *Portfolio) Lots() []domain.Lot {
	var out []domain.Lot
	for _, symbol := range p.HeldSymbols() {
		out = append(out, p.ledgers[symbol].Lots()...)
	}
	return out
}

// Sequence returns the last lot sequence number handed out
func (p *Portfolio) Sequence() int64 {
	return p.seq.next
}

// Restore rebuilds a portfolio from persisted lots and sequence
func Restore(lots []domain.Lot, seq int64) (*Portfolio, error) {
	p := NewPortfolio()
	for _, lot := range lots {
		if lot.Quantity <= 0 {
			return nil, fmt.Errorf("restore lot %s: non-positive quantity %d", lot.ID, lot.Quantity)
		}
		if lot.Seq > seq {
			return nil, fmt.Errorf("restore lot %s: sequence %d beyond ledger sequence %d", lot.ID, lot.Seq, seq)
		}
		l := p.ledger(lot.Symbol, lot.Sector)
		l.lots = append(l.lots, lot)
	}
	p.seq.next = seq
	return p, nil
}
