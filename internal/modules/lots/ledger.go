// Package lots implements the LIFO tax-lot ledger. A Ledger holds the lots of a
// single symbol; a Portfolio composes one Ledger per symbol and derives sector
// occupancy from the live lots.
package lots

import (
	"fmt"
	"sort"

	"github.com/aristath/etf-backtester/internal/domain"
)

// sequence hands out lot sequence numbers, shared by every ledger of a portfolio
type sequence struct {
	next int64
}

func (s *sequence) take() int64 {
	s.next++
	return s.next
}

// SoldLot describes the part of a lot consumed by a sale
type SoldLot struct {
	Lot      domain.Lot `json:"lot"`
	Quantity int        `json:"quantity"`
	Profit   float64    `json:"profit"`
}

// CostBasis returns the purchase cost of the consumed quantity
func (s SoldLot) CostBasis() float64 {
	return s.Lot.Price * float64(s.Quantity)
}

// SellResult is the outcome of a LIFO sale
type SellResult struct {
	SoldLots          []SoldLot `json:"soldLots"`
	RemainingQuantity int       `json:"remainingQuantity"`
}

// SoldQuantity returns the quantity actually sold
func (r SellResult) SoldQuantity() int {
	total := 0
	for _, s := range r.SoldLots {
		total += s.Quantity
	}
	return total
}

// CostBasis returns the summed cost basis of all consumed lots
func (r SellResult) CostBasis() float64 {
	total := 0.0
	for _, s := range r.SoldLots {
		total += s.CostBasis()
	}
	return total
}

// RealizedProfit returns the summed profit of all consumed lots
func (r SellResult) RealizedProfit() float64 {
	total := 0.0
	for _, s := range r.SoldLots {
		total += s.Profit
	}
	return total
}

// LastConsumedLotID returns the id of the most recently dated lot touched by the sale
func (r SellResult) LastConsumedLotID() string {
	if len(r.SoldLots) == 0 {
		return ""
	}
	return r.SoldLots[0].Lot.ID
}

// EligibleLot is a lot at or above the profit threshold
type EligibleLot struct {
	Lot           domain.Lot `json:"lot"`
	ProfitPercent float64    `json:"profitPercent"`
	Profit        float64    `json:"profit"`
}

// Ledger is the LIFO lot inventory of one symbol
type Ledger struct {
	symbol string
	sector string
	lots   []domain.Lot
	seq    *sequence
}

// NewLedger creates an empty ledger with its own lot sequence
func NewLedger(symbol, sector string) *Ledger {
	return newLedger(symbol, sector, &sequence{})
}

func newLedger(symbol, sector string, seq *sequence) *Ledger {
	return &Ledger{
		symbol: symbol,
		sector: domain.NormalizeSector(sector),
		seq:    seq,
	}
}

// Symbol returns the ledger's symbol
func (l *Ledger) Symbol() string { return l.symbol }

// Sector returns the ledger's sector
func (l *Ledger) Sector() string { return l.sector }

// AddLot records a new purchase. Each purchase is a distinct lot.
func (l *Ledger) AddLot(quantity int, price float64, date string) (domain.Lot, error) {
	if quantity <= 0 {
		return domain.Lot{}, fmt.Errorf("lot quantity must be positive, got %d", quantity)
	}
	if price <= 0 {
		return domain.Lot{}, fmt.Errorf("lot price must be positive, got %f", price)
	}

	seq := l.seq.take()
	lot := domain.Lot{
		ID:       fmt.Sprintf("%s-%s-%d", l.symbol, date, seq),
		Symbol:   l.symbol,
		Sector:   l.sector,
		Quantity: quantity,
		Price:    price,
		Date:     date,
		Seq:      seq,
	}
	l.lots = append(l.lots, lot)
	return lot, nil
}

// SellLots consumes lots most-recent first until quantity is satisfied or the
// ledger is empty. RemainingQuantity > 0 means there was not enough inventory.
func (l *Ledger) SellLots(quantity int, currentPrice float64, date string) SellResult {
	result := SellResult{RemainingQuantity: max(quantity, 0)}
	if quantity <= 0 {
		return result
	}

	l.sortMostRecentFirst()

	consumed := 0
	for consumed < len(l.lots) && result.RemainingQuantity > 0 {
		lot := &l.lots[consumed]
		take := min(result.RemainingQuantity, lot.Quantity)

		result.SoldLots = append(result.SoldLots, SoldLot{
			Lot:      *lot,
			Quantity: take,
			Profit:   (currentPrice - lot.Price) * float64(take),
		})
		result.RemainingQuantity -= take
		lot.Quantity -= take
		if lot.Quantity == 0 {
			consumed++
		}
	}
	l.lots = l.lots[consumed:]
	return result
}

// Position aggregates the live lots at currentPrice
func (l *Ledger) Position(currentPrice float64) domain.Position {
	pos := domain.Position{
		Symbol:       l.symbol,
		Sector:       l.sector,
		CurrentPrice: currentPrice,
		Lots:         l.Lots(),
	}
	for _, lot := range pos.Lots {
		pos.TotalQuantity += lot.Quantity
		pos.TotalCost += lot.Cost()
	}
	if pos.TotalQuantity > 0 {
		pos.AveragePrice = pos.TotalCost / float64(pos.TotalQuantity)
	}
	pos.MarketValue = currentPrice * float64(pos.TotalQuantity)
	pos.UnrealizedPnL = pos.MarketValue - pos.TotalCost
	if pos.TotalCost > 0 {
		pos.UnrealizedPnLPercent = pos.UnrealizedPnL / pos.TotalCost * 100
	}
	return pos
}

// Quantity returns the total live quantity
func (l *Ledger) Quantity() int {
	total := 0
	for _, lot := range l.lots {
		total += lot.Quantity
	}
	return total
}

// EligibleLotsForSelling returns lots whose profit percentage is at least
// thresholdPct, ordered by absolute profit descending.
func (l *Ledger) EligibleLotsForSelling(currentPrice, thresholdPct float64) []EligibleLot {
	var eligible []EligibleLot
	for _, lot := range l.mostRecentFirst() {
		pct := (currentPrice - lot.Price) / lot.Price * 100
		if pct >= thresholdPct {
			eligible = append(eligible, EligibleLot{
				Lot:           lot,
				ProfitPercent: pct,
				Profit:        (currentPrice - lot.Price) * float64(lot.Quantity),
			})
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Profit > eligible[j].Profit
	})
	return eligible
}

// MostRecentLot returns the lot with the latest date (latest purchase on ties)
func (l *Ledger) MostRecentLot() (domain.Lot, bool) {
	ordered := l.mostRecentFirst()
	if len(ordered) == 0 {
		return domain.Lot{}, false
	}
	return ordered[0], true
}

// FallPercent returns how far currentPrice sits below the most recent lot's price
func (l *Ledger) FallPercent(currentPrice float64) (float64, bool) {
	ref, ok := l.MostRecentLot()
	if !ok {
		return 0, false
	}
	return (ref.Price - currentPrice) / ref.Price * 100, true
}

// IsEligibleForAveraging reports whether the price has fallen more than
// thresholdPct from the most recent lot's price.
func (l *Ledger) IsEligibleForAveraging(currentPrice, thresholdPct float64) bool {
	fall, ok := l.FallPercent(currentPrice)
	return ok && fall > thresholdPct
}

// Lots returns a copy of the live lots, most recent first
func (l *Ledger) Lots() []domain.Lot {
	return l.mostRecentFirst()
}

func (l *Ledger) mostRecentFirst() []domain.Lot {
	out := make([]domain.Lot, len(l.lots))
	copy(out, l.lots)
	sortLots(out)
	return out
}

func (l *Ledger) sortMostRecentFirst() {
	sortLots(l.lots)
}

func sortLots(lots []domain.Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		if lots[i].Date != lots[j].Date {
			return lots[i].Date > lots[j].Date
		}
		return lots[i].Seq > lots[j].Seq
	})
}
