// Package domain provides the value types shared by the backtesting modules.
package domain

import "strings"

// TradeAction is the side of a trade or decision
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
	ActionHold TradeAction = "HOLD"
)

// DefaultSector is assigned to bars whose sector column is blank
const DefaultSector = "Other"

// Bar is one day of OHLCV data for a symbol. Immutable once loaded.
type Bar struct {
	Date   string  `json:"date" msgpack:"date"`
	Symbol string  `json:"symbol" msgpack:"symbol"`
	Open   float64 `json:"open" msgpack:"open"`
	High   float64 `json:"high" msgpack:"high"`
	Low    float64 `json:"low" msgpack:"low"`
	Close  float64 `json:"close" msgpack:"close"`
	Volume int64   `json:"volume" msgpack:"volume"`
	Sector string  `json:"sector" msgpack:"sector"`
}

// NormalizeSector trims a sector name and falls back to DefaultSector
func NormalizeSector(sector string) string {
	sector = strings.TrimSpace(sector)
	if sector == "" {
		return DefaultSector
	}
	return sector
}

// Lot is a single purchase (tax lot). Quantity is decremented by sells and the
// lot is removed when it reaches zero.
type Lot struct {
	ID       string  `json:"id" msgpack:"id"`
	Symbol   string  `json:"symbol" msgpack:"symbol"`
	Sector   string  `json:"sector" msgpack:"sector"`
	Quantity int     `json:"quantity" msgpack:"quantity"`
	Price    float64 `json:"price" msgpack:"price"`
	Date     string  `json:"date" msgpack:"date"`
	// Seq orders lots bought on the same date; higher is more recent
	Seq int64 `json:"-" msgpack:"seq"`
}

// Cost returns price * quantity for the live quantity of the lot
func (l Lot) Cost() float64 {
	return l.Price * float64(l.Quantity)
}

// Position is the derived aggregate of a symbol's live lots at a given price.
// It is never stored independently of the lots.
type Position struct {
	Symbol               string  `json:"symbol"`
	Sector               string  `json:"sector"`
	TotalQuantity        int     `json:"totalQuantity"`
	TotalCost            float64 `json:"totalCost"`
	AveragePrice         float64 `json:"averagePrice"`
	CurrentPrice         float64 `json:"currentPrice"`
	MarketValue          float64 `json:"marketValue"`
	UnrealizedPnL        float64 `json:"unrealizedPnL"`
	UnrealizedPnLPercent float64 `json:"unrealizedPnLPercent"`
	Lots                 []Lot   `json:"lots"`
}

// Trade is an executed BUY or SELL. Immutable once recorded.
type Trade struct {
	ID       string      `json:"id" msgpack:"id"`
	Date     string      `json:"date" msgpack:"date"`
	Symbol   string      `json:"symbol" msgpack:"symbol"`
	Action   TradeAction `json:"action" msgpack:"action"`
	Quantity int         `json:"quantity" msgpack:"quantity"`
	Price    float64     `json:"price" msgpack:"price"`
	Amount   float64     `json:"amount" msgpack:"amount"`
	Sector   string      `json:"sector" msgpack:"sector"`
	Reason   string      `json:"reason" msgpack:"reason"`
	// LotID identifies the most recently consumed lot; set only for SELL
	LotID string `json:"lotId" msgpack:"lot_id"`
	// RealizedPnL is proceeds minus the cost basis of the consumed lots; SELL only
	RealizedPnL float64 `json:"realizedPnL" msgpack:"realized_pnl"`
}

// IsBuy reports whether the trade is a BUY
func (t Trade) IsBuy() bool {
	return t.Action == ActionBuy
}

// IsSell reports whether the trade is a SELL
func (t Trade) IsSell() bool {
	return t.Action == ActionSell
}
