package testing

import (
	"github.com/aristath/etf-backtester/internal/domain"
)

// ProfitSymbol is the only symbol of NewProfitBars
const ProfitSymbol = "NSE:GOLDBEES"

// NewProfitBars returns a single flat-then-rising series. With a 3 day
// indicator period and a 6% profit target, a run over 2024-01-01..05 buys
// on 01-01 at 101, sells that lot on 01-02 at 110 and rebuys the same day.
func NewProfitBars() []domain.Bar {
	series := []struct {
		date  string
		close float64
	}{
		{"2023-12-27", 100}, {"2023-12-28", 100}, {"2023-12-29", 100},
		{"2024-01-01", 101}, {"2024-01-02", 110}, {"2024-01-03", 110},
		{"2024-01-04", 110}, {"2024-01-05", 110},
	}

	bars := make([]domain.Bar, 0, len(series))
	for _, s := range series {
		bars = append(bars, domain.Bar{
			Date:   s.date,
			Symbol: ProfitSymbol,
			Open:   s.close,
			High:   s.close,
			Low:    s.close,
			Close:  s.close,
			Volume: 100,
			Sector: "Gold",
		})
	}
	return bars
}
