package backtest

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/internal/modules/marketdata"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// weekdayBars builds one bar per weekday in [from, to]; closeAt receives the
// index of the weekday within the range
func weekdayBars(t *testing.T, symbol, sector, from, to string, closeAt func(i int) float64) []domain.Bar {
	t.Helper()
	start, err := domain.ParseDate(from)
	require.NoError(t, err)
	end, err := domain.ParseDate(to)
	require.NoError(t, err)

	var bars []domain.Bar
	i := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == 0 || wd == 6 {
			continue
		}
		price := closeAt(i)
		bars = append(bars, domain.Bar{
			Date:   domain.FormatDate(d),
			Symbol: symbol,
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: 1000,
			Sector: sector,
		})
		i++
	}
	return bars
}

func testParams(start, end string) Params {
	p := DefaultParams()
	p.StartDate = start
	p.EndDate = end
	return p
}

func sampleBars(t *testing.T, start, end string) []domain.Bar {
	t.Helper()
	from, err := domain.ParseDate(start)
	require.NoError(t, err)
	to, err := domain.ParseDate(end)
	require.NoError(t, err)
	bars := marketdata.GenerateSample(from.AddDate(0, 0, -45), to, 42)
	marketdata.SortBars(bars)
	return bars
}

// profitBars is a single symbol that is bought on 2024-01-01 at 101 and
// reaches the profit target on 2024-01-02 at 110
func profitBars(t *testing.T) []domain.Bar {
	t.Helper()
	closes := map[string]float64{
		"2023-12-27": 100, "2023-12-28": 100, "2023-12-29": 100,
		"2024-01-01": 101, "2024-01-02": 110, "2024-01-03": 110,
		"2024-01-04": 110, "2024-01-05": 110,
	}
	var bars []domain.Bar
	for _, date := range []string{"2023-12-27", "2023-12-28", "2023-12-29", "2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"} {
		c := closes[date]
		bars = append(bars, domain.Bar{Date: date, Symbol: "XETF", Open: c, High: c, Low: c, Close: c, Volume: 10, Sector: "Gold"})
	}
	return bars
}

func profitParams() Params {
	p := testParams("2024-01-01", "2024-01-05")
	p.IndicatorPeriod = 3
	return p
}
