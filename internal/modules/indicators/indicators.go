// Package indicators turns daily bars into moving-average deviation signals
// and ranks symbols by how far they have fallen below their average.
package indicators

import (
	"fmt"
	"math"
	"sort"

	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/pkg/formulas"
)

// DefaultPeriod is the moving-average lookback in trading days
const DefaultPeriod = 20

// Record is the indicator value for one symbol on one date.
// MovingAverage and PercentDeviation are NaN when the lookback is insufficient.
type Record struct {
	Symbol           string  `json:"symbol"`
	Date             string  `json:"date"`
	MovingAverage    float64 `json:"movingAverage"`
	PercentDeviation float64 `json:"percentDeviation"`
	Close            float64 `json:"close"`
}

// Defined reports whether both the moving average and deviation are usable
func (r Record) Defined() bool {
	return !math.IsNaN(r.MovingAverage) && !math.IsNaN(r.PercentDeviation)
}

// Set holds indicator records per symbol, each series ordered by date ascending
type Set map[string][]Record

// Compute groups bars by symbol, sorts each group by date and computes the
// moving average and percent deviation of each series independently.
func Compute(bars []domain.Bar, period int) Set {
	bySymbol := make(map[string][]domain.Bar)
	for _, bar := range bars {
		bySymbol[bar.Symbol] = append(bySymbol[bar.Symbol], bar)
	}

	result := make(Set, len(bySymbol))
	for symbol, series := range bySymbol {
		sorted := make([]domain.Bar, len(series))
		copy(sorted, series)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Date < sorted[j].Date
		})

		closes := make([]float64, len(sorted))
		for i, bar := range sorted {
			closes[i] = bar.Close
		}
		ma := formulas.SMA(closes, period)

		records := make([]Record, len(sorted))
		for i, bar := range sorted {
			records[i] = Record{
				Symbol:           symbol,
				Date:             bar.Date,
				MovingAverage:    ma[i],
				PercentDeviation: formulas.PercentDeviation(bar.Close, ma[i]),
				Close:            bar.Close,
			}
		}
		result[symbol] = records
	}
	return result
}

// Symbols returns the symbols in the set in sorted order
func (s Set) Symbols() []string {
	symbols := make([]string, 0, len(s))
	for symbol := range s {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// ForDate returns the defined records for a date, in symbol order
func (s Set) ForDate(date string) []Record {
	var out []Record
	for _, symbol := range s.Symbols() {
		series := s[symbol]
		i := sort.Search(len(series), func(i int) bool { return series[i].Date >= date })
		if i < len(series) && series[i].Date == date && series[i].Defined() {
			out = append(out, series[i])
		}
	}
	return out
}

// Dates returns every distinct date present in the set, ascending
func (s Set) Dates() []string {
	seen := make(map[string]struct{})
	for _, series := range s {
		for _, r := range series {
			seen[r.Date] = struct{}{}
		}
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// RankByDeviation drops records with an undefined deviation and sorts the rest
// ascending, so the most fallen symbol comes first. Equal deviations keep
// their input order.
func RankByDeviation(records []Record) []Record {
	ranked := make([]Record, 0, len(records))
	for _, r := range records {
		if !math.IsNaN(r.PercentDeviation) {
			ranked = append(ranked, r)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PercentDeviation < ranked[j].PercentDeviation
	})
	return ranked
}

// TopK ranks the records dated on date and keeps at most k of them
func TopK(records []Record, date string, k int) []Record {
	if k <= 0 {
		return []Record{}
	}
	sameDate := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Date == date && r.Defined() {
			sameDate = append(sameDate, r)
		}
	}
	ranked := RankByDeviation(sameDate)
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// Validate reports records that cannot be used for trading decisions
func Validate(records []Record) []string {
	var problems []string
	for _, r := range records {
		if math.IsNaN(r.MovingAverage) {
			problems = append(problems, fmt.Sprintf("%s on %s: moving average undefined", r.Symbol, r.Date))
		}
		if math.IsNaN(r.PercentDeviation) {
			problems = append(problems, fmt.Sprintf("%s on %s: percent deviation undefined", r.Symbol, r.Date))
		}
		if r.Close <= 0 {
			problems = append(problems, fmt.Sprintf("%s on %s: non-positive close %.2f", r.Symbol, r.Date, r.Close))
		}
	}
	return problems
}
