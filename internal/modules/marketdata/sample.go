package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/aristath/etf-backtester/internal/domain"
)

// SampleSectors are the symbols produced by the sample generator
var SampleSectors = map[string]string{
	"NSE:GOLDBEES":   "Gold",
	"NSE:SILVERBEES": "Silver",
	"NSE:CPSEETF":    "PSU",
	"NSE:PSUBANK":    "Banking",
	"NSE:ITBEES":     "Technology",
}

var sampleSymbols = []string{"NSE:CPSEETF", "NSE:GOLDBEES", "NSE:ITBEES", "NSE:PSUBANK", "NSE:SILVERBEES"}

// sampleLookbackDays of history are generated before the start date so the
// moving average is defined from the first simulated day
const sampleLookbackDays = 45

// SampleSource generates a deterministic random walk per symbol. Only meant
// for tests and demos.
type SampleSource struct{}

// NewSampleSource creates a sample source
func NewSampleSource() *SampleSource {
	return &SampleSource{}
}

// Load implements Source. The same start date always yields the same bars.
func (s *SampleSource) Load(_ context.Context, req Request) ([]domain.Bar, error) {
	start, err := domain.ParseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseDate(req.EndDate)
	if err != nil {
		return nil, err
	}
	return GenerateSample(start.AddDate(0, 0, -sampleLookbackDays), end, seedFor(req.StartDate)), nil
}

func seedFor(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64() & math.MaxInt64)
}

// GenerateSample builds weekday bars for the sample symbols between from and to
func GenerateSample(from, to time.Time, seed int64) []domain.Bar {
	rng := rand.New(rand.NewSource(seed))
	var bars []domain.Bar

	for _, symbol := range sampleSymbols {
		price := 100 + rng.Float64()*50
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			open := price * (1 + (rng.Float64()-0.5)*0.01)
			closePrice := open * (1 + rng.NormFloat64()*0.015)
			if closePrice < 1 {
				closePrice = 1
			}
			high := math.Max(open, closePrice) * (1 + rng.Float64()*0.01)
			low := math.Min(open, closePrice) * (1 - rng.Float64()*0.01)

			bars = append(bars, domain.Bar{
				Date:   domain.FormatDate(d),
				Symbol: symbol,
				Open:   round2(open),
				High:   round2(high),
				Low:    round2(low),
				Close:  round2(closePrice),
				Volume: int64(rng.Intn(1000000) + 100000),
				Sector: SampleSectors[symbol],
			})
			price = closePrice
		}
	}
	return bars
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
