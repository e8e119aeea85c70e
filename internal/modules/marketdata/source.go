package marketdata

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/etf-backtester/internal/domain"
)

// Kind names a historical data source
type Kind string

const (
	KindBucket Kind = "bucket"
	KindHTTP   Kind = "http"
	KindSample Kind = "sample"
)

// Request describes what to load
type Request struct {
	Kind      Kind
	URL       string
	StartDate string
	EndDate   string
}

// Source loads bars for a request
type Source interface {
	Load(ctx context.Context, req Request) ([]domain.Bar, error)
}

// Loader picks a source for each request. A bucket or http request without a
// configured bucket or URL falls back to the sample generator.
type Loader struct {
	http       *HTTPSource
	bucket     *BucketSource
	sample     *SampleSource
	defaultURL string
	log        zerolog.Logger
}

// NewLoader creates a loader. bucket may be nil when no bucket is configured.
func NewLoader(httpSource *HTTPSource, bucket *BucketSource, defaultURL string, log zerolog.Logger) *Loader {
	return &Loader{
		http:       httpSource,
		bucket:     bucket,
		sample:     NewSampleSource(),
		defaultURL: defaultURL,
		log:        log.With().Str("component", "marketdata").Logger(),
	}
}

// Load fetches, filters and sorts the bars for req. Any failure is a
// *domain.DataLoadError.
func (l *Loader) Load(ctx context.Context, req Request) ([]domain.Bar, error) {
	source, kind := l.resolve(req)
	if kind == KindHTTP && req.URL == "" {
		req.URL = l.defaultURL
	}

	bars, err := source.Load(ctx, req)
	if err != nil {
		return nil, &domain.DataLoadError{Source: string(kind), Err: err}
	}

	bars = filterUntil(bars, req.EndDate)
	if len(bars) == 0 {
		return nil, &domain.DataLoadError{Source: string(kind), Err: fmt.Errorf("no bars on or before %s", req.EndDate)}
	}
	SortBars(bars)

	l.log.Info().
		Str("source", string(kind)).
		Int("bars", len(bars)).
		Int("symbols", len(Symbols(bars))).
		Msg("Historical data loaded")
	return bars, nil
}

// Resolve reports which source Load uses for req
func (l *Loader) Resolve(req Request) Kind {
	_, kind := l.resolve(req)
	return kind
}

func (l *Loader) resolve(req Request) (Source, Kind) {
	switch req.Kind {
	case KindBucket:
		if l.bucket != nil {
			return l.bucket, KindBucket
		}
	case KindHTTP, "":
		if req.URL != "" || l.defaultURL != "" {
			return l.http, KindHTTP
		}
	}
	return l.sample, KindSample
}

// filterUntil drops bars after end; earlier bars are kept as indicator lookback
func filterUntil(bars []domain.Bar, end string) []domain.Bar {
	if end == "" {
		return bars
	}
	out := bars[:0]
	for _, b := range bars {
		if b.Date <= end {
			out = append(out, b)
		}
	}
	return out
}

// SortBars orders bars by date, then symbol
func SortBars(bars []domain.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		if bars[i].Date != bars[j].Date {
			return bars[i].Date < bars[j].Date
		}
		return bars[i].Symbol < bars[j].Symbol
	})
}

// Symbols returns the distinct symbols in bars, sorted
func Symbols(bars []domain.Bar) []string {
	seen := make(map[string]struct{})
	for _, b := range bars {
		seen[b.Symbol] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Sectors maps each symbol to the sector of its latest-dated bar, whatever
// the order of bars. Among bars sharing that date the later one wins.
func Sectors(bars []domain.Bar) map[string]string {
	sectors := make(map[string]string)
	latest := make(map[string]string)
	for _, b := range bars {
		if seen, ok := latest[b.Symbol]; ok && b.Date < seen {
			continue
		}
		latest[b.Symbol] = b.Date
		sectors[b.Symbol] = domain.NormalizeSector(b.Sector)
	}
	return sectors
}
