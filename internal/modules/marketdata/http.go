package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/etf-backtester/internal/domain"
)

// HTTPSource downloads a single CSV holding every symbol
type HTTPSource struct {
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPSource creates an HTTP source with the given request timeout
func NewHTTPSource(timeout time.Duration, log zerolog.Logger) *HTTPSource {
	return &HTTPSource{
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("client", "http-data").Logger(),
	}
}

// Load implements Source
func (s *HTTPSource) Load(ctx context.Context, req Request) ([]domain.Bar, error) {
	if req.URL == "" {
		return nil, errors.New("no data URL configured")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	s.log.Debug().Str("url", req.URL).Msg("Fetching historical data")
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	bars, err := ParseCSV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return bars, nil
}
