package testing

import (
	"context"
	"sync"

	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/internal/modules/marketdata"
)

// MockLoader serves a fixed set of bars for every request
type MockLoader struct {
	mu       sync.Mutex
	bars     []domain.Bar
	err      error
	requests []marketdata.Request
}

// NewMockLoader creates a loader that returns a copy of bars
func NewMockLoader(bars []domain.Bar) *MockLoader {
	return &MockLoader{bars: bars}
}

// SetError makes every following Load fail with err
func (m *MockLoader) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Load implements the backtest data loader
func (m *MockLoader) Load(_ context.Context, req marketdata.Request) ([]domain.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.Bar(nil), m.bars...), nil
}

// Resolve always reports the sample source
func (m *MockLoader) Resolve(marketdata.Request) marketdata.Kind {
	return marketdata.KindSample
}

// Requests returns every request seen so far
func (m *MockLoader) Requests() []marketdata.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]marketdata.Request(nil), m.requests...)
}
