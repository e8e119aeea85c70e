package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.BacktestCreated("sample")
	r.BacktestCreated("sample")
	r.BacktestFinished("completed")
	r.TradeExecuted("BUY")
	r.StepObserved(10*time.Millisecond, 5)
	r.SetActiveSessions(3)
	r.SessionHibernated()
	r.DataLoadFailed("http")

	body := scrape(t, r)
	assert.Contains(t, body, `etf_backtests_created_total{source="sample"} 2`)
	assert.Contains(t, body, `etf_backtests_finished_total{status="completed"} 1`)
	assert.Contains(t, body, `etf_backtest_trades_total{action="BUY"} 1`)
	assert.Contains(t, body, "etf_backtest_days_simulated_total 5")
	assert.Contains(t, body, "etf_backtest_step_duration_seconds_count 1")
	assert.Contains(t, body, "etf_backtest_active_sessions 3")
	assert.Contains(t, body, "etf_backtest_hibernated_total 1")
	assert.Contains(t, body, `etf_backtest_data_load_failures_total{source="http"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	a := NewRecorder()
	b := NewRecorder()
	a.SessionHibernated()

	assert.Contains(t, scrape(t, a), "etf_backtest_hibernated_total 1")
	assert.Contains(t, scrape(t, b), "etf_backtest_hibernated_total 0")
}
