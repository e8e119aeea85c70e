package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/etf-backtester/internal/domain"
	"github.com/aristath/etf-backtester/internal/events"
	"github.com/aristath/etf-backtester/internal/metrics"
	"github.com/aristath/etf-backtester/internal/modules/backtest"
	testutil "github.com/aristath/etf-backtester/internal/testing"
)

const createBody = `{"params":{"startDate":"2024-01-01","endDate":"2024-01-05","initialCapital":1000000,
	"profitTarget":6,"averagingThreshold":2.5,"maxETFsPerSector":3,"topK":5,
	"capitalMode":"chunk_global_pool","compoundingMode":"fixed_fractional","indicatorPeriod":3}}`

func setupRouter(t *testing.T, cfg backtest.ManagerConfig) (chi.Router, *testutil.MockLoader) {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	db := testutil.NewTestDB(t, "backtests")
	loader := testutil.NewMockLoader(testutil.NewProfitBars())
	bus := events.NewBus(logger)
	manager := backtest.NewManager(cfg, backtest.NewRepository(db.Conn(), logger), loader, bus, metrics.NewRecorder(), logger)

	router := chi.NewRouter()
	NewHandler(manager, bus, logger).RegisterRoutes(router)
	return router, loader
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createBacktest(t *testing.T, router http.Handler) string {
	t.Helper()
	w := do(t, router, http.MethodPost, "/backtests", createBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp["status"])
	require.True(t, strings.HasPrefix(resp["id"], "backtest_"))
	return resp["id"]
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRegisterRoutes(t *testing.T) {
	router := chi.NewRouter()
	handler := NewHandler(nil, events.NewBus(zerolog.Nop()), zerolog.Nop())
	assert.NotPanics(t, func() { handler.RegisterRoutes(router) })
}

func TestHandleCreate(t *testing.T) {
	router, _ := setupRouter(t, backtest.ManagerConfig{})

	t.Run("valid", func(t *testing.T) {
		createBacktest(t, router)
	})

	t.Run("invalid params list every problem", func(t *testing.T) {
		body := `{"params":{"startDate":"2024-02-01","endDate":"2024-01-01","initialCapital":1000,"profitTarget":0,
			"averagingThreshold":2.5,"maxETFsPerSector":3,"topK":5,"capitalMode":"nope","compoundingMode":"fixed_fractional"}}`
		w := do(t, router, http.MethodPost, "/backtests", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		resp := decodeError(t, w)
		assert.Equal(t, domain.CodeValidation, resp.Code)
		fields := make([]string, 0, len(resp.Details))
		for _, d := range resp.Details {
			fields = append(fields, d.Field)
		}
		assert.ElementsMatch(t, []string{"startDate", "profitTarget", "capitalMode"}, fields)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/backtests", `{"params":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, domain.CodeValidation, decodeError(t, w).Code)
	})
}

func TestHandleCreate_DataLoadFailure(t *testing.T) {
	router, loader := setupRouter(t, backtest.ManagerConfig{})
	loader.SetError(&domain.DataLoadError{Source: "http", Err: errors.New("status 503")})

	w := do(t, router, http.MethodPost, "/backtests", createBody)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, domain.CodeDataLoad, decodeError(t, w).Code)
}

func TestHandleCreate_CapacityExceeded(t *testing.T) {
	router, _ := setupRouter(t, backtest.ManagerConfig{MaxActive: 1})
	createBacktest(t, router)

	w := do(t, router, http.MethodPost, "/backtests", createBody)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, domain.CodeCapacityExceeded, decodeError(t, w).Code)
}

func TestHandleStepAndStatus(t *testing.T) {
	router, _ := setupRouter(t, backtest.ManagerConfig{MaxStepDays: 30})
	id := createBacktest(t, router)

	w := do(t, router, http.MethodPost, "/backtests/"+id+"/step", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var step map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &step))
	assert.Equal(t, "running", step["status"])
	assert.Equal(t, "2024-01-02", step["currentDate"])
	assert.Len(t, step["trades"], 1)

	w = do(t, router, http.MethodPost, "/backtests/"+id+"/step", `{"days":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &step))
	assert.Len(t, step["trades"], 2)

	w = do(t, router, http.MethodGet, "/backtests/"+id+"/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status backtest.StatusReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, id, status.ID)
	assert.Equal(t, backtest.StatusRunning, status.Status)
	assert.Equal(t, 50.0, status.Progress)
	assert.Equal(t, 3, status.TotalTrades)
	assert.Empty(t, status.Error)

	w = do(t, router, http.MethodPost, "/backtests/"+id+"/step", `{"days":30}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &step))
	assert.Equal(t, "completed", step["status"])
	assert.Empty(t, step["trades"])
}

func TestHandleStep_Errors(t *testing.T) {
	router, _ := setupRouter(t, backtest.ManagerConfig{MaxStepDays: 30})
	id := createBacktest(t, router)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"zero days", "/backtests/" + id + "/step", `{"days":0}`, http.StatusBadRequest, domain.CodeValidation},
		{"too many days", "/backtests/" + id + "/step", `{"days":31}`, http.StatusBadRequest, domain.CodeValidation},
		{"bad json", "/backtests/" + id + "/step", `{"days":"x"}`, http.StatusBadRequest, domain.CodeValidation},
		{"unknown id", "/backtests/backtest_missing/step", `{"days":1}`, http.StatusNotFound, domain.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestHandleArtifacts(t *testing.T) {
	router, _ := setupRouter(t, backtest.ManagerConfig{})
	id := createBacktest(t, router)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/backtests/"+id+"/step", `{"days":10}`).Code)

	w := do(t, router, http.MethodGet, "/backtests/"+id+"/artifacts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var artifacts backtest.Artifacts
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &artifacts))
	assert.Len(t, artifacts.Trades, 3)
	assert.Equal(t, 3, artifacts.Metrics.TotalTrades)
	require.Len(t, artifacts.Holdings, 1)

	w = do(t, router, http.MethodGet, "/backtests/"+id+"/artifacts/trades.csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	records, err := csv.NewReader(bytes.NewReader(w.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.Equal(t, "id", records[0][0])

	w = do(t, router, http.MethodGet, "/backtests/"+id+"/artifacts/metrics.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	w = do(t, router, http.MethodGet, "/backtests/"+id+"/artifacts/passwords.csv", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.CodeNotFound, decodeError(t, w).Code)
}

func TestHandleListAndDelete(t *testing.T) {
	router, _ := setupRouter(t, backtest.ManagerConfig{})
	id := createBacktest(t, router)
	createBacktest(t, router)

	w := do(t, router, http.MethodGet, "/backtests", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Backtests []backtest.Record `json:"backtests"`
		Count     int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	w = do(t, router, http.MethodDelete, "/backtests/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodDelete, "/backtests/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/backtests/"+id+"/status", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStream(t *testing.T) {
	router, _ := setupRouter(t, backtest.ManagerConfig{})
	id := createBacktest(t, router)

	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/backtests/" + id + "/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var first streamMessage
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Equal(t, "status", first.Type)
	assert.Equal(t, id, first.BacktestID)

	resp, err := http.Post(srv.URL+"/backtests/"+id+"/step", "application/json", strings.NewReader(`{"days":1}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	var stepped map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &stepped))
	assert.Equal(t, string(events.BacktestStepped), stepped["type"])
	data := stepped["data"].(map[string]interface{})
	assert.Equal(t, "2024-01-02", data["currentDate"])

	resp, err = http.Post(srv.URL+"/backtests/"+id+"/step", "application/json", strings.NewReader(`{"days":10}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	var completed map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &completed))
	assert.Equal(t, string(events.BacktestCompleted), completed["type"])

	// The server closes the stream after a terminal event
	var extra map[string]interface{}
	err = wsjson.Read(ctx, conn, &extra)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHandleStream_UnknownBacktest(t *testing.T) {
	router, _ := setupRouter(t, backtest.ManagerConfig{})
	w := do(t, router, http.MethodGet, "/backtests/backtest_missing/stream", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
