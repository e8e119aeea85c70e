package server

import "net/http"

// endpoint documents one route of the API
type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var apiEndpoints = []endpoint{
	{"POST", "/backtests", "Create a backtest from params; body {params, dataSource?, dataUrl?}"},
	{"GET", "/backtests", "List backtests, newest first"},
	{"POST", "/backtests/{id}/step", "Advance by {days} calendar days (default 1)"},
	{"GET", "/backtests/{id}/status", "Current status, progress, equity, cash and trade count"},
	{"GET", "/backtests/{id}/artifacts", "Trades, equity curve, holdings and metrics"},
	{"GET", "/backtests/{id}/artifacts/{file}", "One artifact as trades|equity|holdings|metrics .json or .csv"},
	{"GET", "/backtests/{id}/stream", "WebSocket progress stream"},
	{"DELETE", "/backtests/{id}", "Delete a backtest and its data"},
	{"GET", "/events", "Server-Sent Events for every backtest; filter with ?types= and ?backtest="},
	{"GET", "/health", "Liveness and database check"},
	{"GET", "/system/status", "Host CPU and memory, sessions and database size"},
	{"GET", "/metrics", "Prometheus metrics"},
}

// handleDocs serves the API documentation
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "etf-backtester",
		"endpoints": apiEndpoints,
		"dataSources": map[string]string{
			"sample": "Deterministic generated prices for five NSE ETFs",
			"http":   "CSV downloaded from dataUrl",
			"bucket": "Every CSV object under the configured R2/S3 prefix",
		},
	})
}
