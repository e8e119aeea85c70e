package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/etf-backtester/internal/database"
)

// SessionStats reports the backtest sessions held in memory
type SessionStats interface {
	ActiveCount() int
	SessionCount() int
}

// SystemHandlers serves host and process status
type SystemHandlers struct {
	log       zerolog.Logger
	db        *database.DB
	sessions  SessionStats
	startedAt time.Time
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, db *database.DB, sessions SessionStats) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		db:        db,
		sessions:  sessions,
		startedAt: time.Now(),
	}
}

// SystemStatusResponse is the body of GET /system/status
type SystemStatusResponse struct {
	Status         string          `json:"status"`
	CPUPercent     float64         `json:"cpuPercent"`
	MemoryPercent  float64         `json:"memoryPercent"`
	Goroutines     int             `json:"goroutines"`
	UptimeSeconds  float64         `json:"uptimeSeconds"`
	ActiveSessions int             `json:"activeSessions"`
	LoadedSessions int             `json:"loadedSessions"`
	Database       *database.Stats `json:"database,omitempty"`
}

// HandleSystemStatus handles GET /system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "ok",
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
	}

	if h.sessions != nil {
		response.ActiveSessions = h.sessions.ActiveCount()
		response.LoadedSessions = h.sessions.SessionCount()
	}

	if h.db != nil {
		stats, err := h.db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to get database statistics")
		} else {
			response.Database = stats
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system status")
	}
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short interval (100ms) to avoid blocking the request for long
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
