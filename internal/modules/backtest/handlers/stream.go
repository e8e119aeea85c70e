package handlers

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/etf-backtester/internal/events"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
	streamHeartbeat    = 30 * time.Second
)

// streamMessage is one frame of the progress stream
type streamMessage struct {
	Type       string      `json:"type"`
	BacktestID string      `json:"backtestId"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       interface{} `json:"data,omitempty"`
}

// HandleStream handles GET /backtests/{id}/stream. It sends the current
// status, then every event of the backtest until it completes, fails, is
// deleted or the client disconnects.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request, id string) {
	report, err := h.service.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.log.Warn().Err(err).Str("backtest_id", id).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	// Clients only listen; reading is needed to process control frames
	ctx := conn.CloseRead(r.Context())

	queue := make(chan *events.Event, streamBuffer)
	unsubscribe := h.bus.Subscribe(func(e *events.Event) {
		if e.BacktestID != id {
			return
		}
		select {
		case queue <- e:
		default:
			h.log.Warn().Str("backtest_id", id).Str("event_type", string(e.Type)).Msg("Stream queue full, dropping event")
		}
	})
	defer unsubscribe()

	h.log.Info().Str("backtest_id", id).Msg("Client connected to progress stream")

	if err := h.send(ctx, conn, streamMessage{Type: "status", BacktestID: id, Timestamp: time.Now(), Data: report}); err != nil {
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Str("backtest_id", id).Msg("Client disconnected from progress stream")
			return

		case e := <-queue:
			msg := streamMessage{Type: string(e.Type), BacktestID: id, Timestamp: e.Timestamp, Data: e.Data}
			if err := h.send(ctx, conn, msg); err != nil {
				return
			}
			if terminal(e.Type) {
				_ = conn.Close(websocket.StatusNormalClosure, string(e.Type))
				return
			}

		case <-heartbeat.C:
			if err := h.send(ctx, conn, streamMessage{Type: "heartbeat", BacktestID: id, Timestamp: time.Now()}); err != nil {
				return
			}
		}
	}
}

func terminal(t events.EventType) bool {
	return t == events.BacktestCompleted || t == events.BacktestFailed || t == events.BacktestDeleted
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		h.log.Debug().Err(err).Str("backtest_id", msg.BacktestID).Msg("Stream write failed")
		return err
	}
	return nil
}
