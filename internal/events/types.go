// Package events provides an in-process publish/subscribe bus for backtest lifecycle events.
package events

import "time"

// EventType identifies a kind of event
type EventType string

const (
	BacktestCreated    EventType = "BACKTEST_CREATED"
	BacktestStepped    EventType = "BACKTEST_STEPPED"
	BacktestCompleted  EventType = "BACKTEST_COMPLETED"
	BacktestFailed     EventType = "BACKTEST_FAILED"
	BacktestDeleted    EventType = "BACKTEST_DELETED"
	BacktestHibernated EventType = "BACKTEST_HIBERNATED"
)

// AllEventTypes lists every event type the bus carries
var AllEventTypes = []EventType{
	BacktestCreated,
	BacktestStepped,
	BacktestCompleted,
	BacktestFailed,
	BacktestDeleted,
	BacktestHibernated,
}

// Event is one published event
type Event struct {
	Type       EventType `json:"type"`
	BacktestID string    `json:"backtestId"`
	Timestamp  time.Time `json:"timestamp"`
	Data       EventData `json:"data,omitempty"`
}
