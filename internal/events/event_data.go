package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// BacktestCreatedData contains data for BacktestCreated events
type BacktestCreatedData struct {
	DataSource string  `json:"dataSource"`
	StartDate  string  `json:"startDate"`
	EndDate    string  `json:"endDate"`
	Capital    float64 `json:"initialCapital"`
	Bars       int     `json:"bars"`
}

// EventType returns the event type for BacktestCreatedData
func (d *BacktestCreatedData) EventType() EventType {
	return BacktestCreated
}

// ProgressData carries the status of a backtest after a step batch.
// It is shared by BacktestStepped and BacktestCompleted events.
type ProgressData struct {
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	CurrentDate string  `json:"currentDate"`
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	TotalTrades int     `json:"totalTrades"`
	NewTrades   int     `json:"newTrades"`
	Completed   bool    `json:"completed"`
}

// EventType returns BacktestCompleted for finished runs and BacktestStepped otherwise
func (d *ProgressData) EventType() EventType {
	if d.Completed {
		return BacktestCompleted
	}
	return BacktestStepped
}

// ErrorEventData contains data for BacktestFailed events
type ErrorEventData struct {
	Code  string `json:"code"`
	Error string `json:"error"`
	Date  string `json:"date,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return BacktestFailed
}

// LifecycleData contains data for BacktestDeleted and BacktestHibernated events
type LifecycleData struct {
	Kind   EventType `json:"-"`
	Reason string    `json:"reason,omitempty"`
}

// EventType returns the lifecycle kind
func (d *LifecycleData) EventType() EventType {
	return d.Kind
}
