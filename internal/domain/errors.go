package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Machine-readable error codes returned to API callers
const (
	CodeValidation            = "VALIDATION_ERROR"
	CodeDataLoad              = "DATA_LOAD_ERROR"
	CodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	CodeStepExecution         = "STEP_EXECUTION_ERROR"
	CodeNotFound              = "NOT_FOUND"
	CodeCapacityExceeded      = "CAPACITY_EXCEEDED"
	CodeInternal              = "INTERNAL_ERROR"
)

var (
	// ErrBacktestNotFound is returned when no backtest exists for an id
	ErrBacktestNotFound = errors.New("backtest not found")
	// ErrCapacityExceeded is returned when too many backtests are active
	ErrCapacityExceeded = errors.New("too many active backtests")
)

// ValidationError represents a single invalid parameter
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return "invalid parameters: " + strings.Join(messages, "; ")
}

// DataLoadError means the historical source was unreachable or malformed
type DataLoadError struct {
	Source string
	Err    error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("failed to load historical data from %s: %v", e.Source, e.Err)
}

func (e *DataLoadError) Unwrap() error {
	return e.Err
}

// InsufficientInventoryError is reported when a sell asks for more than the ledger holds.
// The sale is truncated to the available quantity.
type InsufficientInventoryError struct {
	Symbol    string
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for %s: requested %d, available %d",
		e.Symbol, e.Requested, e.Available)
}

// StepExecutionError wraps an unexpected failure while simulating a day
type StepExecutionError struct {
	BacktestID string
	Date       string
	Err        error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("backtest %s failed on %s: %v", e.BacktestID, e.Date, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// ErrorCode maps an error to its machine-readable code
func ErrorCode(err error) string {
	var validation ValidationErrors
	var single ValidationError
	var dataLoad *DataLoadError
	var inventory *InsufficientInventoryError
	var step *StepExecutionError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation), errors.As(err, &single):
		return CodeValidation
	case errors.As(err, &dataLoad):
		return CodeDataLoad
	case errors.As(err, &inventory):
		return CodeInsufficientInventory
	case errors.As(err, &step):
		return CodeStepExecution
	case errors.Is(err, ErrBacktestNotFound):
		return CodeNotFound
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	default:
		return CodeInternal
	}
}
