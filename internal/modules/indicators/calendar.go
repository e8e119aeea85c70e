package indicators

import (
	"time"

	"github.com/aristath/etf-backtester/internal/domain"
)

// IsTradingDay reports whether date falls on a weekday.
// Exchange holidays are not modelled.
func IsTradingDay(date string) bool {
	t, err := domain.ParseDate(date)
	if err != nil {
		return false
	}
	return isWeekday(t)
}

// NextTradingDate returns the first trading day strictly after date
func NextTradingDate(date string) (string, error) {
	return stepTradingDate(date, 1)
}

// PreviousTradingDate returns the last trading day strictly before date
func PreviousTradingDate(date string) (string, error) {
	return stepTradingDate(date, -1)
}

func stepTradingDate(date string, direction int) (string, error) {
	t, err := domain.ParseDate(date)
	if err != nil {
		return "", err
	}
	t = t.AddDate(0, 0, direction)
	for !isWeekday(t) {
		t = t.AddDate(0, 0, direction)
	}
	return domain.FormatDate(t), nil
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
