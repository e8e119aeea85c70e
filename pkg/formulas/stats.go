package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is used to annualise daily statistics
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of data
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Sum adds up data
func Sum(data []float64) float64 {
	total := 0.0
	for _, v := range data {
		total += v
	}
	return total
}

// CalculateReturns converts a value series to simple period returns.
// Returns[i] = (Values[i+1] - Values[i]) / Values[i]; zero-valued bases yield 0.
func CalculateReturns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns[i-1] = (values[i] - values[i-1]) / values[i-1]
		}
	}
	return returns
}

// SharpeRatio annualises the mean/stddev ratio of daily returns (risk-free rate 0).
// Returns 0 when there are fewer than two returns or no variance.
func SharpeRatio(dailyReturns []float64) float64 {
	sd := StdDev(dailyReturns)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return Mean(dailyReturns) / sd * math.Sqrt(TradingDaysPerYear)
}

// AnnualizedReturn compounds a total return (as a decimal) over a calendar span:
// (1+totalReturn)^(365/days) - 1. The second return value is false when days is
// not positive, in which case the annualised figure is undefined.
func AnnualizedReturn(totalReturn float64, days float64) (float64, bool) {
	if days <= 0 {
		return 0, false
	}
	base := 1 + totalReturn
	if base <= 0 {
		return -1, true
	}
	return math.Pow(base, 365/days) - 1, true
}
