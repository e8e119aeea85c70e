// Package formulas holds the numeric kernels used by the indicator engine and the
// backtest metrics. Undefined values are represented as NaN.
package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// SMA calculates a causal simple moving average over prices.
//
// The result has the same length as prices. The first period-1 entries are NaN
// because the window is not yet full; entry i (i >= period-1) is the mean of
// prices[i-period+1 .. i]. If there are fewer prices than period, or period is
// not positive, every entry is NaN.
func SMA(prices []float64, period int) []float64 {
	out := make([]float64, len(prices))
	if period < 1 || len(prices) < period {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	// talib leaves zeros in the lookback window; re-mark them as undefined
	sma := talib.Sma(prices, period)
	copy(out, sma)
	for i := 0; i < period-1; i++ {
		out[i] = math.NaN()
	}
	return out
}

// PercentDeviation returns (close - ma) / ma * 100.
// Returns NaN if ma is undefined or zero.
func PercentDeviation(close, ma float64) float64 {
	if math.IsNaN(ma) || ma == 0 {
		return math.NaN()
	}
	return (close - ma) / ma * 100
}

// CountUndefined returns how many entries of values are NaN
func CountUndefined(values []float64) int {
	n := 0
	for _, v := range values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}
