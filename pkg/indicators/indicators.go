// Package indicators computes trend statistics over rate series.
package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
)

// CalculateEMA calculates the Exponential Moving Average for the given period.
func CalculateEMA(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period < 1 {
		return nil, fmt.Errorf("invalid EMA period %d", period)
	}
	if len(values) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(values))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := ema.Compute(helper.SliceToChan(decimalsToFloat64(values)))

	return float64ToDecimals(helper.ChanToSlice(out)), nil
}

// CalculateRSI calculates the Relative Strength Index for the given period.
func CalculateRSI(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period < 1 {
		return nil, fmt.Errorf("invalid RSI period %d", period)
	}
	if len(values) < period+1 {
		return nil, fmt.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(values))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := rsi.Compute(helper.SliceToChan(decimalsToFloat64(values)))

	return float64ToDecimals(helper.ChanToSlice(out)), nil
}

// Last returns the final value of series, or zero when it is empty.
func Last(series []decimal.Decimal) decimal.Decimal {
	if len(series) == 0 {
		return decimal.Zero
	}

	return series[len(series)-1]
}

func decimalsToFloat64(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}

	return result
}

func float64ToDecimals(floats []float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		result[i] = decimal.NewFromFloat(f)
	}

	return result
}
