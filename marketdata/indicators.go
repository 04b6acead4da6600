package marketdata

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/quantdesk/options-desk/types"
)

const (
	rsiPeriod       = 14
	bollingerPeriod = 20
	bollingerStdDev = 2.0
	atrPeriod       = 14
)

// Rsi computes the relative strength index over closes using Wilder
// smoothing. At least period+1 closes are required.
func Rsi(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi: period must be positive")
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("rsi: need at least %d closes, got %d", period+1, len(closes))
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), nil
}

// RsiZone maps an RSI reading to the zone labels shown on the dashboard.
func RsiZone(rsi float64) string {
	switch {
	case rsi >= 70:
		return "overbought"
	case rsi <= 30:
		return "oversold"
	default:
		return "neutral"
	}
}

// Bollinger computes Bollinger bands over the trailing period of closes.
func Bollinger(closes []float64, period int, stdDevs float64) (upper, middle, lower float64, err error) {
	if len(closes) == 0 {
		return 0, 0, 0, fmt.Errorf("bollinger: no closes provided")
	}
	if period > len(closes) {
		period = len(closes)
	}

	window := closes[len(closes)-period:]

	middle, err = stats.Mean(window)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bollinger: %w", err)
	}

	sd, err := stats.StandardDeviation(window)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("bollinger: %w", err)
	}

	return middle + sd*stdDevs, middle, middle - sd*stdDevs, nil
}

// Atr computes the average true range over the trailing period of bars.
func Atr(bars []types.BarData, period int) (float64, error) {
	if len(bars) < 2 {
		return 0, fmt.Errorf("atr: need at least 2 bars, got %d", len(bars))
	}

	trueRanges := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		highLow := bars[i].High - bars[i].Low
		highClose := math.Abs(bars[i].High - bars[i-1].Close)
		lowClose := math.Abs(bars[i].Low - bars[i-1].Close)
		trueRanges = append(trueRanges, math.Max(highLow, math.Max(highClose, lowClose)))
	}

	if period > len(trueRanges) {
		period = len(trueRanges)
	}

	atr, err := stats.Mean(trueRanges[len(trueRanges)-period:])
	if err != nil {
		return 0, fmt.Errorf("atr: %w", err)
	}
	return atr, nil
}

// RealizedVolatility is the standard deviation of close-to-close returns,
// in percent.
func RealizedVolatility(closes []float64) (float64, error) {
	if len(closes) < 2 {
		return 0, fmt.Errorf("volatility: need at least 2 closes, got %d", len(closes))
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] > 0 {
			returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
		}
	}

	sd, err := stats.StandardDeviation(returns)
	if err != nil {
		return 0, fmt.Errorf("volatility: %w", err)
	}
	return sd * 100, nil
}
