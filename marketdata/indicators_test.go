package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/options-desk/types"
)

func TestRsi(t *testing.T) {
	t.Run("known series", func(t *testing.T) {
		// 14-period example from the classic Wilder walkthrough.
		closes := []float64{
			44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
			45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28,
		}
		rsi, err := Rsi(closes, 14)
		require.NoError(t, err)
		assert.InDelta(t, 70.46, rsi, 1.0)
	})

	t.Run("all gains pin to 100", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		rsi, err := Rsi(closes, 14)
		require.NoError(t, err)
		assert.Equal(t, 100.0, rsi)
	})

	t.Run("steady decline reads oversold", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 100 - float64(i)
		}
		rsi, err := Rsi(closes, 14)
		require.NoError(t, err)
		assert.Less(t, rsi, 30.0)
	})

	t.Run("insufficient data", func(t *testing.T) {
		_, err := Rsi([]float64{100, 101}, 14)
		assert.Error(t, err)
	})

	t.Run("invalid period", func(t *testing.T) {
		_, err := Rsi([]float64{100, 101, 102}, 0)
		assert.Error(t, err)
	})
}

func TestRsiZone(t *testing.T) {
	assert.Equal(t, "overbought", RsiZone(75))
	assert.Equal(t, "oversold", RsiZone(25))
	assert.Equal(t, "neutral", RsiZone(50))
	assert.Equal(t, "overbought", RsiZone(70))
	assert.Equal(t, "oversold", RsiZone(30))
}

func TestBollinger(t *testing.T) {
	t.Run("constant prices collapse to middle", func(t *testing.T) {
		closes := make([]float64, 25)
		for i := range closes {
			closes[i] = 500
		}
		upper, middle, lower, err := Bollinger(closes, 20, 2.0)
		require.NoError(t, err)
		assert.Equal(t, 500.0, middle)
		assert.Equal(t, upper, lower)
	})

	t.Run("bands bracket the mean", func(t *testing.T) {
		closes := []float64{100, 102, 98, 104, 96, 103, 97, 105, 95, 101}
		upper, middle, lower, err := Bollinger(closes, 20, 2.0)
		require.NoError(t, err)
		assert.Greater(t, upper, middle)
		assert.Less(t, lower, middle)
		assert.InDelta(t, 100.1, middle, 0.001)
	})

	t.Run("no closes", func(t *testing.T) {
		_, _, _, err := Bollinger(nil, 20, 2.0)
		assert.Error(t, err)
	})
}

func TestAtr(t *testing.T) {
	bars := []types.BarData{
		{High: 102, Low: 98, Close: 100},
		{High: 103, Low: 99, Close: 102},
		{High: 105, Low: 101, Close: 104},
		{High: 104, Low: 100, Close: 101},
	}

	atr, err := Atr(bars, 14)
	require.NoError(t, err)
	// True ranges: 4, 4, 4 (gaps never exceed the bar ranges here).
	assert.InDelta(t, 4.0, atr, 0.001)

	_, err = Atr(bars[:1], 14)
	assert.Error(t, err)
}

func TestRealizedVolatility(t *testing.T) {
	t.Run("constant prices have zero volatility", func(t *testing.T) {
		vol, err := RealizedVolatility([]float64{100, 100, 100, 100})
		require.NoError(t, err)
		assert.InDelta(t, 0, vol, 1e-9)
	})

	t.Run("choppier series is more volatile", func(t *testing.T) {
		calm, err := RealizedVolatility([]float64{100, 100.5, 101, 100.7, 101.2})
		require.NoError(t, err)
		wild, err2 := RealizedVolatility([]float64{100, 105, 95, 110, 90})
		require.NoError(t, err2)
		assert.Greater(t, wild, calm)
	})

	t.Run("insufficient data", func(t *testing.T) {
		_, err := RealizedVolatility([]float64{100})
		assert.Error(t, err)
	})
}
