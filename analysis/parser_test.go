package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecommendationsJSONBlock(t *testing.T) {
	response := "The setup favors upside into next month.\n\n" +
		"```json\n" +
		`{"recommendations": [{"symbol": "SPY", "strategy": "long_call", "direction": "bullish",
		"strikes": [635.0], "expiration": "2026-09-04", "entry_price": 4.20, "profit_target": 6.30,
		"stop_loss": 2.10, "confidence": 0.72, "reasoning": "uptrend with neutral RSI"}]}` +
		"\n```\n"

	recs := ParseRecommendations(response)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "SPY", rec.Symbol)
	assert.Equal(t, "long_call", rec.Strategy)
	assert.Equal(t, []float64{635.0}, rec.Strikes)
	assert.Equal(t, "2026-09-04", rec.Expiration)
	require.NotNil(t, rec.Confidence)
	assert.Equal(t, 0.72, *rec.Confidence)
}

func TestParseRecommendationsUnfencedJSON(t *testing.T) {
	response := `Here is the plan: {"recommendations": [{"symbol": "SPY", "strategy": "long_put",
	"direction": "bearish", "strikes": [620.0], "reasoning": "overbought"}]} Good luck.`

	recs := ParseRecommendations(response)
	require.Len(t, recs, 1)
	assert.Equal(t, "long_put", recs[0].Strategy)
}

func TestParseRecommendationsTextFallback(t *testing.T) {
	response := "No structured output today. I would buy the $635 call for a move higher, " +
		"and aggressive traders could sell the 610 put."

	recs := ParseRecommendations(response)
	require.Len(t, recs, 2)
	assert.Equal(t, "long_call", recs[0].Strategy)
	assert.Equal(t, []float64{635}, recs[0].Strikes)
	assert.Equal(t, "short_put", recs[1].Strategy)
	assert.Equal(t, []float64{610}, recs[1].Strikes)
}

func TestParseRecommendationsMalformedJSONFallsThrough(t *testing.T) {
	response := "```json\n{not valid json}\n```\nbuy the $640 call"

	recs := ParseRecommendations(response)
	require.Len(t, recs, 1)
	assert.Equal(t, []float64{640}, recs[0].Strikes)
}

func TestParseRecommendationsNothingParseable(t *testing.T) {
	recs := ParseRecommendations("Markets look choppy, best to stay flat this week.")
	assert.Empty(t, recs)
}
