package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/options-desk/dte"
	"github.com/quantdesk/options-desk/types"
)

func testSnapshot() *types.MarketSnapshot {
	return &types.MarketSnapshot{
		Ticker: "SPY",
		Quote:  types.QuoteData{Symbol: "SPY", Price: 628.5, DayLow: 626.1, DayHigh: 631.2},
		Indicators: types.IndicatorSet{
			RSI: 54.2, RSIZone: "neutral",
			BollingerUpper: 640, BollingerMiddle: 625, BollingerLower: 610,
		},
		Volatility:  0.85,
		Trend:       "up",
		GeneratedAt: time.Now(),
	}
}

func chatReply(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func TestAnalyze(t *testing.T) {
	content := "Bullish continuation.\n```json\n" +
		`{"recommendations":[{"symbol":"SPY","strategy":"long_call","direction":"bullish","strikes":[635],"reasoning":"trend"}]}` +
		"\n```"

	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer xai-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		fmt.Fprint(w, chatReply(content))
	}))
	defer server.Close()

	client := NewClient("xai-key", server.URL, "")
	discovery := &dte.DiscoveryResult{
		Found:          true,
		Ticker:         "SPY",
		TargetDTE:      32,
		SelectedDTE:    31,
		ExpirationDate: time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
		OptionCount:    1247,
	}

	report, err := client.Analyze(context.Background(), testSnapshot(), discovery)
	require.NoError(t, err)

	assert.Equal(t, "SPY", report.Ticker)
	assert.Equal(t, 31, report.DTE)
	assert.Equal(t, "2026-09-04", report.ExpirationDate)
	assert.Equal(t, content, report.Response)
	require.Len(t, report.Recommendations, 1)
	assert.NotEmpty(t, report.ID)

	// The prompt must carry the discovered expiration and the quote.
	assert.Equal(t, defaultModel, gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Contains(t, gotReq.Messages[1].Content, "2026-09-04")
	assert.Contains(t, gotReq.Messages[1].Content, "$628.50")
}

func TestAnalyzeNotFoundDiscovery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply("Stay flat."))
	}))
	defer server.Close()

	client := NewClient("xai-key", server.URL, "")
	discovery := &dte.DiscoveryResult{Found: false, Ticker: "SPY", TargetDTE: 32, Reason: dte.ReasonOutsideTolerance}

	report, err := client.Analyze(context.Background(), testSnapshot(), discovery)
	require.NoError(t, err)
	assert.Equal(t, 32, report.DTE, "not-found keeps the nominal target DTE")
	assert.Empty(t, report.ExpirationDate)
}

func TestAnalyzeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("xai-key", server.URL, "")
	_, err := client.Analyze(context.Background(), testSnapshot(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status code")
}

func TestCachedReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply("hold"))
	}))
	defer server.Close()

	client := NewClient("xai-key", server.URL, "")

	_, ok := client.CachedReport("SPY")
	assert.False(t, ok)

	report, err := client.Analyze(context.Background(), testSnapshot(), nil)
	require.NoError(t, err)

	cached, ok := client.CachedReport("SPY")
	require.True(t, ok)
	assert.Equal(t, report.ID, cached.ID)
}
