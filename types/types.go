// Package types holds the domain types shared across the dashboard
// services.
package types

import "time"

// QuoteData represents the latest quote for a symbol.
type QuoteData struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Bid           float64   `json:"bid"`
	Ask           float64   `json:"ask"`
	DayHigh       float64   `json:"day_high"`
	DayLow        float64   `json:"day_low"`
	Volume        int64     `json:"volume"`
	ChangePercent float64   `json:"change_percent"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BarData represents a single historical price bar.
type BarData struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	VWAP      float64   `json:"vwap,omitempty"`
}

// IndicatorSet bundles the technical indicators computed for a symbol.
type IndicatorSet struct {
	RSI             float64 `json:"rsi"`
	RSIZone         string  `json:"rsi_zone"` // oversold, neutral, overbought
	BollingerUpper  float64 `json:"bollinger_upper"`
	BollingerMiddle float64 `json:"bollinger_middle"`
	BollingerLower  float64 `json:"bollinger_lower"`
	BollingerWidth  float64 `json:"bollinger_width"`
	ATR             float64 `json:"atr"`
}

// MarketSnapshot is the assembled market view fed into AI analysis and
// served to the dashboard.
type MarketSnapshot struct {
	Ticker      string               `json:"ticker"`
	Quote       QuoteData            `json:"quote"`
	Bars        []BarData            `json:"bars,omitempty"`
	Indicators  IndicatorSet         `json:"indicators"`
	Volatility  float64              `json:"volatility"` // realized, in percent
	Trend       string               `json:"trend"`      // up, down, neutral
	Overview    map[string]QuoteData `json:"overview,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// TradeRecommendation is one structured trade idea parsed from an AI
// analysis response.
type TradeRecommendation struct {
	Symbol       string   `json:"symbol"`
	Strategy     string   `json:"strategy"` // e.g. long_call, long_put, call_spread
	Direction    string   `json:"direction"`
	Strikes      []float64 `json:"strikes,omitempty"`
	Expiration   string   `json:"expiration,omitempty"` // YYYY-MM-DD
	DTE          int      `json:"dte"`
	EntryPrice   *float64 `json:"entry_price,omitempty"`
	ProfitTarget *float64 `json:"profit_target,omitempty"`
	StopLoss     *float64 `json:"stop_loss,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"` // 0-1, nil if not provided
	Reasoning    string   `json:"reasoning"`
}

// AnalysisReport is the full outcome of one AI analysis run.
type AnalysisReport struct {
	ID              string                `json:"id"`
	Ticker          string                `json:"ticker"`
	DTE             int                   `json:"dte"`
	ExpirationDate  string                `json:"expiration_date,omitempty"`
	Prompt          string                `json:"prompt,omitempty"`
	Response        string                `json:"response"`
	Recommendations []TradeRecommendation `json:"recommendations,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}
