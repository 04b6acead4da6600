// Package marketdata assembles the market snapshots fed into AI analysis
// and served on the dashboard.
package marketdata

import (
	"context"
	"fmt"
	"time"

	alpacamd "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/quantdesk/options-desk/types"
)

// overviewSymbols are the global market indicators shown alongside the
// primary ticker.
var overviewSymbols = []string{"QQQ", "TLT", "GLD", "USO", "IBIT", "NDAQ"}

const (
	overviewCacheKey = "market_overview"
	overviewCacheTTL = 5 * time.Minute
	historyDays      = 90
)

// QuoteSource supplies latest quotes, typically the tastytrade client.
type QuoteSource interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]types.QuoteData, error)
}

// BarSource supplies historical bars. The Alpaca market-data client
// satisfies this.
type BarSource interface {
	GetBars(symbol string, req alpacamd.GetBarsRequest) ([]alpacamd.Bar, error)
}

// Service builds market snapshots from quotes, historical bars and
// computed indicators. Safe for concurrent use.
type Service struct {
	quotes   QuoteSource
	bars     BarSource
	overview *gocache.Cache
	now      func() time.Time
}

// NewService creates a snapshot service.
func NewService(quotes QuoteSource, bars BarSource) *Service {
	return &Service{
		quotes:   quotes,
		bars:     bars,
		overview: gocache.New(overviewCacheTTL, 10*time.Minute),
		now:      time.Now,
	}
}

// Snapshot builds the full market view for a ticker: latest quote, daily
// bars, indicators, realized volatility, trend and the cached global
// overview. Overview failures degrade to a snapshot without overview.
func (s *Service) Snapshot(ctx context.Context, ticker string) (*types.MarketSnapshot, error) {
	if ticker == "" {
		return nil, fmt.Errorf("snapshot: no ticker provided")
	}

	quotes, err := s.quotes.GetQuotes(ctx, []string{ticker})
	if err != nil {
		return nil, fmt.Errorf("snapshot: failed to fetch quote for %s: %w", ticker, err)
	}
	quote, ok := quotes[ticker]
	if !ok {
		return nil, fmt.Errorf("snapshot: no quote returned for %s", ticker)
	}

	bars, err := s.dailyBars(ticker)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	snapshot := &types.MarketSnapshot{
		Ticker:      ticker,
		Quote:       quote,
		Bars:        bars,
		GeneratedAt: s.now(),
	}

	if len(bars) > 0 {
		closes := make([]float64, len(bars))
		for i, bar := range bars {
			closes[i] = bar.Close
		}
		snapshot.Indicators = computeIndicators(closes, bars)
		snapshot.Trend = trendDirection(closes)

		if vol, err := RealizedVolatility(closes); err == nil {
			snapshot.Volatility = vol
		}
	}

	overview, err := s.Overview(ctx)
	if err != nil {
		log.Warnf("market overview unavailable: %v", err)
	} else {
		snapshot.Overview = overview
	}

	return snapshot, nil
}

// Overview returns quotes for the global market indicator symbols, cached
// for five minutes.
func (s *Service) Overview(ctx context.Context) (map[string]types.QuoteData, error) {
	if cached, found := s.overview.Get(overviewCacheKey); found {
		return cached.(map[string]types.QuoteData), nil
	}

	quotes, err := s.quotes.GetQuotes(ctx, overviewSymbols)
	if err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}

	s.overview.Set(overviewCacheKey, quotes, gocache.DefaultExpiration)
	return quotes, nil
}

func (s *Service) dailyBars(ticker string) ([]types.BarData, error) {
	end := s.now()
	start := end.AddDate(0, 0, -historyDays)

	bars, err := s.bars.GetBars(ticker, alpacamd.GetBarsRequest{
		TimeFrame: alpacamd.OneDay,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily bars for %s: %w", ticker, err)
	}

	converted := make([]types.BarData, len(bars))
	for i, bar := range bars {
		converted[i] = types.BarData{
			Symbol:    ticker,
			Timestamp: bar.Timestamp,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    int64(bar.Volume),
			VWAP:      bar.VWAP,
		}
	}

	log.Debugf("fetched %d daily bars for %s", len(converted), ticker)

	return converted, nil
}

func computeIndicators(closes []float64, bars []types.BarData) types.IndicatorSet {
	var set types.IndicatorSet

	if rsi, err := Rsi(closes, rsiPeriod); err == nil {
		set.RSI = rsi
		set.RSIZone = RsiZone(rsi)
	}

	if upper, middle, lower, err := Bollinger(closes, bollingerPeriod, bollingerStdDev); err == nil {
		set.BollingerUpper = upper
		set.BollingerMiddle = middle
		set.BollingerLower = lower
		if middle > 0 {
			set.BollingerWidth = (upper - lower) / middle * 100
		}
	}

	if atr, err := Atr(bars, atrPeriod); err == nil {
		set.ATR = atr
	}

	return set
}

func trendDirection(closes []float64) string {
	if len(closes) < 2 {
		return "neutral"
	}
	switch {
	case closes[len(closes)-1] > closes[0]:
		return "up"
	case closes[len(closes)-1] < closes[0]:
		return "down"
	default:
		return "neutral"
	}
}
