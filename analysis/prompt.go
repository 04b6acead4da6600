package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/quantdesk/options-desk/dte"
	"github.com/quantdesk/options-desk/types"
)

const systemPrompt = `You are an options trading analyst. You receive a market
snapshot for a single underlying and respond with a concise trade plan.
Respond with a short free-text analysis followed by a JSON block of the form:

` + "```json" + `
{"recommendations": [{"symbol": "...", "strategy": "long_call|long_put|call_spread|put_spread|no_trade",
"direction": "bullish|bearish|neutral", "strikes": [0.0], "expiration": "YYYY-MM-DD",
"entry_price": 0.0, "profit_target": 0.0, "stop_loss": 0.0, "confidence": 0.0,
"reasoning": "..."}]}
` + "```"

// BuildMarketAnalysisPrompt renders the user prompt for one analysis run.
// The discovery result is optional; when present the prompt pins the trade
// plan to the discovered expiration.
func BuildMarketAnalysisPrompt(snapshot *types.MarketSnapshot, discovery *dte.DiscoveryResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze %s for an options trade.\n\n", snapshot.Ticker)

	fmt.Fprintf(&b, "CURRENT QUOTE\n")
	fmt.Fprintf(&b, "Price: $%.2f (%.2f%% on the day)\n", snapshot.Quote.Price, snapshot.Quote.ChangePercent)
	fmt.Fprintf(&b, "Day range: $%.2f - $%.2f, volume %d\n\n", snapshot.Quote.DayLow, snapshot.Quote.DayHigh, snapshot.Quote.Volume)

	fmt.Fprintf(&b, "TECHNICALS\n")
	fmt.Fprintf(&b, "RSI(14): %.1f (%s)\n", snapshot.Indicators.RSI, snapshot.Indicators.RSIZone)
	fmt.Fprintf(&b, "Bollinger: %.2f / %.2f / %.2f (width %.2f%%)\n",
		snapshot.Indicators.BollingerUpper, snapshot.Indicators.BollingerMiddle,
		snapshot.Indicators.BollingerLower, snapshot.Indicators.BollingerWidth)
	fmt.Fprintf(&b, "ATR(14): %.2f\n", snapshot.Indicators.ATR)
	fmt.Fprintf(&b, "Realized volatility: %.2f%%, trend: %s\n\n", snapshot.Volatility, snapshot.Trend)

	if len(snapshot.Overview) > 0 {
		fmt.Fprintf(&b, "MARKET OVERVIEW\n")
		symbols := make([]string, 0, len(snapshot.Overview))
		for symbol := range snapshot.Overview {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			quote := snapshot.Overview[symbol]
			fmt.Fprintf(&b, "%s: $%.2f (%+.2f%%)\n", symbol, quote.Price, quote.ChangePercent)
		}
		fmt.Fprintf(&b, "\n")
	}

	if discovery != nil && discovery.Found {
		fmt.Fprintf(&b, "EXPIRATION\n")
		fmt.Fprintf(&b, "Use the %s expiration (%d days out, %d listed contracts). ",
			discovery.ExpirationDate.Format("2006-01-02"), discovery.SelectedDTE, discovery.OptionCount)
		fmt.Fprintf(&b, "It was selected as closest to the %d DTE target.\n\n", discovery.TargetDTE)
	} else if discovery != nil {
		fmt.Fprintf(&b, "EXPIRATION\n")
		fmt.Fprintf(&b, "No tradeable expiration was found near %d DTE; assume a nominal %d DTE timeframe.\n\n",
			discovery.TargetDTE, discovery.TargetDTE)
	}

	fmt.Fprintf(&b, "Use the current price ($%.2f) and the timeframe above to pick strikes, "+
		"profit targets and stops. Recommend no_trade if conditions do not favor a position.",
		snapshot.Quote.Price)

	return b.String()
}
