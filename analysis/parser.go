package analysis

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/quantdesk/options-desk/types"
)

var (
	jsonBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	tradeLineRe = regexp.MustCompile(`(?i)\b(buy|sell)\s+(?:the\s+)?\$?(\d+(?:\.\d+)?)\s+(call|put)\b`)
)

type recommendationsEnvelope struct {
	Recommendations []types.TradeRecommendation `json:"recommendations"`
}

// ParseRecommendations extracts structured trade recommendations from a
// model response. It prefers a fenced JSON block and falls back to scanning
// the free text for trade lines; an empty slice means the response carried
// no parseable recommendation.
func ParseRecommendations(response string) []types.TradeRecommendation {
	if recs := parseJSONBlock(response); len(recs) > 0 {
		return recs
	}
	return parseTradeLines(response)
}

func parseJSONBlock(response string) []types.TradeRecommendation {
	matches := jsonBlockRe.FindAllStringSubmatch(response, -1)

	for _, match := range matches {
		var envelope recommendationsEnvelope
		if err := json.Unmarshal([]byte(match[1]), &envelope); err != nil {
			log.Debugf("skipping unparseable JSON block: %v", err)
			continue
		}
		if len(envelope.Recommendations) > 0 {
			return envelope.Recommendations
		}
	}

	// Some models omit the fences entirely.
	if start := strings.Index(response, `{"recommendations"`); start >= 0 {
		if end := lastBalancedBrace(response[start:]); end > 0 {
			var envelope recommendationsEnvelope
			if err := json.Unmarshal([]byte(response[start:start+end]), &envelope); err == nil {
				return envelope.Recommendations
			}
		}
	}

	return nil
}

func parseTradeLines(response string) []types.TradeRecommendation {
	var recs []types.TradeRecommendation

	for _, match := range tradeLineRe.FindAllStringSubmatch(response, -1) {
		strike, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}

		side := strings.ToLower(match[1])
		optionType := strings.ToLower(match[3])

		// Long calls and short puts are bullish; the other two are bearish.
		var strategy, direction string
		switch {
		case side == "buy" && optionType == "call":
			strategy, direction = "long_call", "bullish"
		case side == "buy" && optionType == "put":
			strategy, direction = "long_put", "bearish"
		case side == "sell" && optionType == "call":
			strategy, direction = "short_call", "bearish"
		default:
			strategy, direction = "short_put", "bullish"
		}

		recs = append(recs, types.TradeRecommendation{
			Strategy:  strategy,
			Direction: direction,
			Strikes:   []float64{strike},
			Reasoning: "parsed from unstructured response",
		})
	}

	return recs
}

// lastBalancedBrace returns the index one past the brace that closes the
// object opening at s[0], or 0 if the braces never balance.
func lastBalancedBrace(s string) int {
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i + 1
				}
			}
		}
	}
	return 0
}
