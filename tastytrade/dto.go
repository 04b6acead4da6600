package tastytrade

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantdesk/options-desk/types"
)

// The API nests every payload under a "data" envelope with an "items" list.

type optionChainResponseDTO struct {
	Data struct {
		Items []optionChainItemDTO `json:"items"`
	} `json:"data"`
}

type optionChainItemDTO struct {
	Symbol         string          `json:"symbol"`
	ExpirationDate string          `json:"expiration-date"`
	StrikePrice    decimal.Decimal `json:"strike-price"`
	OptionType     string          `json:"option-type"`
}

type quoteResponseDTO struct {
	Data struct {
		Items []quoteItemDTO `json:"items"`
	} `json:"data"`
}

type quoteItemDTO struct {
	Symbol       string          `json:"symbol"`
	Last         decimal.Decimal `json:"last"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	DayHigh      decimal.Decimal `json:"day-high-price"`
	DayLow       decimal.Decimal `json:"day-low-price"`
	PrevClose    decimal.Decimal `json:"prev-close"`
	Volume       decimal.Decimal `json:"volume"`
	UpdatedAtRaw int64           `json:"updated-at,omitempty"`
}

func (q quoteItemDTO) toQuoteData(now time.Time) types.QuoteData {
	last, _ := q.Last.Float64()
	bid, _ := q.Bid.Float64()
	ask, _ := q.Ask.Float64()
	high, _ := q.DayHigh.Float64()
	low, _ := q.DayLow.Float64()
	prevClose, _ := q.PrevClose.Float64()

	changePct := 0.0
	if prevClose > 0 {
		changePct = (last - prevClose) / prevClose * 100
	}

	return types.QuoteData{
		Symbol:        q.Symbol,
		Price:         last,
		Bid:           bid,
		Ask:           ask,
		DayHigh:       high,
		DayLow:        low,
		Volume:        q.Volume.IntPart(),
		ChangePercent: changePct,
		UpdatedAt:     now,
	}
}
