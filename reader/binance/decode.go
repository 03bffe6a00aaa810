package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bookwatch/models"
)

// Pointer fields let a missing key be told apart from a zero value.

type depthResponse struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         *[][]string `json:"bids"`
	Asks         *[][]string `json:"asks"`
}

type tickerResponse struct {
	Symbol             string  `json:"symbol"`
	LastPrice          *string `json:"lastPrice"`
	OpenPrice          *string `json:"openPrice"`
	HighPrice          *string `json:"highPrice"`
	LowPrice           *string `json:"lowPrice"`
	Volume             *string `json:"volume"`
	PriceChangePercent *string `json:"priceChangePercent"`
}

type tradeResponse struct {
	ID           *int64       `json:"id"`
	Price        *string      `json:"price"`
	Qty          *string      `json:"qty"`
	Time         *json.Number `json:"time"`
	IsBuyerMaker *bool        `json:"isBuyerMaker"`
}

func (r depthResponse) orderBook() (models.OrderBook, error) {
	if r.Bids == nil {
		return models.OrderBook{}, fmt.Errorf("missing field bids")
	}
	if r.Asks == nil {
		return models.OrderBook{}, fmt.Errorf("missing field asks")
	}
	bids, err := levels(*r.Bids, models.Buy)
	if err != nil {
		return models.OrderBook{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := levels(*r.Asks, models.Sell)
	if err != nil {
		return models.OrderBook{}, fmt.Errorf("asks: %w", err)
	}
	return models.OrderBook{Bids: bids, Asks: asks, LastUpdateID: r.LastUpdateID}, nil
}

func levels(tuples [][]string, side models.Side) ([]models.PriceLevel, error) {
	out := make([]models.PriceLevel, 0, len(tuples))
	for i, t := range tuples {
		if len(t) < 2 {
			return nil, fmt.Errorf("level %d has %d elements, want 2", i, len(t))
		}
		out = append(out, models.NewPriceLevel(t[0], t[1], side))
	}
	return out, nil
}

type tickerField struct {
	name string
	raw  *string
	dst  *decimal.Decimal
}

// ticker converts the response. A missing statistic is a DecodeError; one that
// is present but not a decimal is DataUnavailable.
func (r tickerResponse) ticker(op, symbol string) (models.Ticker, error) {
	t := models.Ticker{Symbol: r.Symbol}
	if t.Symbol == "" {
		t.Symbol = symbol
	}
	fields := []tickerField{
		{"lastPrice", r.LastPrice, &t.LastPrice},
		{"openPrice", r.OpenPrice, &t.OpenPrice},
		{"highPrice", r.HighPrice, &t.HighPrice},
		{"lowPrice", r.LowPrice, &t.LowPrice},
		{"volume", r.Volume, &t.Volume},
		{"priceChangePercent", r.PriceChangePercent, &t.PriceChangePercent},
	}

	for _, f := range fields {
		if f.raw == nil {
			return models.Ticker{}, decodeErr(op, fmt.Errorf("missing field %s", f.name))
		}
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(*f.raw)
		if err != nil {
			return models.Ticker{}, unavailableErr(op, fmt.Errorf("%s %q is not a decimal", f.name, *f.raw))
		}
		*f.dst = d
	}
	return t, nil
}

func (r tradeResponse) trade(i int) (models.Trade, error) {
	switch {
	case r.ID == nil:
		return models.Trade{}, fmt.Errorf("trade %d: missing field id", i)
	case r.Price == nil:
		return models.Trade{}, fmt.Errorf("trade %d: missing field price", i)
	case r.Qty == nil:
		return models.Trade{}, fmt.Errorf("trade %d: missing field qty", i)
	case r.Time == nil:
		return models.Trade{}, fmt.Errorf("trade %d: missing field time", i)
	case r.IsBuyerMaker == nil:
		return models.Trade{}, fmt.Errorf("trade %d: missing field isBuyerMaker", i)
	}
	return models.Trade{
		ID:         *r.ID,
		Price:      models.ParseDecimalOrZero(*r.Price),
		Quantity:   models.ParseDecimalOrZero(*r.Qty),
		Time:       tradeTime(*r.Time),
		BuyerMaker: *r.IsBuyerMaker,
		Side:       models.TradeSide(*r.IsBuyerMaker),
	}, nil
}

// tradeTime converts epoch milliseconds to UTC. Values that are not integers or
// land outside years 1 to 9999 become models.EpochSentinel.
func tradeTime(n json.Number) time.Time {
	ms, err := n.Int64()
	if err != nil {
		return models.EpochSentinel
	}
	t := time.UnixMilli(ms).UTC()
	if y := t.Year(); y < 1 || y > 9999 {
		return models.EpochSentinel
	}
	return t
}
