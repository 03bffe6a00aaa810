package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// GENERAL ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Side classifies a price level or a trade as buy or sell.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// EpochSentinel is the instant used for trade timestamps that cannot be represented.
var EpochSentinel = time.Unix(0, 0).UTC()

// ParseDecimalOrZero parses s as an exact decimal. Malformed input yields zero so a
// single bad entry cannot blank a whole order book or trade list.
func ParseDecimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

/////////////////////////////////////////////////////////////////////////////
//////////////////////////////// ORDER BOOK /////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// PriceLevel is one aggregated row of the order book.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
	Side     Side            `json:"side"`
}

// NewPriceLevel builds a level from the exchange's string tuple. Unparsable
// numbers are treated as zero.
func NewPriceLevel(price, quantity string, side Side) PriceLevel {
	p := ParseDecimalOrZero(price)
	q := ParseDecimalOrZero(quantity)
	return PriceLevel{
		Price:    p,
		Quantity: q,
		Total:    p.Mul(q),
		Side:     side,
	}
}

// Equal reports whether both levels sit at the same price. Quantity is not part
// of a level's identity.
func (l PriceLevel) Equal(other PriceLevel) bool {
	return l.Price.Equal(other.Price)
}

// Less orders levels best price first: bids descending, asks ascending.
func (l PriceLevel) Less(other PriceLevel) bool {
	if l.Side == Buy {
		return l.Price.GreaterThan(other.Price)
	}
	return l.Price.LessThan(other.Price)
}

// SortLevels sorts levels in place, best price first.
func SortLevels(levels []PriceLevel) {
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Less(levels[j])
	})
}

// OrderBook holds both sides of the book in the order the exchange sent them.
type OrderBook struct {
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	LastUpdateID int64        `json:"last_update_id"`
}

// BestBid scans the bids for the highest price. The stored order is not trusted.
func (ob OrderBook) BestBid() (decimal.Decimal, bool) {
	if len(ob.Bids) == 0 {
		return decimal.Zero, false
	}
	best := ob.Bids[0].Price
	for _, lvl := range ob.Bids[1:] {
		if lvl.Price.GreaterThan(best) {
			best = lvl.Price
		}
	}
	return best, true
}

// BestAsk scans the asks for the lowest price.
func (ob OrderBook) BestAsk() (decimal.Decimal, bool) {
	if len(ob.Asks) == 0 {
		return decimal.Zero, false
	}
	best := ob.Asks[0].Price
	for _, lvl := range ob.Asks[1:] {
		if lvl.Price.LessThan(best) {
			best = lvl.Price
		}
	}
	return best, true
}

// Spread returns lowest ask minus highest bid. The result may be negative on a
// crossed book; ok is false when either side is empty.
func (ob OrderBook) Spread() (spread decimal.Decimal, ok bool) {
	ask, okAsk := ob.BestAsk()
	bid, okBid := ob.BestBid()
	if !okAsk || !okBid {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////// TICKER / TRADES //////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Ticker carries the 24-hour statistics of the pair.
type Ticker struct {
	Symbol             string          `json:"symbol"`
	LastPrice          decimal.Decimal `json:"last_price"`
	OpenPrice          decimal.Decimal `json:"open_price"`
	HighPrice          decimal.Decimal `json:"high_price"`
	LowPrice           decimal.Decimal `json:"low_price"`
	Volume             decimal.Decimal `json:"volume"`
	PriceChangePercent decimal.Decimal `json:"price_change_percent"`
}

// Trade is one executed trade. Time is UTC; conversion to local time happens at
// render time.
type Trade struct {
	ID         int64           `json:"id"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Time       time.Time       `json:"time"`
	BuyerMaker bool            `json:"buyer_maker"`
	Side       Side            `json:"side"`
}

// TradeSide derives the aggressor side: when the buyer was the resting maker the
// seller took liquidity, so the trade is a sell.
func TradeSide(buyerMaker bool) Side {
	if buyerMaker {
		return Sell
	}
	return Buy
}

// Snapshot is an immutable composite of the three resources fetched by one
// refresh. The parts are independent reads and may not share an instant.
type Snapshot struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	OrderBook OrderBook `json:"order_book"`
	Ticker    Ticker    `json:"ticker"`
	Trades    []Trade   `json:"trades"`
	FetchedAt time.Time `json:"fetched_at"`
}
