package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewPriceLevelTotalIsExact(t *testing.T) {
	lvl := NewPriceLevel("50000.12", "0.001500", Buy)
	if !lvl.Total.Equal(dec("75.000180")) {
		t.Fatalf("unexpected total: %s", lvl.Total)
	}
	if got := lvl.Total.StringFixed(6); got != "75.000180" {
		t.Fatalf("unexpected fixed total: %s", got)
	}
}

func TestNewPriceLevelMalformedIsZero(t *testing.T) {
	lvl := NewPriceLevel("abc", "1.5", Sell)
	if !lvl.Price.IsZero() || !lvl.Total.IsZero() {
		t.Fatalf("expected zero price and total, got %+v", lvl)
	}
	if !lvl.Quantity.Equal(dec("1.5")) {
		t.Fatalf("quantity should survive a bad price: %s", lvl.Quantity)
	}
}

func TestParseDecimalOrZero(t *testing.T) {
	cases := map[string]string{
		"100.0":   "100",
		" 2.50 ":  "2.5",
		"":        "0",
		"1e3":     "1000",
		"NaN":     "0",
		"12,5":    "0",
		"-0.0001": "-0.0001",
	}
	for in, want := range cases {
		if got := ParseDecimalOrZero(in); !got.Equal(dec(want)) {
			t.Errorf("ParseDecimalOrZero(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestPriceLevelEqualIgnoresQuantity(t *testing.T) {
	a := NewPriceLevel("100.0", "1", Buy)
	b := NewPriceLevel("100.00", "7", Buy)
	if !a.Equal(b) {
		t.Fatalf("levels at the same price should be equal")
	}
	if a.Equal(NewPriceLevel("100.01", "1", Buy)) {
		t.Fatalf("levels at different prices should differ")
	}
}

func TestSortLevelsBidsDescending(t *testing.T) {
	bids := []PriceLevel{
		NewPriceLevel("99.5", "1", Buy),
		NewPriceLevel("101", "1", Buy),
		NewPriceLevel("100", "1", Buy),
	}
	SortLevels(bids)
	for i := 1; i < len(bids); i++ {
		if !bids[i-1].Price.GreaterThan(bids[i].Price) {
			t.Fatalf("bids not strictly descending: %s then %s", bids[i-1].Price, bids[i].Price)
		}
	}
}

func TestSortLevelsAsksAscending(t *testing.T) {
	asks := []PriceLevel{
		NewPriceLevel("103", "1", Sell),
		NewPriceLevel("101.5", "1", Sell),
		NewPriceLevel("102", "1", Sell),
	}
	SortLevels(asks)
	for i := 1; i < len(asks); i++ {
		if !asks[i-1].Price.LessThan(asks[i].Price) {
			t.Fatalf("asks not strictly ascending: %s then %s", asks[i-1].Price, asks[i].Price)
		}
	}
}

func TestOrderBookSpreadScansLevels(t *testing.T) {
	ob := OrderBook{
		Bids: []PriceLevel{NewPriceLevel("98", "1", Buy), NewPriceLevel("100", "1", Buy)},
		Asks: []PriceLevel{NewPriceLevel("103", "1", Sell), NewPriceLevel("101", "1", Sell)},
	}
	spread, ok := ob.Spread()
	if !ok || !spread.Equal(dec("1")) {
		t.Fatalf("unexpected spread %s (ok=%v)", spread, ok)
	}
}

func TestOrderBookSpreadCrossedIsNegative(t *testing.T) {
	ob := OrderBook{
		Bids: []PriceLevel{NewPriceLevel("102", "1", Buy)},
		Asks: []PriceLevel{NewPriceLevel("101", "1", Sell)},
	}
	spread, ok := ob.Spread()
	if !ok || !spread.Equal(dec("-1")) {
		t.Fatalf("expected -1, got %s (ok=%v)", spread, ok)
	}
}

func TestOrderBookSpreadEmptySide(t *testing.T) {
	ob := OrderBook{Asks: []PriceLevel{NewPriceLevel("101", "1", Sell)}}
	if _, ok := ob.Spread(); ok {
		t.Fatalf("expected no spread with empty bids")
	}
	ob = OrderBook{Bids: []PriceLevel{NewPriceLevel("101", "1", Buy)}}
	if _, ok := ob.Spread(); ok {
		t.Fatalf("expected no spread with empty asks")
	}
}

func TestTradeSide(t *testing.T) {
	if TradeSide(true) != Sell {
		t.Fatalf("buyer maker must classify as sell")
	}
	if TradeSide(false) != Buy {
		t.Fatalf("seller maker must classify as buy")
	}
	if Sell.String() != "SELL" || Buy.String() != "BUY" {
		t.Fatalf("unexpected side strings")
	}
}
