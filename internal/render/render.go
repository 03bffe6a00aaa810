package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"bookwatch/models"
)

// Source is the read side of a session.
type Source interface {
	Snapshot() *models.Snapshot
	Spread() (decimal.Decimal, bool)
	Status() string
	Error() string
}

// RowKind tells the presentation layer how to color a book row.
type RowKind int

const (
	AskRow RowKind = iota
	LastPriceRow
	BidRow
)

type BookRow struct {
	Kind     RowKind
	Price    string
	Quantity string
	Total    string
}

type TradeRow struct {
	Time     string
	Price    string
	Quantity string
	Side     models.Side
}

const (
	LoadingMarket = "Loading market data..."
	LoadingBook   = "Loading order book..."
	LoadingTrades = "Loading trades..."
	KeyHelp       = "Press 'q' to quit, 'r' to refresh"
)

// BookRows lays out the book for a panel with room for maxRows rows: the best
// asks with the highest on top, then the last price, then the best bids. The
// level order in the snapshot is not assumed.
func BookRows(ob models.OrderBook, lastPrice decimal.Decimal, hasLast bool, maxRows int) []BookRow {
	if maxRows < 0 {
		maxRows = 0
	}
	avail := maxRows
	if hasLast && avail > 0 {
		avail--
	}
	askRows := avail / 2
	bidRows := avail - askRows

	asks := append([]models.PriceLevel(nil), ob.Asks...)
	models.SortLevels(asks)
	if len(asks) > askRows {
		asks = asks[:askRows]
	}
	bids := append([]models.PriceLevel(nil), ob.Bids...)
	models.SortLevels(bids)
	if len(bids) > bidRows {
		bids = bids[:bidRows]
	}

	rows := make([]BookRow, 0, len(asks)+len(bids)+1)
	for i := len(asks) - 1; i >= 0; i-- {
		rows = append(rows, levelRow(AskRow, asks[i]))
	}
	if hasLast && maxRows > 0 {
		rows = append(rows, BookRow{Kind: LastPriceRow, Price: lastPrice.StringFixed(2)})
	}
	for _, b := range bids {
		rows = append(rows, levelRow(BidRow, b))
	}
	return rows
}

func levelRow(kind RowKind, l models.PriceLevel) BookRow {
	return BookRow{
		Kind:     kind,
		Price:    l.Price.StringFixed(2),
		Quantity: l.Quantity.StringFixed(6),
		Total:    l.Total.StringFixed(2),
	}
}

// Trades formats trades in source order with times in loc.
func Trades(trades []models.Trade, loc *time.Location) []TradeRow {
	if loc == nil {
		loc = time.Local
	}
	rows := make([]TradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, TradeRow{
			Time:     t.Time.In(loc).Format("15:04:05"),
			Price:    t.Price.StringFixed(2),
			Quantity: t.Quantity.StringFixed(6),
			Side:     t.Side,
		})
	}
	return rows
}

// Spread formats the spread with two decimals or N/A.
func Spread(spread decimal.Decimal, ok bool) string {
	if !ok {
		return "N/A"
	}
	return spread.StringFixed(2)
}

// MarketInfo returns the two market information lines.
func MarketInfo(t models.Ticker, spread string) (string, string) {
	ohlc := fmt.Sprintf("O: %s  H: %s  L: %s  C: %s",
		t.OpenPrice.StringFixed(2), t.HighPrice.StringFixed(2),
		t.LowPrice.StringFixed(2), t.LastPrice.StringFixed(2))
	stats := fmt.Sprintf("24h Volume: %s  |  Spread: %s  |  24h Change: %s%%",
		t.Volume.StringFixed(2), spread, t.PriceChangePercent.StringFixed(2))
	return ohlc, stats
}

// StatusLine prefers the error text over the status.
func StatusLine(status, errText string) string {
	if errText != "" {
		return errText
	}
	return status + " - " + KeyHelp
}

// Text writes a plain rendering of the current session state.
func Text(w io.Writer, src Source, depth int) error {
	snap := src.Snapshot()
	b := &strings.Builder{}

	if snap == nil {
		fmt.Fprintln(b, LoadingMarket)
		fmt.Fprintln(b, StatusLine(src.Status(), src.Error()))
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(b, "%s Order Book\n\n", snap.Symbol)
	ohlc, stats := MarketInfo(snap.Ticker, Spread(src.Spread()))
	fmt.Fprintln(b, ohlc)
	fmt.Fprintln(b, stats)
	fmt.Fprintln(b)

	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Price\tAmount\tTotal\t")
	for _, r := range BookRows(snap.OrderBook, snap.Ticker.LastPrice, true, 2*depth+1) {
		switch r.Kind {
		case LastPriceRow:
			fmt.Fprintf(tw, "%s\t\t\t\n", r.Price)
		default:
			fmt.Fprintf(tw, "%s\t%s\t%s\t\n", r.Price, r.Quantity, r.Total)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(b)
	tw = tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Time\tPrice\tAmount\tSide\t")
	for _, r := range Trades(snap.Trades, time.Local) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", r.Time, r.Price, r.Quantity, r.Side)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(b)
	fmt.Fprintln(b, StatusLine(src.Status(), src.Error()))

	_, err := io.WriteString(w, b.String())
	return err
}
