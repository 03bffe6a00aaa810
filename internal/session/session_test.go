package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookwatch/logger"
	"bookwatch/models"
)

type fakeFetcher struct {
	mu        sync.Mutex
	book      models.OrderBook
	ticker    models.Ticker
	trades    []models.Trade
	tickerErr error
	bookErr   error
	calls     []string
	depth     int
	limit     int
	block     chan struct{}
	entered   chan struct{}
}

func (f *fakeFetcher) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeFetcher) FetchOrderBook(ctx context.Context, depth int) (models.OrderBook, error) {
	f.record("book")
	f.depth = depth
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.book, f.bookErr
}

func (f *fakeFetcher) FetchTicker(ctx context.Context) (models.Ticker, error) {
	f.record("ticker")
	return f.ticker, f.tickerErr
}

func (f *fakeFetcher) FetchRecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	f.record("trades")
	f.limit = limit
	return f.trades, nil
}

func quietLogger() *logger.Log {
	log := logger.Logger()
	_ = log.Configure("error", "text", "discard", 0)
	return log
}

func book(bid, ask string) models.OrderBook {
	return models.OrderBook{
		Bids: []models.PriceLevel{models.NewPriceLevel(bid, "1", models.Buy)},
		Asks: []models.PriceLevel{models.NewPriceLevel(ask, "1", models.Sell)},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewSessionInitialState(t *testing.T) {
	s := New(&fakeFetcher{}, Options{Symbol: "BTCUSDT"}, quietLogger())

	assert.Equal(t, StatusLoading, s.Status())
	assert.Empty(t, s.Error())
	assert.Nil(t, s.Snapshot())
	assert.True(t, s.LastUpdate().IsZero())
	_, ok := s.Spread()
	assert.False(t, ok)
}

func TestRefreshSuccessReplacesEverything(t *testing.T) {
	done := time.Date(2024, 3, 1, 14, 5, 9, 0, time.Local)
	f := &fakeFetcher{
		book:   book("100.0", "101.0"),
		ticker: models.Ticker{Symbol: "BTCUSDT", LastPrice: decimal.RequireFromString("100.5")},
		trades: []models.Trade{{ID: 1}, {ID: 2}},
	}
	s := New(f, Options{Symbol: "BTCUSDT", Now: fixedClock(done)}, quietLogger())

	require.True(t, s.Refresh(context.Background()))

	snap := s.Snapshot()
	require.NotNil(t, snap)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, f.book, snap.OrderBook)
	assert.Equal(t, f.ticker, snap.Ticker)
	assert.Equal(t, f.trades, snap.Trades)
	assert.Equal(t, done, snap.FetchedAt)
	assert.Equal(t, done, s.LastUpdate())
	assert.Equal(t, "Last updated: 14:05:09", s.Status())
	assert.Empty(t, s.Error())

	assert.Equal(t, []string{"book", "ticker", "trades"}, f.calls)
	assert.Equal(t, 15, f.depth)
	assert.Equal(t, 15, f.limit)

	spread, ok := s.Spread()
	require.True(t, ok)
	assert.True(t, spread.Equal(decimal.RequireFromString("1.0")))
}

func TestRefreshTickerFailureKeepsPreviousSnapshot(t *testing.T) {
	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
	f := &fakeFetcher{
		book:   book("100", "101"),
		trades: []models.Trade{{ID: 7}},
	}
	s := New(f, Options{Symbol: "BTCUSDT", Now: fixedClock(first)}, quietLogger())
	require.True(t, s.Refresh(context.Background()))
	before := s.Snapshot()

	f.book = book("200", "201")
	f.trades = []models.Trade{{ID: 8}}
	f.tickerErr = errors.New("ticker: transport error: connection refused")

	assert.False(t, s.Refresh(context.Background()))

	assert.Same(t, before, s.Snapshot())
	assert.Equal(t, int64(7), s.Snapshot().Trades[0].ID)
	assert.Equal(t, first, s.LastUpdate())
	assert.Equal(t, "Last updated: 10:00:00", s.Status())
	assert.Equal(t, "Error: ticker: transport error: connection refused", s.Error())

	// the next success clears the error
	f.tickerErr = nil
	require.True(t, s.Refresh(context.Background()))
	assert.Empty(t, s.Error())
	assert.Equal(t, int64(8), s.Snapshot().Trades[0].ID)
}

func TestRefreshFailureBeforeFirstSuccess(t *testing.T) {
	f := &fakeFetcher{bookErr: errors.New("boom")}
	s := New(f, Options{}, quietLogger())

	assert.False(t, s.Refresh(context.Background()))
	assert.Nil(t, s.Snapshot())
	assert.Equal(t, StatusLoading, s.Status())
	assert.Equal(t, "Error: boom", s.Error())
	// nothing after the failing call is requested
	assert.Equal(t, []string{"book"}, f.calls)
}

func TestRefreshConcurrentFanOut(t *testing.T) {
	f := &fakeFetcher{book: book("1", "2"), trades: []models.Trade{{ID: 1}}}
	s := New(f, Options{Concurrent: true, Depth: 5, TradesLimit: 3}, quietLogger())

	require.True(t, s.Refresh(context.Background()))
	assert.ElementsMatch(t, []string{"book", "ticker", "trades"}, f.calls)
	assert.Equal(t, 5, f.depth)
	assert.Equal(t, 3, f.limit)

	f.tickerErr = errors.New("down")
	before := s.Snapshot()
	assert.False(t, s.Refresh(context.Background()))
	assert.Same(t, before, s.Snapshot())
	assert.Equal(t, "Error: down", s.Error())
}

func TestRefreshOverlapIsDropped(t *testing.T) {
	f := &fakeFetcher{
		book:    book("1", "2"),
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := New(f, Options{}, quietLogger())

	var first atomic.Bool
	done := make(chan struct{})
	go func() {
		first.Store(s.Refresh(context.Background()))
		close(done)
	}()

	<-f.entered
	assert.False(t, s.Refresh(context.Background()), "overlapping refresh must be dropped")

	close(f.block)
	<-done
	assert.True(t, first.Load())
	assert.Len(t, f.calls, 3)
}

func TestRefreshNowSetsRefreshingStatus(t *testing.T) {
	f := &fakeFetcher{bookErr: errors.New("offline")}
	s := New(f, Options{}, quietLogger())

	assert.False(t, s.RefreshNow(context.Background()))
	assert.Equal(t, StatusRefreshing, s.Status())
	assert.Equal(t, "Error: offline", s.Error())

	f.bookErr = nil
	f.book = book("1", "2")
	require.True(t, s.RefreshNow(context.Background()))
	assert.Contains(t, s.Status(), "Last updated: ")
}

func TestSpreadEmptySide(t *testing.T) {
	f := &fakeFetcher{book: models.OrderBook{Bids: []models.PriceLevel{models.NewPriceLevel("1", "1", models.Buy)}}}
	s := New(f, Options{}, quietLogger())
	require.True(t, s.Refresh(context.Background()))

	_, ok := s.Spread()
	assert.False(t, ok)
}
