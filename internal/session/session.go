package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bookwatch/internal/metrics"
	"bookwatch/logger"
	"bookwatch/models"
)

const (
	component = "session"

	StatusLoading    = "Loading data..."
	StatusRefreshing = "Refreshing..."
)

// ErrRefreshInProgress is logged when a refresh is dropped because another one
// has not finished.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Fetcher reads the three market resources a snapshot is built from.
type Fetcher interface {
	FetchOrderBook(ctx context.Context, depth int) (models.OrderBook, error)
	FetchTicker(ctx context.Context) (models.Ticker, error)
	FetchRecentTrades(ctx context.Context, limit int) ([]models.Trade, error)
}

type Options struct {
	Symbol      string
	Depth       int
	TradesLimit int
	// Concurrent issues the three requests in parallel instead of one after
	// another. The snapshot is still replaced only when all of them succeed.
	Concurrent bool
	// Now is the clock used for the last update time. Defaults to time.Now.
	Now func() time.Time
}

// Session owns the current market snapshot and the status shown to the user.
// The snapshot is swapped as a whole so readers never see a mix of two
// refreshes.
type Session struct {
	fetcher Fetcher
	opts    Options
	log     *logger.Log

	snapshot atomic.Pointer[models.Snapshot]
	inFlight atomic.Bool

	mu         sync.RWMutex
	status     string
	errText    string
	lastUpdate time.Time
}

func New(fetcher Fetcher, opts Options, log *logger.Log) *Session {
	if opts.Depth <= 0 {
		opts.Depth = 15
	}
	if opts.TradesLimit <= 0 {
		opts.TradesLimit = 15
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Session{
		fetcher: fetcher,
		opts:    opts,
		log:     log,
		status:  StatusLoading,
	}
}

// Refresh fetches a new snapshot and swaps it in. On failure the previous
// snapshot and status are kept and the error text is set. It returns true when
// a new snapshot was stored; a call made while another refresh is running is
// dropped and returns false.
func (s *Session) Refresh(ctx context.Context) bool {
	log := s.log.WithComponent(component).WithFields(logger.Fields{"symbol": s.opts.Symbol})

	if !s.inFlight.CompareAndSwap(false, true) {
		log.WithError(ErrRefreshInProgress).Debug("refresh dropped")
		metrics.EmitMetric(s.log, component, "refresh_dropped", int64(1), "counter", logger.Fields{"symbol": s.opts.Symbol})
		return false
	}
	defer s.inFlight.Store(false)

	start := time.Now()
	snap, err := s.fetch(ctx)
	duration := time.Since(start)
	metrics.EmitMetric(s.log, component, "refresh_duration_ms", float64(duration.Nanoseconds())/1e6, "gauge", logger.Fields{"symbol": s.opts.Symbol})

	if err != nil {
		s.mu.Lock()
		s.errText = "Error: " + err.Error()
		s.mu.Unlock()

		log.WithError(err).Warn("refresh failed")
		metrics.EmitMetric(s.log, component, "refresh_failure", int64(1), "counter", logger.Fields{"symbol": s.opts.Symbol})
		return false
	}

	completed := s.opts.Now()
	snap.FetchedAt = completed
	s.snapshot.Store(snap)

	s.mu.Lock()
	s.lastUpdate = completed
	s.status = "Last updated: " + completed.Format("15:04:05")
	s.errText = ""
	s.mu.Unlock()

	fields := logger.Fields{
		"snapshot_id": snap.ID,
		"bids":        len(snap.OrderBook.Bids),
		"asks":        len(snap.OrderBook.Asks),
		"trades":      len(snap.Trades),
	}
	logger.LogPerformanceEntry(log, component, "refresh", duration, fields)
	metrics.EmitMetric(s.log, component, "refresh_success", int64(1), "counter", logger.Fields{"symbol": s.opts.Symbol})
	if spread, ok := snap.OrderBook.Spread(); ok {
		metrics.EmitMetric(s.log, component, "spread", spread.InexactFloat64(), "gauge", logger.Fields{"symbol": s.opts.Symbol})
	}
	return true
}

// RefreshNow marks the session as refreshing and refreshes immediately.
func (s *Session) RefreshNow(ctx context.Context) bool {
	s.mu.Lock()
	s.status = StatusRefreshing
	s.mu.Unlock()
	return s.Refresh(ctx)
}

func (s *Session) fetch(ctx context.Context) (*models.Snapshot, error) {
	var (
		ob     models.OrderBook
		ticker models.Ticker
		trades []models.Trade
	)

	if s.opts.Concurrent {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			ob, err = s.fetcher.FetchOrderBook(gctx, s.opts.Depth)
			return err
		})
		g.Go(func() (err error) {
			ticker, err = s.fetcher.FetchTicker(gctx)
			return err
		})
		g.Go(func() (err error) {
			trades, err = s.fetcher.FetchRecentTrades(gctx, s.opts.TradesLimit)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if ob, err = s.fetcher.FetchOrderBook(ctx, s.opts.Depth); err != nil {
			return nil, err
		}
		if ticker, err = s.fetcher.FetchTicker(ctx); err != nil {
			return nil, err
		}
		if trades, err = s.fetcher.FetchRecentTrades(ctx, s.opts.TradesLimit); err != nil {
			return nil, err
		}
	}

	return &models.Snapshot{
		ID:        uuid.NewString(),
		Symbol:    s.opts.Symbol,
		OrderBook: ob,
		Ticker:    ticker,
		Trades:    trades,
	}, nil
}

// Spread returns lowest ask minus highest bid of the current snapshot. ok is
// false before the first snapshot or when either side of the book is empty.
func (s *Session) Spread() (decimal.Decimal, bool) {
	snap := s.snapshot.Load()
	if snap == nil {
		return decimal.Zero, false
	}
	return snap.OrderBook.Spread()
}

// Snapshot returns the current snapshot, nil before the first successful
// refresh. Callers must not modify it.
func (s *Session) Snapshot() *models.Snapshot {
	return s.snapshot.Load()
}

func (s *Session) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Error returns the text of the last failed refresh, empty after a success.
func (s *Session) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errText
}

// LastUpdate returns the completion time of the last successful refresh.
func (s *Session) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Symbol returns the pair this session tracks.
func (s *Session) Symbol() string { return s.opts.Symbol }
