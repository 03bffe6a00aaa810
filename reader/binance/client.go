package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"golang.org/x/time/rate"

	"bookwatch/config"
	ratemetrics "bookwatch/internal/metrics/rate"
	"bookwatch/logger"
	"bookwatch/models"
)

const (
	component   = "binance_client"
	apiPrefix   = "/api/v3/"
	maxBodySize = 8 << 20
)

// Client reads public spot market data for one symbol. It keeps no state
// between calls beyond its configuration, the HTTP client and the request
// limiter, so it is safe for concurrent use.
type Client struct {
	symbol      string
	baseURL     string
	api         *gobinance.Client
	limiter     *rate.Limiter
	timeout     time.Duration
	log         *logger.Log
	weightLimit atomic.Int64
}

// NewClient builds a Client from the exchange section of the configuration.
// Outbound connections are bound to cfg.SourceIP when it is set.
func NewClient(cfg config.ExchangeConfig, log *logger.Log) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.ConnectionPool.IdleConnTimeout,
	}

	if cfg.SourceIP != "" {
		if ip := net.ParseIP(cfg.SourceIP); ip != nil {
			dialer := &net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}}
			transport.DialContext = dialer.DialContext
		} else {
			log.WithComponent(component).WithFields(logger.Fields{"source_ip": cfg.SourceIP}).Warn("ignoring unparsable source ip")
		}
	}

	api := gobinance.NewClient("", "")
	api.HTTPClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
	api.BaseURL = cfg.BaseURL

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		symbol:  cfg.Symbol,
		baseURL: cfg.BaseURL,
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		timeout: cfg.RequestTimeout,
		log:     log,
	}

	log.WithComponent(component).WithFields(logger.Fields{
		"symbol":              cfg.Symbol,
		"base_url":            cfg.BaseURL,
		"requests_per_second": rps,
		"burst":               burst,
		"timeout":             cfg.RequestTimeout,
	}).Info("binance client initialized")

	return c
}

// Symbol returns the pair this client reads.
func (c *Client) Symbol() string { return c.symbol }

// ValidateSymbol checks through exchangeInfo that the symbol exists and is
// trading, and records the request weight limit used for used_weight metrics.
func (c *Client) ValidateSymbol(ctx context.Context) error {
	const op = "exchange info"

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return transportErr(op, err)
	}

	info, err := c.api.NewExchangeInfoService().Symbol(c.symbol).Do(ctx)
	if err != nil {
		if common.IsAPIError(err) {
			return unavailableErr(op, err)
		}
		return transportErr(op, err)
	}

	if limit := ratemetrics.RequestWeightLimit(info); limit > 0 {
		c.weightLimit.Store(limit)
	}

	for _, s := range info.Symbols {
		if s.Symbol != c.symbol {
			continue
		}
		if s.Status != "TRADING" {
			return unavailableErr(op, fmt.Errorf("symbol %s is %s", c.symbol, s.Status))
		}
		c.log.WithComponent(component).WithFields(logger.Fields{
			"symbol":       c.symbol,
			"base_asset":   s.BaseAsset,
			"quote_asset":  s.QuoteAsset,
			"weight_limit": c.weightLimit.Load(),
		}).Info("symbol validated")
		return nil
	}
	return unavailableErr(op, fmt.Errorf("symbol %s not listed", c.symbol))
}

// FetchOrderBook returns up to depth levels per side in the order the exchange
// sent them. Malformed numbers become zero.
func (c *Client) FetchOrderBook(ctx context.Context, depth int) (models.OrderBook, error) {
	const op = "order book"
	if depth < 1 {
		return models.OrderBook{}, ErrInvalidDepth
	}

	var resp depthResponse
	q := url.Values{"symbol": {c.symbol}, "limit": {strconv.Itoa(depth)}}
	if err := c.get(ctx, op, "depth", q, &resp); err != nil {
		return models.OrderBook{}, err
	}
	ob, err := resp.orderBook()
	if err != nil {
		return models.OrderBook{}, decodeErr(op, err)
	}
	return ob, nil
}

// FetchTicker returns the 24-hour statistics of the pair.
func (c *Client) FetchTicker(ctx context.Context) (models.Ticker, error) {
	const op = "ticker"

	var resp tickerResponse
	if err := c.get(ctx, op, "ticker/24hr", url.Values{"symbol": {c.symbol}}, &resp); err != nil {
		return models.Ticker{}, err
	}
	return resp.ticker(op, c.symbol)
}

// FetchRecentTrades returns up to limit recent trades in source order.
func (c *Client) FetchRecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	const op = "recent trades"
	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	var resp []tradeResponse
	q := url.Values{"symbol": {c.symbol}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, op, "trades", q, &resp); err != nil {
		return nil, err
	}

	trades := make([]models.Trade, 0, len(resp))
	for i, r := range resp {
		t, err := r.trade(i)
		if err != nil {
			return nil, decodeErr(op, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func (c *Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// get performs one GET against the public REST API and decodes the body into
// out. Errors come back classified as *FetchError.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	log := c.log.WithComponent(component).WithFields(logger.Fields{
		"symbol":    c.symbol,
		"operation": op,
	})

	ctx, cancel := c.withDeadline(ctx)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return transportErr(op, err)
	}

	reqURL := c.baseURL + apiPrefix + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return transportErr(op, err)
	}

	start := time.Now()
	resp, err := c.api.HTTPClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("request failed")
		return transportErr(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return transportErr(op, err)
	}
	logger.LogPerformanceEntry(log, component, "api_request", time.Since(start), logger.Fields{
		"path":   path,
		"status": resp.StatusCode,
		"bytes":  len(body),
	})
	ratemetrics.ReportUsedWeight(c.log, resp.Header, c.symbol, c.weightLimit.Load())

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError(log, op, path, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		log.WithError(err).Warn("failed to decode response")
		return decodeErr(op, err)
	}
	return nil
}

// statusError classifies a rejected request. An exchange error body means the
// request was understood and refused; without one a 5xx is treated as a
// transport failure.
func (c *Client) statusError(log *logger.Entry, op, path string, status int, body []byte) error {
	apiErr := &common.APIError{}
	hasAPIErr := json.Unmarshal(body, apiErr) == nil && (apiErr.Code != 0 || apiErr.Message != "")

	ratemetrics.ReportLimit(c.log, c.symbol, path, status, apiErr.Message)

	log = log.WithFields(logger.Fields{"status": status})
	if hasAPIErr {
		log.WithFields(logger.Fields{"code": apiErr.Code, "msg": apiErr.Message}).Warn("exchange rejected request")
		return unavailableErr(op, apiErr)
	}
	log.Warn("unexpected http status")
	if status >= http.StatusInternalServerError {
		return transportErr(op, fmt.Errorf("http status %d", status))
	}
	return unavailableErr(op, fmt.Errorf("http status %d", status))
}
