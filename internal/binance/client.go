// Package binance provides access to the public Binance market-data
// endpoints used by the analytics pipeline: 24h ticker, recent trades,
// and best bid/ask book ticker, for both spot and USD-M futures venues.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"flowmon/internal/logger"
	"flowmon/internal/models"
)

// ClientConfig tunes retry behavior and the underlying transport.
type ClientConfig struct {
	MaxRetries          int
	RetryDelayBase      time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Client provides access to Binance public market data.
type Client struct {
	spotAPIURL     string
	futuresAPIURL  string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Binance client.
func NewClient(spotAPIURL, futuresAPIURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	return &Client{
		spotAPIURL:    spotAPIURL,
		futuresAPIURL: futuresAPIURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// tickerResponse mirrors the 24hr ticker payload. Binance encodes all
// numeric fields as decimal strings.
type tickerResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

// tradeResponse mirrors one entry of the recent-trades payload.
type tradeResponse struct {
	ID           int64  `json:"id"`
	Price        string `json:"price"`
	Qty          string `json:"qty"`
	Time         int64  `json:"time"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

// bookTickerResponse mirrors the bookTicker payload.
type bookTickerResponse struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
	AskPrice string `json:"askPrice"`
	AskQty   string `json:"askQty"`
}

func (c *Client) baseURL(market models.MarketType) (string, string) {
	if market == models.MarketFutures {
		return c.futuresAPIURL, "/fapi/v1"
	}
	return c.spotAPIURL, "/api/v3"
}

// FetchTicker retrieves the 24h rolling ticker for a symbol.
func (c *Client) FetchTicker(ctx context.Context, symbol string, market models.MarketType) (*models.Ticker, error) {
	base, prefix := c.baseURL(market)
	u := fmt.Sprintf("%s%s/ticker/24hr?symbol=%s", base, prefix, url.QueryEscape(symbol))

	var raw tickerResponse
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch ticker: %w", err)
	}

	ticker := &models.Ticker{Symbol: raw.Symbol}
	var err error
	if ticker.LastPrice, err = strconv.ParseFloat(raw.LastPrice, 64); err != nil {
		return nil, fmt.Errorf("malformed last price %q: %w", raw.LastPrice, err)
	}
	if ticker.PriceChangePercent, err = strconv.ParseFloat(raw.PriceChangePercent, 64); err != nil {
		return nil, fmt.Errorf("malformed price change %q: %w", raw.PriceChangePercent, err)
	}
	ticker.HighPrice, _ = strconv.ParseFloat(raw.HighPrice, 64)
	ticker.LowPrice, _ = strconv.ParseFloat(raw.LowPrice, 64)
	ticker.Volume, _ = strconv.ParseFloat(raw.Volume, 64)
	ticker.QuoteVolume, _ = strconv.ParseFloat(raw.QuoteVolume, 64)
	return ticker, nil
}

// FetchRecentTrades retrieves up to limit recent public trades, returned
// most-recent-first. Malformed entries are dropped here so the pipeline
// only sees well-formed trades.
func (c *Client) FetchRecentTrades(ctx context.Context, symbol string, market models.MarketType, limit int) ([]models.RawTrade, error) {
	base, prefix := c.baseURL(market)
	u := fmt.Sprintf("%s%s/trades?symbol=%s&limit=%d", base, prefix, url.QueryEscape(symbol), limit)

	var raw []tradeResponse
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch trades: %w", err)
	}

	// Binance returns oldest-first; the pipeline wants most-recent-first.
	trades := make([]models.RawTrade, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		r := raw[i]
		price, err := strconv.ParseFloat(r.Price, 64)
		if err != nil {
			logger.Debug("Dropping trade %d with malformed price %q", r.ID, r.Price)
			continue
		}
		qty, err := strconv.ParseFloat(r.Qty, 64)
		if err != nil {
			logger.Debug("Dropping trade %d with malformed quantity %q", r.ID, r.Qty)
			continue
		}
		trade := models.RawTrade{
			ID:           r.ID,
			Price:        price,
			Quantity:     qty,
			TimeMillis:   r.Time,
			IsBuyerMaker: r.IsBuyerMaker,
		}
		if err := trade.Validate(); err != nil {
			logger.Debug("Dropping invalid trade %d: %v", r.ID, err)
			continue
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// FetchBookTicker retrieves the current best bid/ask.
func (c *Client) FetchBookTicker(ctx context.Context, symbol string, market models.MarketType) (*models.BookSnapshot, error) {
	base, prefix := c.baseURL(market)
	u := fmt.Sprintf("%s%s/ticker/bookTicker?symbol=%s", base, prefix, url.QueryEscape(symbol))

	var raw bookTickerResponse
	if err := c.getJSON(ctx, u, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch book ticker: %w", err)
	}

	book := &models.BookSnapshot{Symbol: raw.Symbol}
	var err error
	if book.BidPrice, err = strconv.ParseFloat(raw.BidPrice, 64); err != nil {
		return nil, fmt.Errorf("malformed bid price %q: %w", raw.BidPrice, err)
	}
	if book.AskPrice, err = strconv.ParseFloat(raw.AskPrice, 64); err != nil {
		return nil, fmt.Errorf("malformed ask price %q: %w", raw.AskPrice, err)
	}
	book.BidQty, _ = strconv.ParseFloat(raw.BidQty, 64)
	book.AskQty, _ = strconv.ParseFloat(raw.AskQty, 64)
	if err := book.Validate(); err != nil {
		return nil, fmt.Errorf("invalid book snapshot: %w", err)
	}
	return book, nil
}

// getJSON performs a GET with linear-backoff retry on transport errors
// and 5xx responses, decoding the body into out on success.
func (c *Client) getJSON(ctx context.Context, urlStr string, out any) error {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
