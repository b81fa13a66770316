// Package models defines the core domain entities: raw market data,
// classified order flow, windowed statistics, and analytics events.
package models

import (
	"errors"
	"fmt"
)

// MarketType selects which venue a symbol is tracked on.
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// Validate checks that the market type is one of the known venues.
func (m MarketType) Validate() error {
	switch m {
	case MarketSpot, MarketFutures:
		return nil
	}
	return fmt.Errorf("unknown market type: %q", string(m))
}

// RawTrade is a single public trade as returned by the exchange.
// IsBuyerMaker true means the resting order was a buy, so the incoming
// aggressive order was a sell.
type RawTrade struct {
	ID           int64   `json:"id"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"qty"`
	TimeMillis   int64   `json:"time"`
	IsBuyerMaker bool    `json:"isBuyerMaker"`
}

// Validate checks raw trade field constraints.
func (t *RawTrade) Validate() error {
	if t.ID <= 0 {
		return errors.New("trade ID must be positive")
	}
	if t.Price <= 0 {
		return errors.New("trade price must be positive")
	}
	if t.Quantity <= 0 {
		return errors.New("trade quantity must be positive")
	}
	if t.TimeMillis <= 0 {
		return errors.New("trade time must be positive")
	}
	return nil
}

// Ticker is a 24h rolling ticker snapshot.
type Ticker struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"lastPrice"`
	PriceChangePercent float64 `json:"priceChangePercent"`
	HighPrice          float64 `json:"highPrice"`
	LowPrice           float64 `json:"lowPrice"`
	Volume             float64 `json:"volume"`
	QuoteVolume        float64 `json:"quoteVolume"`
}

// BookSnapshot is the best bid/ask at a point in time.
type BookSnapshot struct {
	Symbol   string  `json:"symbol"`
	BidPrice float64 `json:"bidPrice"`
	BidQty   float64 `json:"bidQty"`
	AskPrice float64 `json:"askPrice"`
	AskQty   float64 `json:"askQty"`
}

// Validate checks book snapshot field constraints.
func (b *BookSnapshot) Validate() error {
	if b.BidPrice <= 0 || b.AskPrice <= 0 {
		return errors.New("bid and ask prices must be positive")
	}
	if b.AskPrice < b.BidPrice {
		return errors.New("ask must not be below bid")
	}
	return nil
}

// MarketData bundles one cycle's raw fetch results. Any field may be
// nil/empty when the corresponding fetch failed.
type MarketData struct {
	Ticker *Ticker
	Trades []RawTrade
	Book   *BookSnapshot
}

// Empty reports whether no sub-fetch produced usable data.
func (d *MarketData) Empty() bool {
	return d == nil || (d.Ticker == nil && len(d.Trades) == 0 && d.Book == nil)
}
