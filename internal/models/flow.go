package models

import "time"

// Side is the aggressor side of a trade: which side crossed the spread.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// TradeClassification is a side-tagged, notional-valued view of one raw
// trade. Recomputed every cycle, never mutated.
type TradeClassification struct {
	Trade    RawTrade
	Side     Side
	Notional float64
	IsLarge  bool
}

// RollingWindowStats is the reduction of one classification window.
// NetDelta is always TotalBuyNotional - TotalSellNotional.
type RollingWindowStats struct {
	TotalBuyNotional  float64
	TotalSellNotional float64
	NetDelta          float64
	BuyCount          int
	SellCount         int
	LargeTradeCount   int
	AvgTradeSize      float64
	WindowStart       time.Time
	WindowEnd         time.Time
}

// TotalNotional returns the combined buy and sell notional of the window.
func (s *RollingWindowStats) TotalNotional() float64 {
	return s.TotalBuyNotional + s.TotalSellNotional
}

// SpreadMetrics are derived from a single book snapshot.
type SpreadMetrics struct {
	BidPrice      float64
	AskPrice      float64
	Spread        float64
	MidPrice      float64
	SpreadPercent float64
}

// PriceTrend classifies the movement of a quoted price between snapshots.
type PriceTrend int

const (
	TrendStable PriceTrend = iota
	TrendUp
	TrendDown
)

func (t PriceTrend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	}
	return "stable"
}

// SpreadTrend classifies the movement of the relative spread.
type SpreadTrend int

const (
	SpreadStable SpreadTrend = iota
	SpreadTightening
	SpreadWidening
)

func (t SpreadTrend) String() string {
	switch t {
	case SpreadTightening:
		return "tightening"
	case SpreadWidening:
		return "widening"
	}
	return "stable"
}

// BookDirection is the per-field trend of the book between two snapshots.
type BookDirection struct {
	BidTrend    PriceTrend
	AskTrend    PriceTrend
	SpreadTrend SpreadTrend
}
