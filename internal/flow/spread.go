package flow

import (
	"math"

	"flowmon/internal/models"
)

// DefaultTrendThreshold is the relative-change threshold, in percent,
// below which a book field is considered stable between snapshots.
const DefaultTrendThreshold = 0.01

// ComputeSpread derives spread metrics from a book snapshot. Returns nil
// when no snapshot is available.
func ComputeSpread(book *models.BookSnapshot) *models.SpreadMetrics {
	if book == nil {
		return nil
	}
	spread := book.AskPrice - book.BidPrice
	mid := (book.BidPrice + book.AskPrice) / 2
	m := &models.SpreadMetrics{
		BidPrice: book.BidPrice,
		AskPrice: book.AskPrice,
		Spread:   spread,
		MidPrice: mid,
	}
	if mid != 0 {
		m.SpreadPercent = spread / mid * 100
	}
	return m
}

// Direction classifies the book's movement between two spread snapshots.
// Either snapshot missing means every trend is stable. A field moves only
// when its relative change, in percent, is at least threshold; a falling
// spread percent reads as tightening.
func Direction(current, previous *models.SpreadMetrics, threshold float64) models.BookDirection {
	var dir models.BookDirection
	if current == nil || previous == nil {
		return dir
	}

	dir.BidTrend = priceTrend(percentChange(current.BidPrice, previous.BidPrice), threshold)
	dir.AskTrend = priceTrend(percentChange(current.AskPrice, previous.AskPrice), threshold)

	spreadDelta := percentChange(current.SpreadPercent, previous.SpreadPercent)
	switch {
	case math.Abs(spreadDelta) < threshold:
		dir.SpreadTrend = models.SpreadStable
	case spreadDelta < 0:
		dir.SpreadTrend = models.SpreadTightening
	default:
		dir.SpreadTrend = models.SpreadWidening
	}
	return dir
}

func priceTrend(delta, threshold float64) models.PriceTrend {
	switch {
	case math.Abs(delta) < threshold:
		return models.TrendStable
	case delta > 0:
		return models.TrendUp
	default:
		return models.TrendDown
	}
}

func percentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}
