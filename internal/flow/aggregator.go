package flow

import (
	"time"

	"flowmon/internal/models"
)

// Aggregate reduces a most-recent-first classification batch into rolling
// window statistics. Two candidate windows are computed, one bounded by
// trade count and one by age, and the shorter of the two is reduced. This
// bounds staleness without assuming a fixed poll cadence.
func Aggregate(classified []models.TradeClassification, flow models.FlowThresholds, now time.Time) models.RollingWindowStats {
	if len(classified) == 0 {
		return models.RollingWindowStats{WindowStart: now, WindowEnd: now}
	}

	byCount := classified
	if len(byCount) > flow.RollingWindowTrades {
		byCount = byCount[:flow.RollingWindowTrades]
	}

	cutoff := now.UnixMilli() - int64(flow.RollingWindowMinutes)*60000
	byTime := 0
	for _, c := range classified {
		if c.Trade.TimeMillis <= cutoff {
			break
		}
		byTime++
	}

	window := byCount
	if byTime < len(byCount) {
		window = classified[:byTime]
	}
	if len(window) == 0 {
		return models.RollingWindowStats{WindowStart: now, WindowEnd: now}
	}

	var stats models.RollingWindowStats
	oldest, newest := window[0].Trade.TimeMillis, window[0].Trade.TimeMillis
	for _, c := range window {
		if c.Side == models.SideBuy {
			stats.TotalBuyNotional += c.Notional
			stats.BuyCount++
		} else {
			stats.TotalSellNotional += c.Notional
			stats.SellCount++
		}
		if c.IsLarge {
			stats.LargeTradeCount++
		}
		if c.Trade.TimeMillis < oldest {
			oldest = c.Trade.TimeMillis
		}
		if c.Trade.TimeMillis > newest {
			newest = c.Trade.TimeMillis
		}
	}
	stats.NetDelta = stats.TotalBuyNotional - stats.TotalSellNotional
	stats.AvgTradeSize = (stats.TotalBuyNotional + stats.TotalSellNotional) / float64(len(window))
	stats.WindowStart = time.UnixMilli(oldest)
	stats.WindowEnd = time.UnixMilli(newest)
	return stats
}

// DetectCluster reports whether the large trades in the batch, taken in
// recency order, form a burst: at least MinClusterSize large trades whose
// first-to-Nth timestamp span fits inside ClusterWindowMs. Fewer than
// MinClusterSize large trades is never a cluster.
func DetectCluster(classified []models.TradeClassification, flow models.FlowThresholds) bool {
	var large []models.TradeClassification
	for _, c := range classified {
		if c.IsLarge {
			large = append(large, c)
		}
	}
	if len(large) < flow.MinClusterSize {
		return false
	}

	first := large[0].Trade.TimeMillis
	nth := large[flow.MinClusterSize-1].Trade.TimeMillis
	span := first - nth
	if span < 0 {
		span = -span
	}
	return span <= flow.ClusterWindowMs
}
