// Package flow implements the pure order-flow analytics pipeline:
// classification, window aggregation, spread/direction tracking,
// confluence detection, anomaly alerts, and change fingerprinting.
// Every function is a pure reduction over explicit inputs; all
// cross-cycle state lives in the monitor package.
package flow

import "flowmon/internal/models"

// Classify tags each raw trade with its aggressor side, notional value,
// and large-trade flag. Input order (most-recent-first) is preserved.
//
// A trade with IsBuyerMaker set hit a resting buy order, so the incoming
// aggressor was a seller.
func Classify(trades []models.RawTrade, flow models.FlowThresholds) []models.TradeClassification {
	out := make([]models.TradeClassification, len(trades))
	for i, t := range trades {
		side := models.SideBuy
		if t.IsBuyerMaker {
			side = models.SideSell
		}
		notional := t.Price * t.Quantity
		out[i] = models.TradeClassification{
			Trade:    t,
			Side:     side,
			Notional: notional,
			IsLarge:  notional >= flow.LargeTradeNotional,
		}
	}
	return out
}
