package flow

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"flowmon/internal/models"
)

// AlertInputs carries everything the anomaly rules compare against:
// the current window, the previous cycle's snapshot, prices, the current
// spread, and the orchestrator's smoothed baselines.
type AlertInputs struct {
	Stats         models.RollingWindowStats
	PreviousStats *models.RollingWindowStats
	Price         float64
	PreviousPrice float64
	Spread        *models.SpreadMetrics
	AvgVolume     float64
	AvgSpread     float64
}

// GenerateAlerts runs the three independent anomaly rules and returns the
// alerts that fired this cycle, in rule order. Rules are order-insensitive
// with respect to each other; a disabled threshold set fires nothing.
func GenerateAlerts(in AlertInputs, thresholds models.AlertThresholds, now time.Time) []models.OrderFlowAlert {
	if !thresholds.Enabled {
		return nil
	}
	var fired []models.OrderFlowAlert
	if a := liquidationProxy(in, thresholds, now); a != nil {
		fired = append(fired, *a)
	}
	if a := volumeSpike(in, thresholds, now); a != nil {
		fired = append(fired, *a)
	}
	if a := spreadAnomaly(in, thresholds, now); a != nil {
		fired = append(fired, *a)
	}
	return fired
}

// liquidationProxy infers likely forced liquidations from a simultaneous
// volume spike and sharp price move against the previous cycle. It is a
// heuristic, not a read of an authenticated liquidation feed.
func liquidationProxy(in AlertInputs, thresholds models.AlertThresholds, now time.Time) *models.OrderFlowAlert {
	if in.PreviousStats == nil || in.PreviousPrice == 0 {
		return nil
	}
	prevTotal := in.PreviousStats.TotalNotional()
	if prevTotal == 0 {
		return nil
	}
	volumeRatio := in.Stats.TotalNotional() / prevTotal
	priceChange := (in.Price - in.PreviousPrice) / in.PreviousPrice * 100
	if volumeRatio < thresholds.VolumeSpikeMultiplier || math.Abs(priceChange) < thresholds.PriceChangePercent {
		return nil
	}

	absChange := math.Abs(priceChange)
	severity := models.SeverityLow
	switch {
	case absChange > 5:
		severity = models.SeverityCritical
	case absChange > 3:
		severity = models.SeverityHigh
	case absChange > 2:
		severity = models.SeverityMedium
	}

	direction := "long"
	if priceChange < 0 {
		direction = "short"
	}
	return &models.OrderFlowAlert{
		ID:        uuid.New().String(),
		Timestamp: now,
		Type:      models.AlertLiquidationProxy,
		Severity:  severity,
		Title:     "Possible liquidation cascade",
		Description: fmt.Sprintf("%.1fx volume with %+.2f%% price move, consistent with %s liquidations",
			volumeRatio, priceChange, direction),
		Metrics: models.AlertMetrics{
			VolumeRatio:        volumeRatio,
			PriceChangePercent: priceChange,
		},
	}
}

// volumeSpike compares the current window notional against the smoothed
// average volume baseline.
func volumeSpike(in AlertInputs, thresholds models.AlertThresholds, now time.Time) *models.OrderFlowAlert {
	if in.AvgVolume == 0 {
		return nil
	}
	ratio := in.Stats.TotalNotional() / in.AvgVolume
	if ratio < thresholds.VolumeSpikeMultiplier {
		return nil
	}

	severity := models.SeverityLow
	switch {
	case ratio > 5:
		severity = models.SeverityHigh
	case ratio > 3:
		severity = models.SeverityMedium
	}
	return &models.OrderFlowAlert{
		ID:          uuid.New().String(),
		Timestamp:   now,
		Type:        models.AlertVolumeSpike,
		Severity:    severity,
		Title:       "Volume spike",
		Description: fmt.Sprintf("Window volume %.1fx above the smoothed average", ratio),
		Metrics:     models.AlertMetrics{VolumeRatio: ratio},
	}
}

// spreadAnomaly compares the current relative spread against the smoothed
// average spread baseline.
func spreadAnomaly(in AlertInputs, thresholds models.AlertThresholds, now time.Time) *models.OrderFlowAlert {
	if in.Spread == nil || in.AvgSpread == 0 {
		return nil
	}
	ratio := in.Spread.SpreadPercent / in.AvgSpread
	if ratio < thresholds.SpreadAnomalyMultiplier {
		return nil
	}

	severity := models.SeverityLow
	switch {
	case ratio > 3:
		severity = models.SeverityHigh
	case ratio > 2:
		severity = models.SeverityMedium
	}
	return &models.OrderFlowAlert{
		ID:          uuid.New().String(),
		Timestamp:   now,
		Type:        models.AlertSpreadAnomaly,
		Severity:    severity,
		Title:       "Spread anomaly",
		Description: fmt.Sprintf("Spread %.1fx wider than the smoothed average (%.4f%%)", ratio, in.Spread.SpreadPercent),
		Metrics:     models.AlertMetrics{SpreadRatio: ratio},
	}
}

// PrependAlerts puts this cycle's fired alerts ahead of the history and
// truncates to models.MaxHistory.
func PrependAlerts(history, fired []models.OrderFlowAlert) []models.OrderFlowAlert {
	if len(fired) == 0 {
		return history
	}
	out := make([]models.OrderFlowAlert, 0, len(history)+len(fired))
	out = append(out, fired...)
	out = append(out, history...)
	if len(out) > models.MaxHistory {
		out = out[:models.MaxHistory]
	}
	return out
}
