package models

import "fmt"

// FlowThresholds parameterize trade classification and windowing.
type FlowThresholds struct {
	LargeTradeNotional   float64 `json:"large_trade_notional"`
	RollingWindowTrades  int     `json:"rolling_window_trades"`
	RollingWindowMinutes int     `json:"rolling_window_minutes"`
	MinClusterSize       int     `json:"min_cluster_size"`
	ClusterWindowMs      int64   `json:"cluster_window_ms"`
}

// ConfluenceThresholds parameterize confluence detection.
type ConfluenceThresholds struct {
	MinImbalancePercent    float64 `json:"min_imbalance_percent"`
	MinSpreadChangePercent float64 `json:"min_spread_change_percent"`
	DetectionWindowMs      int64   `json:"detection_window_ms"`
}

// AlertThresholds parameterize the anomaly rules.
type AlertThresholds struct {
	Enabled                 bool    `json:"enabled"`
	VolumeSpikeMultiplier   float64 `json:"volume_spike_multiplier"`
	PriceChangePercent      float64 `json:"price_change_percent"`
	SpreadAnomalyMultiplier float64 `json:"spread_anomaly_multiplier"`
}

// Thresholds bundles the three independent threshold structs supplied by
// the caller. The core always receives validated, well-typed values.
type Thresholds struct {
	Flow       FlowThresholds       `json:"flow"`
	Confluence ConfluenceThresholds `json:"confluence"`
	Alerts     AlertThresholds      `json:"alerts"`
}

// DefaultThresholds returns the threshold set used when no persisted or
// configured profile exists.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Flow: FlowThresholds{
			LargeTradeNotional:   100000,
			RollingWindowTrades:  100,
			RollingWindowMinutes: 5,
			MinClusterSize:       3,
			ClusterWindowMs:      60000,
		},
		Confluence: ConfluenceThresholds{
			MinImbalancePercent:    30,
			MinSpreadChangePercent: 10,
			DetectionWindowMs:      60000,
		},
		Alerts: AlertThresholds{
			Enabled:                 true,
			VolumeSpikeMultiplier:   2.5,
			PriceChangePercent:      1.5,
			SpreadAnomalyMultiplier: 2.0,
		},
	}
}

// Validate checks threshold constraints.
func (t *Thresholds) Validate() error {
	if t.Flow.LargeTradeNotional <= 0 {
		return fmt.Errorf("flow.large_trade_notional must be positive")
	}
	if t.Flow.RollingWindowTrades < 1 {
		return fmt.Errorf("flow.rolling_window_trades must be at least 1")
	}
	if t.Flow.RollingWindowMinutes < 1 {
		return fmt.Errorf("flow.rolling_window_minutes must be at least 1")
	}
	if t.Flow.MinClusterSize < 2 {
		return fmt.Errorf("flow.min_cluster_size must be at least 2")
	}
	if t.Flow.ClusterWindowMs < 1 {
		return fmt.Errorf("flow.cluster_window_ms must be positive")
	}
	if t.Confluence.MinImbalancePercent <= 0 || t.Confluence.MinImbalancePercent > 100 {
		return fmt.Errorf("confluence.min_imbalance_percent must be in (0, 100]")
	}
	if t.Confluence.MinSpreadChangePercent <= 0 {
		return fmt.Errorf("confluence.min_spread_change_percent must be positive")
	}
	if t.Confluence.DetectionWindowMs < 0 {
		return fmt.Errorf("confluence.detection_window_ms must not be negative")
	}
	if t.Alerts.VolumeSpikeMultiplier <= 1 {
		return fmt.Errorf("alerts.volume_spike_multiplier must be greater than 1")
	}
	if t.Alerts.PriceChangePercent <= 0 {
		return fmt.Errorf("alerts.price_change_percent must be positive")
	}
	if t.Alerts.SpreadAnomalyMultiplier <= 1 {
		return fmt.Errorf("alerts.spread_anomaly_multiplier must be greater than 1")
	}
	return nil
}
