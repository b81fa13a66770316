package models

import "time"

// MaxHistory caps the confluence event and alert histories. Both lists
// are most-recent-first; the oldest entry is evicted past the cap.
const MaxHistory = 20

// Severity grades confluence events and alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for comparison; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	}
	return 0
}

// ConfluenceType tags the direction of a confluence event.
type ConfluenceType string

const (
	BuyConfluence  ConfluenceType = "buy_confluence"
	SellConfluence ConfluenceType = "sell_confluence"
)

// ConfluenceMetrics are the measurements that triggered a confluence event.
type ConfluenceMetrics struct {
	FlowImbalance  float64
	SpreadChange   float64
	BidAskMovement string
}

// ConfluenceEvent records a moment where flow imbalance and book movement
// corroborated the same directional pressure.
type ConfluenceEvent struct {
	ID          string
	Timestamp   time.Time
	Type        ConfluenceType
	Description string
	Severity    Severity
	Metrics     ConfluenceMetrics
}

// AlertType tags which anomaly rule fired.
type AlertType string

const (
	AlertLiquidationProxy AlertType = "liquidation_proxy"
	AlertVolumeSpike      AlertType = "volume_spike"
	AlertSpreadAnomaly    AlertType = "spread_anomaly"
)

// AlertMetrics are the measurements behind an alert.
type AlertMetrics struct {
	VolumeRatio        float64
	PriceChangePercent float64
	SpreadRatio        float64
}

// OrderFlowAlert is a single anomaly detection, kept in a capped
// most-recent-first history independent from confluence events.
type OrderFlowAlert struct {
	ID          string
	Timestamp   time.Time
	Type        AlertType
	Severity    Severity
	Title       string
	Description string
	Metrics     AlertMetrics
}
