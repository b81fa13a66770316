package flow

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"flowmon/internal/models"
)

// DetectConfluence correlates the window's flow imbalance with the book's
// movement and, when both point the same way, prepends one event to the
// prior history, truncated to models.MaxHistory. Imbalance alone never
// fires: the book must corroborate, which keeps flow noise from producing
// events on its own.
//
// DetectionWindowMs acts as a cooldown: a fresh event of the same type
// within the window is suppressed.
func DetectConfluence(
	stats models.RollingWindowStats,
	current, previous *models.SpreadMetrics,
	direction models.BookDirection,
	thresholds models.ConfluenceThresholds,
	history []models.ConfluenceEvent,
	now time.Time,
) []models.ConfluenceEvent {
	totalFlow := stats.TotalNotional()
	if totalFlow == 0 {
		return history
	}
	imbalance := stats.NetDelta / totalFlow * 100
	if math.Abs(imbalance) < thresholds.MinImbalancePercent {
		return history
	}

	if current == nil || previous == nil || previous.SpreadPercent == 0 {
		return history
	}
	spreadChange := (current.SpreadPercent - previous.SpreadPercent) / previous.SpreadPercent * 100
	if math.Abs(spreadChange) < thresholds.MinSpreadChangePercent {
		return history
	}

	var (
		eventType models.ConfluenceType
		movement  string
	)
	if imbalance > 0 {
		if direction.SpreadTrend != models.SpreadTightening && direction.BidTrend != models.TrendUp {
			return history
		}
		eventType = models.BuyConfluence
		movement = fmt.Sprintf("bid %s, spread %s", direction.BidTrend, direction.SpreadTrend)
	} else {
		if direction.SpreadTrend != models.SpreadWidening && direction.AskTrend != models.TrendDown {
			return history
		}
		eventType = models.SellConfluence
		movement = fmt.Sprintf("ask %s, spread %s", direction.AskTrend, direction.SpreadTrend)
	}

	if len(history) > 0 && history[0].Type == eventType &&
		now.Sub(history[0].Timestamp) < time.Duration(thresholds.DetectionWindowMs)*time.Millisecond {
		return history
	}

	event := models.ConfluenceEvent{
		ID:        uuid.New().String(),
		Timestamp: now,
		Type:      eventType,
		Severity:  confluenceSeverity(math.Abs(imbalance)),
		Description: fmt.Sprintf("%.1f%% flow imbalance with %.1f%% spread change (%s)",
			imbalance, spreadChange, movement),
		Metrics: models.ConfluenceMetrics{
			FlowImbalance:  imbalance,
			SpreadChange:   spreadChange,
			BidAskMovement: movement,
		},
	}
	return prependEvent(history, event)
}

func confluenceSeverity(absImbalance float64) models.Severity {
	switch {
	case absImbalance > 70:
		return models.SeverityHigh
	case absImbalance > 50:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func prependEvent(history []models.ConfluenceEvent, event models.ConfluenceEvent) []models.ConfluenceEvent {
	out := make([]models.ConfluenceEvent, 0, len(history)+1)
	out = append(out, event)
	out = append(out, history...)
	if len(out) > models.MaxHistory {
		out = out[:models.MaxHistory]
	}
	return out
}
