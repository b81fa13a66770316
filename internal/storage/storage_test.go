package storage

import (
	"fmt"
	"testing"
	"time"

	"flowmon/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mkEvents(n int) []models.ConfluenceEvent {
	base := time.Now()
	events := make([]models.ConfluenceEvent, n)
	for i := 0; i < n; i++ {
		events[i] = models.ConfluenceEvent{
			ID:          fmt.Sprintf("evt-%d", i),
			Timestamp:   base.Add(-time.Duration(i) * time.Minute),
			Type:        models.BuyConfluence,
			Severity:    models.SeverityMedium,
			Description: "60.0% flow imbalance with -15.0% spread change (bid up, spread tightening)",
			Metrics: models.ConfluenceMetrics{
				FlowImbalance:  60,
				SpreadChange:   -15,
				BidAskMovement: "bid up, spread tightening",
			},
		}
	}
	return events
}

func mkAlerts(n int) []models.OrderFlowAlert {
	base := time.Now()
	alerts := make([]models.OrderFlowAlert, n)
	for i := 0; i < n; i++ {
		alerts[i] = models.OrderFlowAlert{
			ID:        fmt.Sprintf("alert-%d", i),
			Timestamp: base.Add(-time.Duration(i) * time.Minute),
			Type:      models.AlertVolumeSpike,
			Severity:  models.SeverityHigh,
			Title:     "Volume spike",
			Metrics:   models.AlertMetrics{VolumeRatio: 3.5},
		}
	}
	return alerts
}

func TestCheckpointRoundtrip(t *testing.T) {
	s := newTestStorage(t)

	want := models.DefaultThresholds()
	want.Flow.LargeTradeNotional = 42000
	want.Confluence.MinImbalancePercent = 45
	events := mkEvents(3)
	alerts := mkAlerts(2)

	if err := s.SaveCheckpoint("BTCUSDT", models.MarketSpot, want, events, alerts); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	got, gotEvents, gotAlerts, err := s.LoadCheckpoint("BTCUSDT", models.MarketSpot)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got == nil {
		t.Fatal("expected persisted thresholds")
	}
	if got.Flow.LargeTradeNotional != 42000 {
		t.Errorf("large trade notional %v, want 42000", got.Flow.LargeTradeNotional)
	}
	if got.Confluence.MinImbalancePercent != 45 {
		t.Errorf("min imbalance %v, want 45", got.Confluence.MinImbalancePercent)
	}
	if len(gotEvents) != 3 {
		t.Fatalf("events %d, want 3", len(gotEvents))
	}
	if gotEvents[0].ID != "evt-0" {
		t.Errorf("events must come back most-recent-first, got %s first", gotEvents[0].ID)
	}
	if gotEvents[0].Metrics.FlowImbalance != 60 || gotEvents[0].Metrics.BidAskMovement != "bid up, spread tightening" {
		t.Errorf("event metrics not preserved: %+v", gotEvents[0].Metrics)
	}
	if len(gotAlerts) != 2 {
		t.Fatalf("alerts %d, want 2", len(gotAlerts))
	}
	if gotAlerts[0].ID != "alert-0" || gotAlerts[0].Type != models.AlertVolumeSpike {
		t.Errorf("alert not preserved: %+v", gotAlerts[0])
	}
	if gotAlerts[0].Metrics.VolumeRatio != 3.5 {
		t.Errorf("alert metrics not preserved: %+v", gotAlerts[0].Metrics)
	}
}

func TestLoadCheckpoint_MissingMarket(t *testing.T) {
	s := newTestStorage(t)

	thresholds, events, alerts, err := s.LoadCheckpoint("ETHUSDT", models.MarketFutures)
	if err != nil {
		t.Fatalf("LoadCheckpoint on empty db: %v", err)
	}
	if thresholds != nil {
		t.Error("missing profile must yield nil thresholds")
	}
	if len(events) != 0 || len(alerts) != 0 {
		t.Error("missing market must yield empty histories")
	}
}

func TestSaveCheckpoint_CapsHistories(t *testing.T) {
	s := newTestStorage(t)

	err := s.SaveCheckpoint("BTCUSDT", models.MarketSpot, models.DefaultThresholds(),
		mkEvents(models.MaxHistory+5), mkAlerts(models.MaxHistory+5))
	if err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	_, events, alerts, err := s.LoadCheckpoint("BTCUSDT", models.MarketSpot)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if len(events) != models.MaxHistory {
		t.Errorf("events %d, want cap %d", len(events), models.MaxHistory)
	}
	if len(alerts) != models.MaxHistory {
		t.Errorf("alerts %d, want cap %d", len(alerts), models.MaxHistory)
	}
	// The most recent entries survive the cap.
	if events[0].ID != "evt-0" || alerts[0].ID != "alert-0" {
		t.Error("cap must drop the oldest entries, not the newest")
	}
}

func TestSaveCheckpoint_ReplacesHistories(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SaveCheckpoint("BTCUSDT", models.MarketSpot, models.DefaultThresholds(),
		mkEvents(5), mkAlerts(5)); err != nil {
		t.Fatalf("first SaveCheckpoint: %v", err)
	}
	if err := s.SaveCheckpoint("BTCUSDT", models.MarketSpot, models.DefaultThresholds(),
		mkEvents(2), mkAlerts(1)); err != nil {
		t.Fatalf("second SaveCheckpoint: %v", err)
	}

	_, events, alerts, err := s.LoadCheckpoint("BTCUSDT", models.MarketSpot)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if len(events) != 2 || len(alerts) != 1 {
		t.Errorf("checkpoint must replace histories, got %d events and %d alerts", len(events), len(alerts))
	}
}

func TestCheckpoint_MarketScoped(t *testing.T) {
	s := newTestStorage(t)

	spot := models.DefaultThresholds()
	spot.Flow.LargeTradeNotional = 10000
	futures := models.DefaultThresholds()
	futures.Flow.LargeTradeNotional = 500000

	if err := s.SaveCheckpoint("BTCUSDT", models.MarketSpot, spot, mkEvents(2), mkAlerts(2)); err != nil {
		t.Fatalf("save spot: %v", err)
	}
	if err := s.SaveCheckpoint("BTCUSDT", models.MarketFutures, futures, nil, mkAlerts(4)); err != nil {
		t.Fatalf("save futures: %v", err)
	}

	gotSpot, spotEvents, spotAlerts, err := s.LoadCheckpoint("BTCUSDT", models.MarketSpot)
	if err != nil {
		t.Fatalf("load spot: %v", err)
	}
	gotFutures, futuresEvents, futuresAlerts, err := s.LoadCheckpoint("BTCUSDT", models.MarketFutures)
	if err != nil {
		t.Fatalf("load futures: %v", err)
	}

	if gotSpot.Flow.LargeTradeNotional != 10000 || gotFutures.Flow.LargeTradeNotional != 500000 {
		t.Error("threshold profiles must be scoped per market")
	}
	if len(spotEvents) != 2 || len(spotAlerts) != 2 {
		t.Errorf("spot histories wrong: %d events, %d alerts", len(spotEvents), len(spotAlerts))
	}
	if len(futuresEvents) != 0 || len(futuresAlerts) != 4 {
		t.Errorf("futures histories wrong: %d events, %d alerts", len(futuresEvents), len(futuresAlerts))
	}
}

func TestClearAlerts(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SaveCheckpoint("BTCUSDT", models.MarketSpot, models.DefaultThresholds(),
		mkEvents(3), mkAlerts(3)); err != nil {
		t.Fatalf("save spot: %v", err)
	}
	if err := s.SaveCheckpoint("BTCUSDT", models.MarketFutures, models.DefaultThresholds(),
		nil, mkAlerts(2)); err != nil {
		t.Fatalf("save futures: %v", err)
	}

	if err := s.ClearAlerts("BTCUSDT", models.MarketSpot); err != nil {
		t.Fatalf("ClearAlerts: %v", err)
	}

	_, events, alerts, err := s.LoadCheckpoint("BTCUSDT", models.MarketSpot)
	if err != nil {
		t.Fatalf("load spot: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("spot alerts should be cleared, got %d", len(alerts))
	}
	if len(events) != 3 {
		t.Errorf("confluence events must survive ClearAlerts, got %d", len(events))
	}

	_, _, futuresAlerts, err := s.LoadCheckpoint("BTCUSDT", models.MarketFutures)
	if err != nil {
		t.Fatalf("load futures: %v", err)
	}
	if len(futuresAlerts) != 2 {
		t.Errorf("ClearAlerts must not touch other markets, got %d futures alerts", len(futuresAlerts))
	}
}
