package models

import "testing"

func TestMarketTypeValidate(t *testing.T) {
	if err := MarketSpot.Validate(); err != nil {
		t.Errorf("spot should validate: %v", err)
	}
	if err := MarketFutures.Validate(); err != nil {
		t.Errorf("futures should validate: %v", err)
	}
	if err := MarketType("margin").Validate(); err == nil {
		t.Error("unknown market type should be rejected")
	}
	if err := MarketType("").Validate(); err == nil {
		t.Error("empty market type should be rejected")
	}
}

func TestRawTradeValidate(t *testing.T) {
	valid := RawTrade{ID: 1, Price: 100, Quantity: 0.5, TimeMillis: 1700000000000}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid trade rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*RawTrade)
	}{
		{"zero id", func(tr *RawTrade) { tr.ID = 0 }},
		{"negative price", func(tr *RawTrade) { tr.Price = -1 }},
		{"zero quantity", func(tr *RawTrade) { tr.Quantity = 0 }},
		{"zero time", func(tr *RawTrade) { tr.TimeMillis = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := valid
			tt.mutate(&tr)
			if err := tr.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestBookSnapshotValidate(t *testing.T) {
	valid := BookSnapshot{BidPrice: 100, AskPrice: 101}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid book rejected: %v", err)
	}
	crossed := BookSnapshot{BidPrice: 101, AskPrice: 100}
	if err := crossed.Validate(); err == nil {
		t.Error("crossed book should be rejected")
	}
	// A locked book (bid == ask) happens on thin markets and is allowed.
	locked := BookSnapshot{BidPrice: 100, AskPrice: 100}
	if err := locked.Validate(); err != nil {
		t.Errorf("locked book rejected: %v", err)
	}
	zero := BookSnapshot{}
	if err := zero.Validate(); err == nil {
		t.Error("zero prices should be rejected")
	}
}

func TestMarketDataEmpty(t *testing.T) {
	var nilData *MarketData
	if !nilData.Empty() {
		t.Error("nil data is empty")
	}
	if !(&MarketData{}).Empty() {
		t.Error("all-nil data is empty")
	}
	if (&MarketData{Ticker: &Ticker{LastPrice: 1}}).Empty() {
		t.Error("data with a ticker is not empty")
	}
	if (&MarketData{Trades: []RawTrade{{ID: 1}}}).Empty() {
		t.Error("data with trades is not empty")
	}
	if (&MarketData{Book: &BookSnapshot{BidPrice: 1, AskPrice: 2}}).Empty() {
		t.Error("data with a book is not empty")
	}
}

func TestSeverityRank(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s must outrank %s", order[i], order[i-1])
		}
	}
	if Severity("bogus").Rank() != SeverityLow.Rank() {
		t.Error("unknown severity ranks like low")
	}
}

func TestSideString(t *testing.T) {
	if SideBuy.String() != "buy" || SideSell.String() != "sell" {
		t.Errorf("side strings wrong: %s/%s", SideBuy, SideSell)
	}
}

func TestDefaultThresholdsValidate(t *testing.T) {
	th := DefaultThresholds()
	if err := th.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestThresholdsValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Thresholds)
	}{
		{"zero notional", func(th *Thresholds) { th.Flow.LargeTradeNotional = 0 }},
		{"zero window trades", func(th *Thresholds) { th.Flow.RollingWindowTrades = 0 }},
		{"zero window minutes", func(th *Thresholds) { th.Flow.RollingWindowMinutes = 0 }},
		{"cluster of one", func(th *Thresholds) { th.Flow.MinClusterSize = 1 }},
		{"zero cluster window", func(th *Thresholds) { th.Flow.ClusterWindowMs = 0 }},
		{"imbalance over 100", func(th *Thresholds) { th.Confluence.MinImbalancePercent = 101 }},
		{"zero spread change", func(th *Thresholds) { th.Confluence.MinSpreadChangePercent = 0 }},
		{"negative detection window", func(th *Thresholds) { th.Confluence.DetectionWindowMs = -1 }},
		{"spike multiplier at one", func(th *Thresholds) { th.Alerts.VolumeSpikeMultiplier = 1 }},
		{"zero price change", func(th *Thresholds) { th.Alerts.PriceChangePercent = 0 }},
		{"anomaly multiplier below one", func(th *Thresholds) { th.Alerts.SpreadAnomalyMultiplier = 0.9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			if err := th.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTotalNotional(t *testing.T) {
	stats := RollingWindowStats{TotalBuyNotional: 1500, TotalSellNotional: 500}
	if got := stats.TotalNotional(); got != 2000 {
		t.Errorf("TotalNotional() = %v, want 2000", got)
	}
}
