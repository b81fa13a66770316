// Package monitor owns the polling loop and every piece of cross-cycle
// state: the previous spread/stats/price snapshots, the smoothed
// baselines, the change fingerprint, and the capped event and alert
// histories. All analytics are delegated to the pure functions in
// internal/flow; consumers only ever receive copies.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"flowmon/internal/flow"
	"flowmon/internal/logger"
	"flowmon/internal/models"
)

// DefaultSmoothingAlpha is the EMA decay for the volume and spread
// baselines. Taken as given from the source heuristic; configurable but
// not retuned.
const DefaultSmoothingAlpha = 0.05

// ErrNoData is recorded when every sub-fetch of a cycle came back empty.
var ErrNoData = errors.New("no market data available")

// State is the orchestrator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateSettled:
		return "settled"
	}
	return "idle"
}

// Fetcher is the transport collaborator. Implementations recover network
// failures internally; the monitor additionally maps any returned error
// to missing data, so transport trouble never propagates past this
// boundary.
type Fetcher interface {
	FetchTicker(ctx context.Context, symbol string, market models.MarketType) (*models.Ticker, error)
	FetchRecentTrades(ctx context.Context, symbol string, market models.MarketType, limit int) ([]models.RawTrade, error)
	FetchBookTicker(ctx context.Context, symbol string, market models.MarketType) (*models.BookSnapshot, error)
}

// Notifier receives alert and cycle-health notifications. Optional.
type Notifier interface {
	NotifyAlerts(alerts []models.OrderFlowAlert) error
	NotifyError(err error) error
	NotifyRecovery(failureCount int) error
}

// Checkpointer persists threshold profiles and the capped histories so a
// restart resumes where it left off. Optional.
type Checkpointer interface {
	SaveCheckpoint(symbol string, market models.MarketType, thresholds models.Thresholds,
		events []models.ConfluenceEvent, alerts []models.OrderFlowAlert) error
	LoadCheckpoint(symbol string, market models.MarketType) (*models.Thresholds,
		[]models.ConfluenceEvent, []models.OrderFlowAlert, error)
	ClearAlerts(symbol string, market models.MarketType) error
}

// Config holds the orchestrator's own settings; the analytics thresholds
// travel separately so they can be swapped at runtime.
type Config struct {
	Symbol         string
	Market         models.MarketType
	PollInterval   time.Duration
	TradeLimit     int
	TrendThreshold float64
	SmoothingAlpha float64
}

// memory is the non-reactive scratch state that must survive across poll
// cycles. It is owned exclusively by the monitor, mutated in place, and
// never handed out by reference.
type memory struct {
	previousSpread *models.SpreadMetrics
	previousStats  *models.RollingWindowStats
	previousPrice  float64
	avgVolume      float64
	avgSpread      float64
	emaSeeded      bool
}

// Snapshot is the immutable view handed to observers.
type Snapshot struct {
	Symbol          string
	Market          models.MarketType
	Data            *models.MarketData
	IsLoading       bool
	LastError       string
	LastUpdated     time.Time
	RollingStats    *models.RollingWindowStats
	SpreadMetrics   *models.SpreadMetrics
	BookDirection   models.BookDirection
	ClusterDetected bool
	Confluence      []models.ConfluenceEvent
	Alerts          []models.OrderFlowAlert
}

// Monitor drives the poll cycles for a single tracked market.
type Monitor struct {
	fetcher  Fetcher
	notifier Notifier
	store    Checkpointer

	mu         sync.Mutex
	cfg        Config
	thresholds models.Thresholds
	mem        memory
	state      State

	fingerprint    flow.Fingerprint
	hasFingerprint bool
	initialLoaded  bool

	snap       Snapshot
	confluence []models.ConfluenceEvent
	alerts     []models.OrderFlowAlert

	subscribers []func(Snapshot)

	generation  uint64
	cancelCycle context.CancelFunc
	loopCancel  context.CancelFunc
	loopDone    chan struct{}
	running     bool

	consecutiveFailures int
}

// New creates a monitor. store and notifier may be nil. When a persisted
// checkpoint exists for the configured market it overrides the supplied
// thresholds and seeds the histories.
func New(fetcher Fetcher, store Checkpointer, notifier Notifier, cfg Config, thresholds models.Thresholds) *Monitor {
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = flow.DefaultTrendThreshold
	}
	if cfg.SmoothingAlpha <= 0 {
		cfg.SmoothingAlpha = DefaultSmoothingAlpha
	}
	if cfg.TradeLimit <= 0 {
		cfg.TradeLimit = 100
	}

	m := &Monitor{
		fetcher:    fetcher,
		notifier:   notifier,
		store:      store,
		cfg:        cfg,
		thresholds: thresholds,
		snap:       Snapshot{Symbol: cfg.Symbol, Market: cfg.Market},
	}

	if store != nil {
		persisted, events, alerts, err := store.LoadCheckpoint(cfg.Symbol, cfg.Market)
		if err != nil {
			logger.Warn("Failed to load checkpoint for %s/%s: %v", cfg.Symbol, cfg.Market, err)
		} else {
			if persisted != nil {
				m.thresholds = *persisted
			}
			m.confluence = events
			m.alerts = alerts
			m.snap.Confluence = copyEvents(events)
			m.snap.Alerts = copyAlerts(alerts)
			if len(events) > 0 || len(alerts) > 0 {
				logger.Info("Restored %d confluence events and %d alerts for %s/%s",
					len(events), len(alerts), cfg.Symbol, cfg.Market)
			}
		}
	}

	return m
}

// Start arms the polling loop: one immediate cycle, then one cycle per
// poll interval. It returns an error when the monitor is already running.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("monitor already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.loopCancel = cancel
	m.loopDone = make(chan struct{})
	interval := m.cfg.PollInterval
	m.mu.Unlock()

	go m.run(loopCtx, interval)
	return nil
}

func (m *Monitor) run(ctx context.Context, interval time.Duration) {
	defer close(m.loopDone)

	logger.Debug("Running initial cycle")
	m.runCycle(ctx, true)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Debug("Starting scheduled cycle")
			m.runCycle(ctx, false)
		}
	}
}

// Stop disables polling. The last published state stays intact.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.loopCancel
	done := m.loopDone
	if m.cancelCycle != nil {
		m.cancelCycle()
		m.cancelCycle = nil
	}
	m.state = StateIdle
	m.mu.Unlock()

	cancel()
	<-done
}

// Refetch triggers a manual, observable cycle regardless of timer phase.
// Unlike background ticks it always surfaces loading and error state.
func (m *Monitor) Refetch(ctx context.Context) {
	m.runCycle(ctx, true)
}

// SetMarket switches the tracked market. The scratch memory, fingerprint,
// and both histories are reset: confluence and alerts are market-scoped.
func (m *Monitor) SetMarket(symbol string, market models.MarketType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Symbol == symbol && m.cfg.Market == market {
		return
	}
	logger.Info("Switching market %s/%s -> %s/%s", m.cfg.Symbol, m.cfg.Market, symbol, market)
	m.cfg.Symbol = symbol
	m.cfg.Market = market
	m.mem = memory{}
	m.hasFingerprint = false
	m.initialLoaded = false
	m.confluence = nil
	m.alerts = nil
	m.snap = Snapshot{Symbol: symbol, Market: market}
	if m.cancelCycle != nil {
		m.cancelCycle()
		m.cancelCycle = nil
	}
	m.generation++
}

// SetThresholds swaps all three threshold structs. Takes effect on the
// next cycle, never retroactively.
func (m *Monitor) SetThresholds(t models.Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = t
}

// Thresholds returns the currently active threshold set.
func (m *Monitor) Thresholds() models.Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}

// ClearAlerts empties the alert history. Confluence history and the
// scratch memory are untouched.
func (m *Monitor) ClearAlerts() {
	m.mu.Lock()
	m.alerts = nil
	m.snap.Alerts = nil
	symbol, market := m.cfg.Symbol, m.cfg.Market
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.ClearAlerts(symbol, market); err != nil {
			logger.Warn("Failed to clear persisted alerts: %v", err)
		}
	}
}

// State returns the orchestrator's lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the current published state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySnapshot(m.snap)
}

// Subscribe registers an observer invoked after every genuine publish.
// Callbacks receive an independent copy and run on the monitor's cycle
// goroutine, so they should return quickly.
func (m *Monitor) Subscribe(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Shutdown checkpoints the thresholds and histories. Call after Stop.
func (m *Monitor) Shutdown() {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	symbol, market := m.cfg.Symbol, m.cfg.Market
	thresholds := m.thresholds
	events := copyEvents(m.confluence)
	alerts := copyAlerts(m.alerts)
	m.mu.Unlock()

	if err := m.store.SaveCheckpoint(symbol, market, thresholds, events, alerts); err != nil {
		logger.Warn("Failed to save checkpoint: %v", err)
	} else {
		logger.Info("Checkpointed %d events and %d alerts for %s/%s", len(events), len(alerts), symbol, market)
	}
}

// runCycle performs one fetch-analyze-publish cycle. manual marks cycles
// whose loading and error state must be observable (initial load and
// explicit refetches); background ticks degrade silently.
func (m *Monitor) runCycle(ctx context.Context, manual bool) {
	m.mu.Lock()
	// Single-flight: starting cycle N+1 cancels N's in-flight fetches.
	if m.cancelCycle != nil {
		m.cancelCycle()
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancelCycle = cancel
	m.generation++
	gen := m.generation
	m.state = StateFetching
	surface := manual || !m.initialLoaded
	if surface {
		m.snap.IsLoading = true
	}
	symbol, market := m.cfg.Symbol, m.cfg.Market
	limit := m.cfg.TradeLimit
	m.mu.Unlock()

	data := m.fetchAll(cycleCtx, symbol, market, limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	// A cancelled cycle must not mutate memory or publish fingerprints.
	if gen != m.generation || cycleCtx.Err() != nil {
		logger.Debug("Discarding stale cycle result for %s/%s", symbol, market)
		return
	}
	m.cancelCycle = nil
	m.state = StateSettled

	if data.Empty() {
		m.settleFailure(surface)
		return
	}

	fp := flow.ComputeFingerprint(data)
	if m.hasFingerprint && fp.Equal(m.fingerprint) {
		// Same raw inputs as last publish: discard after validation and
		// leave the published state untouched.
		logger.Debug("Fingerprint unchanged for %s/%s, skipping publish", symbol, market)
		m.snap.IsLoading = false
		m.snap.LastError = ""
		m.settleSuccess()
		return
	}

	result, err := m.analyze(data)
	if err != nil {
		// No analysis this cycle; prior published state is preserved and
		// the fingerprint is not advanced, so the next poll retries.
		logger.Error("Analysis failed for %s/%s: %v", symbol, market, err)
		m.snap.IsLoading = false
		m.settleFailure(false)
		return
	}

	m.commit(data, fp, result)
	m.settleSuccess()
}

// fetchAll issues the three sub-fetches concurrently and joins them.
// Each failure is recovered locally as nil/empty.
func (m *Monitor) fetchAll(ctx context.Context, symbol string, market models.MarketType, limit int) *models.MarketData {
	data := &models.MarketData{}
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		ticker, err := m.fetcher.FetchTicker(ctx, symbol, market)
		if err != nil {
			logger.Debug("Ticker fetch failed for %s/%s: %v", symbol, market, err)
			return
		}
		data.Ticker = ticker
	}()
	go func() {
		defer wg.Done()
		trades, err := m.fetcher.FetchRecentTrades(ctx, symbol, market, limit)
		if err != nil {
			logger.Debug("Trades fetch failed for %s/%s: %v", symbol, market, err)
			return
		}
		data.Trades = trades
	}()
	go func() {
		defer wg.Done()
		book, err := m.fetcher.FetchBookTicker(ctx, symbol, market)
		if err != nil {
			logger.Debug("Book fetch failed for %s/%s: %v", symbol, market, err)
			return
		}
		data.Book = book
	}()

	wg.Wait()
	return data
}

// analysisResult is one cycle's derived output, staged before commit so a
// failed analysis leaves no partial state behind.
type analysisResult struct {
	stats      models.RollingWindowStats
	cluster    bool
	spread     *models.SpreadMetrics
	direction  models.BookDirection
	confluence []models.ConfluenceEvent
	fired      []models.OrderFlowAlert
	price      float64
}

// analyze runs the pure pipeline over one cycle's raw data. Panics from
// malformed derived input are recovered and reported as errors.
func (m *Monitor) analyze(data *models.MarketData) (result analysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panic: %v", r)
		}
	}()

	now := time.Now()
	classified := flow.Classify(data.Trades, m.thresholds.Flow)
	result.stats = flow.Aggregate(classified, m.thresholds.Flow, now)
	result.cluster = flow.DetectCluster(classified, m.thresholds.Flow)
	result.spread = flow.ComputeSpread(data.Book)
	result.direction = flow.Direction(result.spread, m.mem.previousSpread, m.cfg.TrendThreshold)
	result.confluence = flow.DetectConfluence(
		result.stats, result.spread, m.mem.previousSpread, result.direction,
		m.thresholds.Confluence, m.confluence, now,
	)

	if data.Ticker != nil {
		result.price = data.Ticker.LastPrice
	} else if result.spread != nil {
		result.price = result.spread.MidPrice
	} else {
		result.price = m.mem.previousPrice
	}

	result.fired = flow.GenerateAlerts(flow.AlertInputs{
		Stats:         result.stats,
		PreviousStats: m.mem.previousStats,
		Price:         result.price,
		PreviousPrice: m.mem.previousPrice,
		Spread:        result.spread,
		AvgVolume:     m.mem.avgVolume,
		AvgSpread:     m.mem.avgSpread,
	}, m.thresholds.Alerts, now)

	return result, nil
}

// commit applies a settled cycle: scratch memory, fingerprint, histories,
// published snapshot, observers, notifier. Caller holds the lock.
func (m *Monitor) commit(data *models.MarketData, fp flow.Fingerprint, result analysisResult) {
	statsCopy := result.stats
	m.mem.previousStats = &statsCopy
	if result.spread != nil {
		spreadCopy := *result.spread
		m.mem.previousSpread = &spreadCopy
	}
	if result.price != 0 {
		m.mem.previousPrice = result.price
	}
	m.updateBaselines(result)

	m.fingerprint = fp
	m.hasFingerprint = true
	m.confluence = result.confluence
	m.alerts = flow.PrependAlerts(m.alerts, result.fired)

	m.snap = Snapshot{
		Symbol:          m.cfg.Symbol,
		Market:          m.cfg.Market,
		Data:            data,
		IsLoading:       false,
		LastError:       "",
		LastUpdated:     time.Now(),
		RollingStats:    &statsCopy,
		SpreadMetrics:   result.spread,
		BookDirection:   result.direction,
		ClusterDetected: result.cluster,
		Confluence:      copyEvents(m.confluence),
		Alerts:          copyAlerts(m.alerts),
	}

	published := copySnapshot(m.snap)
	for _, fn := range m.subscribers {
		fn(published)
	}

	if m.notifier != nil && len(result.fired) > 0 {
		fired := copyAlerts(result.fired)
		go func() {
			if err := m.notifier.NotifyAlerts(fired); err != nil {
				logger.Warn("Failed to send alert notification: %v", err)
			}
		}()
	}
}

// updateBaselines advances the EMA volume and spread baselines. The first
// sample seeds the averages directly.
func (m *Monitor) updateBaselines(result analysisResult) {
	alpha := m.cfg.SmoothingAlpha
	volume := result.stats.TotalNotional()
	if !m.mem.emaSeeded {
		m.mem.avgVolume = volume
		if result.spread != nil {
			m.mem.avgSpread = result.spread.SpreadPercent
		}
		m.mem.emaSeeded = volume > 0 || result.spread != nil
		return
	}
	m.mem.avgVolume += alpha * (volume - m.mem.avgVolume)
	if result.spread != nil {
		m.mem.avgSpread += alpha * (result.spread.SpreadPercent - m.mem.avgSpread)
	}
}

// settleFailure records a failed cycle. Errors only surface on the
// initial load or a manual refetch; steady-state background failures keep
// the last-good data and stay quiet.
func (m *Monitor) settleFailure(surface bool) {
	m.consecutiveFailures++
	if surface {
		m.snap.IsLoading = false
		m.snap.LastError = ErrNoData.Error()
		logger.Error("Cycle failed for %s/%s: %v", m.cfg.Symbol, m.cfg.Market, ErrNoData)
	} else {
		logger.Debug("Background cycle for %s/%s returned no data, retaining last-good state", m.cfg.Symbol, m.cfg.Market)
	}
	if m.consecutiveFailures == 1 && m.notifier != nil {
		go func(n Notifier) {
			if err := n.NotifyError(ErrNoData); err != nil {
				logger.Warn("Failed to send error notification: %v", err)
			}
		}(m.notifier)
	}
}

// settleSuccess clears the consecutive-failure streak, notifying recovery
// when one just ended.
func (m *Monitor) settleSuccess() {
	m.initialLoaded = true
	if m.consecutiveFailures > 0 && m.notifier != nil {
		failures := m.consecutiveFailures
		go func(n Notifier) {
			if err := n.NotifyRecovery(failures); err != nil {
				logger.Warn("Failed to send recovery notification: %v", err)
			}
		}(m.notifier)
	}
	m.consecutiveFailures = 0
}

func copyEvents(events []models.ConfluenceEvent) []models.ConfluenceEvent {
	if events == nil {
		return nil
	}
	out := make([]models.ConfluenceEvent, len(events))
	copy(out, events)
	return out
}

func copyAlerts(alerts []models.OrderFlowAlert) []models.OrderFlowAlert {
	if alerts == nil {
		return nil
	}
	out := make([]models.OrderFlowAlert, len(alerts))
	copy(out, alerts)
	return out
}

func copySnapshot(s Snapshot) Snapshot {
	out := s
	out.Confluence = copyEvents(s.Confluence)
	out.Alerts = copyAlerts(s.Alerts)
	if s.RollingStats != nil {
		stats := *s.RollingStats
		out.RollingStats = &stats
	}
	if s.SpreadMetrics != nil {
		spread := *s.SpreadMetrics
		out.SpreadMetrics = &spread
	}
	if s.Data != nil {
		data := *s.Data
		if s.Data.Trades != nil {
			data.Trades = make([]models.RawTrade, len(s.Data.Trades))
			copy(data.Trades, s.Data.Trades)
		}
		if s.Data.Ticker != nil {
			ticker := *s.Data.Ticker
			data.Ticker = &ticker
		}
		if s.Data.Book != nil {
			book := *s.Data.Book
			data.Book = &book
		}
		out.Data = &data
	}
	return out
}
