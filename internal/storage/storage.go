// Package storage provides SQLite-backed persistence for threshold
// profiles and the capped alert/confluence histories, so a restart
// resumes with the same configuration and recent detections.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"flowmon/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/flowmon/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "flowmon", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS threshold_profiles (
			symbol      TEXT NOT NULL,
			market      TEXT NOT NULL,
			thresholds  TEXT NOT NULL,
			updated_at  INTEGER NOT NULL,
			PRIMARY KEY (symbol, market)
		)`,
		`CREATE TABLE IF NOT EXISTS confluence_events (
			id               TEXT PRIMARY KEY,
			symbol           TEXT NOT NULL,
			market           TEXT NOT NULL,
			type             TEXT NOT NULL,
			severity         TEXT NOT NULL,
			description      TEXT,
			flow_imbalance   REAL NOT NULL,
			spread_change    REAL NOT NULL,
			bid_ask_movement TEXT,
			ts               INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id                   TEXT PRIMARY KEY,
			symbol               TEXT NOT NULL,
			market               TEXT NOT NULL,
			type                 TEXT NOT NULL,
			severity             TEXT NOT NULL,
			title                TEXT NOT NULL,
			description          TEXT,
			volume_ratio         REAL NOT NULL,
			price_change_percent REAL NOT NULL,
			spread_ratio         REAL NOT NULL,
			ts                   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_confluence_market_ts ON confluence_events(symbol, market, ts DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_market_ts ON alerts(symbol, market, ts DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveCheckpoint persists the threshold profile and replaces the stored
// histories for one market. Histories are capped at models.MaxHistory.
func (s *Storage) SaveCheckpoint(
	symbol string, market models.MarketType,
	thresholds models.Thresholds,
	events []models.ConfluenceEvent,
	alerts []models.OrderFlowAlert,
) error {
	thresholdsJSON, err := json.Marshal(thresholds)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO threshold_profiles (symbol, market, thresholds, updated_at)
		VALUES (?,?,?,?)`,
		symbol, string(market), string(thresholdsJSON), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to save thresholds: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM confluence_events WHERE symbol=? AND market=?`, symbol, string(market)); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	if len(events) > models.MaxHistory {
		events = events[:models.MaxHistory]
	}
	for _, e := range events {
		if _, err := tx.Exec(`
			INSERT INTO confluence_events
				(id, symbol, market, type, severity, description,
				 flow_imbalance, spread_change, bid_ask_movement, ts)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			e.ID, symbol, string(market), string(e.Type), string(e.Severity), e.Description,
			e.Metrics.FlowImbalance, e.Metrics.SpreadChange, e.Metrics.BidAskMovement,
			e.Timestamp.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM alerts WHERE symbol=? AND market=?`, symbol, string(market)); err != nil {
		return fmt.Errorf("failed to clear alerts: %w", err)
	}
	if len(alerts) > models.MaxHistory {
		alerts = alerts[:models.MaxHistory]
	}
	for _, a := range alerts {
		if _, err := tx.Exec(`
			INSERT INTO alerts
				(id, symbol, market, type, severity, title, description,
				 volume_ratio, price_change_percent, spread_ratio, ts)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			a.ID, symbol, string(market), string(a.Type), string(a.Severity), a.Title, a.Description,
			a.Metrics.VolumeRatio, a.Metrics.PriceChangePercent, a.Metrics.SpreadRatio,
			a.Timestamp.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}
	}

	return tx.Commit()
}

// LoadCheckpoint returns the persisted threshold profile and histories
// for one market. A missing profile yields a nil thresholds pointer;
// histories come back most-recent-first.
func (s *Storage) LoadCheckpoint(symbol string, market models.MarketType) (*models.Thresholds, []models.ConfluenceEvent, []models.OrderFlowAlert, error) {
	var thresholds *models.Thresholds
	var thresholdsJSON string
	err := s.db.QueryRow(`
		SELECT thresholds FROM threshold_profiles WHERE symbol=? AND market=?`,
		symbol, string(market),
	).Scan(&thresholdsJSON)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, nil, nil, fmt.Errorf("failed to load thresholds: %w", err)
	default:
		var t models.Thresholds
		if err := json.Unmarshal([]byte(thresholdsJSON), &t); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to unmarshal thresholds: %w", err)
		}
		thresholds = &t
	}

	events, err := s.loadEvents(symbol, market)
	if err != nil {
		return nil, nil, nil, err
	}
	alerts, err := s.loadAlerts(symbol, market)
	if err != nil {
		return nil, nil, nil, err
	}
	return thresholds, events, alerts, nil
}

func (s *Storage) loadEvents(symbol string, market models.MarketType) ([]models.ConfluenceEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, type, severity, description, flow_imbalance, spread_change, bid_ask_movement, ts
		FROM confluence_events WHERE symbol=? AND market=?
		ORDER BY ts DESC LIMIT ?`,
		symbol, string(market), models.MaxHistory,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.ConfluenceEvent
	for rows.Next() {
		var e models.ConfluenceEvent
		var eventType, severity string
		var tsNano int64
		if err := rows.Scan(&e.ID, &eventType, &severity, &e.Description,
			&e.Metrics.FlowImbalance, &e.Metrics.SpreadChange, &e.Metrics.BidAskMovement,
			&tsNano); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = models.ConfluenceType(eventType)
		e.Severity = models.Severity(severity)
		e.Timestamp = time.Unix(0, tsNano)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Storage) loadAlerts(symbol string, market models.MarketType) ([]models.OrderFlowAlert, error) {
	rows, err := s.db.Query(`
		SELECT id, type, severity, title, description, volume_ratio, price_change_percent, spread_ratio, ts
		FROM alerts WHERE symbol=? AND market=?
		ORDER BY ts DESC LIMIT ?`,
		symbol, string(market), models.MaxHistory,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.OrderFlowAlert
	for rows.Next() {
		var a models.OrderFlowAlert
		var alertType, severity string
		var tsNano int64
		if err := rows.Scan(&a.ID, &alertType, &severity, &a.Title, &a.Description,
			&a.Metrics.VolumeRatio, &a.Metrics.PriceChangePercent, &a.Metrics.SpreadRatio,
			&tsNano); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Type = models.AlertType(alertType)
		a.Severity = models.Severity(severity)
		a.Timestamp = time.Unix(0, tsNano)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// ClearAlerts removes the persisted alert history for one market.
// Confluence events are untouched.
func (s *Storage) ClearAlerts(symbol string, market models.MarketType) error {
	if _, err := s.db.Exec(`DELETE FROM alerts WHERE symbol=? AND market=?`, symbol, string(market)); err != nil {
		return fmt.Errorf("failed to clear alerts: %w", err)
	}
	return nil
}
