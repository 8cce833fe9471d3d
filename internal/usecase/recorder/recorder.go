package recorder

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
	"github.com/Hermit005-io/lob-simulator/internal/usecase/metrics"
)

// Recorder persists the outputs of a simulation run, trades and metric
// points, into a local SQLite file for offline analysis.
type Recorder struct {
	db *sql.DB
}

// NewRecorder opens (or creates) the SQLite database with WAL mode enabled.
func NewRecorder(dbPath string) (*Recorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			pair TEXT NOT NULL,
			maker_id INTEGER NOT NULL,
			taker_id INTEGER NOT NULL,
			taker_side TEXT NOT NULL,
			price TEXT NOT NULL,
			quantity TEXT NOT NULL,
			ts INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS metric_points (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			sim_time REAL NOT NULL,
			mid_price REAL NOT NULL,
			spread REAL NOT NULL,
			imbalance REAL NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &Recorder{db: db}, nil
}

// SaveTrades writes a batch of trades inside one transaction. Prices and
// quantities are stored as decimal strings to avoid binary-float drift.
func (r *Recorder) SaveTrades(ctx context.Context, pair string, trades []orderbookv1.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trade batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO trades (id, pair, maker_id, taker_id, taker_side, price, quantity, ts) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			t.ID.String(), pair, t.MakerID, t.TakerID, string(t.TakerSide),
			t.Price.String(), t.Quantity.String(), t.Timestamp,
		); err != nil {
			return fmt.Errorf("insert trade %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// SaveSeries writes the per-event metric points of one run.
func (r *Recorder) SaveSeries(ctx context.Context, runID string, points []metrics.Point) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin series batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO metric_points (run_id, seq, sim_time, mid_price, spread, imbalance) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare series insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range points {
		if _, err := stmt.ExecContext(ctx, runID, i, p.Time, p.MidPrice, p.Spread, p.Imbalance); err != nil {
			return fmt.Errorf("insert metric point %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
