package kraken

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	orderbookv1 "github.com/Hermit005-io/lob-simulator/internal/domain/orderbook/v1"
)

// Snapshot CSVs live under a data directory as {pair}_bids.csv and
// {pair}_asks.csv, one (price, quantity) row per level, best-first. Recent
// trades go to {pair}_trades.csv, one (time, price, qty, side) row per
// trade, oldest first.

func bidsPath(dir, pair string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_bids.csv", pair))
}

func asksPath(dir, pair string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_asks.csv", pair))
}

func tradesPath(dir, pair string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_trades.csv", pair))
}

// WriteSnapshot persists a snapshot as two CSV files.
func WriteSnapshot(dir string, snapshot *orderbookv1.Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if err := writeLevels(bidsPath(dir, snapshot.Pair), snapshot.Bids); err != nil {
		return err
	}
	return writeLevels(asksPath(dir, snapshot.Pair), snapshot.Asks)
}

// ReadSnapshot loads a snapshot previously written by WriteSnapshot.
func ReadSnapshot(dir, pair string) (*orderbookv1.Snapshot, error) {
	bids, err := readLevels(bidsPath(dir, pair))
	if err != nil {
		return nil, err
	}
	asks, err := readLevels(asksPath(dir, pair))
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(bidsPath(dir, pair))
	if err != nil {
		return nil, err
	}

	return &orderbookv1.Snapshot{
		Pair:      pair,
		Bids:      bids,
		Asks:      asks,
		Timestamp: info.ModTime().UnixNano(),
	}, nil
}

// WriteTrades persists recent trades as {pair}_trades.csv.
func WriteTrades(dir, pair string, trades []orderbookv1.MarketTrade) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	f, err := os.Create(tradesPath(dir, pair))
	if err != nil {
		return fmt.Errorf("create trades csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "price", "qty", "side"}); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.Time.UTC().Format(time.RFC3339Nano),
			t.Price.String(),
			t.Quantity.String(),
			string(t.Side),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadTrades loads trades previously written by WriteTrades, oldest first.
func ReadTrades(dir, pair string) ([]orderbookv1.MarketTrade, error) {
	path := tradesPath(dir, pair)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	start := 0
	if _, err := time.Parse(time.RFC3339Nano, rows[0][0]); err != nil {
		start = 1 // skip header row
	}

	trades := make([]orderbookv1.MarketTrade, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if len(row) < 4 {
			return nil, fmt.Errorf("%s: row has %d columns, want 4", path, len(row))
		}
		ts, err := time.Parse(time.RFC3339Nano, row[0])
		if err != nil {
			return nil, fmt.Errorf("%s: bad time %q: %w", path, row[0], err)
		}
		price, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, fmt.Errorf("%s: bad price %q: %w", path, row[1], err)
		}
		quantity, err := decimal.NewFromString(row[2])
		if err != nil {
			return nil, fmt.Errorf("%s: bad quantity %q: %w", path, row[2], err)
		}
		side := orderbookv1.Side(row[3])
		if side != orderbookv1.SideBuy && side != orderbookv1.SideSell {
			return nil, fmt.Errorf("%s: bad side %q", path, row[3])
		}
		trades = append(trades, orderbookv1.MarketTrade{
			Time:     ts,
			Price:    price,
			Quantity: quantity,
			Side:     side,
		})
	}

	return trades, nil
}

func writeLevels(path string, levels []orderbookv1.SnapshotLevel) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"price", "quantity"}); err != nil {
		return err
	}
	for _, lvl := range levels {
		if err := w.Write([]string{lvl.Price.String(), lvl.Quantity.String()}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func readLevels(path string) ([]orderbookv1.SnapshotLevel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	start := 0
	if _, err := strconv.ParseFloat(rows[0][0], 64); err != nil {
		start = 1 // skip header row
	}

	levels := make([]orderbookv1.SnapshotLevel, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if len(row) < 2 {
			return nil, fmt.Errorf("%s: row has %d columns, want 2", path, len(row))
		}
		price, err := decimal.NewFromString(row[0])
		if err != nil {
			return nil, fmt.Errorf("%s: bad price %q: %w", path, row[0], err)
		}
		quantity, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, fmt.Errorf("%s: bad quantity %q: %w", path, row[1], err)
		}
		levels = append(levels, orderbookv1.SnapshotLevel{Price: price, Quantity: quantity})
	}

	return levels, nil
}
