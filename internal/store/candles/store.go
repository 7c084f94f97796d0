// Package candles caches closed candles for every symbol@interval in a
// single SQLite database.
package candles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"danoo/internal/market"
)

// FileName is the database file created under the store directory.
const FileName = "candles.db"

const schema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol     TEXT    NOT NULL,
	interval   TEXT    NOT NULL,
	open_time  INTEGER NOT NULL,
	close_time INTEGER NOT NULL,
	open       REAL    NOT NULL,
	high       REAL    NOT NULL,
	low        REAL    NOT NULL,
	close      REAL    NOT NULL,
	volume     REAL    NOT NULL,
	trades     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, interval, open_time)
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS series (
	symbol    TEXT    NOT NULL,
	interval  TEXT    NOT NULL,
	synced_at INTEGER NOT NULL,
	PRIMARY KEY (symbol, interval)
);`

const upsertCandle = `
INSERT INTO candles (symbol, interval, open_time, close_time, open, high, low, close, volume, trades)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (symbol, interval, open_time) DO UPDATE SET
	close_time = excluded.close_time,
	open = excluded.open, high = excluded.high, low = excluded.low, close = excluded.close,
	volume = excluded.volume, trades = excluded.trades`

const candleColumns = `open_time, close_time, open, high, low, close, volume, trades`

// Coverage summarises what the cache holds for one series.
type Coverage struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	First    int64  `json:"first_open_time"`
	Last     int64  `json:"last_open_time"`
	Rows     int64  `json:"rows"`
	SyncedAt int64  `json:"synced_at"`
}

// Empty reports whether the series has no rows.
func (c Coverage) Empty() bool { return c.Rows == 0 }

type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ market.CandleSink = (*Store)(nil)

// NewStore opens (creating if needed) dir/candles.db.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("candle store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, FileName)
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, err
	}
	// The feed and the backtest service write from different goroutines.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("candle store schema: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}

func seriesKey(symbol, interval string) (string, string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	interval = market.NormalizeInterval(interval)
	if symbol == "" || interval == "" {
		return "", "", errors.New("candle store: symbol and interval are required")
	}
	return symbol, interval, nil
}

// Put upserts candles keyed by open time.
func (s *Store) Put(ctx context.Context, symbol, interval string, candles []market.Candle) error {
	_, err := s.Insert(ctx, symbol, interval, candles)
	return err
}

// Insert is Put returning the number of rows written. Either every candle
// is written or none is.
func (s *Store) Insert(ctx context.Context, symbol, interval string, candles []market.Candle) (n int, err error) {
	sym, iv, err := seriesKey(symbol, interval)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, nil
	}
	for _, c := range candles {
		if err := c.Validate(); err != nil {
			return 0, fmt.Errorf("candle %d: %w", c.OpenTime, err)
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, upsertCandle)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err = stmt.ExecContext(ctx, sym, iv, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades); err != nil {
			return 0, err
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO series (symbol, interval, synced_at) VALUES (?, ?, ?)
		ON CONFLICT (symbol, interval) DO UPDATE SET synced_at = excluded.synced_at`,
		sym, iv, s.now().UnixMilli()); err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return len(candles), nil
}

// Range returns candles with start <= open_time <= end, ascending. A zero
// end means no upper bound.
func (s *Store) Range(ctx context.Context, symbol, interval string, start, end int64) ([]market.Candle, error) {
	sym, iv, err := seriesKey(symbol, interval)
	if err != nil {
		return nil, err
	}
	if end > 0 && end < start {
		start, end = end, start
	}
	if end <= 0 {
		end = 1<<63 - 1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+candleColumns+` FROM candles
		WHERE symbol = ? AND interval = ? AND open_time BETWEEN ? AND ?
		ORDER BY open_time ASC`, sym, iv, start, end)
	if err != nil {
		return nil, err
	}
	return scan(rows, false)
}

// Latest returns the newest limit candles, ascending.
func (s *Store) Latest(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	sym, iv, err := seriesKey(symbol, interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+candleColumns+` FROM candles
		WHERE symbol = ? AND interval = ?
		ORDER BY open_time DESC LIMIT ?`, sym, iv, limit)
	if err != nil {
		return nil, err
	}
	return scan(rows, true)
}

func (s *Store) Count(ctx context.Context, symbol, interval string) (int64, error) {
	c, err := s.Coverage(ctx, symbol, interval)
	return c.Rows, err
}

// Coverage reports the span and size of one series. An unknown series
// yields an empty Coverage, not an error.
func (s *Store) Coverage(ctx context.Context, symbol, interval string) (Coverage, error) {
	sym, iv, err := seriesKey(symbol, interval)
	if err != nil {
		return Coverage{}, err
	}
	out := Coverage{Symbol: sym, Interval: iv}
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MIN(open_time), 0), COALESCE(MAX(open_time), 0), COUNT(1)
		FROM candles WHERE symbol = ? AND interval = ?`, sym, iv).Scan(&out.First, &out.Last, &out.Rows)
	if err != nil {
		return Coverage{}, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT synced_at FROM series WHERE symbol = ? AND interval = ?`, sym, iv).Scan(&out.SyncedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Coverage{}, err
	}
	return out, nil
}

// Series lists the coverage of every cached series, ordered by symbol
// then interval.
func (s *Store) Series(ctx context.Context) ([]Coverage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT c.symbol, c.interval, MIN(c.open_time), MAX(c.open_time), COUNT(1),
			COALESCE((SELECT synced_at FROM series s WHERE s.symbol = c.symbol AND s.interval = c.interval), 0)
		FROM candles c
		GROUP BY c.symbol, c.interval
		ORDER BY c.symbol, c.interval`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Coverage
	for rows.Next() {
		var c Coverage
		if err := rows.Scan(&c.Symbol, &c.Interval, &c.First, &c.Last, &c.Rows, &c.SyncedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scan(rows *sql.Rows, newestFirst bool) ([]market.Candle, error) {
	defer rows.Close()
	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Trades); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if newestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}
