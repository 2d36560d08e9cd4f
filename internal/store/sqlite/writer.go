// Package sqlite stores signal state, the signal journal and cached bars in
// a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"signal-systemv1/internal/model"
)

// Store is a SQLite-backed StateStore and BarCache.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens (creating if needed) the database at path in WAL mode and
// applies the schema.
func New(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log = log.With().Str("component", "sqlite").Logger()
	log.Debug().Str("path", path).Msg("opened database")
	return &Store{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol   TEXT    NOT NULL,
			interval INTEGER NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   REAL    NOT NULL,
			source   TEXT,
			PRIMARY KEY (symbol, interval, ts)
		);

		CREATE TABLE IF NOT EXISTS signal_state (
			symbol     TEXT PRIMARY KEY,
			action     TEXT NOT NULL,
			price      REAL NOT NULL,
			ts         INTEGER NOT NULL,
			confidence REAL,
			reason     TEXT,
			bb_target  REAL,
			atr_target REAL
		);

		CREATE TABLE IF NOT EXISTS signal_journal (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT    NOT NULL,
			symbol     TEXT    NOT NULL,
			action     TEXT    NOT NULL,
			price      REAL    NOT NULL,
			ts         INTEGER NOT NULL,
			confidence REAL,
			reason     TEXT,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE INDEX IF NOT EXISTS idx_journal_symbol ON signal_journal (symbol, id);
	`)
	return err
}

// Save replaces the stored state wholesale in one transaction.
func (s *Store) Save(ctx context.Context, st model.SignalState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStateUnavailable, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM signal_state`); err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: clear state: %v", model.ErrStateUnavailable, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signal_state (symbol, action, price, ts, confidence, reason, bb_target, atr_target)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", model.ErrStateUnavailable, err)
	}
	defer stmt.Close()

	for sym, sig := range st {
		_, err := stmt.ExecContext(ctx, sym, string(sig.Action), sig.Price, sig.TS.Unix(),
			nullFloat(sig.Confidence), sig.Reason, sig.BollingerTarget, sig.ATRTarget)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: insert %s: %v", model.ErrStateUnavailable, sym, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", model.ErrStateUnavailable, err)
	}
	return nil
}

// WriteBars upserts a series into the bar cache in one transaction.
func (s *Store) WriteBars(ctx context.Context, series model.Series) error {
	if series.Len() == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, interval, ts, open, high, low, close, volume, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	iv := int64(series.Interval / time.Second)
	for _, b := range series.Bars {
		_, err := stmt.ExecContext(ctx, series.Symbol, iv, b.TS.Unix(),
			b.Open, b.High, b.Low, b.Close, b.Volume, series.Source)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.log.Debug().
		Str("symbol", series.Symbol).
		Int("bars", series.Len()).
		Dur("took", time.Since(start)).
		Msg("cached bars")
	return nil
}

// AppendJournal records every signal decided by a run. The journal is
// append-only and is never consulted for decisions.
func (s *Store) AppendJournal(ctx context.Context, runID string, sigs []model.Signal) error {
	if len(sigs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signal_journal (run_id, symbol, action, price, ts, confidence, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, sig := range sigs {
		_, err := stmt.ExecContext(ctx, runID, sig.Symbol, string(sig.Action), sig.Price,
			sig.TS.Unix(), nullFloat(sig.Confidence), sig.Reason)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
