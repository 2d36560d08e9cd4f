package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"signal-systemv1/internal/model"
)

// Load returns the stored state. An empty table is an empty state.
func (s *Store) Load(ctx context.Context) (model.SignalState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, action, price, ts, confidence, reason, bb_target, atr_target
		FROM signal_state
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: query state: %v", model.ErrStateUnavailable, err)
	}
	defer rows.Close()

	st := model.SignalState{}
	for rows.Next() {
		var (
			sig       model.Signal
			action    string
			tsUnix    int64
			conf      sql.NullFloat64
			reason    sql.NullString
			bbT, atrT sql.NullFloat64
		)
		if err := rows.Scan(&sig.Symbol, &action, &sig.Price, &tsUnix, &conf, &reason, &bbT, &atrT); err != nil {
			return nil, fmt.Errorf("%w: scan state: %v", model.ErrStateUnavailable, err)
		}
		a, err := model.ParseAction(action)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrStateUnavailable, sig.Symbol, err)
		}
		sig.Action = a
		sig.TS = time.Unix(tsUnix, 0).UTC()
		if conf.Valid {
			v := conf.Float64
			sig.Confidence = &v
		}
		sig.Reason = reason.String
		sig.BollingerTarget = bbT.Float64
		sig.ATRTarget = atrT.Float64
		st[sig.Symbol] = sig
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStateUnavailable, err)
	}
	return st, nil
}

// ReadBars returns cached bars for symbol and interval with ts > since,
// ordered by timestamp ascending.
func (s *Store) ReadBars(ctx context.Context, symbol string, interval time.Duration, since time.Time) ([]model.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND interval = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, int64(interval/time.Second), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		if err := rows.Scan(&tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// JournalEntry is one row of the signal journal.
type JournalEntry struct {
	RunID  string
	Signal model.Signal
}

// Journal returns the latest journal entries, newest first. An empty symbol
// returns entries for all symbols.
func (s *Store) Journal(ctx context.Context, symbol string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, symbol, action, price, ts, confidence, reason
		FROM signal_journal
		WHERE ? = '' OR symbol = ?
		ORDER BY id DESC
		LIMIT ?
	`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e      JournalEntry
			action string
			tsUnix int64
			conf   sql.NullFloat64
			reason sql.NullString
		)
		if err := rows.Scan(&e.RunID, &e.Signal.Symbol, &action, &e.Signal.Price, &tsUnix, &conf, &reason); err != nil {
			return nil, fmt.Errorf("sqlite scan journal: %w", err)
		}
		e.Signal.Action = model.Action(action)
		e.Signal.TS = time.Unix(tsUnix, 0).UTC()
		if conf.Valid {
			v := conf.Float64
			e.Signal.Confidence = &v
		}
		e.Signal.Reason = reason.String
		out = append(out, e)
	}
	return out, rows.Err()
}
