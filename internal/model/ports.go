package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the pipeline from concrete market-data sources
// and storage backends (file, SQLite, Redis).

// SeriesFetcher returns the bar history of one asset.
type SeriesFetcher interface {
	// Fetch returns at least the requested lookback of bars at the given interval.
	// Fails with an error wrapping ErrDataUnavailable when nothing usable exists.
	Fetch(ctx context.Context, symbol string, interval, lookback time.Duration) (Series, error)
}

// StateStore reads and writes the persisted SignalState.
type StateStore interface {
	// Load returns the last persisted state. A missing state is an empty map, not an error.
	Load(ctx context.Context) (SignalState, error)

	// Save replaces the persisted state wholesale.
	Save(ctx context.Context, st SignalState) error

	// Close releases underlying resources.
	Close() error
}

// Locker provides mutual exclusion around the state read-modify-write.
type Locker interface {
	// Lock acquires the run lock or fails with ErrRunLocked.
	Lock(ctx context.Context) error

	// Unlock releases the run lock.
	Unlock(ctx context.Context) error
}

// BarCache stores fetched bars so later runs can fall back to them.
type BarCache interface {
	// WriteBars upserts bars for a symbol and interval.
	WriteBars(ctx context.Context, s Series) error

	// ReadBars returns cached bars newer than since, ordered by time.
	ReadBars(ctx context.Context, symbol string, interval time.Duration, since time.Time) ([]Bar, error)
}
