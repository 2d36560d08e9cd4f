// Package file persists SignalState as a JSON document on local disk.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"signal-systemv1/internal/model"
)

// Store reads and writes SignalState at path.
type Store struct {
	path string
}

// New creates a file store. The file need not exist yet.
func New(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted state, or an empty state if the file does not
// exist. Entries may be full signal objects or bare action strings
// ({"BTC-USD": "BUY"}) as written by older versions.
func (s *Store) Load(_ context.Context) (model.SignalState, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return model.SignalState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", model.ErrStateUnavailable, s.path, err)
	}
	if len(b) == 0 {
		return model.SignalState{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", model.ErrStateUnavailable, s.path, err)
	}

	st := make(model.SignalState, len(raw))
	for sym, v := range raw {
		sig, err := decodeEntry(sym, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrStateUnavailable, s.path, err)
		}
		st[sym] = sig
	}
	return st, nil
}

func decodeEntry(sym string, v json.RawMessage) (model.Signal, error) {
	var action string
	if err := json.Unmarshal(v, &action); err == nil {
		a, err := model.ParseAction(action)
		if err != nil {
			return model.Signal{}, fmt.Errorf("%s: %w", sym, err)
		}
		return model.Signal{Symbol: sym, Action: a}, nil
	}

	var sig model.Signal
	if err := json.Unmarshal(v, &sig); err != nil {
		return model.Signal{}, fmt.Errorf("%s: %w", sym, err)
	}
	a, err := model.ParseAction(string(sig.Action))
	if err != nil {
		return model.Signal{}, fmt.Errorf("%s: %w", sym, err)
	}
	sig.Action = a
	if sig.Symbol == "" {
		sig.Symbol = sym
	}
	return sig, nil
}

// Save replaces the state file atomically (temp file + rename).
func (s *Store) Save(_ context.Context, st model.SignalState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStateUnavailable, err)
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", model.ErrStateUnavailable, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStateUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write: %v", model.ErrStateUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync: %v", model.ErrStateUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", model.ErrStateUnavailable, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: rename: %v", model.ErrStateUnavailable, err)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
