package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"signal-systemv1/internal/model"
)

// Load reads the state hash. A missing key is an empty state.
func (s *Store) Load(ctx context.Context) (model.SignalState, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis HGETALL %s: %v", model.ErrStateUnavailable, s.key, err)
	}
	st, err := decodeState(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStateUnavailable, err)
	}
	return st, nil
}

// encodeState flattens the state into HSET field/value pairs.
func encodeState(st model.SignalState) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(st))
	for sym, sig := range st {
		if sig.Symbol == "" {
			sig.Symbol = sym
		}
		b, err := json.Marshal(sig)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", sym, err)
		}
		out[sym] = string(b)
	}
	return out, nil
}

// decodeState parses HGETALL output. Values may be signal JSON or a bare
// action string.
func decodeState(fields map[string]string) (model.SignalState, error) {
	st := make(model.SignalState, len(fields))
	for sym, v := range fields {
		var sig model.Signal
		if err := json.Unmarshal([]byte(v), &sig); err != nil {
			a, perr := model.ParseAction(v)
			if perr != nil {
				return nil, fmt.Errorf("decode %s: %w", sym, err)
			}
			sig = model.Signal{Action: a}
		}
		a, err := model.ParseAction(string(sig.Action))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", sym, err)
		}
		sig.Action = a
		sig.Symbol = sym
		st[sym] = sig
	}
	return st, nil
}
