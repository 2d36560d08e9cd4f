package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"signal-systemv1/config"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/model"
)

func TestEncodeDecodeState(t *testing.T) {
	conf := 0.8
	in := model.SignalState{
		"BTC-USD": {Action: model.ActionBuy, Price: 64000, Confidence: &conf, TS: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		"ETH-USD": {Symbol: "ETH-USD", Action: model.ActionHold, Price: 3000},
	}
	fields, err := encodeState(in)
	if err != nil {
		t.Fatal(err)
	}
	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v.(string)
	}

	out, err := decodeState(raw)
	if err != nil {
		t.Fatalf("decodeState: %v", err)
	}
	btc := out["BTC-USD"]
	if btc.Symbol != "BTC-USD" || btc.Action != model.ActionBuy || btc.Confidence == nil || *btc.Confidence != conf {
		t.Errorf("unexpected BTC entry %+v", btc)
	}
	if out["ETH-USD"].Action != model.ActionHold {
		t.Errorf("unexpected ETH entry %+v", out["ETH-USD"])
	}
}

func TestDecodeState_BareActionAndErrors(t *testing.T) {
	st, err := decodeState(map[string]string{"XRP-USD": "sell"})
	if err != nil || st["XRP-USD"].Action != model.ActionSell || st["XRP-USD"].Symbol != "XRP-USD" {
		t.Errorf("unexpected %+v, %v", st, err)
	}
	if _, err := decodeState(map[string]string{"XRP-USD": "{not json"}); err == nil {
		t.Error("expected error for garbage value")
	}
	if _, err := decodeState(map[string]string{"XRP-USD": `{"signal":"EXIT"}`}); err == nil {
		t.Error("expected error for unknown action")
	}
}

// The tests below need a running server: SIGNAL_TEST_REDIS_ADDR=localhost:6379.
func testStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("SIGNAL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SIGNAL_TEST_REDIS_ADDR not set")
	}
	cfg := config.RedisConfig{Addr: addr, DB: 15, Key: "signals:test:" + t.Name(), LockTTL: time.Minute}
	s, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		s.client.Del(ctx, s.key, s.lockKey(), s.key+":stream")
		s.Close()
	})
	return s
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	if st, err := s.Load(ctx); err != nil || len(st) != 0 {
		t.Fatalf("expected empty state, got %v, %v", st, err)
	}
	s.Save(ctx, model.SignalState{"BTC-USD": {Action: model.ActionBuy}, "ETH-USD": {Action: model.ActionSell}})
	s.Save(ctx, model.SignalState{"BTC-USD": {Action: model.ActionHold}})

	st, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(st) != 1 || st["BTC-USD"].Action != model.ActionHold {
		t.Errorf("expected wholesale replace, got %+v", st)
	}
}

func TestStore_Lock(t *testing.T) {
	ctx := context.Background()
	a := testStore(t)
	b := &Store{client: a.client, key: a.key, lockTTL: time.Minute, token: "other", log: zerolog.Nop()}

	if err := a.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := b.Lock(ctx); !errors.Is(err, model.ErrRunLocked) {
		t.Fatalf("expected ErrRunLocked, got %v", err)
	}
	// b cannot release a's lock.
	b.Unlock(ctx)
	if err := b.Lock(ctx); !errors.Is(err, model.ErrRunLocked) {
		t.Fatalf("lock released by non-holder: %v", err)
	}
	a.Unlock(ctx)
	if err := b.Lock(ctx); err != nil {
		t.Errorf("lock after release: %v", err)
	}
}

func TestStore_PublishTagsRunID(t *testing.T) {
	s := testStore(t)
	ctx := logger.WithRunID(context.Background(), zerolog.Nop(), "run-42")

	sigs := []model.Signal{{Symbol: "BTC-USD", Action: model.ActionBuy, Price: 80}}
	if err := s.Publish(ctx, sigs); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msgs, err := s.client.XRange(ctx, s.key+":stream", "-", "+").Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Values["run_id"] != "run-42" {
		t.Errorf("expected one entry tagged run-42, got %+v", msgs)
	}
}
