// Package redis stores SignalState in a Redis hash and provides a
// distributed run lock for deployments sharing one state.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"signal-systemv1/config"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/model"
)

const (
	// Emitted signals are kept in a capped stream for downstream consumers.
	signalStreamMaxLen = 10000
)

// Store is a Redis-backed StateStore and Locker.
//
// Keys:
//
//	<key>                    hash symbol -> signal JSON
//	<key>:lock               run lock (SET NX PX), value is the run token
//	<key>:stream             XADD log of emitted signals
//	pub:signal:<symbol>      PUBLISH channel for emitted signals
type Store struct {
	client  *goredis.Client
	key     string
	lockTTL time.Duration
	token   string
	log     zerolog.Logger
}

// New connects to Redis and pings the server.
func New(cfg config.RedisConfig, log zerolog.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", model.ErrStateUnavailable, err)
	}

	log = log.With().Str("component", "redis").Logger()
	log.Debug().Str("addr", cfg.Addr).Str("key", cfg.Key).Msg("connected")
	return &Store{
		client:  client,
		key:     cfg.Key,
		lockTTL: cfg.LockTTL,
		token:   uuid.NewString(),
		log:     log,
	}, nil
}

// Save replaces the state hash atomically (MULTI DEL + HSET EXEC).
func (s *Store) Save(ctx context.Context, st model.SignalState) error {
	fields, err := encodeState(st)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStateUnavailable, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redis save: %v", model.ErrStateUnavailable, err)
	}
	return nil
}

// Publish appends a run's signals to the signal stream, tagged with the run
// id carried by ctx, and publishes each on its per-symbol channel in one
// pipeline.
func (s *Store) Publish(ctx context.Context, sigs []model.Signal) error {
	if len(sigs) == 0 {
		return nil
	}
	runID := logger.RunID(ctx)
	pipe := s.client.Pipeline()
	for i := range sigs {
		data := string(sigs[i].JSON())
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: s.key + ":stream",
			MaxLen: signalStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data, "run_id": runID},
		})
		pipe.Publish(ctx, channel(sigs[i].Symbol), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %d signals: %w", len(sigs), err)
	}
	return nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func channel(symbol string) string { return "pub:signal:" + symbol }
