package redis

import (
	"context"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"signal-systemv1/internal/model"
)

// unlockScript deletes the lock only if it still holds our token.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *Store) lockKey() string { return s.key + ":lock" }

// Lock takes the run lock with SET NX and the configured TTL. The TTL
// releases the lock if the holder crashes.
func (s *Store) Lock(ctx context.Context) error {
	ok, err := s.client.SetNX(ctx, s.lockKey(), s.token, s.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("%w: redis lock: %v", model.ErrStateUnavailable, err)
	}
	if !ok {
		holder, _ := s.client.Get(ctx, s.lockKey()).Result()
		return fmt.Errorf("%w: %s held by %s", model.ErrRunLocked, s.lockKey(), holder)
	}
	return nil
}

// Unlock releases the run lock if this store still holds it.
func (s *Store) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, s.client, []string{s.lockKey()}, s.token).Int()
	if err != nil {
		return fmt.Errorf("redis unlock: %w", err)
	}
	if n == 0 {
		s.log.Warn().Str("key", s.lockKey()).Msg("lock expired or taken over before unlock")
	}
	return nil
}
