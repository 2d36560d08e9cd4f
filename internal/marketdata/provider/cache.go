package provider

import (
	"context"
	"fmt"
	"time"

	"signal-systemv1/internal/model"
)

// Cache serves bars previously written to a model.BarCache. It is the
// last link of the default chain, so a run can still decide on recent
// history when every exchange is unreachable.
type Cache struct {
	store model.BarCache
	now   func() time.Time
}

// NewCache creates a provider over store.
func NewCache(store model.BarCache) *Cache {
	return &Cache{store: store, now: time.Now}
}

func (c *Cache) Name() string { return "cache" }

func (c *Cache) Fetch(ctx context.Context, symbol string, interval, lookback time.Duration) (model.Series, error) {
	from, _ := window(c.now(), lookback)
	bars, err := c.store.ReadBars(ctx, symbol, interval, from)
	if err != nil {
		return model.Series{}, fmt.Errorf("cache: %w", err)
	}
	return model.Series{Symbol: symbol, Interval: interval, Source: c.Name(), Bars: bars}, nil
}
