// Package provider fetches OHLCV history from market-data sources.
//
// Providers are tried in configured order by a Chain until one returns
// usable bars. Each provider sits behind its own circuit breaker, so a
// source that keeps failing is skipped for the remaining assets of a run.
// Only outages (transport errors, timeouts, 429 and 5xx) trip a breaker;
// errors wrapping ErrAsset stay with the asset that caused them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"signal-systemv1/internal/marketdata/agg"
	"signal-systemv1/internal/model"
)

// Provider is one source of bar history.
type Provider interface {
	// Name identifies the provider in logs and in Series.Source.
	Name() string

	// Fetch returns bars covering lookback up to now at the given interval.
	Fetch(ctx context.Context, symbol string, interval, lookback time.Duration) (model.Series, error)
}

// ErrAsset marks a failure that concerns only the requested asset: a
// malformed or unlisted symbol, a 4xx answer, or no bars. The provider
// itself is healthy, so it does not count toward the breaker.
var ErrAsset = errors.New("asset not served")

func assetErr(err error) error {
	return fmt.Errorf("%w: %w", ErrAsset, err)
}

// countsAsOutage reports whether err says something about the provider
// rather than the asset or the caller.
func countsAsOutage(err error) bool {
	return !errors.Is(err, ErrAsset) && !errors.Is(err, context.Canceled)
}

type link struct {
	p  Provider
	cb *Breaker
}

// Chain tries providers in order. It implements model.SeriesFetcher.
type Chain struct {
	links    []link
	cache    model.BarCache // optional write-through for successful fetches
	readOnly bool           // suppresses the cache write-through
	log      zerolog.Logger
	now      func() time.Time

	// Optional hooks, for metrics.
	OnFetch   func(provider string, took time.Duration, err error)
	OnBreaker func(provider string, from, to State)
	OnDropped func(n int)
}

// NewChain creates a chain over providers. Each gets a breaker that opens
// after breakerFailures consecutive failures and stays open for the run.
func NewChain(log zerolog.Logger, breakerFailures int, providers ...Provider) *Chain {
	c := &Chain{log: log, now: time.Now}
	for _, p := range providers {
		cb := NewBreaker(breakerFailures, 0)
		cb.IsFailure = countsAsOutage
		name := p.Name()
		cb.OnStateChange = func(from, to State) {
			log.Warn().Str("provider", name).Stringer("from", from).Stringer("to", to).Msg("provider breaker state change")
			if c.OnBreaker != nil {
				c.OnBreaker(name, from, to)
			}
		}
		c.links = append(c.links, link{p: p, cb: cb})
	}
	return c
}

// WithCache writes every successfully fetched series to cache.
// Series served by a provider named "cache" are not written back.
func (c *Chain) WithCache(cache model.BarCache) *Chain {
	c.cache = cache
	return c
}

// SetReadOnly turns the cache write-through off or back on.
func (c *Chain) SetReadOnly(on bool) { c.readOnly = on }

// Fetch returns the first non-empty normalized series. Failures of every
// provider are joined into an error wrapping ErrDataUnavailable.
func (c *Chain) Fetch(ctx context.Context, symbol string, interval, lookback time.Duration) (model.Series, error) {
	var errs []error
	for _, l := range c.links {
		if err := ctx.Err(); err != nil {
			return model.Series{}, err
		}

		var s model.Series
		start := time.Now()
		err := l.cb.Execute(func() error {
			var ferr error
			s, ferr = l.p.Fetch(ctx, symbol, interval, lookback)
			if ferr != nil {
				return ferr
			}
			var dropped int
			s, dropped = s.Normalize()
			n := s.Len()
			s.Bars = agg.Complete(s.Bars, interval, c.now())
			dropped += n - s.Len()
			if dropped > 0 {
				if c.OnDropped != nil {
					c.OnDropped(dropped)
				}
				c.log.Warn().Str("provider", l.p.Name()).Str("symbol", symbol).Int("dropped", dropped).
					Msg("dropped invalid, duplicate or forming bars")
			}
			if s.Len() == 0 {
				return assetErr(errors.New("no bars"))
			}
			return nil
		})
		if c.OnFetch != nil && !errors.Is(err, ErrCircuitOpen) {
			c.OnFetch(l.p.Name(), time.Since(start), err)
		}
		if err != nil {
			c.log.Warn().Err(err).Str("provider", l.p.Name()).Str("symbol", symbol).Msg("provider failed")
			errs = append(errs, fmt.Errorf("%s: %w", l.p.Name(), err))
			continue
		}

		s.Symbol, s.Interval, s.Source = symbol, interval, l.p.Name()
		if c.cache != nil && !c.readOnly && l.p.Name() != "cache" {
			if err := c.cache.WriteBars(ctx, s); err != nil {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("bar cache write failed")
			}
		}
		return s, nil
	}
	return model.Series{}, fmt.Errorf("%w: %s: %w", model.ErrDataUnavailable, symbol, errors.Join(errs...))
}

// splitSymbol splits "BTC-USD" into base and quote.
func splitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(symbol)), "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", assetErr(fmt.Errorf("symbol %q: want BASE-QUOTE", symbol))
	}
	return parts[0], parts[1], nil
}

// window returns [now-lookback, now) as the fetch range.
func window(now time.Time, lookback time.Duration) (time.Time, time.Time) {
	return now.Add(-lookback), now
}
