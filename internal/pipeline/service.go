// Package pipeline runs one batch pass over the configured assets:
// lock, load state, fetch, compute features, classify, decide, reconcile,
// persist, log, notify and push metrics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"signal-systemv1/config"
	"signal-systemv1/internal/classifier"
	"signal-systemv1/internal/decision"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/marketdata/provider"
	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
	"signal-systemv1/internal/signallog"
	filestore "signal-systemv1/internal/store/file"
	redisstore "signal-systemv1/internal/store/redis"
	sqlitestore "signal-systemv1/internal/store/sqlite"
)

// Journal records every run's signals (sqlite backend).
type Journal interface {
	AppendJournal(ctx context.Context, runID string, sigs []model.Signal) error
}

// Publisher fans a run's signals out to subscribers (redis backend).
type Publisher interface {
	Publish(ctx context.Context, sigs []model.Signal) error
}

// Notifier delivers a run payload with its own fallback policy.
type Notifier interface {
	Dispatch(ctx context.Context, p notification.Payload) (notification.Delivery, error)
}

// Deps are the collaborators of a Service. Journal, Publisher and Notifier
// are optional.
type Deps struct {
	Fetcher   model.SeriesFetcher
	Store     model.StateStore
	Locker    model.Locker
	Journal   Journal
	Publisher Publisher
	Notifier  Notifier
	Metrics   *metrics.Metrics
	Closers   []io.Closer
}

// Service is the top-level orchestrator of a signal run.
type Service struct {
	cfg *config.Config
	log zerolog.Logger

	fetcher   model.SeriesFetcher
	store     model.StateStore
	locker    model.Locker
	journal   Journal
	publisher Publisher
	notifier  Notifier
	prom      *metrics.Metrics
	signals   *signallog.Writer
	holds     *signallog.Writer
	closers   []io.Closer

	features *indicator.Engine
	decider  *decision.Engine
	adapter  *classifier.Adapter

	now func() time.Time
}

// New wires every dependency from cfg: provider chain, bar cache, state
// backend and lock, notification channels and metrics.
func New(cfg *config.Config, log zerolog.Logger) (*Service, error) {
	d := Deps{Metrics: metrics.New()}
	fail := func(err error) (*Service, error) {
		for _, c := range d.Closers {
			c.Close()
		}
		return nil, err
	}

	// ---- Bar cache ----
	var cache *sqlitestore.Store
	if cfg.Data.CacheBars || contains(cfg.Data.Providers, "cache") {
		var err error
		cache, err = sqlitestore.New(cfg.Data.CachePath, log)
		if err != nil {
			return fail(fmt.Errorf("bar cache: %w", err))
		}
		d.Closers = append(d.Closers, cache)
	}

	// ---- Providers ----
	chain, err := buildChain(cfg, log, cache)
	if err != nil {
		return fail(err)
	}
	chain.OnFetch = d.Metrics.ObserveFetch
	chain.OnBreaker = d.Metrics.ObserveBreaker
	chain.OnDropped = func(n int) { d.Metrics.BarsDropped.Add(float64(n)) }
	d.Fetcher = chain

	// ---- State backend ----
	switch cfg.State.Backend {
	case "sqlite":
		st, err := sqlitestore.New(cfg.State.SQLitePath, log)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", model.ErrStateUnavailable, err))
		}
		d.Closers = append(d.Closers, st)
		d.Store, d.Journal = st, st
		d.Locker = filestore.NewLock(cfg.State.SQLitePath+".lock", cfg.State.LockStale)
	case "redis":
		st, err := redisstore.New(cfg.State.Redis, log)
		if err != nil {
			return fail(err)
		}
		d.Closers = append(d.Closers, st)
		d.Store, d.Locker, d.Publisher = st, st, st
	default:
		d.Store = filestore.New(cfg.State.Path)
		d.Locker = filestore.NewLock(cfg.State.Path+".lock", cfg.State.LockStale)
	}

	// ---- Notification ----
	if cfg.Notifying() {
		n, err := notification.New(cfg.Notify, log)
		if err != nil {
			return fail(err)
		}
		d.Notifier = n
	}

	return NewWithDeps(cfg, d, log)
}

func buildChain(cfg *config.Config, log zerolog.Logger, cache *sqlitestore.Store) (*provider.Chain, error) {
	var ps []provider.Provider
	for _, name := range cfg.Data.Providers {
		hc := provider.HTTPConfig{Timeout: cfg.Data.Timeout, Attempts: cfg.Data.Attempts}
		switch name {
		case "binance":
			hc.BaseURL = cfg.Data.BinanceURL
			ps = append(ps, provider.NewBinance(hc))
		case "coinbase":
			hc.BaseURL = cfg.Data.CoinbaseURL
			ps = append(ps, provider.NewCoinbase(hc))
		case "csv":
			ps = append(ps, provider.NewCSVFile(cfg.Data.CSVDir))
		case "cache":
			ps = append(ps, provider.NewCache(cache))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}
	chain := provider.NewChain(logger.Component(log, "provider"), cfg.Data.BreakerFailures, ps...)
	if cfg.Data.CacheBars && cache != nil {
		chain.WithCache(cache)
	}
	return chain, nil
}

// NewWithDeps builds a Service over explicit collaborators.
func NewWithDeps(cfg *config.Config, d Deps, log zerolog.Logger) (*Service, error) {
	if d.Fetcher == nil || d.Store == nil {
		return nil, errors.New("pipeline: fetcher and store are required")
	}
	dec, err := decision.NewEngine(cfg.Decision)
	if err != nil {
		return nil, err
	}
	ic := cfg.Indicators
	params := indicator.Params{
		RSIPeriod:  ic.RSIPeriod,
		MACDFast:   ic.MACDFast,
		MACDSlow:   ic.MACDSlow,
		MACDSignal: ic.MACDSignal,
		BBPeriod:   ic.BBPeriod,
		BBStdDev:   ic.BBStdDev,
		ATRPeriod:  ic.ATRPeriod,
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	return &Service{
		cfg:       cfg,
		log:       logger.Component(log, "pipeline"),
		fetcher:   d.Fetcher,
		store:     d.Store,
		locker:    d.Locker,
		journal:   d.Journal,
		publisher: d.Publisher,
		notifier:  d.Notifier,
		prom:      d.Metrics,
		signals:   signallog.New(cfg.Output.SignalLog),
		holds:     signallog.New(cfg.Output.HoldLog),
		closers:   d.Closers,
		features:  indicator.NewEngine(params, dec.Required()),
		decider:   dec,
		adapter:   classifier.NewAdapter(cfg.Classifier, logger.Component(log, "classifier")),
		now:       time.Now,
	}, nil
}

// Close releases stores and connections.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// pushMetrics sends the run metrics to the Pushgateway when configured.
func (s *Service) pushMetrics(ctx context.Context) {
	url := s.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	host, _ := os.Hostname()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Data.Timeout)
	defer cancel()
	if err := s.prom.Push(ctx, url, s.cfg.Metrics.Job, host); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("metrics push failed")
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
