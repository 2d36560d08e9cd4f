package pipeline

import (
	"context"
	"errors"
	"fmt"

	"signal-systemv1/internal/classifier"
	"signal-systemv1/internal/history"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
	"signal-systemv1/internal/reconcile"
)

// Options changes how a run treats its side effects.
type Options struct {
	// Test computes and reports signals without side effects: no lock,
	// state, logs, notifications, metrics push, bar cache writes or
	// classifier artifact.
	Test bool
}

// readOnlySetter is implemented by collaborators that write caches or
// artifacts while they serve reads.
type readOnlySetter interface {
	SetReadOnly(on bool)
}

func (s *Service) setReadOnly(on bool) {
	s.adapter.SetReadOnly(on)
	if ro, ok := s.fetcher.(readOnlySetter); ok {
		ro.SetReadOnly(on)
	}
}

// Run executes one pass over the configured assets. Per-asset failures are
// recorded in the report and never abort the run. Lock, state load and
// state save failures are fatal; the partial report is still returned.
func (s *Service) Run(ctx context.Context, opts Options) (*Report, error) {
	runID := logger.NewRunID()
	ctx = logger.WithRunID(ctx, s.log, runID)
	log := logger.FromContext(ctx)

	rep := &Report{RunID: runID, Started: s.now(), Test: opts.Test}
	defer func() { rep.Duration = s.now().Sub(rep.Started) }()

	if !opts.Test && s.locker != nil {
		if err := s.locker.Lock(ctx); err != nil {
			return rep, fmt.Errorf("acquire run lock: %w", err)
		}
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Msg("release run lock")
			}
		}()
	}

	if opts.Test {
		s.setReadOnly(true)
		defer s.setReadOnly(false)
	}

	last, err := s.store.Load(ctx)
	if err != nil {
		return rep, fmt.Errorf("load state: %w", err)
	}

	current := model.SignalState{}
	var skipped []string
	for _, sym := range s.cfg.Assets {
		out := s.processAsset(ctx, sym)
		rep.Outcomes = append(rep.Outcomes, out)
		if out.Signal != nil {
			current[sym] = *out.Signal
		} else {
			skipped = append(skipped, sym)
		}
	}
	rep.Classifier = string(s.adapter.Source())

	res := reconcile.Reconcile(current, last)
	rep.Changed = res.Changed
	for i := range rep.Outcomes {
		for _, c := range res.Changed {
			if c.Symbol == rep.Outcomes[i].Symbol {
				rep.Outcomes[i].Changed = true
			}
		}
	}

	if opts.Test {
		log.Info().Int("changed", len(res.Changed)).Msg("test mode: state, logs and notifications skipped")
		return rep, nil
	}

	persisted := reconcile.CarryForward(res.Persisted, last, skipped)
	if n := len(persisted) - len(res.Persisted); n > 0 {
		log.Info().Int("carried", n).Msg("kept last signal for skipped assets")
	}
	if err := s.store.Save(ctx, persisted); err != nil {
		return rep, fmt.Errorf("persist state: %w", err)
	}
	rep.Persisted = true

	s.writeLogs(ctx, rep)
	s.notify(ctx, rep)
	s.record(rep)
	s.pushMetrics(ctx)

	log.Info().
		Int("assets", len(rep.Outcomes)).
		Int("changed", len(rep.Changed)).
		Str("classifier", rep.Classifier).
		Msg("run complete")
	return rep, nil
}

// processAsset runs fetch, features, classifier and decision for one
// symbol. Any error becomes a skipped outcome.
func (s *Service) processAsset(ctx context.Context, sym string) Outcome {
	log := logger.FromContext(ctx).With().Str("symbol", sym).Logger()
	out := Outcome{Symbol: sym}

	series, err := s.fetcher.Fetch(ctx, sym, s.cfg.Interval, s.cfg.Lookback)
	if err != nil {
		return out.skip(log, err)
	}
	out.Source, out.Bars = series.Source, series.Len()
	if gaps := series.Gaps(s.cfg.GapTolerance); gaps > 0 {
		log.Warn().Int("gaps", gaps).Msg("series has gaps; indicators span them")
	}

	rows, err := s.features.Compute(series)
	if err != nil {
		return out.skip(log, err)
	}
	clf := s.adapter.LoadOrTrain(series, rows)

	sig, err := s.decider.Decide(sym, rows, clf)
	if err != nil {
		return out.skip(log, err)
	}
	out.Signal = &sig

	ev := log.Info().Str("signal", string(sig.Action)).Float64("price", sig.Price).Str("source", series.Source)
	if sig.Reason != "" {
		ev = ev.Str("reason", sig.Reason)
	}
	ev.Msg("decision")

	if s.cfg.Output.HistoryDir != "" {
		s.exportHistory(ctx, sym, rows, clf)
	}
	return out
}

func (s *Service) exportHistory(ctx context.Context, sym string, rows []indicator.Row, clf classifier.Classifier) {
	log := logger.FromContext(ctx)
	steps, err := s.decider.Scan(rows, clf)
	if err != nil {
		log.Warn().Err(err).Str("symbol", sym).Msg("history scan failed")
		return
	}
	path, err := history.Export(s.cfg.Output.HistoryDir, s.cfg.Output.HistoryFormat, sym, steps)
	if err != nil {
		log.Warn().Err(err).Str("symbol", sym).Msg("history export failed")
		return
	}
	log.Debug().Str("symbol", sym).Str("path", path).Msg("history exported")
}

// writeLogs appends changed signals to the signal log, HOLD decisions to
// the hold log, and every decided signal to the journal and publisher.
func (s *Service) writeLogs(ctx context.Context, rep *Report) {
	log := logger.FromContext(ctx)

	lines, err := s.signals.Append(rep.Changed)
	if err != nil {
		log.Warn().Err(err).Msg("signal log")
	}
	rep.LogLines = lines

	var holds []model.Signal
	for _, o := range rep.Outcomes {
		if o.Signal != nil && o.Signal.Action == model.ActionHold {
			holds = append(holds, *o.Signal)
		}
	}
	if _, err := s.holds.Append(holds); err != nil {
		log.Warn().Err(err).Msg("hold log")
	}

	all := rep.Signals()
	if s.journal != nil {
		if err := s.journal.AppendJournal(ctx, logger.RunID(ctx), all); err != nil {
			log.Warn().Err(err).Msg("signal journal")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, all); err != nil {
			log.Warn().Err(err).Msg("signal publish")
		}
	}
}

// notify dispatches changed signals. A failure is logged and reported but
// never undoes the persisted state.
func (s *Service) notify(ctx context.Context, rep *Report) {
	if s.notifier == nil || len(rep.Changed) == 0 {
		return
	}
	p := notification.Payload{
		Source:  s.cfg.Notify.Source,
		RunID:   rep.RunID,
		TS:      s.now(),
		Signals: rep.Changed,
		Summary: notification.NewSummary(rep.Signals()),
	}
	del, err := s.notifier.Dispatch(ctx, p)
	rep.Delivery = del
	if err != nil {
		rep.NotifyErr = err
		logger.FromContext(ctx).Error().Err(err).Msg("notification failed on every channel")
	}
}

// record fills the run metrics.
func (s *Service) record(rep *Report) {
	m := s.prom
	for _, o := range rep.Outcomes {
		if o.Signal == nil {
			m.AssetsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		m.AssetsTotal.WithLabelValues("signal").Inc()
		m.SignalsTotal.WithLabelValues(string(o.Signal.Action)).Inc()
	}
	for _, c := range rep.Changed {
		m.ChangedTotal.WithLabelValues(string(c.Action)).Inc()
	}
	if errors.Is(rep.NotifyErr, model.ErrNotificationFailure) {
		m.NotifyFailures.Inc()
	}
	m.SetClassifierSource(rep.Classifier)
	m.RunDuration.Set(s.now().Sub(rep.Started).Seconds())
	if rep.Persisted {
		m.LastSuccess.Set(float64(s.now().Unix()))
	}
}
