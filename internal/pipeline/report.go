package pipeline

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
)

// Outcome is the result of one asset: a signal, or skipped with a reason.
type Outcome struct {
	Symbol  string
	Signal  *model.Signal
	Changed bool
	Source  string // provider that served the bars
	Bars    int
	Skipped string
	Err     error
}

func (o Outcome) skip(log zerolog.Logger, err error) Outcome {
	o.Err = err
	o.Skipped = reason(err)
	log.Warn().Err(err).Str("reason", o.Skipped).Msg("asset skipped")
	return o
}

func reason(err error) string {
	switch {
	case errors.Is(err, model.ErrDataUnavailable):
		return "data unavailable"
	case errors.Is(err, model.ErrFeatureComputation):
		return "insufficient history"
	case errors.Is(err, model.ErrSchemaMismatch):
		return "classifier schema mismatch"
	default:
		return "error"
	}
}

// Report summarises one run. It is always produced, even when the run
// fails after the lock was taken.
type Report struct {
	RunID      string
	Started    time.Time
	Duration   time.Duration
	Test       bool
	Outcomes   []Outcome
	Changed    []model.Signal
	Classifier string
	Persisted  bool
	LogLines   []string
	Delivery   notification.Delivery
	NotifyErr  error
}

// Signals returns every decided signal in asset order.
func (r *Report) Signals() []model.Signal {
	var out []model.Signal
	for _, o := range r.Outcomes {
		if o.Signal != nil {
			out = append(out, *o.Signal)
		}
	}
	return out
}

// Skipped returns the outcomes without a signal.
func (r *Report) Skipped() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Signal == nil {
			out = append(out, o)
		}
	}
	return out
}

// Print writes the run-end summary: a box with totals, then every asset
// grouped by BUY, SELL, HOLD and skipped.
func (r *Report) Print(w io.Writer) {
	sum := notification.NewSummary(r.Signals())
	skipped := r.Skipped()

	title := "SIGNAL RUN COMPLETE"
	if r.Test {
		title = "SIGNAL RUN (TEST MODE)"
	}
	notified := "-"
	switch {
	case r.Delivery.Channel != "":
		notified = r.Delivery.Channel
	case r.NotifyErr != nil:
		notified = "FAILED"
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════╗")
	fmt.Fprintf(w, "║  %-36s║\n", title)
	fmt.Fprintln(w, "╠══════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Run:               %-16s ║\n", short(r.RunID))
	fmt.Fprintf(w, "║  Assets:            %-16d ║\n", len(r.Outcomes))
	fmt.Fprintf(w, "║  BUY / SELL / HOLD: %-16s ║\n", fmt.Sprintf("%d / %d / %d", len(sum.Buy), len(sum.Sell), len(sum.Hold)))
	fmt.Fprintf(w, "║  Skipped:           %-16d ║\n", len(skipped))
	fmt.Fprintf(w, "║  Changed:           %-16d ║\n", len(r.Changed))
	fmt.Fprintf(w, "║  Classifier:        %-16s ║\n", r.Classifier)
	fmt.Fprintf(w, "║  State persisted:   %-16v ║\n", r.Persisted)
	fmt.Fprintf(w, "║  Notified:          %-16s ║\n", notified)
	fmt.Fprintf(w, "║  Duration:          %-16s ║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintln(w, "╚══════════════════════════════════════╝")

	changed := make(map[string]bool, len(r.Changed))
	for _, c := range r.Changed {
		changed[c.Symbol] = true
	}
	group := func(name string, sigs []model.Signal) {
		if len(sigs) == 0 {
			return
		}
		fmt.Fprintf(w, "%s:\n", name)
		for _, s := range sigs {
			line := fmt.Sprintf("  %-10s %s", s.Symbol, model.FormatPrice(s.Price))
			if s.Action.Actionable() {
				line += fmt.Sprintf(" -> Targets: Bollinger %s, ATR %s",
					model.FormatPrice(s.BollingerTarget), model.FormatPrice(s.ATRTarget))
			}
			if changed[s.Symbol] {
				line += "  (new)"
			}
			if s.Reason != "" && !s.Action.Actionable() {
				line += "  [" + s.Reason + "]"
			}
			fmt.Fprintln(w, line)
		}
	}
	group("BUY", sum.Buy)
	group("SELL", sum.Sell)
	group("HOLD", sum.Hold)
	if len(skipped) > 0 {
		fmt.Fprintln(w, "SKIPPED:")
		for _, o := range skipped {
			fmt.Fprintf(w, "  %-10s %s: %s\n", o.Symbol, o.Skipped, firstLine(o.Err))
		}
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(err error) string {
	if err == nil {
		return ""
	}
	s, _, _ := strings.Cut(err.Error(), "\n")
	return s
}
