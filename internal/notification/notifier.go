// Package notification delivers run results to external channels
// (webhook, email, Telegram, log) with a primary/fallback policy.
package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"signal-systemv1/internal/model"
)

// Summary groups the decisions of one run by action.
type Summary struct {
	Buy  []model.Signal `json:"BUY"`
	Sell []model.Signal `json:"SELL"`
	Hold []model.Signal `json:"HOLD"`
}

// NewSummary groups signals by action, each group sorted by symbol.
func NewSummary(sigs []model.Signal) Summary {
	var s Summary
	for _, sig := range sigs {
		switch sig.Action {
		case model.ActionBuy:
			s.Buy = append(s.Buy, sig)
		case model.ActionSell:
			s.Sell = append(s.Sell, sig)
		default:
			s.Hold = append(s.Hold, sig)
		}
	}
	for _, g := range [][]model.Signal{s.Buy, s.Sell, s.Hold} {
		sort.Slice(g, func(i, j int) bool { return g[i].Symbol < g[j].Symbol })
	}
	return s
}

// Payload is what one notification carries: the changed signals of a run
// plus the full run summary.
type Payload struct {
	Source  string         `json:"source"`
	RunID   string         `json:"run_id"`
	TS      time.Time      `json:"timestamp"`
	Signals []model.Signal `json:"signals"`
	Summary Summary        `json:"summary"`
}

// Subject is the one-line title used by email and Telegram.
func (p Payload) Subject() string {
	return "Crypto AI Bot Alert - " + p.TS.UTC().Format("2006-01-02 15:04:05 UTC")
}

// Text renders the changed signals grouped into BUY and SELL sections.
func (p Payload) Text() string {
	changed := NewSummary(p.Signals)
	var parts []string
	if len(changed.Buy) > 0 {
		parts = append(parts, "BUY signals:\n"+lines(changed.Buy))
	}
	if len(changed.Sell) > 0 {
		parts = append(parts, "SELL signals:\n"+lines(changed.Sell))
	}
	if len(parts) == 0 {
		return "No BUY/SELL signals."
	}
	return strings.Join(parts, "\n\n")
}

func lines(sigs []model.Signal) string {
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = fmt.Sprintf("%s: %s -> Targets: Bollinger %s, ATR %s",
			s.Symbol, model.FormatPrice(s.Price), model.FormatPrice(s.BollingerTarget), model.FormatPrice(s.ATRTarget))
	}
	return strings.Join(out, "\n")
}

// Notifier is a single notification channel. Send makes one delivery
// attempt and returns an error if it did not succeed.
type Notifier interface {
	Name() string
	Send(ctx context.Context, p Payload) error
}

// LogNotifier writes the payload to the structured log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(_ context.Context, p Payload) error {
	for _, s := range p.Signals {
		n.log.Info().
			Str("symbol", s.Symbol).
			Str("signal", string(s.Action)).
			Float64("price", s.Price).
			Float64("bollinger_target", s.BollingerTarget).
			Float64("atr_target", s.ATRTarget).
			Msg("signal changed")
	}
	return nil
}
