package decision

import (
	"fmt"

	"signal-systemv1/config"
	"signal-systemv1/internal/indicator"
)

// Rule is a stateless entry/exit condition over a single feature row.
// Edge detection across rows is the engine's job.
type Rule interface {
	// Name returns the rule mode name as configured.
	Name() string

	// Required lists features beyond the default set the rule reads.
	Required() []string

	// Entry reports whether the row is in an entry condition.
	Entry(r indicator.Row) bool

	// Exit reports whether the row is in an exit condition.
	Exit(r indicator.Row) bool
}

// NewRule builds the configured rule.
func NewRule(cfg config.DecisionConfig) (Rule, error) {
	switch cfg.Rule {
	case "", "bollinger":
		return BollingerRule{}, nil
	case "rsi_macd":
		return RSIMACDRule{Buy: cfg.RSIBuy, Sell: cfg.RSISell}, nil
	default:
		return nil, fmt.Errorf("unknown decision rule %q", cfg.Rule)
	}
}

// BollingerRule enters at or below the lower band and exits at or above
// the upper band.
type BollingerRule struct{}

func (BollingerRule) Name() string       { return "bollinger" }
func (BollingerRule) Required() []string { return nil }

func (BollingerRule) Entry(r indicator.Row) bool {
	low, ok := r.Get(indicator.FeatBBLow)
	return ok && r.Bar.Close <= low
}

func (BollingerRule) Exit(r indicator.Row) bool {
	high, ok := r.Get(indicator.FeatBBHigh)
	return ok && r.Bar.Close >= high
}

// RSIMACDRule enters when RSI is oversold with MACD above its signal line
// and exits when RSI is overbought with MACD below it.
type RSIMACDRule struct {
	Buy  float64 // RSI entry threshold, typically 30
	Sell float64 // RSI exit threshold, typically 70
}

func (RSIMACDRule) Name() string       { return "rsi_macd" }
func (RSIMACDRule) Required() []string { return []string{indicator.FeatMACDSignal} }

func (m RSIMACDRule) Entry(r indicator.Row) bool {
	rsi, macd, sig, ok := m.read(r)
	return ok && rsi < m.Buy && macd > sig
}

func (m RSIMACDRule) Exit(r indicator.Row) bool {
	rsi, macd, sig, ok := m.read(r)
	return ok && rsi > m.Sell && macd < sig
}

func (RSIMACDRule) read(r indicator.Row) (rsi, macd, sig float64, ok bool) {
	if !r.Has(indicator.FeatRSI, indicator.FeatMACD, indicator.FeatMACDSignal) {
		return 0, 0, 0, false
	}
	return r.Values[indicator.FeatRSI], r.Values[indicator.FeatMACD], r.Values[indicator.FeatMACDSignal], true
}
