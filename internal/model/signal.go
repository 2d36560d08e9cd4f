package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the discrete trading decision for one asset.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ParseAction converts a stored or configured string to an Action.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	case ActionHold:
		return ActionHold, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Actionable reports whether the action is notify-worthy (BUY or SELL).
func (a Action) Actionable() bool { return a == ActionBuy || a == ActionSell }

// Signal is the decision for one asset at one bar.
type Signal struct {
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"signal"`
	Price      float64   `json:"price"`
	TS         time.Time `json:"timestamp"`
	Confidence *float64  `json:"confidence,omitempty"` // 0..1, only when a real classifier voted
	Reason     string    `json:"reason,omitempty"`

	// Informational price targets, set on BUY/SELL only.
	BollingerTarget float64 `json:"bollinger_target,omitempty"`
	ATRTarget       float64 `json:"atr_target,omitempty"`
}

// SameAs reports whether two signals carry the same decision.
// Metadata (price, time, confidence) does not make a signal "new".
func (s Signal) SameAs(other Signal) bool {
	return s.Action == other.Action
}

// String renders the one-line human form used by logs and messages.
func (s Signal) String() string {
	if s.Action.Actionable() {
		return fmt.Sprintf("%s %s at %s -> Targets: Bollinger %s, ATR %s",
			s.Action, s.Symbol, FormatPrice(s.Price), FormatPrice(s.BollingerTarget), FormatPrice(s.ATRTarget))
	}
	return fmt.Sprintf("%s %s at %s", s.Action, s.Symbol, FormatPrice(s.Price))
}

// FormatPrice renders a price with four decimals and a dollar sign.
func FormatPrice(p float64) string {
	return "$" + decimal.NewFromFloat(p).StringFixed(4)
}

// JSON returns the JSON-encoded signal.
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// SignalState is the last persisted signal per asset symbol.
type SignalState map[string]Signal

// Clone returns an independent copy of the state map.
func (st SignalState) Clone() SignalState {
	out := make(SignalState, len(st))
	for k, v := range st {
		out[k] = v
	}
	return out
}
