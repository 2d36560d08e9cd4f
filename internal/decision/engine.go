// Package decision turns feature rows into one BUY/SELL/HOLD signal per
// asset.
//
// Signals are edge-triggered: BUY fires only on the bar where the entry
// condition becomes true, SELL only where the exit condition becomes true.
// A BUY additionally needs a bullish classifier vote; SELL does not.
package decision

import (
	"fmt"

	"signal-systemv1/config"
	"signal-systemv1/internal/classifier"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/model"
)

// Engine evaluates a rule over the last two usable rows of a series.
type Engine struct {
	rule     Rule
	buyFirst bool
	atrK     float64
}

// NewEngine builds a decision engine from configuration.
func NewEngine(cfg config.DecisionConfig) (*Engine, error) {
	rule, err := NewRule(cfg)
	if err != nil {
		return nil, err
	}
	k := cfg.ATRMultiplier
	if k == 0 {
		k = 1.5
	}
	return &Engine{rule: rule, buyFirst: cfg.TieBreak == "buy_first", atrK: k}, nil
}

// Rule returns the active rule.
func (e *Engine) Rule() Rule { return e.rule }

// Required returns the features a row must carry for this engine.
func (e *Engine) Required() []string { return indicator.Required(e.rule.Required()...) }

// Decide returns the signal for the most recent usable row. Fewer than two
// usable rows, or a gap between the last two, yields HOLD with a reason.
// A classifier failure (schema mismatch) is returned as an error.
func (e *Engine) Decide(symbol string, rows []indicator.Row, clf classifier.Classifier) (model.Signal, error) {
	if len(rows) == 0 {
		return model.Signal{Symbol: symbol, Action: model.ActionHold, Reason: "no usable rows"}, nil
	}
	cur := rows[len(rows)-1]
	hold := model.Signal{Symbol: symbol, Action: model.ActionHold, Price: cur.Bar.Close, TS: cur.TS}

	if len(rows) < 2 {
		hold.Reason = "fewer than two usable rows"
		return hold, nil
	}
	prior := rows[len(rows)-2]
	if cur.Index != prior.Index+1 {
		hold.Reason = fmt.Sprintf("last usable rows are not consecutive (bars %d and %d)", prior.Index, cur.Index)
		return hold, nil
	}

	st, err := e.step(prior, cur, func() (classifier.Prediction, error) { return clf.Predict(cur.Vector()) })
	if err != nil {
		return model.Signal{}, fmt.Errorf("%s: %w", symbol, err)
	}
	return e.signal(symbol, st), nil
}

// Step is the evaluation of one row against its predecessor.
type Step struct {
	Row        indicator.Row
	Entry      bool
	Exit       bool
	Prediction *classifier.Prediction // nil when the classifier was not consulted
	Action     model.Action
	Reason     string
}

// Scan evaluates every usable row against the row before it, predicting
// on each row. The first row, and any row following a gap, is HOLD.
func (e *Engine) Scan(rows []indicator.Row, clf classifier.Classifier) ([]Step, error) {
	steps := make([]Step, 0, len(rows))
	for i, cur := range rows {
		p, err := clf.Predict(cur.Vector())
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", cur.Index, err)
		}
		if i == 0 || cur.Index != rows[i-1].Index+1 {
			steps = append(steps, Step{
				Row: cur, Entry: e.rule.Entry(cur), Exit: e.rule.Exit(cur),
				Prediction: &p, Action: model.ActionHold, Reason: "no prior row",
			})
			continue
		}
		st, _ := e.step(rows[i-1], cur, func() (classifier.Prediction, error) { return p, nil })
		st.Prediction = &p
		steps = append(steps, st)
	}
	return steps, nil
}

// step applies the edge-trigger rules. predict is only called when an
// entry edge needs confirming.
func (e *Engine) step(prior, cur indicator.Row, predict func() (classifier.Prediction, error)) (Step, error) {
	st := Step{Row: cur, Entry: e.rule.Entry(cur), Exit: e.rule.Exit(cur), Action: model.ActionHold}

	buyEdge := st.Entry && !e.rule.Entry(prior)
	sellEdge := st.Exit && !e.rule.Exit(prior)

	buy := false
	if buyEdge {
		p, err := predict()
		if err != nil {
			return st, err
		}
		st.Prediction = &p
		buy = p.Bullish()
	}

	switch {
	case buy && sellEdge:
		if e.buyFirst {
			st.Action, st.Reason = model.ActionBuy, "entry and exit on the same bar, buy first"
		} else {
			st.Action, st.Reason = model.ActionSell, "entry and exit on the same bar, sell first"
		}
	case buy:
		st.Action, st.Reason = model.ActionBuy, e.rule.Name()+" entry confirmed"
	case sellEdge:
		st.Action, st.Reason = model.ActionSell, e.rule.Name()+" exit"
	case buyEdge:
		st.Reason = "entry not confirmed by classifier"
	case st.Entry || st.Exit:
		st.Reason = "condition already active on prior bar"
	}
	return st, nil
}

func (e *Engine) signal(symbol string, st Step) model.Signal {
	cur := st.Row
	sig := model.Signal{
		Symbol: symbol,
		Action: st.Action,
		Price:  cur.Bar.Close,
		TS:     cur.TS,
		Reason: st.Reason,
	}
	if st.Prediction != nil && st.Prediction.Voted {
		conf := st.Prediction.Probability
		sig.Confidence = &conf
	}

	atr := cur.Values[indicator.FeatATR]
	switch st.Action {
	case model.ActionBuy:
		sig.BollingerTarget = cur.Values[indicator.FeatBBHigh]
		sig.ATRTarget = cur.Bar.Close + e.atrK*atr
	case model.ActionSell:
		sig.BollingerTarget = cur.Values[indicator.FeatBBLow]
		sig.ATRTarget = cur.Bar.Close - e.atrK*atr
	}
	return sig
}
