package indicator

import (
	"fmt"
	"math"

	"signal-systemv1/internal/model"
)

// Params holds indicator windows.
type Params struct {
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	BBPeriod   int
	BBStdDev   float64
	ATRPeriod  int
}

// DefaultParams returns RSI(14), MACD(12,26,9), Bollinger(20, 2σ) and ATR(14).
func DefaultParams() Params {
	return Params{
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		BBPeriod:   20,
		BBStdDev:   2,
		ATRPeriod:  14,
	}
}

// barIndicators holds fresh indicator instances for one series.
type barIndicators struct {
	rsi  *RSI
	macd *MACD
	bb   *Bollinger
	atr  *ATR
}

func (p Params) newIndicators() *barIndicators {
	return &barIndicators{
		rsi:  NewRSI(p.RSIPeriod),
		macd: NewMACD(p.MACDFast, p.MACDSlow, p.MACDSignal),
		bb:   NewBollinger(p.BBPeriod, p.BBStdDev),
		atr:  NewATR(p.ATRPeriod),
	}
}

// Engine turns a bar series into feature rows.
// It is stateless between calls; each Build starts fresh indicators.
type Engine struct {
	params   Params
	required []string
}

// NewEngine creates a feature engine. required names the features a row
// must carry to be usable (see Required).
func NewEngine(params Params, required []string) *Engine {
	return &Engine{params: params, required: required}
}

// Build computes one Row per bar. Warm-up bars carry only the features
// whose indicators are ready; nothing is back-filled.
func (e *Engine) Build(s model.Series) []Row {
	ind := e.params.newIndicators()
	rows := make([]Row, 0, len(s.Bars))

	for i, bar := range s.Bars {
		ind.rsi.Update(bar)
		ind.macd.Update(bar)
		ind.bb.Update(bar)
		ind.atr.Update(bar)

		vals := make(map[string]float64, 16)
		if ind.rsi.Ready() {
			vals[FeatRSI] = ind.rsi.Value()
		}
		if ind.macd.Ready() {
			vals[FeatMACD] = ind.macd.Value()
		}
		if ind.macd.SignalReady() {
			vals[FeatMACDSignal] = ind.macd.Signal()
			vals[FeatMACDHist] = ind.macd.Hist()
		}
		if ind.bb.Ready() {
			vals[FeatBBMid] = ind.bb.Mid()
			vals[FeatBBHigh] = ind.bb.Upper()
			vals[FeatBBLow] = ind.bb.Lower()
			vals[FeatBBWidth] = ind.bb.Width()
			vals[FeatPercentB] = ind.bb.PercentB()
		}
		if ind.atr.Ready() {
			vals[FeatATR] = ind.atr.Value()
		}

		prevVol := 0.0
		if i > 0 {
			prevVol = s.Bars[i-1].Volume
		}
		vals[FeatVolumeChange] = VolumeChange(prevVol, bar.Volume)
		vals[FeatShootingStar] = boolFloat(ShootingStar(bar))
		vals[FeatHammer] = boolFloat(Hammer(bar))

		for k, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				delete(vals, k)
			}
		}

		rows = append(rows, Row{Index: i, TS: bar.TS, Bar: bar, Values: vals})
	}
	return rows
}

// Usable keeps the rows that carry every required feature, in order.
func (e *Engine) Usable(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Has(e.required...) {
			out = append(out, r)
		}
	}
	return out
}

// Compute builds rows and returns only the usable ones. A series that
// yields no usable row fails with ErrFeatureComputation.
func (e *Engine) Compute(s model.Series) ([]Row, error) {
	if s.Len() == 0 {
		return nil, fmt.Errorf("%w: %s: empty series", model.ErrFeatureComputation, s.Symbol)
	}
	usable := e.Usable(e.Build(s))
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: %s: no usable rows in %d bars (warm-up needs %d)",
			model.ErrFeatureComputation, s.Symbol, s.Len(), e.WarmUp())
	}
	return usable, nil
}

// WarmUp returns the number of bars needed before the first usable row.
func (e *Engine) WarmUp() int {
	p := e.params
	n := 1
	need := func(feat string, bars int) {
		if contains(e.required, feat) && bars > n {
			n = bars
		}
	}
	need(FeatRSI, p.RSIPeriod+1)
	need(FeatMACD, p.MACDSlow)
	need(FeatMACDSignal, p.MACDSlow+p.MACDSignal-1)
	need(FeatBBMid, p.BBPeriod)
	need(FeatATR, p.ATRPeriod+1)
	return n
}
