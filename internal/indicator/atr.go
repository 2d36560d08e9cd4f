package indicator

import (
	"math"

	"signal-systemv1/internal/model"
)

// ATR calculates Average True Range. True range starts at the second bar
// (it needs a previous close); the first ATR is the mean of the first
// period true ranges, later values use Wilder smoothing.
type ATR struct {
	smma      *SMMA
	count     int
	prevClose float64
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{smma: NewSMMA(period)}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(bar model.Bar) {
	a.count++
	if a.count > 1 {
		a.smma.Add(TrueRange(bar, a.prevClose))
	}
	a.prevClose = bar.Close
}

func (a *ATR) Value() float64 { return a.smma.Value() }
func (a *ATR) Ready() bool    { return a.smma.Ready() }

// TrueRange returns max(high−low, |high−prevClose|, |low−prevClose|).
func TrueRange(bar model.Bar, prevClose float64) float64 {
	return math.Max(bar.High-bar.Low,
		math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
}
