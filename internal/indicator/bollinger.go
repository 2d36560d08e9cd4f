package indicator

import (
	"math"

	"signal-systemv1/internal/model"
)

// Bollinger computes Bollinger Bands: an SMA middle band and upper/lower
// bands k population standard deviations away.
type Bollinger struct {
	sma   *SMA
	k     float64
	mid   float64
	dev   float64
	close float64
}

// NewBollinger creates Bollinger Bands over period closes with k deviations (typically 20, 2).
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{sma: NewSMA(period), k: k}
}

func (b *Bollinger) Name() string { return "BBANDS" }

func (b *Bollinger) Update(bar model.Bar) {
	b.sma.Update(bar)
	b.close = bar.Close
	if !b.sma.Ready() {
		return
	}
	b.mid = b.sma.Value()

	var ss float64
	for _, v := range b.sma.window() {
		d := v - b.mid
		ss += d * d
	}
	b.dev = math.Sqrt(ss / float64(b.sma.period))
}

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.mid }
func (b *Bollinger) Ready() bool    { return b.sma.Ready() }

func (b *Bollinger) Mid() float64   { return b.mid }
func (b *Bollinger) Upper() float64 { return b.mid + b.k*b.dev }
func (b *Bollinger) Lower() float64 { return b.mid - b.k*b.dev }

// Width returns (upper − lower) / mid.
func (b *Bollinger) Width() float64 {
	if b.mid == 0 {
		return 0
	}
	return (b.Upper() - b.Lower()) / b.mid
}

// PercentB returns where the last close sits inside the bands, 0 at the
// lower band and 1 at the upper. Collapsed bands (zero deviation) give 0.
func (b *Bollinger) PercentB() float64 {
	span := b.Upper() - b.Lower()
	if span == 0 {
		return 0
	}
	return (b.close - b.Lower()) / span
}
