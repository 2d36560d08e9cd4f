package indicator

import (
	"math"

	"signal-systemv1/internal/model"
)

// Candle shape thresholds, as fractions of the real body or the bar range.
const (
	maxBodyToRange   = 0.3
	minShadowToBody  = 2.0
	maxCounterShadow = 0.2
)

type candleParts struct {
	body, rng, upper, lower float64
}

func partsOf(b model.Bar) candleParts {
	return candleParts{
		body:  math.Abs(b.Close - b.Open),
		rng:   b.High - b.Low,
		upper: b.High - math.Max(b.Open, b.Close),
		lower: math.Min(b.Open, b.Close) - b.Low,
	}
}

// ShootingStar reports a small body near the low with a long upper shadow.
// A bar with zero range never qualifies.
func ShootingStar(b model.Bar) bool {
	p := partsOf(b)
	if p.rng <= 0 {
		return false
	}
	return p.body <= maxBodyToRange*p.rng &&
		p.upper >= minShadowToBody*p.body &&
		p.lower <= maxCounterShadow*p.body
}

// Hammer reports a small body near the high with a long lower shadow.
// A bar with zero range never qualifies.
func Hammer(b model.Bar) bool {
	p := partsOf(b)
	if p.rng <= 0 {
		return false
	}
	return p.body <= maxBodyToRange*p.rng &&
		p.lower >= minShadowToBody*p.body &&
		p.upper <= maxCounterShadow*p.body
}

// VolumeChange returns the fractional volume change against the previous
// bar. It is 0 when there is no usable previous volume.
func VolumeChange(prev, cur float64) float64 {
	if prev == 0 {
		return 0
	}
	return cur/prev - 1
}

func boolFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
