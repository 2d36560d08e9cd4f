package model

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// Bar is one OHLCV sample for a single asset.
// Bars are immutable once ingested; indicators only ever read them.
type Bar struct {
	TS     time.Time `json:"ts"` // bar open time (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Valid reports whether all prices are finite and positive and the
// high/low envelope is consistent.
func (b Bar) Valid() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	if math.IsNaN(b.Volume) || math.IsInf(b.Volume, 0) || b.Volume < 0 {
		return false
	}
	return b.High >= b.Low
}

// JSON returns the JSON-encoded bar (ignoring errors, bars always marshal).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// Series is the ordered bar history of one asset over a lookback window.
type Series struct {
	Symbol   string        `json:"symbol"`
	Interval time.Duration `json:"interval"`
	Source   string        `json:"source"` // provider that supplied the bars
	Bars     []Bar         `json:"bars"`
}

// Len returns the number of bars.
func (s Series) Len() int { return len(s.Bars) }

// Closes returns the close prices in bar order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Last returns the most recent bar. ok is false for an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Normalize returns a copy with bars sorted by time, duplicate timestamps
// removed (first occurrence wins) and invalid bars dropped. The second
// return value is the number of bars discarded.
func (s Series) Normalize() (Series, int) {
	bars := make([]Bar, 0, len(s.Bars))
	for _, b := range s.Bars {
		if b.Valid() {
			bars = append(bars, b)
		}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })

	out := bars[:0]
	for i, b := range bars {
		if i > 0 && b.TS.Equal(out[len(out)-1].TS) {
			continue
		}
		out = append(out, b)
	}

	ns := s
	ns.Bars = out
	return ns, len(s.Bars) - len(out)
}

// Gaps counts consecutive bar pairs further apart than interval+tolerance.
// Gaps are tolerated; callers log them because they weaken indicator validity.
func (s Series) Gaps(tolerance time.Duration) int {
	if s.Interval <= 0 {
		return 0
	}
	limit := s.Interval + tolerance
	n := 0
	for i := 1; i < len(s.Bars); i++ {
		if s.Bars[i].TS.Sub(s.Bars[i-1].TS) > limit {
			n++
		}
	}
	return n
}
