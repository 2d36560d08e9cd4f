// Package agg resamples bar series onto a coarser interval.
package agg

import (
	"time"

	"signal-systemv1/internal/model"
)

// Resample merges time-ordered bars into buckets of the given interval,
// aligned to the Unix epoch. Open comes from the first bar in a bucket,
// Close from the last; High/Low/Volume are aggregated. Bars older than
// the current bucket (late or out of order) are dropped and counted.
func Resample(bars []model.Bar, interval time.Duration) (out []model.Bar, dropped int) {
	if interval <= 0 || len(bars) == 0 {
		return bars, 0
	}

	out = make([]model.Bar, 0, len(bars))
	var cur model.Bar
	var bucket time.Time
	open := false

	for _, b := range bars {
		bt := b.TS.Truncate(interval)

		if open && bt.Before(bucket) {
			dropped++
			continue
		}

		if open && bt.After(bucket) {
			// New bucket: finalize the previous bar first
			out = append(out, cur)
			open = false
		}

		if !open {
			bucket = bt
			cur = model.Bar{TS: bt, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
			open = true
			continue
		}

		// Same bucket: update OHLCV
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	if open {
		out = append(out, cur)
	}
	return out, dropped
}

// Complete drops bars whose interval has not fully elapsed at now. Such a
// bar is still forming and its close would change on the next run.
func Complete(bars []model.Bar, interval time.Duration, now time.Time) []model.Bar {
	n := len(bars)
	for n > 0 && bars[n-1].TS.Add(interval).After(now) {
		n--
	}
	return bars[:n]
}
