package indicator

import (
	"time"

	"signal-systemv1/internal/model"
)

// Feature names. These are the keys of Row.Values and of a Vector.
const (
	FeatRSI          = "rsi"
	FeatMACD         = "macd"
	FeatMACDSignal   = "macd_signal"
	FeatMACDHist     = "macd_hist"
	FeatBBMid        = "bb_mid"
	FeatBBHigh       = "bb_high"
	FeatBBLow        = "bb_low"
	FeatBBWidth      = "bb_width"
	FeatPercentB     = "percent_b"
	FeatVolumeChange = "volume_change"
	FeatShootingStar = "shooting_star"
	FeatHammer       = "hammer"
	FeatATR          = "atr"
)

// Schema is the ordered classifier feature set. A trained classifier
// records it and refuses vectors that do not match it exactly.
var Schema = []string{
	FeatRSI, FeatMACD, FeatBBMid, FeatBBHigh, FeatBBLow, FeatBBWidth,
	FeatPercentB, FeatVolumeChange, FeatShootingStar, FeatHammer,
}

// Required returns the features a row must carry to be usable: the
// classifier schema, ATR for price targets, plus any rule-specific extras.
func Required(extra ...string) []string {
	out := make([]string, 0, len(Schema)+1+len(extra))
	out = append(out, Schema...)
	out = append(out, FeatATR)
	for _, e := range extra {
		if !contains(out, e) {
			out = append(out, e)
		}
	}
	return out
}

// Vector is the feature input of a classifier keyed by feature name.
type Vector map[string]float64

// Row is the per-bar output of the feature engine. A feature missing from
// Values is null: its indicator had not warmed up at this bar.
type Row struct {
	Index  int // position of the bar in the series
	TS     time.Time
	Bar    model.Bar
	Values map[string]float64
}

// Get returns a feature value and whether it is present.
func (r Row) Get(name string) (float64, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Has reports whether every named feature is present.
func (r Row) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := r.Values[n]; !ok {
			return false
		}
	}
	return true
}

// Vector returns the schema features of the row. Absent features stay
// absent so the classifier can reject the vector.
func (r Row) Vector() Vector {
	v := make(Vector, len(Schema))
	for _, name := range Schema {
		if x, ok := r.Values[name]; ok {
			v[name] = x
		}
	}
	return v
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
