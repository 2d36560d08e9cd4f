package indicator

import (
	"math"
	"math/rand"
	"testing"
	"time"

	talib "github.com/markcheno/go-talib"

	"signal-systemv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func bar(close float64) model.Bar {
	return model.Bar{Open: close, High: close + 0.5, Low: close - 0.5, Close: close, Volume: 100}
}

func ohlc(o, h, l, c float64) model.Bar {
	return model.Bar{Open: o, High: h, Low: l, Close: c, Volume: 100}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// randomWalk returns a deterministic OHLCV series with mixed up/down moves.
func randomWalk(n int, seed int64) model.Series {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]model.Bar, n)
	price := 100.0
	for i := range bars {
		open := price
		price *= 1 + (rng.Float64()-0.5)*0.04
		hi := math.Max(open, price) * (1 + rng.Float64()*0.01)
		lo := math.Min(open, price) * (1 - rng.Float64()*0.01)
		bars[i] = model.Bar{
			TS:   t0.Add(time.Duration(i) * 30 * time.Minute),
			Open: open, High: hi, Low: lo, Close: price,
			Volume: 1000 + rng.Float64()*500,
		}
	}
	return model.Series{Symbol: "TEST-USD", Interval: 30 * time.Minute, Bars: bars}
}

// ────────────────────────────────────────────────────────────
// SMA / EMA / SMMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after bar 3: (100+102+104)/3 = 102.0
	// SMA after bar 4: (102+104+103)/3 = 103.0
	// SMA after bar 5: (104+103+105)/3 = 104.0
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(bar(p))
		if sma.Ready() != ready[i] {
			t.Errorf("bar %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	// Bar 3: SMA seed = 306/3 = 102.0
	// Bar 4: EMA = 103*0.5 + 102.0*0.5 = 102.5
	// Bar 5: EMA = 105*0.5 + 102.5*0.5 = 103.75
	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}

	for i, p := range prices {
		ema.Update(bar(p))
		if i >= 2 {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

func TestSMMA_Correctness_Period3(t *testing.T) {
	// Seed = (100+102+104)/3 = 102.0
	// Bar 4: (102.0*2 + 103)/3 = 102.3333
	// Bar 5: (102.3333*2 + 105)/3 = 103.2222
	smma := NewSMMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.3333, 103.2222}

	for i, p := range prices {
		smma.Update(bar(p))
		if i >= 2 {
			assertClose(t, "SMMA(3)", smma.Value(), expected[i], 0.001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Prices: 44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84
	//
	// First RSI (bar 6): avgGain = 1.56/5 = 0.312, avgLoss = 0.73/5 = 0.146
	//   RS = 2.136986 → RSI = 68.1223
	// Bar 7 (+0.27): avgGain = 0.3036, avgLoss = 0.1168 → RSI = 72.2169
	// Bar 8 (+0.32): avgGain = 0.30688, avgLoss = 0.09344 → RSI = 76.6587
	// Bar 9 (+0.42): avgGain = 0.329504, avgLoss = 0.074752 → RSI = 81.5087
	prices := []float64{44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}
	want := map[int]float64{5: 68.1223, 6: 72.2169, 7: 76.6587, 8: 81.5087}

	rsi := NewRSI(5)
	for i, p := range prices {
		rsi.Update(bar(p))
		if rsi.Ready() != (i >= 5) {
			t.Errorf("bar %d: Ready()=%v", i, rsi.Ready())
		}
		if w, ok := want[i]; ok {
			assertClose(t, "RSI(5)", rsi.Value(), w, 0.0005)
		}
	}
}

func TestRSI_Extremes(t *testing.T) {
	up, down, flat := NewRSI(5), NewRSI(5), NewRSI(5)
	for i := 0; i < 10; i++ {
		up.Update(bar(100 + float64(i)))
		down.Update(bar(200 - float64(i)))
		flat.Update(bar(100))
	}
	assertClose(t, "RSI all up", up.Value(), 100.0, 0.001)
	assertClose(t, "RSI all down", down.Value(), 0.0, 0.001)
	// No gains and no losses is neutral.
	assertClose(t, "RSI flat", flat.Value(), 50.0, 0.001)
}

func TestRSI_MatchesTalib(t *testing.T) {
	s := randomWalk(200, 7)
	want := talib.Rsi(s.Closes(), 14)

	rsi := NewRSI(14)
	for i, b := range s.Bars {
		rsi.Update(b)
		if i < 14 {
			continue
		}
		assertClose(t, "RSI(14) vs talib", rsi.Value(), want[i], 1e-6)
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_Correctness_Small(t *testing.T) {
	// MACD(2,3,2) over 10, 11, 12, 13, 12
	// EMA2: seed 10.5, then 11.5, 12.5, 12.1667
	// EMA3: seed 11 (bar 3), then 12, 12
	// MACD: 0.5 (bar 3), 0.5, 0.16667
	// Signal EMA2 over MACD: seed 0.5 (bar 4), then 0.27778
	m := NewMACD(2, 3, 2)
	prices := []float64{10, 11, 12, 13, 12}
	for i, p := range prices {
		m.Update(bar(p))
		if m.Ready() != (i >= 2) {
			t.Errorf("bar %d: Ready()=%v", i, m.Ready())
		}
		if m.SignalReady() != (i >= 3) {
			t.Errorf("bar %d: SignalReady()=%v", i, m.SignalReady())
		}
	}
	assertClose(t, "MACD line", m.Value(), 0.16667, 0.0001)
	assertClose(t, "MACD signal", m.Signal(), 0.27778, 0.0001)
	assertClose(t, "MACD hist", m.Hist(), -0.11111, 0.0001)
}

// ────────────────────────────────────────────────────────────
// Bollinger Bands
// ────────────────────────────────────────────────────────────

func TestBollinger_Correctness_Period3(t *testing.T) {
	// Closes 1, 2, 3: mid = 2, population sd = sqrt(2/3) = 0.81650
	// upper = 3.63299, lower = 0.36701, width = 3.26599/2 = 1.63299
	// percent_b = (3 − 0.36701)/3.26599 = 0.80619
	bb := NewBollinger(3, 2)
	for _, p := range []float64{1, 2, 3} {
		bb.Update(bar(p))
	}
	assertClose(t, "BB mid", bb.Mid(), 2, 1e-9)
	assertClose(t, "BB upper", bb.Upper(), 3.63299, 0.0001)
	assertClose(t, "BB lower", bb.Lower(), 0.36701, 0.0001)
	assertClose(t, "BB width", bb.Width(), 1.63299, 0.0001)
	assertClose(t, "BB percent_b", bb.PercentB(), 0.80619, 0.0001)
}

func TestBollinger_FlatBands_PercentBZero(t *testing.T) {
	bb := NewBollinger(5, 2)
	for i := 0; i < 8; i++ {
		bb.Update(bar(42))
	}
	if pb := bb.PercentB(); pb != 0 || math.IsNaN(pb) {
		t.Errorf("expected percent_b=0 for collapsed bands, got %v", pb)
	}
	assertClose(t, "BB width flat", bb.Width(), 0, 1e-12)
}

func TestBollinger_MatchesTalib(t *testing.T) {
	s := randomWalk(120, 11)
	upper, middle, lower := talib.BBands(s.Closes(), 20, 2.0, 2.0, talib.SMA)

	bb := NewBollinger(20, 2)
	for i, b := range s.Bars {
		bb.Update(b)
		if i < 19 {
			continue
		}
		assertClose(t, "BB upper vs talib", bb.Upper(), upper[i], 1e-6)
		assertClose(t, "BB mid vs talib", bb.Mid(), middle[i], 1e-6)
		assertClose(t, "BB lower vs talib", bb.Lower(), lower[i], 1e-6)
	}
}

// ────────────────────────────────────────────────────────────
// ATR
// ────────────────────────────────────────────────────────────

func TestATR_Correctness_Period3(t *testing.T) {
	// TR: bar1 = 2, bar2 = 2, bar3 = max(3, 1, 2) = 3, bar4 = max(4, 4, 0) = 4
	// First ATR (bar index 3) = (2+2+3)/3 = 2.3333
	// Next = (2.3333*2 + 4)/3 = 2.8889
	bars := []model.Bar{
		ohlc(9, 10, 8, 9),
		ohlc(9, 11, 9, 10),
		ohlc(10, 12, 10, 11),
		ohlc(11, 12, 9, 10),
		ohlc(10, 14, 10, 13),
	}
	atr := NewATR(3)
	for i, b := range bars {
		atr.Update(b)
		if atr.Ready() != (i >= 3) {
			t.Errorf("bar %d: Ready()=%v", i, atr.Ready())
		}
		if i == 3 {
			assertClose(t, "ATR seed", atr.Value(), 2.3333, 0.001)
		}
	}
	assertClose(t, "ATR smoothed", atr.Value(), 2.8889, 0.001)
}

func TestATR_MatchesTalib(t *testing.T) {
	s := randomWalk(150, 3)
	highs := make([]float64, s.Len())
	lows := make([]float64, s.Len())
	for i, b := range s.Bars {
		highs[i], lows[i] = b.High, b.Low
	}
	want := talib.Atr(highs, lows, s.Closes(), 14)

	atr := NewATR(14)
	for i, b := range s.Bars {
		atr.Update(b)
		if i < 14 {
			continue
		}
		assertClose(t, "ATR(14) vs talib", atr.Value(), want[i], 1e-6)
	}
}

// ────────────────────────────────────────────────────────────
// Candle shapes & volume
// ────────────────────────────────────────────────────────────

func TestCandleShapes(t *testing.T) {
	tests := []struct {
		name         string
		bar          model.Bar
		star, hammer bool
	}{
		{"shooting star", ohlc(10, 12, 9.98, 10.2), true, false},
		{"hammer", ohlc(10, 10.22, 8, 10.2), false, true},
		{"zero range", ohlc(10, 10, 10, 10), false, false},
		{"doji with two shadows", ohlc(10, 11, 9, 10), false, false},
		{"marubozu", ohlc(10, 12, 10, 12), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShootingStar(tt.bar); got != tt.star {
				t.Errorf("ShootingStar=%v, want %v", got, tt.star)
			}
			if got := Hammer(tt.bar); got != tt.hammer {
				t.Errorf("Hammer=%v, want %v", got, tt.hammer)
			}
		})
	}
}

func TestVolumeChange(t *testing.T) {
	assertClose(t, "vol +50%", VolumeChange(100, 150), 0.5, 1e-12)
	assertClose(t, "vol -25%", VolumeChange(200, 150), -0.25, 1e-12)
	assertClose(t, "vol from zero", VolumeChange(0, 150), 0, 0)
}

// ────────────────────────────────────────────────────────────
// Properties
// ────────────────────────────────────────────────────────────

func TestRSI_AlwaysBounded(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rsi := NewRSI(14)
		for _, b := range randomWalk(300, seed).Bars {
			rsi.Update(b)
			if v := rsi.Value(); v < 0 || v > 100 || math.IsNaN(v) {
				t.Fatalf("seed %d: RSI out of range: %v", seed, v)
			}
		}
	}
}
