package model

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func bar(min int, close float64) Bar {
	return Bar{
		TS:   t0.Add(time.Duration(min) * time.Minute),
		Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 10,
	}
}

func TestSeries_Normalize_SortsAndDedups(t *testing.T) {
	s := Series{Symbol: "BTC-USD", Interval: time.Minute, Bars: []Bar{
		bar(2, 102), bar(0, 100), bar(1, 101), bar(1, 999),
	}}

	ns, dropped := s.Normalize()
	if dropped != 1 {
		t.Fatalf("expected 1 dropped bar, got %d", dropped)
	}
	if ns.Len() != 3 {
		t.Fatalf("expected 3 bars, got %d", ns.Len())
	}
	for i, want := range []float64{100, 101, 102} {
		if ns.Bars[i].Close != want {
			t.Errorf("bar %d: close=%.1f, want %.1f", i, ns.Bars[i].Close, want)
		}
	}
	// The input slice must not be reordered.
	if s.Bars[0].Close != 102 {
		t.Error("Normalize mutated the receiver's bars")
	}
}

func TestSeries_Normalize_DropsInvalidBars(t *testing.T) {
	bad := bar(1, 100)
	bad.Close = math.NaN()
	neg := bar(2, 100)
	neg.Low = -1
	inverted := bar(3, 100)
	inverted.High, inverted.Low = 90, 110

	s := Series{Bars: []Bar{bar(0, 100), bad, neg, inverted}}
	ns, dropped := s.Normalize()
	if dropped != 3 || ns.Len() != 1 {
		t.Errorf("expected 1 bar and 3 dropped, got %d bars and %d dropped", ns.Len(), dropped)
	}
}

func TestSeries_Gaps(t *testing.T) {
	s := Series{Interval: time.Minute, Bars: []Bar{bar(0, 1), bar(1, 1), bar(5, 1), bar(6, 1), bar(9, 1)}}
	if g := s.Gaps(0); g != 2 {
		t.Errorf("expected 2 gaps, got %d", g)
	}
	if g := s.Gaps(5 * time.Minute); g != 0 {
		t.Errorf("expected 0 gaps with tolerance, got %d", g)
	}
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{"buy": ActionBuy, " SELL ": ActionSell, "Hold": ActionHold} {
		got, err := ParseAction(in)
		if err != nil || got != want {
			t.Errorf("ParseAction(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseAction("EXIT"); err == nil {
		t.Error("expected error for unknown action")
	}
}
