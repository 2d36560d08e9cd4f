package indicator

import "signal-systemv1/internal/model"

// MACD tracks the MACD line (fast EMA − slow EMA), its signal EMA and the
// histogram. The line is ready with the slow EMA; the signal line needs a
// further signalPeriod−1 bars because it is seeded from MACD values only.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
	line   float64
}

// NewMACD creates a MACD with the given fast, slow and signal periods (typically 12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(bar model.Bar) {
	m.fast.Add(bar.Close)
	m.slow.Add(bar.Close)
	if !m.slow.Ready() || !m.fast.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Add(m.line)
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.line }

// Ready reports whether the MACD line is available.
func (m *MACD) Ready() bool { return m.slow.Ready() && m.fast.Ready() }

// Signal returns the signal line (EMA of the MACD line).
func (m *MACD) Signal() float64 { return m.signal.Value() }

// SignalReady reports whether the signal line and histogram are available.
func (m *MACD) SignalReady() bool { return m.signal.Ready() }

// Hist returns MACD − signal.
func (m *MACD) Hist() float64 { return m.line - m.signal.Value() }
