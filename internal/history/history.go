// Package history exports per-bar signal history (prices, bands, ATR,
// classifier label and entry/exit flags) for offline inspection.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"signal-systemv1/internal/decision"
	"signal-systemv1/internal/indicator"
)

// Record is one exported bar.
type Record struct {
	TS             int64   `json:"ts" parquet:"ts"` // unix milliseconds
	Open           float64 `json:"open" parquet:"open"`
	High           float64 `json:"high" parquet:"high"`
	Low            float64 `json:"low" parquet:"low"`
	Close          float64 `json:"close" parquet:"close"`
	BBLow          float64 `json:"bb_low" parquet:"bb_low"`
	BBHigh         float64 `json:"bb_high" parquet:"bb_high"`
	ATR            float64 `json:"atr" parquet:"atr"`
	AISignal       int32   `json:"ai_signal" parquet:"ai_signal"`
	BollingerEntry int32   `json:"bollinger_entry" parquet:"bollinger_entry"`
	BollingerExit  int32   `json:"bollinger_exit" parquet:"bollinger_exit"`
	Action         string  `json:"action" parquet:"action"`
}

// Records converts scan steps to export records.
func Records(steps []decision.Step) []Record {
	out := make([]Record, len(steps))
	for i, st := range steps {
		r := st.Row
		rec := Record{
			TS:     r.TS.UnixMilli(),
			Open:   r.Bar.Open,
			High:   r.Bar.High,
			Low:    r.Bar.Low,
			Close:  r.Bar.Close,
			BBLow:  r.Values[indicator.FeatBBLow],
			BBHigh: r.Values[indicator.FeatBBHigh],
			ATR:    r.Values[indicator.FeatATR],
			Action: string(st.Action),
		}
		if st.Prediction != nil {
			rec.AISignal = int32(st.Prediction.Label)
		}
		if st.Entry {
			rec.BollingerEntry = 1
		}
		if st.Exit {
			rec.BollingerExit = 1
		}
		out[i] = rec
	}
	return out
}

// Saver writes records in one file format.
type Saver interface {
	Extension() string
	Save(recs []Record, path string) error
}

// NewSaver returns the saver for format (csv, json, parquet), or nil if
// the format is not supported.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "json":
		return JSONSaver{}
	case "parquet":
		return ParquetSaver{}
	default:
		return nil
	}
}

// FileName is the export file name for a symbol, e.g. BTC_USD_signals_history.csv.
func FileName(symbol, ext string) string {
	r := strings.NewReplacer("-", "_", "/", "_")
	return r.Replace(symbol) + "_signals_history." + ext
}

// Export writes the scan of one symbol to dir and returns the file path.
func Export(dir, format, symbol string, steps []decision.Step) (string, error) {
	s := NewSaver(format)
	if s == nil {
		return "", fmt.Errorf("history: unsupported format %q (use csv, json, parquet)", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("history: %w", err)
	}
	path := filepath.Join(dir, FileName(symbol, s.Extension()))
	if err := s.Save(Records(steps), path); err != nil {
		return "", fmt.Errorf("history: save %s: %w", path, err)
	}
	return path, nil
}
