// Package signallog appends human-readable signal lines to text files:
//
//	2024-05-01 12:30:00 UTC | BTC-USD | BUY | $64000.5000
package signallog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"signal-systemv1/internal/model"
)

// TimeLayout is the timestamp format of a log line.
const TimeLayout = "2006-01-02 15:04:05 UTC"

// Writer appends lines to one file. An empty path disables it.
type Writer struct {
	path string
	now  func() time.Time
}

// New creates a writer for path.
func New(path string) *Writer {
	return &Writer{path: path, now: time.Now}
}

// Enabled reports whether the writer has a destination.
func (w *Writer) Enabled() bool { return w != nil && w.path != "" }

// Line formats one signal stamped with ts.
func Line(ts time.Time, s model.Signal) string {
	return fmt.Sprintf("%s | %s | %s | %s", ts.UTC().Format(TimeLayout), s.Symbol, s.Action, model.FormatPrice(s.Price))
}

// Append writes one line per signal, stamped with the current time, and
// returns the lines written.
func (w *Writer) Append(sigs []model.Signal) ([]string, error) {
	if !w.Enabled() || len(sigs) == 0 {
		return nil, nil
	}
	now := w.now()
	lines := make([]string, len(sigs))
	for i, s := range sigs {
		lines[i] = Line(now, s)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return nil, fmt.Errorf("signal log: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("signal log: %w", err)
	}
	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("signal log: write %s: %w", w.path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("signal log: %w", err)
	}
	return lines, nil
}
