package provider

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"signal-systemv1/internal/marketdata/agg"
	"signal-systemv1/internal/model"
)

// CSVFile reads bars from <dir>/<SYMBOL>.csv with a header row
// ts,open,high,low,close,volume. ts is RFC 3339 or Unix seconds. The
// lookback is measured back from the newest bar in the file, so the
// provider serves fixed offline datasets.
type CSVFile struct {
	dir string
}

// NewCSVFile creates a CSV provider reading from dir.
func NewCSVFile(dir string) *CSVFile {
	return &CSVFile{dir: dir}
}

func (c *CSVFile) Name() string { return "csv" }

func (c *CSVFile) Fetch(_ context.Context, symbol string, interval, lookback time.Duration) (model.Series, error) {
	path := filepath.Join(c.dir, symbol+".csv")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Series{}, assetErr(fmt.Errorf("csv: %w", err))
	}
	if err != nil {
		return model.Series{}, fmt.Errorf("csv: %w", err)
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return model.Series{}, fmt.Errorf("csv %s: %w", path, err)
	}
	s, _ := model.Series{Symbol: symbol, Bars: bars}.Normalize()
	s.Bars, _ = agg.Resample(s.Bars, interval)

	if last, ok := s.Last(); ok {
		since := last.TS.Add(-lookback)
		i := 0
		for i < len(s.Bars) && s.Bars[i].TS.Before(since) {
			i++
		}
		s.Bars = s.Bars[i:]
	}
	return model.Series{Symbol: symbol, Interval: interval, Source: c.Name(), Bars: s.Bars}, nil
}

// ReadCSV parses ts,open,high,low,close,volume rows after a header line.
func ReadCSV(r io.Reader) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("line %d: %d fields, want 6", line, len(rec))
		}
		ts, err := parseTS(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var f [5]float64
		for j, name := range []string{"open", "high", "low", "close", "volume"} {
			v, err := parsePrice(name, strings.TrimSpace(rec[j+1]))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			f[j] = v
		}
		bars = append(bars, model.Bar{TS: ts, Open: f[0], High: f[1], Low: f[2], Close: f[3], Volume: f[4]})
	}
	return bars, nil
}

func parseTS(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ts %q: %w", s, err)
	}
	return ts.UTC(), nil
}
