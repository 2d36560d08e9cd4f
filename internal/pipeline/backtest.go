package pipeline

import (
	"context"
	"fmt"
	"io"

	"signal-systemv1/internal/history"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/model"
)

// BacktestResult counts how often the rules fired over one asset's history.
type BacktestResult struct {
	Symbol    string
	Bars      int
	Rows      int
	LastClose float64
	Entries   int // rows in entry condition
	Exits     int // rows in exit condition
	Buys      int // BUY edges
	Sells     int // SELL edges
	History   string
	Err       error
}

// Backtest scans the full usable history of every asset. It is read-only:
// no lock, no state, no notifications. When a history directory is
// configured each scan is exported there.
func (s *Service) Backtest(ctx context.Context) []BacktestResult {
	ctx = logger.WithRunID(ctx, s.log, logger.NewRunID())
	log := logger.FromContext(ctx)

	out := make([]BacktestResult, 0, len(s.cfg.Assets))
	for _, sym := range s.cfg.Assets {
		res := BacktestResult{Symbol: sym}
		series, err := s.fetcher.Fetch(ctx, sym, s.cfg.Interval, s.cfg.Lookback)
		if err != nil {
			res.Err = err
			out = append(out, res)
			continue
		}
		res.Bars = series.Len()
		if last, ok := series.Last(); ok {
			res.LastClose = last.Close
		}

		rows, err := s.features.Compute(series)
		if err != nil {
			res.Err = err
			out = append(out, res)
			continue
		}
		res.Rows = len(rows)
		steps, err := s.decider.Scan(rows, s.adapter.LoadOrTrain(series, rows))
		if err != nil {
			res.Err = err
			out = append(out, res)
			continue
		}
		for _, st := range steps {
			if st.Entry {
				res.Entries++
			}
			if st.Exit {
				res.Exits++
			}
			switch st.Action {
			case model.ActionBuy:
				res.Buys++
			case model.ActionSell:
				res.Sells++
			}
		}
		if dir := s.cfg.Output.HistoryDir; dir != "" {
			res.History, err = history.Export(dir, s.cfg.Output.HistoryFormat, sym, steps)
			if err != nil {
				log.Warn().Err(err).Str("symbol", sym).Msg("history export failed")
			}
		}
		out = append(out, res)
	}
	return out
}

// PrintBacktest writes one line per asset.
func PrintBacktest(w io.Writer, results []BacktestResult) {
	fmt.Fprintf(w, "%-10s %8s %6s %14s %7s %7s %5s %5s\n", "SYMBOL", "BARS", "ROWS", "LAST CLOSE", "ENTRIES", "EXITS", "BUY", "SELL")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%-10s skipped: %s\n", r.Symbol, firstLine(r.Err))
			continue
		}
		fmt.Fprintf(w, "%-10s %8d %6d %14s %7d %7d %5d %5d\n",
			r.Symbol, r.Bars, r.Rows, model.FormatPrice(r.LastClose), r.Entries, r.Exits, r.Buys, r.Sells)
	}
}
