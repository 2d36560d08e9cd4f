package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"signal-systemv1/internal/marketdata/agg"
	"signal-systemv1/internal/model"
)

// Coinbase serves at most 300 candles per request, at a fixed set of
// granularities (seconds).
const coinbaseMaxCandles = 300

var coinbaseGranularities = []time.Duration{
	24 * time.Hour, 6 * time.Hour, time.Hour, 15 * time.Minute, 5 * time.Minute, time.Minute,
}

// Coinbase fetches candles from the Coinbase Exchange REST API. Intervals
// the API does not serve (e.g. 30m) are built by resampling the largest
// granularity that divides them.
type Coinbase struct {
	client *resty.Client
	now    func() time.Time
}

// NewCoinbase creates a Coinbase provider.
func NewCoinbase(cfg HTTPConfig) *Coinbase {
	return &Coinbase{client: newClient(cfg), now: time.Now}
}

func (c *Coinbase) Name() string { return "coinbase" }

func (c *Coinbase) Fetch(ctx context.Context, symbol string, interval, lookback time.Duration) (model.Series, error) {
	gran, err := coinbaseGranularity(interval)
	if err != nil {
		return model.Series{}, err
	}
	base, quote, err := splitSymbol(symbol)
	if err != nil {
		return model.Series{}, err
	}
	product := base + "-" + quote

	from, to := window(c.now(), lookback)
	chunk := gran * coinbaseMaxCandles
	var bars []model.Bar

	for start := from; start.Before(to); start = start.Add(chunk) {
		end := start.Add(chunk)
		if end.After(to) {
			end = to
		}

		var rows [][]json.Number
		resp, err := c.client.R().
			SetContext(ctx).
			SetPathParam("product", product).
			SetQueryParams(map[string]string{
				"granularity": strconv.Itoa(int(gran.Seconds())),
				"start":       start.UTC().Format(time.RFC3339),
				"end":         end.UTC().Format(time.RFC3339),
			}).
			SetResult(&rows).
			Get("/products/{product}/candles")
		if err := checkResponse(resp, err); err != nil {
			return model.Series{}, fmt.Errorf("coinbase candles %s: %w", product, err)
		}

		page, err := parseCoinbase(rows)
		if err != nil {
			return model.Series{}, fmt.Errorf("coinbase candles %s: %w", product, err)
		}
		bars = append(bars, page...)
	}

	// Candles arrive newest first per page; Normalize sorts before resampling.
	s, _ := model.Series{Symbol: symbol, Interval: gran, Bars: bars}.Normalize()
	if gran != interval {
		s.Bars, _ = agg.Resample(s.Bars, interval)
	}
	return model.Series{Symbol: symbol, Interval: interval, Source: c.Name(), Bars: s.Bars}, nil
}

// parseCoinbase decodes [time, low, high, open, close, volume] rows.
func parseCoinbase(rows [][]json.Number) ([]model.Bar, error) {
	bars := make([]model.Bar, 0, len(rows))
	for i, r := range rows {
		if len(r) < 6 {
			return nil, fmt.Errorf("candle %d: %d fields", i, len(r))
		}
		sec, err := r[0].Int64()
		if err != nil {
			return nil, fmt.Errorf("candle %d time: %w", i, err)
		}
		var f [5]float64
		for j, name := range []string{"low", "high", "open", "close", "volume"} {
			v, err := parsePrice(name, r[j+1].String())
			if err != nil {
				return nil, fmt.Errorf("candle %d: %w", i, err)
			}
			f[j] = v
		}
		bars = append(bars, model.Bar{
			TS:  time.Unix(sec, 0).UTC(),
			Low: f[0], High: f[1], Open: f[2], Close: f[3], Volume: f[4],
		})
	}
	return bars, nil
}

func coinbaseGranularity(interval time.Duration) (time.Duration, error) {
	for _, g := range coinbaseGranularities {
		if g <= interval && interval%g == 0 {
			return g, nil
		}
	}
	return 0, fmt.Errorf("coinbase: no granularity divides interval %s", interval)
}
