package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"signal-systemv1/internal/model"
)

const binanceMaxLimit = 1000

var binanceIntervals = map[time.Duration]string{
	time.Minute:      "1m",
	3 * time.Minute:  "3m",
	5 * time.Minute:  "5m",
	15 * time.Minute: "15m",
	30 * time.Minute: "30m",
	time.Hour:        "1h",
	2 * time.Hour:    "2h",
	4 * time.Hour:    "4h",
	6 * time.Hour:    "6h",
	8 * time.Hour:    "8h",
	12 * time.Hour:   "12h",
	24 * time.Hour:   "1d",
}

// Binance fetches klines from the Binance spot REST API. USD quotes are
// mapped to USDT pairs (BTC-USD → BTCUSDT).
type Binance struct {
	client *resty.Client
	now    func() time.Time
}

// NewBinance creates a Binance provider.
func NewBinance(cfg HTTPConfig) *Binance {
	return &Binance{client: newClient(cfg), now: time.Now}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Fetch(ctx context.Context, symbol string, interval, lookback time.Duration) (model.Series, error) {
	iv, ok := binanceIntervals[interval]
	if !ok {
		return model.Series{}, fmt.Errorf("binance: unsupported interval %s", interval)
	}
	pair, err := binancePair(symbol)
	if err != nil {
		return model.Series{}, err
	}

	from, to := window(b.now(), lookback)
	var bars []model.Bar

	// Page forward from the window start; each page returns up to 1000 klines.
	for start := from; start.Before(to); {
		var rows [][]json.RawMessage
		resp, err := b.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol":    pair,
				"interval":  iv,
				"startTime": strconv.FormatInt(start.UnixMilli(), 10),
				"endTime":   strconv.FormatInt(to.UnixMilli(), 10),
				"limit":     strconv.Itoa(binanceMaxLimit),
			}).
			SetResult(&rows).
			Get("/api/v3/klines")
		if err := checkResponse(resp, err); err != nil {
			return model.Series{}, fmt.Errorf("binance klines %s: %w", pair, err)
		}

		page, err := parseKlines(rows)
		if err != nil {
			return model.Series{}, fmt.Errorf("binance klines %s: %w", pair, err)
		}
		bars = append(bars, page...)
		if len(page) < binanceMaxLimit {
			break
		}
		start = page[len(page)-1].TS.Add(interval)
	}

	return model.Series{Symbol: symbol, Interval: interval, Source: b.Name(), Bars: bars}, nil
}

// parseKlines decodes [openTime, open, high, low, close, volume, ...] rows.
func parseKlines(rows [][]json.RawMessage) ([]model.Bar, error) {
	bars := make([]model.Bar, 0, len(rows))
	for i, r := range rows {
		if len(r) < 6 {
			return nil, fmt.Errorf("kline %d: %d fields", i, len(r))
		}
		var openMs int64
		if err := json.Unmarshal(r[0], &openMs); err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		var f [5]float64
		for j, name := range []string{"open", "high", "low", "close", "volume"} {
			var s string
			if err := json.Unmarshal(r[j+1], &s); err != nil {
				return nil, fmt.Errorf("kline %d %s: %w", i, name, err)
			}
			v, err := parsePrice(name, s)
			if err != nil {
				return nil, fmt.Errorf("kline %d: %w", i, err)
			}
			f[j] = v
		}
		bars = append(bars, model.Bar{
			TS:   time.UnixMilli(openMs).UTC(),
			Open: f[0], High: f[1], Low: f[2], Close: f[3], Volume: f[4],
		})
	}
	return bars, nil
}

func binancePair(symbol string) (string, error) {
	base, quote, err := splitSymbol(symbol)
	if err != nil {
		return "", err
	}
	if quote == "USD" {
		quote = "USDT"
	}
	return base + quote, nil
}
