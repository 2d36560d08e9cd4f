package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"signal-systemv1/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func httpCfg(url string) HTTPConfig {
	return HTTPConfig{BaseURL: url, Timeout: 2 * time.Second, Attempts: 3, RetryWait: time.Millisecond}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func kline(ts time.Time, o, h, l, c, v string) []any {
	return []any{ts.UnixMilli(), o, h, l, c, v, ts.Add(30*time.Minute).UnixMilli() - 1, "0", 10, "0", "0", "0"}
}

type fakeProvider struct {
	name  string
	bars  []model.Bar
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Fetch(_ context.Context, symbol string, interval, _ time.Duration) (model.Series, error) {
	f.calls++
	if f.err != nil {
		return model.Series{}, f.err
	}
	return model.Series{Symbol: symbol, Interval: interval, Bars: f.bars}, nil
}

type memCache struct {
	written map[string]int
}

func (m *memCache) WriteBars(_ context.Context, s model.Series) error {
	if m.written == nil {
		m.written = map[string]int{}
	}
	m.written[s.Symbol] += s.Len()
	return nil
}

func (m *memCache) ReadBars(context.Context, string, time.Duration, time.Time) ([]model.Bar, error) {
	return nil, nil
}

func closedBars(n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		ts := now.Add(-time.Duration(n-i) * 30 * time.Minute)
		bars[i] = model.Bar{TS: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1}
	}
	return bars
}

// ────────────────────────────────────────────────────────────
// Binance
// ────────────────────────────────────────────────────────────

func TestBinance_FetchParsesKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "30m" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		writeJSON(w, [][]any{
			kline(now.Add(-90*time.Minute), "100.10", "101.50", "99.90", "101.00", "12.5"),
			kline(now.Add(-60*time.Minute), "101.00", "102.00", "100.50", "101.75", "8"),
		})
	}))
	defer srv.Close()

	b := NewBinance(httpCfg(srv.URL))
	b.now = func() time.Time { return now }

	s, err := b.Fetch(context.Background(), "BTC-USD", 30*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s.Len() != 2 || s.Source != "binance" {
		t.Fatalf("expected 2 bars from binance, got %d from %q", s.Len(), s.Source)
	}
	first := s.Bars[0]
	if first.Open != 100.10 || first.High != 101.50 || first.Low != 99.90 || first.Close != 101.00 || first.Volume != 12.5 {
		t.Errorf("unexpected bar %+v", first)
	}
	if !first.TS.Equal(now.Add(-90 * time.Minute)) {
		t.Errorf("unexpected ts %s", first.TS)
	}
}

func TestBinance_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, [][]any{kline(now.Add(-time.Hour), "1", "2", "0.5", "1.5", "3")})
	}))
	defer srv.Close()

	b := NewBinance(httpCfg(srv.URL))
	b.now = func() time.Time { return now }
	s, err := b.Fetch(context.Background(), "ETH-USD", 30*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if s.Len() != 1 || atomic.LoadInt32(&hits) != 2 {
		t.Errorf("expected 1 bar after 2 attempts, got %d bars after %d", s.Len(), hits)
	}
}

func TestBinance_GivesUpAfterAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	b := NewBinance(httpCfg(srv.URL))
	if _, err := b.Fetch(context.Background(), "ETH-USD", 30*time.Minute, time.Hour); err == nil {
		t.Fatal("expected error")
	}
	if h := atomic.LoadInt32(&hits); h != 3 {
		t.Errorf("expected 3 attempts, got %d", h)
	}
}

func TestBinance_Paginates(t *testing.T) {
	from := now.Add(-1100 * 30 * time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startMs, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		start := time.UnixMilli(startMs).UTC()
		n := binanceMaxLimit
		if !start.Equal(from) {
			n = 5
		}
		rows := make([][]any, n)
		for i := range rows {
			rows[i] = kline(start.Add(time.Duration(i)*30*time.Minute), "1", "1", "1", "1", "1")
		}
		writeJSON(w, rows)
	}))
	defer srv.Close()

	b := NewBinance(httpCfg(srv.URL))
	b.now = func() time.Time { return now }
	s, err := b.Fetch(context.Background(), "BTC-USD", 30*time.Minute, 1100*30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != binanceMaxLimit+5 {
		t.Errorf("expected %d bars over two pages, got %d", binanceMaxLimit+5, s.Len())
	}
}

func TestBinance_RejectsBadInput(t *testing.T) {
	b := NewBinance(httpCfg("http://127.0.0.1:1"))
	if _, err := b.Fetch(context.Background(), "BTC-USD", 7*time.Minute, time.Hour); err == nil {
		t.Error("expected unsupported interval error")
	}
	if _, err := b.Fetch(context.Background(), "BTCUSD", 30*time.Minute, time.Hour); err == nil {
		t.Error("expected malformed symbol error")
	}
}

// ────────────────────────────────────────────────────────────
// Coinbase
// ────────────────────────────────────────────────────────────

func TestCoinbase_ResamplesFifteenMinuteCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/BTC-USD/candles" || r.URL.Query().Get("granularity") != "900" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		ts := func(m int) int64 { return now.Add(time.Duration(m) * time.Minute).Unix() }
		// newest first: [time, low, high, open, close, volume]
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[[%d,99,103,102,101,4],[%d,100,104,101,102,3],[%d,98,102,100,101,2],[%d,97,101,99,100,1]]`,
			ts(-75), ts(-90), ts(-105), ts(-120))
	}))
	defer srv.Close()

	c := NewCoinbase(httpCfg(srv.URL))
	c.now = func() time.Time { return now }
	s, err := c.Fetch(context.Background(), "BTC-USD", 30*time.Minute, 2*time.Hour)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 resampled bars, got %d", s.Len())
	}
	first := s.Bars[0] // 10:00 and 10:15
	if first.Open != 99 || first.High != 102 || first.Low != 97 || first.Close != 101 || first.Volume != 3 {
		t.Errorf("unexpected first bar %+v", first)
	}
	second := s.Bars[1] // 10:30 and 10:45
	if second.Open != 101 || second.High != 104 || second.Low != 99 || second.Close != 101 || second.Volume != 7 {
		t.Errorf("unexpected second bar %+v", second)
	}
}

func TestCoinbaseGranularity(t *testing.T) {
	for iv, want := range map[time.Duration]time.Duration{
		30 * time.Minute: 15 * time.Minute,
		time.Hour:        time.Hour,
		4 * time.Hour:    time.Hour,
		24 * time.Hour:   24 * time.Hour,
	} {
		if got, err := coinbaseGranularity(iv); err != nil || got != want {
			t.Errorf("granularity(%s) = %s, %v; want %s", iv, got, err, want)
		}
	}
	if _, err := coinbaseGranularity(30 * time.Second); err == nil {
		t.Error("expected error for sub-minute interval")
	}
}

// ────────────────────────────────────────────────────────────
// CSV
// ────────────────────────────────────────────────────────────

func TestCSVFile_Fetch(t *testing.T) {
	dir := t.TempDir()
	body := "ts,open,high,low,close,volume\n" +
		"2024-03-01T00:00:00Z,100,101,99,100.5,10\n" +
		"2024-03-01T00:15:00Z,100.5,102,100,101,5\n" +
		"2024-03-01T00:30:00Z,101,101.5,100.5,101.2,7\n" +
		"1709254800,101.2,103,101,102.8,3\n" // 01:00 as Unix seconds
	if err := os.WriteFile(filepath.Join(dir, "BTC-USD.csv"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewCSVFile(dir)
	s, err := p.Fetch(context.Background(), "BTC-USD", 30*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	// 1h back from the newest bar (01:00) keeps the 00:00, 00:30 and 01:00 buckets.
	if s.Len() != 3 {
		t.Fatalf("expected 3 bars, got %d", s.Len())
	}
	if s.Bars[0].High != 102 || s.Bars[0].Volume != 15 || s.Bars[0].Close != 101 {
		t.Errorf("unexpected resampled first bar %+v", s.Bars[0])
	}

	if _, err := p.Fetch(context.Background(), "ETH-USD", 30*time.Minute, time.Hour); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadCSV_BadRow(t *testing.T) {
	f := filepath.Join(t.TempDir(), "x.csv")
	os.WriteFile(f, []byte("ts,open,high,low,close,volume\n2024-03-01T00:00:00Z,abc,1,1,1,1\n"), 0o644)
	r, _ := os.Open(f)
	defer r.Close()
	if _, err := ReadCSV(r); err == nil {
		t.Error("expected parse error")
	}
}

// ────────────────────────────────────────────────────────────
// Chain
// ────────────────────────────────────────────────────────────

func newTestChain(ps ...Provider) *Chain {
	c := NewChain(zerolog.Nop(), 2, ps...)
	c.now = func() time.Time { return now }
	return c
}

func TestChain_FallsThroughToNextProvider(t *testing.T) {
	bad := &fakeProvider{name: "binance", err: errors.New("timeout")}
	good := &fakeProvider{name: "coinbase", bars: closedBars(40)}
	cache := &memCache{}

	c := newTestChain(bad, good).WithCache(cache)
	s, err := c.Fetch(context.Background(), "BTC-USD", 30*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if s.Source != "coinbase" || s.Len() != 40 {
		t.Errorf("expected 40 bars from coinbase, got %d from %q", s.Len(), s.Source)
	}
	if cache.written["BTC-USD"] != 40 {
		t.Errorf("expected write-through to cache, got %v", cache.written)
	}
}

func TestChain_AllFailIsDataUnavailable(t *testing.T) {
	c := newTestChain(
		&fakeProvider{name: "binance", err: errors.New("timeout")},
		&fakeProvider{name: "cache"}, // no bars
	)
	_, err := c.Fetch(context.Background(), "XRP-USD", 30*time.Minute, time.Hour)
	if !errors.Is(err, model.ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestChain_BreakerSkipsFailingProvider(t *testing.T) {
	bad := &fakeProvider{name: "binance", err: errors.New("timeout")}
	good := &fakeProvider{name: "coinbase", bars: closedBars(5)}
	c := newTestChain(bad, good)

	for _, sym := range []string{"BTC-USD", "ETH-USD", "XRP-USD", "SOL-USD"} {
		if _, err := c.Fetch(context.Background(), sym, 30*time.Minute, time.Hour); err != nil {
			t.Fatalf("%s: %v", sym, err)
		}
	}
	if bad.calls != 2 {
		t.Errorf("expected failing provider to be tried twice then skipped, got %d calls", bad.calls)
	}
	if good.calls != 4 {
		t.Errorf("expected fallback provider on every asset, got %d calls", good.calls)
	}
}

func TestChain_DropsFormingBar(t *testing.T) {
	bars := closedBars(3)
	bars = append(bars, model.Bar{TS: now.Add(-10 * time.Minute), Open: 1, High: 1, Low: 1, Close: 1})
	c := newTestChain(&fakeProvider{name: "binance", bars: bars})

	s, err := c.Fetch(context.Background(), "BTC-USD", 30*time.Minute, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Errorf("expected forming bar to be dropped, got %d bars", s.Len())
	}
}

func TestChain_CacheNotWrittenBack(t *testing.T) {
	cache := &memCache{}
	c := newTestChain(&fakeProvider{name: "cache", bars: closedBars(3)}).WithCache(cache)
	if _, err := c.Fetch(context.Background(), "BTC-USD", 30*time.Minute, time.Hour); err != nil {
		t.Fatal(err)
	}
	if len(cache.written) != 0 {
		t.Errorf("cache-served series must not be written back, got %v", cache.written)
	}
}

func TestChain_UnlistedSymbolsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
			return
		}
		writeJSON(w, [][]any{
			kline(now.Add(-90*time.Minute), "100", "101", "99", "100.5", "3"),
			kline(now.Add(-60*time.Minute), "100.5", "102", "100", "101", "4"),
		})
	}))
	defer srv.Close()

	b := NewBinance(httpCfg(srv.URL))
	b.now = func() time.Time { return now }
	c := newTestChain(b)

	for _, sym := range []string{"FOO-USD", "BAR-USD"} {
		_, err := c.Fetch(context.Background(), sym, 30*time.Minute, 24*time.Hour)
		if !errors.Is(err, model.ErrDataUnavailable) || !errors.Is(err, ErrAsset) {
			t.Fatalf("%s: expected an asset error, got %v", sym, err)
		}
	}
	s, err := c.Fetch(context.Background(), "BTC-USD", 30*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("BTC-USD must still be served: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 bars, got %d", s.Len())
	}
	if st := c.links[0].cb.CurrentState(); st != StateClosed {
		t.Errorf("expected binance breaker closed, got %v", st)
	}
}

func TestChain_EmptyResultIsAssetError(t *testing.T) {
	empty := &fakeProvider{name: "binance"}
	c := newTestChain(empty)
	for _, sym := range []string{"A-USD", "B-USD", "C-USD"} {
		if _, err := c.Fetch(context.Background(), sym, 30*time.Minute, time.Hour); !errors.Is(err, ErrAsset) {
			t.Fatalf("%s: expected ErrAsset, got %v", sym, err)
		}
	}
	if empty.calls != 3 {
		t.Errorf("expected provider to be asked for every asset, got %d calls", empty.calls)
	}
}

func TestCheckResponse_ClassifiesStatus(t *testing.T) {
	cases := map[int]bool{ // status -> asset error
		http.StatusBadRequest:          true,
		http.StatusNotFound:            true,
		http.StatusTooManyRequests:     false,
		http.StatusInternalServerError: false,
		http.StatusBadGateway:          false,
	}
	for code, asset := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		resp, err := newClient(HTTPConfig{BaseURL: srv.URL, Timeout: time.Second, Attempts: 1}).R().Get("/")
		got := checkResponse(resp, err)
		srv.Close()
		if got == nil {
			t.Fatalf("%d: expected error", code)
		}
		if errors.Is(got, ErrAsset) != asset {
			t.Errorf("%d: asset error = %v, want %v (%v)", code, !asset, asset, got)
		}
	}
}

func TestChain_ReadOnlySkipsCacheWrite(t *testing.T) {
	cache := &memCache{}
	c := newTestChain(&fakeProvider{name: "binance", bars: closedBars(3)}).WithCache(cache)
	c.SetReadOnly(true)
	if _, err := c.Fetch(context.Background(), "BTC-USD", 30*time.Minute, time.Hour); err != nil {
		t.Fatal(err)
	}
	if len(cache.written) != 0 {
		t.Errorf("read-only chain wrote to the cache: %v", cache.written)
	}

	c.SetReadOnly(false)
	if _, err := c.Fetch(context.Background(), "BTC-USD", 30*time.Minute, time.Hour); err != nil {
		t.Fatal(err)
	}
	if cache.written["BTC-USD"] != 3 {
		t.Errorf("expected write-through once read-only is off, got %v", cache.written)
	}
}
