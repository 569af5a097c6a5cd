package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"hunter/pkg/model"
)

func date(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "bars.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeBars(start string, closes ...float64) []model.Bar {
	d := date(start)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			Date: d.AddDate(0, 0, i), Open: c, High: c + 0.1, Low: c - 0.1, Close: c,
			Volume: int64(1000 * (i + 1)), TurnoverRate: 1.5,
		}
	}
	return bars
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertBars(ctx, "600000.SH", makeBars("2025-01-01", 10, 11, 12, 13, 14)); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}
	// overwrite one day
	if err := s.UpsertBars(ctx, "600000.SH", makeBars("2025-01-03", 20)); err != nil {
		t.Fatalf("UpsertBars: %v", err)
	}

	latest, err := s.LatestBars(ctx, "600000.SH", 3)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Len() != 3 {
		t.Fatalf("LatestBars len = %d, want 3", latest.Len())
	}
	if got := latest.Closes(); got[0] != 20 || got[1] != 13 || got[2] != 14 {
		t.Errorf("LatestBars closes = %v, want ascending [20 13 14]", got)
	}
	if latest.Bars[2].TurnoverRate != 1.5 {
		t.Errorf("turnover not round-tripped: %v", latest.Bars[2].TurnoverRate)
	}
	if err := latest.Validate(); err != nil {
		t.Errorf("series from store invalid: %v", err)
	}

	until, err := s.BarsUntil(ctx, "600000.SH", 10, date("2025-01-02"))
	if err != nil {
		t.Fatal(err)
	}
	if until.Len() != 2 || !until.Last().Date.Equal(date("2025-01-02")) {
		t.Errorf("BarsUntil = %d bars ending %v", until.Len(), until.Last().Date)
	}

	empty, err := s.LatestBars(ctx, "000001.SZ", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !empty.Empty() {
		t.Errorf("unknown code should give empty series, got %d bars", empty.Len())
	}

	d, ok, err := s.LatestDate(ctx, "600000.SH")
	if err != nil || !ok || !d.Equal(date("2025-01-05")) {
		t.Errorf("LatestDate = %v %v %v", d, ok, err)
	}
}

func TestStoreInfoAndConstituents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	info := model.StockInfo{Code: "600138.SH", Name: "中青旅", Industry: "旅游酒店", IndustryCode: "BK0485", ListDate: date("1997-12-03")}
	if err := s.UpsertInfo(ctx, info, model.StockInfo{Code: "000725.SZ", Name: "京东方A"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.StockInfo(ctx, "600138.SH")
	if err != nil || got == nil {
		t.Fatalf("StockInfo = %v, %v", got, err)
	}
	if got.Brief() != "中青旅(600138.SH) 旅游酒店" || !got.ListDate.Equal(info.ListDate) {
		t.Errorf("StockInfo = %+v", got)
	}

	missing, err := s.StockInfo(ctx, "688799.SH")
	if err != nil || missing != nil {
		t.Errorf("unknown code: got %v, %v", missing, err)
	}

	codes, err := s.Codes(ctx)
	if err != nil || len(codes) != 2 || codes[0] != "000725.SZ" {
		t.Errorf("Codes = %v, %v", codes, err)
	}

	if err := s.UpsertConstituents(ctx, "000300", []string{"600138.SH", "000725.SZ"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertConstituents(ctx, "000300", []string{"600138.SH"}); err != nil {
		t.Fatal(err)
	}
	members, err := s.Constituents(ctx, "000300")
	if err != nil || len(members) != 1 || members[0] != "600138.SH" {
		t.Errorf("Constituents after replace = %v, %v", members, err)
	}
}

func TestStoreImportCSV(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	csv := `code,date,open,close,high,low,volume,turnover_rate
600000,20250102,10,10.2,10.3,9.9,12000,0.8
600000,20250103,10.2,10.4,10.5,10.1,15000,
sz000001,2025-01-02,11,11.1,11.2,10.9,8000,0.5
`
	n, err := s.ImportCSV(ctx, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if n != 3 {
		t.Errorf("imported %d bars, want 3", n)
	}

	series, err := s.LatestBars(ctx, "600000.SH", 5)
	if err != nil || series.Len() != 2 || series.Last().Close != 10.4 {
		t.Errorf("imported series = %+v, %v", series.Bars, err)
	}

	if _, err := s.ImportCSV(ctx, strings.NewReader("code,date,open\n")); err == nil {
		t.Error("expected error for missing columns")
	}
	if _, err := s.ImportCSV(ctx, strings.NewReader("code,date,open,close,high,low,volume\n600000,2025-01-02,x,1,1,1,1\n")); err == nil {
		t.Error("expected error for bad number")
	}
}

type fakeBars struct {
	name   string
	series model.Series
	err    error
	calls  atomic.Int32
	delay  time.Duration
}

func (f *fakeBars) Name() string { return f.name }

func (f *fakeBars) LatestBars(ctx context.Context, code string, n int) (model.Series, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return model.Series{}, f.err
	}
	return f.series.Tail(n), nil
}

func (f *fakeBars) BarsUntil(ctx context.Context, code string, days int, asOf time.Time) (model.Series, error) {
	return f.LatestBars(ctx, code, days)
}

func (f *fakeBars) Codes(ctx context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{f.series.Code}, nil
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	full := model.Series{Code: "600000.SH", Bars: makeBars("2025-01-01", 1, 2, 3)}

	failing := &fakeBars{name: "down", err: &Error{Provider: "down", Err: errors.New("boom"), Retryable: true}}
	empty := &fakeBars{name: "empty", series: model.Series{Code: "600000.SH"}}
	good := &fakeBars{name: "good", series: full}

	f := NewFallback(failing, empty, good)
	s, err := f.LatestBars(ctx, "600000.SH", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("len = %d, want 2", s.Len())
	}
	if failing.calls.Load() != 1 || empty.calls.Load() != 1 {
		t.Error("each provider should be tried once in order")
	}

	_, err = NewFallback(failing).BarsUntil(ctx, "600000.SH", 5, time.Time{})
	if err == nil || !IsRetryable(err) {
		t.Errorf("expected retryable error, got %v", err)
	}

	codes, err := f.Codes(ctx)
	if err != nil || len(codes) != 1 {
		t.Errorf("Codes = %v, %v", codes, err)
	}
}

func TestCachingCollapsesConcurrentFetches(t *testing.T) {
	inner := &fakeBars{name: "slow", delay: 20 * time.Millisecond,
		series: model.Series{Code: "600000.SH", Bars: makeBars("2025-01-01", 1, 2, 3, 4, 5, 6)}}
	c := NewCaching(inner, 5)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.LatestBars(context.Background(), "600000.SH", 3)
			if err != nil || s.Len() != 3 {
				t.Errorf("LatestBars = %d bars, %v", s.Len(), err)
			}
		}()
	}
	wg.Wait()

	if n := inner.calls.Load(); n != 1 {
		t.Errorf("inner fetched %d times, want 1", n)
	}

	// a smaller request is served from the cached entry
	s, _ := c.LatestBars(context.Background(), "600000.SH", 5)
	if s.Len() != 5 || inner.calls.Load() != 1 {
		t.Errorf("cached LatestBars = %d bars after %d fetches", s.Len(), inner.calls.Load())
	}

	c.Forget()
	c.LatestBars(context.Background(), "600000.SH", 3)
	if inner.calls.Load() != 2 {
		t.Error("Forget should drop cached entries")
	}
}

func TestCachingDoesNotCacheErrors(t *testing.T) {
	inner := &fakeBars{name: "flaky", err: errors.New("timeout")}
	c := NewCaching(inner, 0)
	ctx := context.Background()

	if _, err := c.BarsUntil(ctx, "600000.SH", 5, date("2025-01-01")); err == nil {
		t.Fatal("expected error")
	}
	inner.err = nil
	inner.series = model.Series{Code: "600000.SH", Bars: makeBars("2024-12-28", 1, 2)}
	s, err := c.BarsUntil(ctx, "600000.SH", 5, date("2025-01-01"))
	if err != nil || s.Len() != 2 {
		t.Errorf("retry after error = %d bars, %v", s.Len(), err)
	}
}

func TestParseKline(t *testing.T) {
	b, err := parseKline("2025-06-23,12.01,12.35,12.50,11.90,345678,4.2e8,5.01,2.83,0.34,1.27")
	if err != nil {
		t.Fatal(err)
	}
	if b.Open != 12.01 || b.Close != 12.35 || b.High != 12.50 || b.Low != 11.90 {
		t.Errorf("OHLC = %+v", b)
	}
	if b.Volume != 34567800 {
		t.Errorf("volume = %d, want lots*100", b.Volume)
	}
	if b.TurnoverRate != 1.27 || b.ChangePct != 2.83 {
		t.Errorf("optional fields = %+v", b)
	}

	if _, err := parseKline("2025-06-23,1,2"); err == nil {
		t.Error("expected error for short line")
	}
}

func TestSecID(t *testing.T) {
	tests := map[string]string{
		"600000":    "1.600000",
		"688799.SH": "1.688799",
		"000725":    "0.000725",
		"300750":    "0.300750",
		"835185":    "0.835185",
	}
	for in, want := range tests {
		got, err := secID(in)
		if err != nil || got != want {
			t.Errorf("secID(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestEastMoneyBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("secid") != "1.600138" {
			http.Error(w, "bad secid", http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("end") != "20260106" {
			http.Error(w, "bad end", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"rc":0,"data":{"code":"600138","name":"中青旅","klines":[
			"2026-01-05,10.00,10.10,10.20,9.90,1000,1e6,3.0,1.0,0.1,0.5",
			"2026-01-06,10.10,10.30,10.40,10.00,2000,2e6,3.9,1.98,0.2,0.9",
			"bogus"
		]}}`)
	}))
	defer srv.Close()

	p := NewEastMoney(EastMoneyConfig{KlineURL: srv.URL}, zerolog.Nop())
	s, err := p.BarsUntil(context.Background(), "600138", 500, date("2026-01-06"))
	if err != nil {
		t.Fatalf("BarsUntil: %v", err)
	}
	if s.Code != "600138.SH" || s.Len() != 2 || s.Last().Volume != 200000 {
		t.Errorf("series = %s %d bars %+v", s.Code, s.Len(), s.Bars)
	}
}

func TestEastMoneyErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	p := NewEastMoney(EastMoneyConfig{KlineURL: srv.URL, ListURL: srv.URL}, zerolog.Nop())
	_, err := p.LatestBars(context.Background(), "000725", 10)
	var pe *Error
	if !errors.As(err, &pe) || !pe.Retryable {
		t.Errorf("429 should give retryable provider error, got %v", err)
	}
	if p.limiters.Get(limiterKline).GetBackoff() <= 500*time.Millisecond {
		t.Error("429 should grow the limiter backoff")
	}

	status = http.StatusNotFound
	if _, err := p.Codes(context.Background()); err == nil || IsRetryable(err) {
		t.Errorf("404 should be a permanent error, got %v", err)
	}

	if _, err := p.LatestBars(context.Background(), "bogus", 10); err == nil {
		t.Error("invalid code should fail before any request")
	}
}
