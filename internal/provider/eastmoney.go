package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hunter/internal/ratelimit"
	"hunter/internal/symbols"
	"hunter/pkg/model"
)

const (
	eastmoneyKlineURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
	eastmoneyListURL  = "https://push2.eastmoney.com/api/qt/clist/get"

	// A-share main boards, STAR, ChiNext and Beijing
	eastmoneyListFilter = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23,m:0+t:81+s:2048"

	limiterKline = "kline"
	limiterList  = "clist"
)

// EastMoneyConfig configures the EastMoney quote client
type EastMoneyConfig struct {
	KlineURL       string
	ListURL        string
	RequestsPerMin int
	Timeout        time.Duration
}

// EastMoney fetches forward-adjusted daily bars from the EastMoney quote API
type EastMoney struct {
	client   *http.Client
	limiters *ratelimit.MultiLimiter
	klineURL string
	listURL  string
	log      zerolog.Logger
}

// NewEastMoney creates a new EastMoney provider. Zero config fields take defaults.
func NewEastMoney(cfg EastMoneyConfig, log zerolog.Logger) *EastMoney {
	if cfg.KlineURL == "" {
		cfg.KlineURL = eastmoneyKlineURL
	}
	if cfg.ListURL == "" {
		cfg.ListURL = eastmoneyListURL
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 300
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	limiters := ratelimit.NewMultiLimiter()
	limiters.Add(limiterKline, cfg.RequestsPerMin).WithLogger(log)
	limiters.Add(limiterList, 30).WithLogger(log)

	return &EastMoney{
		client:   &http.Client{Timeout: cfg.Timeout},
		limiters: limiters,
		klineURL: cfg.KlineURL,
		listURL:  cfg.ListURL,
		log:      log,
	}
}

// Name returns the provider name
func (p *EastMoney) Name() string {
	return "eastmoney"
}

// eastmoneyKlineResponse represents the kline API response
type eastmoneyKlineResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// eastmoneyListResponse represents the instrument list API response
type eastmoneyListResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Total int `json:"total"`
		Diff  []struct {
			Code string `json:"f12"`
			Name string `json:"f14"`
		} `json:"diff"`
	} `json:"data"`
}

// LatestBars returns the n most recent daily bars
func (p *EastMoney) LatestBars(ctx context.Context, code string, n int) (model.Series, error) {
	return p.BarsUntil(ctx, code, n, time.Time{})
}

// BarsUntil returns up to days bars ending on or before asOf
func (p *EastMoney) BarsUntil(ctx context.Context, code string, days int, asOf time.Time) (model.Series, error) {
	secid, err := secID(code)
	if err != nil {
		return model.Series{}, &Error{Provider: p.Name(), Err: err}
	}

	end := "20500101"
	if !asOf.IsZero() {
		end = asOf.Format("20060102")
	}
	q := url.Values{}
	q.Set("secid", secid)
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61")
	q.Set("klt", "101") // daily
	q.Set("fqt", "1")   // forward adjusted
	q.Set("end", end)
	q.Set("lmt", strconv.Itoa(days))

	var data eastmoneyKlineResponse
	if err := p.get(ctx, limiterKline, p.klineURL+"?"+q.Encode(), &data); err != nil {
		return model.Series{}, err
	}

	canonical, _ := symbols.Normalize(code)
	series := model.Series{Code: canonical}
	if data.Data == nil {
		return series, nil
	}
	for _, line := range data.Data.Klines {
		bar, err := parseKline(line)
		if err != nil {
			p.log.Warn().Str("code", code).Str("line", line).Err(err).Msg("skipping malformed kline")
			continue
		}
		if !asOf.IsZero() && bar.Date.After(asOf) {
			continue
		}
		series.Bars = append(series.Bars, bar)
	}
	return series.Tail(days), nil
}

// Codes lists every listed A-share
func (p *EastMoney) Codes(ctx context.Context) ([]string, error) {
	q := url.Values{}
	q.Set("pn", "1")
	q.Set("pz", "10000")
	q.Set("po", "1")
	q.Set("np", "1")
	q.Set("fltt", "2")
	q.Set("fs", eastmoneyListFilter)
	q.Set("fields", "f12,f14")

	var data eastmoneyListResponse
	if err := p.get(ctx, limiterList, p.listURL+"?"+q.Encode(), &data); err != nil {
		return nil, err
	}
	if data.Data == nil {
		return nil, nil
	}

	codes := make([]string, 0, len(data.Data.Diff))
	for _, d := range data.Data.Diff {
		if c, err := symbols.Normalize(d.Code); err == nil {
			codes = append(codes, c)
		}
	}
	return codes, nil
}

func (p *EastMoney) get(ctx context.Context, limiter, rawURL string, out any) error {
	if err := p.limiters.Wait(ctx, limiter); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Referer", "https://quote.eastmoney.com/")

	resp, err := p.client.Do(req)
	if err != nil {
		// the server drops connections instead of answering 429 under load
		p.limiters.Get(limiter).SignalRateLimited()
		return &Error{Provider: p.Name(), Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		p.limiters.Get(limiter).SignalRateLimited()
		return &Error{Provider: p.Name(), Err: fmt.Errorf("rate limited"), Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: resp.StatusCode >= 500}
	}

	p.limiters.Get(limiter).ResetBackoff()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Provider: p.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// secID maps a code to EastMoney's market-prefixed id: 1 for Shanghai, 0 otherwise
func secID(code string) (string, error) {
	canonical, err := symbols.Normalize(code)
	if err != nil {
		return "", err
	}
	digits := symbols.Digits(canonical)
	if strings.HasSuffix(canonical, "."+string(symbols.ExchangeSH)) {
		return "1." + digits, nil
	}
	return "0." + digits, nil
}

// parseKline parses "date,open,close,high,low,volume,amount,amplitude,chg%,chg,turnover".
// Volume is reported in lots of 100 shares.
func parseKline(line string) (model.Bar, error) {
	f := strings.Split(line, ",")
	if len(f) < 6 {
		return model.Bar{}, fmt.Errorf("want at least 6 fields, got %d", len(f))
	}

	var b model.Bar
	var err error
	if b.Date, err = time.Parse(model.DateLayout, f[0]); err != nil {
		return b, err
	}

	nums := make([]float64, len(f)-1)
	for i, s := range f[1:] {
		if s == "" || s == "-" {
			continue
		}
		if nums[i], err = strconv.ParseFloat(s, 64); err != nil {
			return b, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	b.Open, b.Close, b.High, b.Low = nums[0], nums[1], nums[2], nums[3]
	b.Volume = int64(nums[4]) * 100
	opt := func(i int) float64 {
		if i < len(nums) {
			return nums[i]
		}
		return 0
	}
	b.Amount, b.Amplitude, b.ChangePct, b.PriceChange, b.TurnoverRate = opt(5), opt(6), opt(7), opt(8), opt(9)
	return b, nil
}
