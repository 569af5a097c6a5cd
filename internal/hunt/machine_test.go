package hunt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hunter/pkg/model"
)

func codeOf(i int) string { return fmt.Sprintf("6000%02d.SH", i) }

func barsFor(code string, n int, close float64) model.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{
			Date: start.AddDate(0, 0, i), Open: close, High: close, Low: close, Close: close, Volume: 100,
		}
	}
	return model.Series{Code: code, Bars: bars}
}

// fakeProvider serves avail[code] bars whose close is the code's index + 1
type fakeProvider struct {
	avail map[string]int
	close map[string]float64
	fail  map[string]bool
	codes []string
	calls atomic.Int32
}

func newFakeProvider(avail []int, fail func(i int) bool) *fakeProvider {
	p := &fakeProvider{avail: map[string]int{}, close: map[string]float64{}, fail: map[string]bool{}}
	for i, n := range avail {
		c := codeOf(i)
		p.avail[c] = n
		p.close[c] = float64(i + 1)
		p.fail[c] = fail != nil && fail(i)
		p.codes = append(p.codes, c)
	}
	return p
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) LatestBars(ctx context.Context, code string, n int) (model.Series, error) {
	p.calls.Add(1)
	if p.fail[code] {
		return model.Series{}, errors.New("connection reset")
	}
	return barsFor(code, min(n, p.avail[code]), p.close[code]), nil
}

func (p *fakeProvider) BarsUntil(ctx context.Context, code string, days int, asOf time.Time) (model.Series, error) {
	return p.LatestBars(ctx, code, days)
}

func (p *fakeProvider) Codes(ctx context.Context) ([]string, error) { return p.codes, nil }

// evenClose matches series whose last close is even and records every
// length it was handed
type evenClose struct {
	mu   sync.Mutex
	lens []int
}

func (a *evenClose) Name() string { return "even" }

func (a *evenClose) Analyze(s model.Series) (*Match, error) {
	a.mu.Lock()
	a.lens = append(a.lens, s.Len())
	a.mu.Unlock()

	last := s.Last().Close
	if int(last)%2 != 0 {
		return nil, nil
	}
	return NewMatch().SetFloat("close", last).SetInt("bars", s.Len()), nil
}

func (a *evenClose) Diagnose(s model.Series) (*Match, string, error) {
	m, err := a.Analyze(s)
	if m.Empty() {
		return nil, "odd_close", err
	}
	return m, "", err
}

type funcAnalyzer func(model.Series) (*Match, error)

func (f funcAnalyzer) Name() string                           { return "func" }
func (f funcAnalyzer) Analyze(s model.Series) (*Match, error) { return f(s) }

func codeSet(results []*Result) map[string]bool {
	out := make(map[string]bool, len(results))
	for _, r := range results {
		out[r.Code] = true
	}
	return out
}

func TestHuntProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("hunt results follow the pool contract", prop.ForAll(
		func(avail []int, pool []int, minBars int, workers int) bool {
			p := newFakeProvider(avail, func(i int) bool { return i%7 == 3 })
			spy := &evenClose{}

			var (
				mu       sync.Mutex
				streamed = map[string]bool{}
			)
			m := NewMachine(p, nil, WithWorkers(workers), WithOnResult(func(r *Result) {
				mu.Lock()
				streamed[r.Code] = true
				mu.Unlock()
			}))

			members := make([]Member, len(pool))
			distinct := map[string]bool{}
			want := map[string]bool{}
			for i, idx := range pool {
				c := codeOf(idx)
				members[i] = Code(c)
				distinct[c] = true
				if idx%7 != 3 && avail[idx] >= minBars && (idx+1)%2 == 0 {
					want[c] = true
				}
			}

			results, err := m.Hunt(context.Background(), spy, minBars, members)
			if err != nil {
				return false
			}

			// bounded output, one result per code
			got := codeSet(results)
			if len(results) > len(distinct) || len(got) != len(results) {
				return false
			}
			// analyzer never sees a short series
			for _, n := range spy.lens {
				if n < minBars || n == 0 {
					return false
				}
			}
			// failing fetches are isolated: exactly the healthy matches come back
			if len(got) != len(want) {
				return false
			}
			for c := range want {
				if !got[c] {
					return false
				}
			}
			// callback set equals result set
			if len(streamed) != len(got) {
				return false
			}
			for c := range streamed {
				if !got[c] {
					return false
				}
			}
			// idempotent
			again, err := m.Hunt(context.Background(), &evenClose{}, minBars, members)
			if err != nil {
				return false
			}
			againSet := codeSet(again)
			if len(againSet) != len(got) {
				return false
			}
			for c := range got {
				if !againSet[c] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.IntRange(0, 40)),
		gen.SliceOf(gen.IntRange(0, 19)),
		gen.IntRange(1, 30),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

func TestHuntConfigErrors(t *testing.T) {
	p := newFakeProvider([]int{10}, nil)
	ctx := context.Background()

	_, err := NewMachine(p, nil, WithWorkers(0)).Hunt(ctx, &evenClose{}, 5, Codes(codeOf(0)))
	assert.ErrorIs(t, err, ErrInvalidWorkers)

	_, err = NewMachine(p, nil).Hunt(ctx, &evenClose{}, 0, Codes(codeOf(0)))
	assert.ErrorIs(t, err, ErrInvalidMinBars)

	_, err = NewMachine(p, nil).Hunt(ctx, nil, 5, Codes(codeOf(0)))
	assert.ErrorIs(t, err, ErrNilAnalyzer)

	assert.Zero(t, p.calls.Load(), "no fetch before config validation")
}

func TestHuntNilPoolUsesUniverse(t *testing.T) {
	p := newFakeProvider([]int{10, 10, 10, 10}, nil)

	results, err := NewMachine(p, nil).Hunt(context.Background(), &evenClose{}, 5, nil)
	require.NoError(t, err)
	SortByCode(results)
	assert.Equal(t, []string{codeOf(1), codeOf(3)}, ResultCodes(results))

	_, err = NewMachine(p, nil, WithUniverse(func(context.Context) ([]string, error) {
		return nil, errors.New("listing down")
	})).Hunt(context.Background(), &evenClose{}, 5, nil)
	assert.ErrorContains(t, err, "listing down")
}

func TestHuntDeduplicatesSpellings(t *testing.T) {
	p := newFakeProvider([]int{10, 10}, nil)
	pool := Codes("600001", "sh600001", "600001.SH", "not-a-code")

	results, err := NewMachine(p, nil).Hunt(context.Background(), &evenClose{}, 5, pool)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "600001.SH", results[0].Code)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestHuntIsolatesPanicsAndErrors(t *testing.T) {
	p := newFakeProvider([]int{10, 10, 10, 10}, nil)
	a := funcAnalyzer(func(s model.Series) (*Match, error) {
		switch s.Code {
		case codeOf(0):
			panic("index out of range")
		case codeOf(1):
			return nil, errors.New("bad column")
		}
		return NewMatch().SetString("code", s.Code), nil
	})

	results, err := NewMachine(p, nil, WithWorkers(2)).Hunt(context.Background(), a, 5, Codes(p.codes...))
	require.NoError(t, err)
	SortByCode(results)
	assert.Equal(t, []string{codeOf(2), codeOf(3)}, ResultCodes(results))
}

func TestHuntCallbackPanicKeepsResult(t *testing.T) {
	p := newFakeProvider([]int{10, 10}, nil)
	var progress atomic.Int32
	m := NewMachine(p, nil,
		WithOnResult(func(*Result) { panic("render failed") }),
		WithProgress(func(done, total int) { progress.Add(1) }),
	)

	results, err := m.Hunt(context.Background(), &evenClose{}, 5, Codes(p.codes...))
	require.NoError(t, err)
	assert.Equal(t, []string{codeOf(1)}, ResultCodes(results))
	assert.EqualValues(t, 2, progress.Load())
}

func TestHuntCancelledBeforeDispatch(t *testing.T) {
	p := newFakeProvider([]int{10, 10}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewMachine(p, nil).Hunt(ctx, &evenClose{}, 5, Codes(p.codes...))
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, p.calls.Load())
}

func TestHuntInputsFetchOnce(t *testing.T) {
	p := newFakeProvider([]int{30, 30}, nil)
	in, err := NewInput("600001", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), 20)
	require.NoError(t, err)

	m := NewMachine(p, nil)
	for i := 0; i < 3; i++ {
		results, err := m.Hunt(context.Background(), &evenClose{}, 10, []Member{in})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Same(t, in, results[0].Input)
		bars, _ := results[0].Match.Int("bars")
		assert.EqualValues(t, 20, bars)
	}
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestInputConcurrentFirstAccess(t *testing.T) {
	p := newFakeProvider([]int{30}, nil)
	in, err := NewInput("600000", time.Time{}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDays, in.Days)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := in.Series(context.Background(), p)
			assert.NoError(t, err)
			assert.Equal(t, 30, s.Len())
		}()
	}
	wg.Wait()
	assert.True(t, in.Loaded())
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestInputErrorsAreNotCached(t *testing.T) {
	p := newFakeProvider([]int{30}, func(int) bool { return true })
	in, err := NewInput("600000", time.Time{}, 30)
	require.NoError(t, err)

	_, err = in.Series(context.Background(), p)
	require.Error(t, err)
	assert.False(t, in.Loaded())

	p.fail[codeOf(0)] = false
	s, err := in.Series(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 30, s.Len())
}

func TestHuntDiagnostics(t *testing.T) {
	p := newFakeProvider([]int{10, 10, 2, 10}, nil)
	diag := NewDiagnostics()

	_, err := NewMachine(p, nil, WithDiagnostics(diag)).Hunt(context.Background(), &evenClose{}, 5, Codes(p.codes...))
	require.NoError(t, err)

	assert.Equal(t, 4, diag.Total())
	assert.Equal(t, []GateCount{
		{Gate: GateMatched, Count: 2},
		{Gate: GateInsufficientBars, Count: 1},
		{Gate: "odd_close", Count: 1},
	}, diag.Histogram())
	assert.Equal(t, []string{codeOf(2)}, diag.Codes(GateInsufficientBars))

	g, ok := diag.Gate(codeOf(0))
	assert.True(t, ok)
	assert.Equal(t, "odd_close", g)
}

type countingInfo struct {
	calls atomic.Int32
}

func (c *countingInfo) StockInfo(ctx context.Context, code string) (*model.StockInfo, error) {
	c.calls.Add(1)
	return &model.StockInfo{Code: code, Name: "浦发银行", Industry: "银行"}, nil
}

func TestResultMetadataResolvedOnce(t *testing.T) {
	p := newFakeProvider([]int{10, 10}, nil)
	infos := &countingInfo{}

	results, err := NewMachine(p, infos).Hunt(context.Background(), &evenClose{}, 5, Codes(p.codes...))
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "浦发银行", r.Name())
	assert.Contains(t, r.Brief(), codeOf(1))
	assert.EqualValues(t, 1, infos.calls.Load())

	bare := NewResult("600000.SH", NewMatch(), nil, nil)
	assert.Equal(t, "600000.SH", bare.Name())
	assert.Equal(t, "600000.SH", bare.Brief())
}

type failingInfo struct{}

func (failingInfo) StockInfo(ctx context.Context, code string) (*model.StockInfo, error) {
	return nil, errors.New("database is locked")
}

func TestHuntDropsMatchWhenMetadataFails(t *testing.T) {
	p := newFakeProvider([]int{10, 10, 10}, nil)
	diag := NewDiagnostics()

	var called atomic.Int32
	results, err := NewMachine(p, failingInfo{},
		WithDiagnostics(diag),
		WithOnResult(func(*Result) { called.Add(1) }),
	).Hunt(context.Background(), &evenClose{}, 5, Codes(p.codes...))
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, called.Load())

	g, ok := diag.Gate(codeOf(1))
	require.True(t, ok)
	assert.Equal(t, GateMetadataFailed, g)
}

func TestUnionAndIntersection(t *testing.T) {
	mk := func(codes ...string) []*Result {
		out := make([]*Result, len(codes))
		for i, c := range codes {
			out[i] = NewResult(c, NewMatch().SetString("src", c), nil, nil)
		}
		return out
	}
	a := mk("600000.SH", "600001.SH", "000001.SZ")
	b := mk("600001.SH", "300750.SZ", "000001.SZ")
	c := mk("000001.SZ", "600001.SH")

	u := Union(a, b)
	assert.Equal(t, []string{"600000.SH", "600001.SH", "000001.SZ", "300750.SZ"}, ResultCodes(u))
	assert.Same(t, a[1], u[1], "first occurrence wins")

	in := Intersection(a, b, c)
	got := ResultCodes(in)
	sort.Strings(got)
	assert.Equal(t, []string{"000001.SZ", "600001.SH"}, got)
	assert.Empty(t, Intersection(a, mk()))
	assert.Nil(t, Intersection())

	assert.True(t, a[1].Equal(b[0]))
	assert.False(t, a[0].Equal(b[0]))
}

func TestMatchRecord(t *testing.T) {
	fire := time.Date(2025, 12, 18, 0, 0, 0, 0, time.UTC)
	m := NewMatch().
		SetFloat("kdj_j", -11.2).
		SetDate("fire_date", fire).
		SetInt("fire_days", 3).
		SetBool("down_vol_shrinking", true).
		SetFloat("top3_vol_ratio", math.Inf(1)).
		SetString("system", "S1")

	assert.Equal(t, []string{"kdj_j", "fire_date", "fire_days", "down_vol_shrinking", "top3_vol_ratio", "system"}, m.Keys())
	days, ok := m.Float("fire_days")
	assert.True(t, ok)
	assert.Equal(t, 3.0, days)
	_, ok = m.Int("kdj_j")
	assert.False(t, ok)

	b, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"kdj_j":-11.2,"fire_date":"2025-12-18","fire_days":3,"down_vol_shrinking":true,"top3_vol_ratio":"inf","system":"S1"}`,
		string(b))
	assert.Contains(t, m.String(), "top3_vol_ratio=inf")

	var none *Match
	assert.True(t, none.Empty())
	assert.Nil(t, none.Keys())
}
