// Package hunt maps a pattern analyzer over a pool of instruments with
// bounded parallelism and collects the matches.
package hunt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hunter/internal/metrics"
	"hunter/internal/provider"
	"hunter/internal/symbols"
	"hunter/pkg/model"
)

// DefaultWorkers is the pool size when WithWorkers is not given
const DefaultWorkers = 12

var (
	ErrInvalidWorkers = errors.New("workers must be positive")
	ErrInvalidMinBars = errors.New("min bars must be positive")
	ErrNilAnalyzer    = errors.New("analyzer is nil")
)

// Analyzer inspects one series and returns a match, or nil for no match.
// Implementations must be safe for concurrent use on independent series
// and must not mutate the series they are given.
type Analyzer interface {
	Name() string
	Analyze(s model.Series) (*Match, error)
}

// Diagnoser is implemented by analyzers that can name the first stage a
// series failed. gate is empty when the series matched.
type Diagnoser interface {
	Diagnose(s model.Series) (m *Match, gate string, err error)
}

// ProgressCallback is called after each pool member is attempted
type ProgressCallback func(done, total int)

// UniverseFunc lists every known instrument
type UniverseFunc func(ctx context.Context) ([]string, error)

// Machine drives hunts. It is safe to run several hunts on one machine.
type Machine struct {
	provider provider.BarProvider
	infos    provider.InfoLookup
	workers  int
	onResult func(*Result)
	progress ProgressCallback
	universe UniverseFunc
	log      zerolog.Logger
	metrics  *metrics.Hunt
	diag     *Diagnostics
}

// Option configures a Machine
type Option func(*Machine)

// WithWorkers bounds the number of concurrent fetch+analyze pipelines
func WithWorkers(n int) Option {
	return func(m *Machine) { m.workers = n }
}

// WithOnResult streams each match as it is found. fn is called from the
// worker that produced the match and must be safe for concurrent use.
func WithOnResult(fn func(*Result)) Option {
	return func(m *Machine) { m.onResult = fn }
}

// WithProgress sets the progress callback
func WithProgress(fn ProgressCallback) Option {
	return func(m *Machine) { m.progress = fn }
}

func WithLogger(log zerolog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

func WithMetrics(h *metrics.Hunt) Option {
	return func(m *Machine) { m.metrics = h }
}

// WithUniverse sets the source used when a hunt is given a nil pool.
// Defaults to the provider's code listing.
func WithUniverse(fn UniverseFunc) Option {
	return func(m *Machine) { m.universe = fn }
}

// WithDiagnostics records the rejecting gate of every analyzed member
func WithDiagnostics(d *Diagnostics) Option {
	return func(m *Machine) { m.diag = d }
}

// NewMachine creates a machine fetching bars from p. infos may be nil, in
// which case results carry no display metadata.
func NewMachine(p provider.BarProvider, infos provider.InfoLookup, opts ...Option) *Machine {
	m := &Machine{
		provider: p,
		infos:    infos,
		workers:  DefaultWorkers,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.universe == nil && p != nil {
		m.universe = p.Codes
	}
	return m
}

// Hunt runs a over every member of pool and returns the matches in no
// particular order. A nil pool scans the whole universe. Only configuration
// errors and a failed universe listing are returned; per-member failures are
// logged and count as no match. Cancelling ctx stops dispatching new
// members; pipelines already running are allowed to finish.
func (m *Machine) Hunt(ctx context.Context, a Analyzer, minBars int, pool []Member) ([]*Result, error) {
	if m.workers <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, m.workers)
	}
	if minBars <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMinBars, minBars)
	}
	if a == nil {
		return nil, ErrNilAnalyzer
	}

	name := a.Name()
	log := m.log.With().Str("run", uuid.NewString()).Str("strategy", name).Logger()

	if pool == nil {
		if m.universe == nil {
			return nil, errors.New("no universe source configured")
		}
		codes, err := m.universe(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing universe: %w", err)
		}
		pool = Codes(codes...)
	}
	members := m.dedupe(pool, name, log)

	start := time.Now()
	log.Info().Int("members", len(members)).Int("workers", m.workers).Int("min_bars", minBars).Msg("hunt started")

	var (
		mu      sync.Mutex
		results []*Result
		done    atomic.Int64
	)

	g := new(errgroup.Group)
	g.SetLimit(m.workers)

	dispatched := 0
	for _, member := range members {
		if ctx.Err() != nil {
			log.Warn().Int("dispatched", dispatched).Msg("hunt cancelled, waiting for running pipelines")
			break
		}
		dispatched++
		g.Go(func() error {
			if r := m.pipeline(ctx, a, name, minBars, member, log); r != nil {
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
				m.notify(r, log)
			}
			m.report(int(done.Add(1)), len(members), log)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	m.metrics.ObserveScan(name, elapsed)
	log.Info().
		Int("attempted", int(done.Load())).
		Int("matched", len(results)).
		Dur("elapsed", elapsed).
		Msg("hunt finished")

	return results, nil
}

// dedupe normalizes bare codes and drops repeated instruments, keeping the
// first occurrence
func (m *Machine) dedupe(pool []Member, name string, log zerolog.Logger) []Member {
	seen := make(map[string]bool, len(pool))
	out := make([]Member, 0, len(pool))
	for _, member := range pool {
		if member == nil {
			continue
		}
		if c, ok := member.(Code); ok {
			norm, err := symbols.Normalize(string(c))
			if err != nil {
				log.Warn().Err(err).Str("code", string(c)).Msg("dropping invalid code")
				m.metrics.Count(name, metrics.OutcomeFailed)
				continue
			}
			member = Code(norm)
		}
		code := member.code()
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, member)
	}
	return out
}

// pipeline fetches, filters and analyzes one member
func (m *Machine) pipeline(ctx context.Context, a Analyzer, name string, minBars int, member Member, log zerolog.Logger) (r *Result) {
	code := member.code()
	defer m.metrics.Track()()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("code", code).Interface("panic", p).Msg("analyzer panicked")
			m.metrics.Count(name, metrics.OutcomeFailed)
			r = nil
		}
	}()

	series, input, err := m.resolve(ctx, member, minBars)
	if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("fetch failed")
		m.metrics.Count(name, metrics.OutcomeFailed)
		return nil
	}
	if series.Len() < minBars {
		log.Debug().Str("code", code).Int("bars", series.Len()).Msg("not enough bars")
		m.metrics.Count(name, metrics.OutcomeSkipped)
		m.diag.Record(code, GateInsufficientBars)
		return nil
	}
	m.metrics.Count(name, metrics.OutcomeScanned)

	started := time.Now()
	match, err := m.analyze(a, code, series)
	m.metrics.ObserveAnalyze(name, time.Since(started))
	if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("analyzer failed")
		m.metrics.Count(name, metrics.OutcomeFailed)
		return nil
	}
	if match.Empty() {
		return nil
	}

	r = NewResult(code, match, input, m.infos)
	if _, err := r.Info(ctx); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("metadata lookup failed")
		m.metrics.Count(name, metrics.OutcomeFailed)
		m.diag.Record(code, GateMetadataFailed)
		return nil
	}
	m.metrics.Count(name, metrics.OutcomeMatched)
	log.Debug().Str("code", code).Str("match", match.String()).Msg("match")
	return r
}

func (m *Machine) resolve(ctx context.Context, member Member, minBars int) (model.Series, *Input, error) {
	switch v := member.(type) {
	case *Input:
		s, err := v.Series(ctx, m.provider)
		return s, v, err
	default:
		code := member.code()
		s, err := m.provider.LatestBars(ctx, code, minBars)
		if err != nil {
			return model.Series{}, nil, fmt.Errorf("fetching %s: %w", code, err)
		}
		return s, nil, nil
	}
}

func (m *Machine) analyze(a Analyzer, code string, s model.Series) (*Match, error) {
	if m.diag == nil {
		return a.Analyze(s)
	}
	d, ok := a.(Diagnoser)
	if !ok {
		match, err := a.Analyze(s)
		if err == nil {
			m.diag.Record(code, gateOf(match, GateRejected))
		}
		return match, err
	}
	match, gate, err := d.Diagnose(s)
	if err == nil {
		m.diag.Record(code, gateOf(match, gate))
	}
	return match, err
}

func gateOf(match *Match, rejected string) string {
	if !match.Empty() {
		return GateMatched
	}
	if rejected == "" {
		return GateRejected
	}
	return rejected
}

func (m *Machine) notify(r *Result, log zerolog.Logger) {
	if m.onResult == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("code", r.Code).Interface("panic", p).Msg("result callback panicked")
		}
	}()
	m.onResult(r)
}

func (m *Machine) report(done, total int, log zerolog.Logger) {
	if m.progress == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("progress callback panicked")
		}
	}()
	m.progress(done, total)
}
