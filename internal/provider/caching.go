package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"hunter/pkg/model"
)

// Caching wraps a BarProvider with an in-memory cache. Concurrent requests
// for the same key share one upstream fetch. Used when several hunts run
// over the same pool in one process.
type Caching struct {
	inner   BarProvider
	group   singleflight.Group
	mu      sync.Mutex
	cache   map[string]model.Series
	minDays int
}

// NewCaching creates a caching wrapper. minDays is the number of bars always
// fetched for LatestBars so that hunts with different floors share one entry.
func NewCaching(inner BarProvider, minDays int) *Caching {
	return &Caching{
		inner:   inner,
		cache:   make(map[string]model.Series),
		minDays: minDays,
	}
}

func (p *Caching) Name() string { return p.inner.Name() }

func (p *Caching) Codes(ctx context.Context) ([]string, error) {
	return p.inner.Codes(ctx)
}

// LatestBars serves the newest n bars. Requests up to minDays share one
// cached fetch per code.
func (p *Caching) LatestBars(ctx context.Context, code string, n int) (model.Series, error) {
	fetch := n
	if p.minDays > fetch {
		fetch = p.minDays
	}

	key := fmt.Sprintf("latest|%s|%d", code, fetch)
	if s, ok := p.lookup(key); ok {
		return s.Tail(n), nil
	}

	s, err := p.load(ctx, key, func() (model.Series, error) {
		return p.inner.LatestBars(ctx, code, fetch)
	})
	if err != nil {
		return model.Series{}, err
	}
	return s.Tail(n), nil
}

// BarsUntil caches by the exact (code, days, asOf) request
func (p *Caching) BarsUntil(ctx context.Context, code string, days int, asOf time.Time) (model.Series, error) {
	key := fmt.Sprintf("until|%s|%d|%s", code, days, asOf.Format(model.DateLayout))
	if s, ok := p.lookup(key); ok {
		return s, nil
	}
	return p.load(ctx, key, func() (model.Series, error) {
		return p.inner.BarsUntil(ctx, code, days, asOf)
	})
}

func (p *Caching) lookup(key string) (model.Series, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.cache[key]
	return s, ok
}

func (p *Caching) load(ctx context.Context, key string, fetch func() (model.Series, error)) (model.Series, error) {
	v, err, _ := p.group.Do(key, func() (any, error) {
		if s, ok := p.lookup(key); ok {
			return s, nil
		}
		s, err := fetch()
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.cache[key] = s
		p.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return model.Series{}, err
	}
	return v.(model.Series), nil
}

// Forget drops every cached entry
func (p *Caching) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]model.Series)
}
