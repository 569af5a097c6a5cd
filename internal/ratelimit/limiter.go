package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const initialBackoff = 500 * time.Millisecond

// Limiter wraps rate.Limiter with a penalty window after the remote side
// throttles us. Quote servers answer bursts with 429 or silently dropped
// connections, so every caller waits out the window before its next token.
type Limiter struct {
	limiter *rate.Limiter
	name    string
	log     zerolog.Logger

	mu      sync.Mutex
	backoff time.Duration
	maxWait time.Duration
	until   time.Time
}

// NewLimiter creates a new rate limiter
// perMinute specifies the number of requests allowed per minute
func NewLimiter(name string, perMinute int) *Limiter {
	rps := float64(perMinute) / 60.0
	// Allow burst of up to 5 requests or 1/10th of per-minute limit
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
		log:     zerolog.Nop(),
		backoff: initialBackoff,
		maxWait: 2 * time.Minute,
	}
}

// WithLogger attaches a logger used to report backoff changes
func (l *Limiter) WithLogger(log zerolog.Logger) *Limiter {
	l.log = log.With().Str("limiter", l.name).Logger()
	return l
}

// Wait blocks until the penalty window has passed and a token is available,
// or the context is cancelled
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pause := l.pause(); pause > 0 {
		t := time.NewTimer(pause)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return l.limiter.Wait(ctx)
}

func (l *Limiter) pause() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Until(l.until)
}

// Allow reports whether an event may happen now
func (l *Limiter) Allow() bool {
	if l.pause() > 0 {
		return false
	}
	return l.limiter.Allow()
}

// SignalRateLimited opens a penalty window of the current backoff and doubles
// the backoff for the next signal
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.until = time.Now().Add(l.backoff)
	l.log.Warn().Dur("backoff", l.backoff).Msg("throttled by upstream")

	l.backoff *= 2
	if l.backoff > l.maxWait {
		l.backoff = l.maxWait
	}
}

// ResetBackoff resets the backoff duration after successful request
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = initialBackoff
}

// GetBackoff returns the current backoff duration
func (l *Limiter) GetBackoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.backoff
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}

// MultiLimiter manages one limiter per upstream endpoint
type MultiLimiter struct {
	limiters map[string]*Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*Limiter),
	}
}

// Add adds a new limiter
func (m *MultiLimiter) Add(name string, perMinute int) *Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := NewLimiter(name, perMinute)
	m.limiters[name] = l
	return l
}

// Get returns a limiter by name
func (m *MultiLimiter) Get(name string) *Limiter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limiters[name]
}

// Wait waits on the specified limiter
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	limiter := m.Get(name)
	if limiter == nil {
		return nil // No limiter, proceed immediately
	}
	return limiter.Wait(ctx)
}
