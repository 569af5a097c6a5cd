package provider

import (
	"context"
	"errors"
	"time"

	"hunter/pkg/model"
)

// BarProvider supplies daily bar series. An instrument without data yields an
// empty series, not an error; errors mean genuine I/O failure.
type BarProvider interface {
	// Name returns the provider name
	Name() string

	// LatestBars returns the n most recent daily bars
	LatestBars(ctx context.Context, code string, n int) (model.Series, error)

	// BarsUntil returns up to days bars ending on or before asOf.
	// A zero asOf means "up to the latest bar".
	BarsUntil(ctx context.Context, code string, days int, asOf time.Time) (model.Series, error)

	// Codes lists every instrument the provider knows
	Codes(ctx context.Context) ([]string, error)
}

// InfoLookup resolves display metadata. A nil info with nil error means unknown.
type InfoLookup interface {
	StockInfo(ctx context.Context, code string) (*model.StockInfo, error)
}

// IndexSource lists the constituents of an index
type IndexSource interface {
	Constituents(ctx context.Context, index string) ([]string, error)
}

// Error represents a provider-specific error
type Error struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err carries a retryable provider error
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}

// Fallback tries multiple providers in order. A provider that fails or has
// no data for the instrument hands over to the next one.
type Fallback struct {
	providers []BarProvider
}

// NewFallback creates a new fallback provider
func NewFallback(providers ...BarProvider) *Fallback {
	return &Fallback{providers: providers}
}

// Name returns the combined provider name
func (f *Fallback) Name() string {
	return "fallback"
}

// LatestBars tries each provider in order until one returns data
func (f *Fallback) LatestBars(ctx context.Context, code string, n int) (model.Series, error) {
	return f.first(ctx, func(p BarProvider) (model.Series, error) {
		return p.LatestBars(ctx, code, n)
	})
}

// BarsUntil tries each provider in order until one returns data
func (f *Fallback) BarsUntil(ctx context.Context, code string, days int, asOf time.Time) (model.Series, error) {
	return f.first(ctx, func(p BarProvider) (model.Series, error) {
		return p.BarsUntil(ctx, code, days, asOf)
	})
}

func (f *Fallback) first(ctx context.Context, fetch func(BarProvider) (model.Series, error)) (model.Series, error) {
	var lastErr error
	for _, p := range f.providers {
		if err := ctx.Err(); err != nil {
			return model.Series{}, err
		}
		s, err := fetch(p)
		if err != nil {
			lastErr = err
			continue
		}
		if !s.Empty() {
			return s, nil
		}
	}
	return model.Series{}, lastErr
}

// Codes returns codes from the first provider that can list them
func (f *Fallback) Codes(ctx context.Context) ([]string, error) {
	var lastErr error
	for _, p := range f.providers {
		codes, err := p.Codes(ctx)
		if err == nil && len(codes) > 0 {
			return codes, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	return nil, lastErr
}

// Providers returns the list of underlying providers
func (f *Fallback) Providers() []BarProvider {
	return f.providers
}
