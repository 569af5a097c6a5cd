package hunt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hunter/internal/provider"
	"hunter/internal/symbols"
	"hunter/pkg/model"
)

// DefaultDays is the lookback window of an Input when none is given
const DefaultDays = 500

// Member is one element of a scan pool: a bare Code or an *Input
type Member interface {
	code() string
}

// Code is a bare instrument id. The machine fetches its latest bars directly.
type Code string

func (c Code) code() string { return string(c) }

// Codes wraps bare ids as pool members
func Codes(codes ...string) []Member {
	out := make([]Member, len(codes))
	for i, c := range codes {
		out[i] = Code(c)
	}
	return out
}

// Input binds an instrument to a point-in-time window and fetches its series
// at most once. Concurrent first access is safe; a failed fetch is retried on
// the next call.
type Input struct {
	Code string
	AsOf time.Time // zero means latest
	Days int

	mu     sync.Mutex
	series *model.Series
}

// NewInput normalizes code and applies the default window when days <= 0
func NewInput(code string, asOf time.Time, days int) (*Input, error) {
	c, err := symbols.Normalize(code)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultDays
	}
	return &Input{Code: c, AsOf: asOf, Days: days}, nil
}

func (in *Input) code() string { return in.Code }

// Series returns the cached series, fetching it on first call
func (in *Input) Series(ctx context.Context, p provider.BarProvider) (model.Series, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.series != nil {
		return *in.series, nil
	}
	s, err := p.BarsUntil(ctx, in.Code, in.Days, in.AsOf)
	if err != nil {
		return model.Series{}, fmt.Errorf("fetching %s: %w", in.Code, err)
	}
	in.series = &s
	return s, nil
}

// Loaded reports whether the series has been fetched
func (in *Input) Loaded() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.series != nil
}

func (in *Input) String() string {
	if in.AsOf.IsZero() {
		return fmt.Sprintf("%s(%d)", in.Code, in.Days)
	}
	return fmt.Sprintf("%s@%s(%d)", in.Code, in.AsOf.Format(model.DateLayout), in.Days)
}
