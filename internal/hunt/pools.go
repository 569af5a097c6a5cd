package hunt

import (
	"context"
	"fmt"
	"time"

	"hunter/internal/symbols"
	"hunter/pkg/model"
)

// AllPool builds inputs for every instrument the loader knows
func AllPool(ctx context.Context, l *symbols.Loader, asOf time.Time, days int) ([]Member, error) {
	codes, err := l.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return inputs(codes, asOf, days)
}

// IndexPool builds inputs for the merged constituents of the given indexes
func IndexPool(ctx context.Context, l *symbols.Loader, asOf time.Time, days int, indexes ...symbols.Index) ([]Member, error) {
	if len(indexes) == 0 {
		return nil, fmt.Errorf("no index given")
	}
	codes, err := l.LoadIndexes(ctx, indexes...)
	if err != nil {
		return nil, err
	}
	return inputs(codes, asOf, days)
}

// CodesPool builds inputs for an explicit code list. Any invalid code fails
// the whole pool.
func CodesPool(codes []string, asOf time.Time, days int) ([]Member, error) {
	seen := make(map[string]bool, len(codes))
	out := make([]Member, 0, len(codes))
	for _, c := range codes {
		in, err := NewInput(c, asOf, days)
		if err != nil {
			return nil, err
		}
		if seen[in.Code] {
			continue
		}
		seen[in.Code] = true
		out = append(out, in)
	}
	return out, nil
}

// SamplePool builds inputs for the known setups in symbols.SampleCodes, each
// judged at its own date
func SamplePool(days int) ([]Member, error) {
	out := make([]Member, 0, len(symbols.SampleCodes))
	for _, sc := range symbols.SampleCodes {
		asOf, err := time.Parse(model.DateLayout, sc.AsOf)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", sc.Code, err)
		}
		in, err := NewInput(sc.Code, asOf, days)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func inputs(codes []string, asOf time.Time, days int) ([]Member, error) {
	out := make([]Member, 0, len(codes))
	for _, c := range codes {
		in, err := NewInput(c, asOf, days)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}
