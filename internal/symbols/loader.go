package symbols

import (
	"context"
	"fmt"
	"sort"
)

// CodeLister lists every known instrument code
type CodeLister interface {
	Codes(ctx context.Context) ([]string, error)
}

// ConstituentSource lists the member codes of an index
type ConstituentSource interface {
	Constituents(ctx context.Context, index string) ([]string, error)
}

// Loader handles loading instrument codes from various sources
type Loader struct {
	codes   CodeLister
	indexes ConstituentSource
}

// NewLoader creates a new code loader. Either source may be nil if unused.
func NewLoader(codes CodeLister, indexes ConstituentSource) *Loader {
	return &Loader{codes: codes, indexes: indexes}
}

// LoadAll loads every known instrument
func (l *Loader) LoadAll(ctx context.Context) ([]string, error) {
	if l.codes == nil {
		return nil, fmt.Errorf("no code source configured")
	}
	raw, err := l.codes.Codes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing codes: %w", err)
	}
	return normalizeAll(raw), nil
}

// LoadIndexes loads the union of the constituents of the given indexes
func (l *Loader) LoadIndexes(ctx context.Context, indexes ...Index) ([]string, error) {
	if l.indexes == nil {
		return nil, fmt.Errorf("no index source configured")
	}
	var raw []string
	for _, idx := range indexes {
		members, err := l.indexes.Constituents(ctx, string(idx))
		if err != nil {
			return nil, fmt.Errorf("loading index %s: %w", idx, err)
		}
		raw = append(raw, members...)
	}
	return normalizeAll(raw), nil
}

// LoadCodes normalizes an explicit list, rejecting any invalid entry
func (l *Loader) LoadCodes(codes []string) ([]string, error) {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		n, err := Normalize(c)
		if err != nil {
			return nil, err
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

// normalizeAll drops codes outside the A-share scheme (funds, bonds) and duplicates
func normalizeAll(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		n, err := Normalize(c)
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
