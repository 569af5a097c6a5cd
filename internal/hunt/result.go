package hunt

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"hunter/internal/provider"
	"hunter/pkg/model"
)

// Result pairs an instrument with the match its analyzer produced. Display
// metadata is looked up once, on first use. Results are equal when their
// codes are equal.
type Result struct {
	Code  string
	Match *Match
	Input *Input // nil when the pool member was a bare code

	lookup  provider.InfoLookup
	once    sync.Once
	info    *model.StockInfo
	infoErr error
}

// NewResult creates a result; lookup may be nil
func NewResult(code string, match *Match, input *Input, lookup provider.InfoLookup) *Result {
	return &Result{Code: code, Match: match, Input: input, lookup: lookup}
}

// Info resolves the instrument metadata. Only the first call performs the
// lookup; later calls return the memoized outcome.
func (r *Result) Info(ctx context.Context) (*model.StockInfo, error) {
	r.once.Do(func() {
		if r.lookup != nil {
			r.info, r.infoErr = r.lookup.StockInfo(ctx, r.Code)
		}
	})
	return r.info, r.infoErr
}

// Name returns the display name, or the code when unknown
func (r *Result) Name() string {
	info, _ := r.Info(context.Background())
	if info == nil || info.Name == "" {
		return r.Code
	}
	return info.Name
}

// Brief returns "name(code) industry", or the code when unknown
func (r *Result) Brief() string {
	info, _ := r.Info(context.Background())
	if info == nil {
		return r.Code
	}
	return info.Brief()
}

// Equal reports whether both results refer to the same instrument
func (r *Result) Equal(o *Result) bool {
	return r != nil && o != nil && r.Code == o.Code
}

func (r *Result) String() string {
	return r.Brief() + " " + r.Match.String()
}

// MarshalJSON encodes the result for reports
func (r *Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Code  string `json:"code"`
		Name  string `json:"name"`
		Brief string `json:"brief"`
		AsOf  string `json:"as_of,omitempty"`
		Match *Match `json:"match"`
	}{
		Code:  r.Code,
		Name:  r.Name(),
		Brief: r.Brief(),
		Match: r.Match,
	}
	if r.Input != nil && !r.Input.AsOf.IsZero() {
		out.AsOf = r.Input.AsOf.Format(model.DateLayout)
	}
	return json.Marshal(out)
}

// SortByCode orders results by instrument code in place
func SortByCode(results []*Result) {
	sort.Slice(results, func(i, j int) bool { return results[i].Code < results[j].Code })
}

// Union merges result sets; the first result seen for a code is kept
func Union(sets ...[]*Result) []*Result {
	seen := make(map[string]bool)
	var out []*Result
	for _, set := range sets {
		for _, r := range set {
			if !seen[r.Code] {
				seen[r.Code] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// Intersection keeps the results of the first set whose code appears in every set
func Intersection(sets ...[]*Result) []*Result {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, set := range sets {
		inSet := make(map[string]bool, len(set))
		for _, r := range set {
			if !inSet[r.Code] {
				inSet[r.Code] = true
				counts[r.Code]++
			}
		}
	}

	seen := make(map[string]bool)
	var out []*Result
	for _, r := range sets[0] {
		if counts[r.Code] == len(sets) && !seen[r.Code] {
			seen[r.Code] = true
			out = append(out, r)
		}
	}
	return out
}

// ResultCodes lists the codes of results in order
func ResultCodes(results []*Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Code
	}
	return out
}
