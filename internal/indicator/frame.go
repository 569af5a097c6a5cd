// Package indicator attaches technical indicator columns to a bar series.
package indicator

import (
	"fmt"
	"math"
	"sort"

	"hunter/pkg/model"
)

// Base column names, present in every frame
const (
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
)

// Frame is a column view over one series. Each analyzer builds its own frame,
// so attaching columns never touches data shared with other goroutines.
type Frame struct {
	series model.Series
	cols   map[string][]float64
}

// NewFrame copies the base columns out of the series
func NewFrame(s model.Series) *Frame {
	return &Frame{
		series: s,
		cols: map[string][]float64{
			ColOpen:   s.Opens(),
			ColHigh:   s.Highs(),
			ColLow:    s.Lows(),
			ColClose:  s.Closes(),
			ColVolume: s.Volumes(),
		},
	}
}

// Series returns the underlying bars
func (f *Frame) Series() model.Series { return f.series }

// Len returns the row count
func (f *Frame) Len() int { return f.series.Len() }

// Has reports whether a column exists
func (f *Frame) Has(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Col returns a column, or nil if it was never attached
func (f *Frame) Col(name string) []float64 { return f.cols[name] }

// MustCol returns a column and panics if it is missing. Missing columns are
// programming errors in analyzers, not data conditions.
func (f *Frame) MustCol(name string) []float64 {
	c, ok := f.cols[name]
	if !ok {
		panic(fmt.Sprintf("indicator: column %q not attached", name))
	}
	return c
}

// At returns the value of a column at row i; negative i counts from the end
func (f *Frame) At(name string, i int) float64 {
	c := f.MustCol(name)
	if i < 0 {
		i += len(c)
	}
	return c[i]
}

// Set stores a column. Its length must match the frame.
func (f *Frame) Set(name string, values []float64) {
	if len(values) != f.Len() {
		panic(fmt.Sprintf("indicator: column %q has %d rows, frame has %d", name, len(values), f.Len()))
	}
	f.cols[name] = values
}

// Columns lists the attached column names
func (f *Frame) Columns() []string {
	names := make([]string, 0, len(f.cols))
	for n := range f.cols {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Round2 rounds to two decimals, the precision indicator columns are stored at
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round2All(values []float64) []float64 {
	for i, v := range values {
		values[i] = Round2(v)
	}
	return values
}
