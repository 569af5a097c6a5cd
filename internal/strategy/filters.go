package strategy

import (
	"fmt"
	"math"
	"sort"
)

// TrendFilter accepts a line whose trailing window keeps rising. A window is
// rising when, normalized to its first value, the Quantile of its day-over-day
// steps is not negative. Windows from MaxWindow down to MinWindow are tried;
// MaxWindow zero means the whole line.
type TrendFilter struct {
	MinWindow int
	MaxWindow int
	Quantile  float64
}

// Validate checks the window and quantile bounds
func (t TrendFilter) Validate() error {
	if t.MinWindow < 2 {
		return fmt.Errorf("trend filter: min window must be at least 2, got %d", t.MinWindow)
	}
	if t.Quantile < 0 || t.Quantile > 1 {
		return fmt.Errorf("trend filter: quantile must be between 0 and 1, got %v", t.Quantile)
	}
	return nil
}

// Rising reports whether some trailing window of line is rising
func (t TrendFilter) Rising(line []float64) bool {
	if len(line) < t.MinWindow {
		return false
	}
	longest := len(line)
	if t.MaxWindow > 0 {
		longest = min(longest, t.MaxWindow)
	}
	steps := make([]float64, 0, longest)
	for w := longest; w >= t.MinWindow; w-- {
		seg := line[len(line)-w:]
		if seg[0] == 0 {
			continue
		}
		steps = steps[:0]
		for i := 1; i < len(seg); i++ {
			steps = append(steps, (seg[i]-seg[i-1])/seg[0])
		}
		if quantile(steps, t.Quantile) >= 0 {
			return true
		}
	}
	return false
}

// quantile interpolates linearly between the closest ranks
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (sorted[lo+1]-sorted[lo])*(pos-float64(lo))
}
