package strategy

import (
	"math"
	"sort"
)

// run is a span of consecutive bars [start, end] with the figures later
// stages measure against
type run struct {
	start, end int
	maxMove    float64 // largest absolute close-to-close move inside the run
	peakUpVol  float64 // largest volume of an up-close bar, the run max when there is none
	maxVol     float64
}

func measureRun(close, vol []float64, start, end int) run {
	r := run{start: start, end: end}
	for i := start; i <= end; i++ {
		r.maxVol = math.Max(r.maxVol, vol[i])
		if i == 0 {
			continue
		}
		r.maxMove = math.Max(r.maxMove, math.Abs(close[i]-close[i-1]))
		if close[i] > close[i-1] {
			r.peakUpVol = math.Max(r.peakUpVol, vol[i])
		}
	}
	if r.peakUpVol == 0 {
		r.peakUpVol = r.maxVol
	}
	return r
}

func (r run) days() int { return r.end - r.start + 1 }

// DownCandle is the shape of a distribution day relative to a run. The
// shape is shared; each strategy tunes its own ratios.
type DownCandle struct {
	MoveRatio float64 // down move must exceed this fraction of the run's largest move
	VolRatio  float64 // volume must exceed this multiple of the run's peak up volume
}

// at reports whether bar i is a large down candle against r
func (d DownCandle) at(close, vol []float64, i int, r run) bool {
	if i == 0 || close[i] >= close[i-1] {
		return false
	}
	return close[i-1]-close[i] > d.MoveRatio*r.maxMove && vol[i] > d.VolRatio*r.peakUpVol
}

// first returns the first large down candle in [from, to]
func (d DownCandle) first(close, vol []float64, from, to int, r run) (int, bool) {
	for i := from; i <= to; i++ {
		if d.at(close, vol, i, r) {
			return i, true
		}
	}
	return -1, false
}

// upDownVolume sums the volume of up-close and down-close bars from index
// from to the end. Flat closes count as neither.
func upDownVolume(close, vol []float64, from int) (up, down float64) {
	for i := max(from, 1); i < len(close); i++ {
		switch {
		case close[i] > close[i-1]:
			up += vol[i]
		case close[i] < close[i-1]:
			down += vol[i]
		}
	}
	return up, down
}

// volumeRatio divides up by down volume; no down volume is +Inf
func volumeRatio(up, down float64) float64 {
	if down <= 0 {
		return math.Inf(1)
	}
	return up / down
}

// topSum adds the n largest values
func topSum(values []float64, n int) float64 {
	sorted := append([]float64(nil), values...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	var sum float64
	for i := 0; i < n && i < len(sorted); i++ {
		sum += sorted[i]
	}
	return sum
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)))
}

func maxOf(values []float64) float64 {
	out := math.Inf(-1)
	for _, v := range values {
		out = math.Max(out, v)
	}
	return out
}

func minOf(values []float64) float64 {
	out := math.Inf(1)
	for _, v := range values {
		out = math.Min(out, v)
	}
	return out
}

// round to the given number of decimals; infinities pass through
func round(v float64, places int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// bodyRatio is the candle body over its range, zero for a flat bar
func bodyRatio(open, high, low, close float64) float64 {
	rng := high - low
	if rng <= 0 {
		return 0
	}
	return math.Abs(close-open) / rng
}

// sampleStddev is the standard deviation with n-1 degrees of freedom
func sampleStddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
