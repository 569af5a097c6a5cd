package indicator

// Rolling windows here emit a value from the first row on, averaging over
// however many rows are available until the window fills. talib's functions
// leave the lookback rows at zero instead, which breaks indicators that are
// read near the start of a short history.

// RollingMean is a trailing simple moving average over at most window rows
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// RollingMax is the trailing maximum over at most window rows
func RollingMax(values []float64, window int) []float64 {
	return rollingExtreme(values, window, func(a, b float64) bool { return a > b })
}

// RollingMin is the trailing minimum over at most window rows
func RollingMin(values []float64, window int) []float64 {
	return rollingExtreme(values, window, func(a, b float64) bool { return a < b })
}

func rollingExtreme(values []float64, window int, better func(a, b float64) bool) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		best := values[start]
		for j := start + 1; j <= i; j++ {
			if better(values[j], best) {
				best = values[j]
			}
		}
		out[i] = best
	}
	return out
}

// EWM is an exponentially weighted mean seeded with the first value:
// y[0] = x[0], y[i] = alpha*x[i] + (1-alpha)*y[i-1].
func EWM(values []float64, alpha float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if i == 0 {
			out[i] = v
			continue
		}
		out[i] = alpha*v + (1-alpha)*out[i-1]
	}
	return out
}

// SpanAlpha converts an EMA span to its smoothing factor
func SpanAlpha(span int) float64 { return 2 / (float64(span) + 1) }

// ComAlpha converts a center of mass to its smoothing factor
func ComAlpha(com float64) float64 { return 1 / (1 + com) }
