package indicator

import "fmt"

// KDJ columns
const (
	ColK = "kdj_k"
	ColD = "kdj_d"
	ColJ = "kdj_j"
)

// KDJ computes the stochastic K, D and J lines.
//
// RSV uses the rolling high/low over period rows and is 50 when the range is
// flat. K and D are exponential smoothings with center of mass kPeriod-1 and
// dPeriod-1; J = 3K - 2D.
func KDJ(high, low, close []float64, period, kPeriod, dPeriod int) (k, d, j []float64) {
	hh := RollingMax(high, period)
	ll := RollingMin(low, period)

	rsv := make([]float64, len(close))
	for i := range close {
		denom := hh[i] - ll[i]
		if denom == 0 {
			rsv[i] = 50
			continue
		}
		rsv[i] = (close[i] - ll[i]) / denom * 100
	}

	k = EWM(rsv, ComAlpha(float64(kPeriod-1)))
	d = EWM(k, ComAlpha(float64(dPeriod-1)))
	j = make([]float64, len(close))
	for i := range j {
		j[i] = 3*k[i] - 2*d[i]
	}
	return round2All(k), round2All(d), round2All(j)
}

// AttachKDJ adds kdj_k, kdj_d and kdj_j
func AttachKDJ(f *Frame, period, kPeriod, dPeriod int) error {
	if period <= 0 || kPeriod <= 0 || dPeriod <= 0 {
		return fmt.Errorf("kdj periods must be positive: %d/%d/%d", period, kPeriod, dPeriod)
	}
	k, d, j := KDJ(f.MustCol(ColHigh), f.MustCol(ColLow), f.MustCol(ColClose), period, kPeriod, dPeriod)
	f.Set(ColK, k)
	f.Set(ColD, d)
	f.Set(ColJ, j)
	return nil
}
