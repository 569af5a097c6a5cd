package indicator

import (
	"strconv"

	"github.com/markcheno/go-talib"
)

// Oscillator and volatility columns
const (
	ColDIF = "macd_dif"
	ColDEA = "macd_dea"
	ColBar = "macd_bar"
	ColRSI = "rsi"
	ColTR  = "tr"
)

// ATRColumn names the average true range column for a window, e.g. "atr20"
func ATRColumn(window int) string { return "atr" + strconv.Itoa(window) }

// DonchianColumns names the upper and lower channel columns for a window
func DonchianColumns(window int) (upper, lower string) {
	n := strconv.Itoa(window)
	return "dc" + n + "_high", "dc" + n + "_low"
}

// AttachMACD adds macd_dif, macd_dea and macd_bar. The bar is twice the
// histogram, the convention used by domestic charting software.
func AttachMACD(f *Frame, fast, slow, signal int) {
	if f.Len() < slow+signal {
		f.Set(ColDIF, make([]float64, f.Len()))
		f.Set(ColDEA, make([]float64, f.Len()))
		f.Set(ColBar, make([]float64, f.Len()))
		return
	}
	dif, dea, hist := talib.Macd(f.MustCol(ColClose), fast, slow, signal)
	bar := make([]float64, len(hist))
	for i, h := range hist {
		bar[i] = Round2(h * 2)
	}
	f.Set(ColDIF, dif)
	f.Set(ColDEA, dea)
	f.Set(ColBar, bar)
}

// AttachRSI adds the rsi column
func AttachRSI(f *Frame, window int) {
	if f.Len() <= window {
		f.Set(ColRSI, make([]float64, f.Len()))
		return
	}
	f.Set(ColRSI, round2All(talib.Rsi(f.MustCol(ColClose), window)))
}

// AttachATR adds the true range and its simple average over each window.
// The first row's true range is its high-low range.
func AttachATR(f *Frame, windows ...int) {
	high, low := f.MustCol(ColHigh), f.MustCol(ColLow)
	if f.Len() < 2 {
		f.Set(ColTR, make([]float64, f.Len()))
		for _, w := range windows {
			f.Set(ATRColumn(w), make([]float64, f.Len()))
		}
		return
	}
	tr := talib.TRange(high, low, f.MustCol(ColClose))
	if len(tr) > 0 {
		tr[0] = high[0] - low[0]
	}
	f.Set(ColTR, tr)
	for _, w := range windows {
		if f.Len() < w {
			f.Set(ATRColumn(w), make([]float64, f.Len()))
			continue
		}
		f.Set(ATRColumn(w), talib.Sma(tr, w))
	}
}

// AttachDonchian adds the rolling highest high and lowest low for each window.
// Rows before the window fills are zero.
func AttachDonchian(f *Frame, windows ...int) {
	high, low := f.MustCol(ColHigh), f.MustCol(ColLow)
	for _, w := range windows {
		upper, lower := DonchianColumns(w)
		if f.Len() < w {
			f.Set(upper, make([]float64, f.Len()))
			f.Set(lower, make([]float64, f.Len()))
			continue
		}
		f.Set(upper, talib.Max(high, w))
		f.Set(lower, talib.Min(low, w))
	}
}

// Volume flow and band columns
const (
	ColOBV     = "obv"
	ColBBUpper = "bb_upper"
	ColBBMid   = "bb_mid"
	ColBBLower = "bb_lower"
)

// VWAPColumn names the rolling volume weighted average price column
func VWAPColumn(window int) string { return "vwap" + strconv.Itoa(window) }

// AttachOBV adds on-balance volume, starting from zero on the first row
func AttachOBV(f *Frame) {
	if f.Len() == 0 {
		f.Set(ColOBV, nil)
		return
	}
	vol := f.MustCol(ColVolume)
	obv := talib.Obv(f.MustCol(ColClose), vol)
	base := obv[0]
	for i := range obv {
		obv[i] -= base
	}
	f.Set(ColOBV, obv)
}

// AttachBollinger adds simple-average Bollinger bands of width dev standard
// deviations. Rows before the window fills are zero.
func AttachBollinger(f *Frame, window int, dev float64) {
	if f.Len() < window {
		for _, c := range []string{ColBBUpper, ColBBMid, ColBBLower} {
			f.Set(c, make([]float64, f.Len()))
		}
		return
	}
	upper, mid, lower := talib.BBands(f.MustCol(ColClose), window, dev, dev, talib.SMA)
	f.Set(ColBBUpper, upper)
	f.Set(ColBBMid, mid)
	f.Set(ColBBLower, lower)
}

// AttachVWAP adds the rolling VWAP of the typical price over window
func AttachVWAP(f *Frame, window int) {
	n := f.Len()
	if n < window {
		f.Set(VWAPColumn(window), make([]float64, n))
		return
	}
	high, low, close, vol := f.MustCol(ColHigh), f.MustCol(ColLow), f.MustCol(ColClose), f.MustCol(ColVolume)
	pv := make([]float64, n)
	for i := range pv {
		pv[i] = (high[i] + low[i] + close[i]) / 3 * vol[i]
	}
	num, den := talib.Sum(pv, window), talib.Sum(vol, window)
	out := make([]float64, n)
	for i := range out {
		if den[i] > 0 {
			out[i] = num[i] / den[i]
		}
	}
	f.Set(VWAPColumn(window), out)
}
