package indicator

import (
	"fmt"
	"strconv"
)

// Trend line columns
const (
	ColWhite  = "z_white"
	ColYellow = "z_yellow"
	ColBBI    = "bbi"
)

// DefaultYellowWindows are the moving averages averaged into the yellow line
var DefaultYellowWindows = []int{14, 28, 57, 114}

// DualTrend computes the short-term white line, a double EMA of close with
// span 10, and the long-term yellow line, the mean of several simple MAs.
func DualTrend(close []float64, yellowWindows []int) (white, yellow []float64) {
	alpha := SpanAlpha(10)
	white = EWM(EWM(close, alpha), alpha)

	yellow = make([]float64, len(close))
	for _, w := range yellowWindows {
		ma := RollingMean(close, w)
		for i := range yellow {
			yellow[i] += ma[i]
		}
	}
	for i := range yellow {
		yellow[i] /= float64(len(yellowWindows))
	}
	return round2All(white), round2All(yellow)
}

// AttachDualTrend adds z_white and z_yellow
func AttachDualTrend(f *Frame, yellowWindows ...int) error {
	if len(yellowWindows) == 0 {
		yellowWindows = DefaultYellowWindows
	}
	for _, w := range yellowWindows {
		if w <= 0 {
			return fmt.Errorf("yellow line window must be positive: %d", w)
		}
	}
	white, yellow := DualTrend(f.MustCol(ColClose), yellowWindows)
	f.Set(ColWhite, white)
	f.Set(ColYellow, yellow)
	return nil
}

// BBI is the bull/bear index: the mean of several close MAs
func BBI(close []float64, windows ...int) []float64 {
	if len(windows) == 0 {
		windows = []int{3, 6, 12, 24}
	}
	out := make([]float64, len(close))
	for _, w := range windows {
		ma := RollingMean(close, w)
		for i := range out {
			out[i] += ma[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(windows))
	}
	return out
}

// AttachBBI adds the bbi column
func AttachBBI(f *Frame, windows ...int) {
	f.Set(ColBBI, BBI(f.MustCol(ColClose), windows...))
}

// MAColumn names the close moving average column for a window, e.g. "ma20"
func MAColumn(window int) string { return "ma" + strconv.Itoa(window) }

// AttachMA adds close moving averages for each window
func AttachMA(f *Frame, windows ...int) {
	c := f.MustCol(ColClose)
	for _, w := range windows {
		f.Set(MAColumn(w), RollingMean(c, w))
	}
}

// VolumeMAColumn names the volume moving average column for a window
func VolumeMAColumn(window int) string { return "volume_ma_" + strconv.Itoa(window) }

// AttachVolumeMA adds volume moving averages for each window
func AttachVolumeMA(f *Frame, windows ...int) {
	v := f.MustCol(ColVolume)
	for _, w := range windows {
		f.Set(VolumeMAColumn(w), round2All(RollingMean(v, w)))
	}
}
