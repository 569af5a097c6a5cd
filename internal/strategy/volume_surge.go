package strategy

import (
	"math"

	"hunter/internal/hunt"
	"hunter/internal/indicator"
	"hunter/pkg/model"
)

// Volume-surge reject gates
const (
	GateFewSurgeDays  = "few_surge_days"
	GateGainBand      = "gain_band"
	GateOffHigh       = "off_high"
	GateMAOrder       = "ma_order"
	GateOBVDivergence = "obv_divergence"
)

// VolumeSurgeConfig holds configuration for the volume-price surge strategy
type VolumeSurgeConfig struct {
	MinBars        int
	Lookback       int // bars whose day-over-day pairs are counted
	MinSurgeDays   int
	MinConsecutive int
	VolumeWindow   int
	MinVolRatio    float64
	MinGain5       float64
	MaxGain5       float64
	HighWindow     int
	NearHigh       float64 // close over the window's highest close
	OBVHighRatio   float64
	VWAPWindow     int
	ATRWindow      int
	MinScore       int
	MaxGain20      float64
}

// DefaultVolumeSurgeConfig returns default configuration
func DefaultVolumeSurgeConfig() VolumeSurgeConfig {
	return VolumeSurgeConfig{
		MinBars:        80,
		Lookback:       5,
		MinSurgeDays:   3,
		MinConsecutive: 2,
		VolumeWindow:   20,
		MinVolRatio:    1.2,
		MinGain5:       0.03,
		MaxGain5:       0.15,
		HighWindow:     20,
		NearHigh:       0.98,
		OBVHighRatio:   0.99,
		VWAPWindow:     20,
		ATRWindow:      14,
		MinScore:       8,
		MaxGain20:      0.30,
	}
}

// VolumeSurgeStrategy implements the volume-price surge
// Buy signal when:
// 1. Price and volume rose together on most of the last few days
// 2. Close sits near its 20 day high above a rising MA5
// 3. OBV confirms and the composite strength score is high
type VolumeSurgeStrategy struct {
	config VolumeSurgeConfig
}

// NewVolumeSurgeStrategy creates a new volume-surge strategy
func NewVolumeSurgeStrategy(cfg VolumeSurgeConfig) *VolumeSurgeStrategy {
	return &VolumeSurgeStrategy{config: cfg}
}

func (s *VolumeSurgeStrategy) Name() string { return "volume-surge" }

func (s *VolumeSurgeStrategy) Description() string {
	return "Volume-price surge - consecutive up days on rising volume, OBV confirmed"
}

func (s *VolumeSurgeStrategy) MinBars() int { return s.config.MinBars }

func (s *VolumeSurgeStrategy) Analyze(series model.Series) (*hunt.Match, error) {
	return analyze(s, series)
}

// surgeDays counts the day pairs in the last lookback bars where close and
// volume both rose, and how many of them run unbroken up to the last bar
func surgeDays(close, vol []float64, lookback int) (total, consecutive int) {
	n := len(close)
	surging := func(i int) bool { return close[i] > close[i-1] && vol[i] > vol[i-1] }
	for i := n - lookback + 1; i < n; i++ {
		if surging(i) {
			total++
		}
	}
	for i := n - 1; i > n-lookback && surging(i); i-- {
		consecutive++
	}
	return total, consecutive
}

func (s *VolumeSurgeStrategy) Diagnose(series model.Series) (*hunt.Match, string, error) {
	cfg := s.config
	n := series.Len()
	if n < max(cfg.MinBars, cfg.Lookback+1, cfg.HighWindow, 60, 10) {
		return reject(hunt.GateInsufficientBars)
	}

	f := indicator.NewFrame(series)
	indicator.AttachMA(f, 5, 10, 20)
	indicator.AttachVolumeMA(f, 5, cfg.VolumeWindow)
	indicator.AttachOBV(f)
	indicator.AttachVWAP(f, cfg.VWAPWindow)
	indicator.AttachMACD(f, 12, 26, 9)
	indicator.AttachATR(f, cfg.ATRWindow)
	close, vol := f.MustCol(indicator.ColClose), f.MustCol(indicator.ColVolume)

	total, consecutive := surgeDays(close, vol, cfg.Lookback)
	if total < cfg.MinSurgeDays || consecutive < cfg.MinConsecutive {
		return reject(GateFewSurgeDays)
	}
	m := hunt.NewMatch().
		SetInt("surge_days_in_5", total).
		SetInt("consecutive_surge_days", consecutive)

	volMA := f.At(indicator.VolumeMAColumn(cfg.VolumeWindow), -1)
	volMA5 := f.At(indicator.VolumeMAColumn(5), -1)
	volRatio, volRatio5 := 0.0, 0.0
	if volMA > 0 {
		volRatio = vol[n-1] / volMA
	}
	if volMA5 > 0 {
		volRatio5 = vol[n-1] / volMA5
	}
	if volRatio < cfg.MinVolRatio {
		return reject(GateLowVolume)
	}
	m.SetFloat("volume_vs_ma20", round(volRatio, 2)).
		SetFloat("volume_vs_ma5", round(volRatio5, 2)).
		SetInt("current_volume", int(vol[n-1])).
		SetInt("volume_ma_20", int(volMA)).
		SetBool("volume_increasing", vol[n-3] <= vol[n-2] && vol[n-2] <= vol[n-1])

	price := close[n-1]
	gain5 := 0.0
	if base := close[n-5]; base > 0 {
		gain5 = price/base - 1
	}
	m.SetFloat("gain_5d_pct", round(gain5*100, 2)).
		SetFloat("current_price", indicator.Round2(price))
	if gain5 < cfg.MinGain5 || gain5 > cfg.MaxGain5 {
		return reject(GateGainBand)
	}

	recentHigh := maxOf(close[n-cfg.HighWindow:])
	if price < recentHigh*cfg.NearHigh {
		return reject(GateOffHigh)
	}
	m.SetFloat("recent_20_high", indicator.Round2(recentHigh)).
		SetBool("is_near_high", true)

	ma5, ma10, ma20 := f.At(indicator.MAColumn(5), -1), f.At(indicator.MAColumn(10), -1), f.At(indicator.MAColumn(20), -1)
	aligned := ma5 > ma10 && ma10 > ma20
	m.SetBool("bullish_alignment", aligned)
	if ma5 <= ma10 || price < ma5 {
		return reject(GateMAOrder)
	}
	m.SetFloat("ma5", indicator.Round2(ma5)).
		SetFloat("ma10", indicator.Round2(ma10)).
		SetFloat("ma20", indicator.Round2(ma20))

	obv := f.MustCol(indicator.ColOBV)
	obvHigh := obv[n-1] >= maxOf(obv[n-cfg.HighWindow:])*cfg.OBVHighRatio
	m.SetBool("obv_new_high", obvHigh).
		SetInt("obv_current", int(obv[n-1]))

	vwap := f.At(indicator.VWAPColumn(cfg.VWAPWindow), -1)
	aboveVWAP := price > vwap
	m.SetFloat("vwap20", indicator.Round2(vwap)).
		SetBool("above_vwap", aboveVWAP)

	dif, dea := f.At(indicator.ColDIF, -1), f.At(indicator.ColDEA, -1)
	macdBullish := dif > dea && f.At(indicator.ColBar, -1) > 0
	m.SetFloat("macd_dif", round(dif, 4)).
		SetFloat("macd_dea", round(dea, 4)).
		SetBool("macd_bullish", macdBullish)

	if avg60 := mean(vol[n-60:]); avg60 > 0 {
		m.SetFloat("relative_volume_60d", round(vol[n-1]/avg60, 2))
	} else {
		m.SetFloat("relative_volume_60d", 0)
	}

	obvChange := 0.0
	if base := obv[n-5]; base != 0 {
		obvChange = (obv[n-1] - base) / math.Abs(base)
	}
	m.SetFloat("obv_change_5d_pct", round(obvChange*100, 2))
	if obvChange < 0 {
		return reject(GateOBVDivergence)
	}

	score := 1
	switch {
	case consecutive >= 4:
		score = 3
	case consecutive >= 3:
		score = 2
	}
	switch {
	case volRatio >= 2:
		score += 3
	case volRatio >= 1.5:
		score += 2
	default:
		score++
	}
	if aligned {
		score += 2
	}
	if obvHigh {
		score += 2
	}
	if macdBullish {
		score += 2
	}
	if aboveVWAP {
		score++
	}
	m.SetInt("strength_score", score)
	if score < cfg.MinScore {
		return reject(GateScore)
	}

	gain20 := 0.0
	if base := close[n-20]; base > 0 {
		gain20 = price/base - 1
	}
	if gain20 > cfg.MaxGain20 {
		return reject(GateOverextend)
	}
	m.SetFloat("gain_20d_pct", round(gain20*100, 2))

	var flow, prevFlow float64
	for i := n - 10; i < n; i++ {
		if i >= n-5 {
			flow += close[i] * vol[i]
		} else {
			prevFlow += close[i] * vol[i]
		}
	}
	flowRatio := 0.0
	if prevFlow > 0 {
		flowRatio = flow / prevFlow
	}
	m.SetFloat("money_flow_increase", round(flowRatio, 2))

	if atr := f.At(indicator.ATRColumn(cfg.ATRWindow), -1); atr > 0 {
		m.SetFloat("trend_strength", round(gain5*price/atr, 2))
	}
	return m, "", nil
}
