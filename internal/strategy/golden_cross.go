package strategy

import (
	"hunter/internal/hunt"
	"hunter/internal/indicator"
	"hunter/pkg/model"
)

// Golden-cross reject gates
const (
	GateNoMACross   = "no_ma_cross"
	GateNoMACDCross = "no_macd_cross"
	GateBelowFastMA = "below_fast_ma"
	GateOverextend  = "overextended"
)

// GoldenCrossConfig holds configuration for the golden-cross strategy
type GoldenCrossConfig struct {
	MinBars      int
	FastMA       int
	MidMA        int
	SlowMA       int
	CrossWindow  int     // the fast/slow cross must print within this many bars
	VolumeWindow int
	MinVolRatio  float64 // last bar volume over the volume MA
	MinAvgRatio  float64 // or the last five bars' mean volume over the volume MA
	FastMAFloor  float64 // close must hold at least this share of the fast MA
	GainWindow   int
	MaxGain      float64
}

// DefaultGoldenCrossConfig returns default configuration
func DefaultGoldenCrossConfig() GoldenCrossConfig {
	return GoldenCrossConfig{
		MinBars:      120,
		FastMA:       5,
		MidMA:        10,
		SlowMA:       20,
		CrossWindow:  3,
		VolumeWindow: 20,
		MinVolRatio:  1.2,
		MinAvgRatio:  1.3,
		FastMAFloor:  0.98,
		GainWindow:   20,
		MaxGain:      0.30,
	}
}

// GoldenCrossStrategy implements the moving average golden cross
// Buy signal when:
// 1. MA5 crossed above MA20 within the last three bars
// 2. MACD crossed or is widening above its signal line
// 3. Volume expands and price holds near MA5
type GoldenCrossStrategy struct {
	config GoldenCrossConfig
}

// NewGoldenCrossStrategy creates a new golden-cross strategy
func NewGoldenCrossStrategy(cfg GoldenCrossConfig) *GoldenCrossStrategy {
	return &GoldenCrossStrategy{config: cfg}
}

func (s *GoldenCrossStrategy) Name() string { return "golden-cross" }

func (s *GoldenCrossStrategy) Description() string {
	return "Golden cross - MA5 over MA20 with MACD and volume confirmation"
}

func (s *GoldenCrossStrategy) MinBars() int { return s.config.MinBars }

func (s *GoldenCrossStrategy) Analyze(series model.Series) (*hunt.Match, error) {
	return analyze(s, series)
}

func (s *GoldenCrossStrategy) Diagnose(series model.Series) (*hunt.Match, string, error) {
	cfg := s.config
	n := series.Len()
	if n < max(cfg.MinBars, cfg.CrossWindow+1, cfg.GainWindow, 5) {
		return reject(hunt.GateInsufficientBars)
	}

	f := indicator.NewFrame(series)
	indicator.AttachMA(f, cfg.FastMA, cfg.MidMA, cfg.SlowMA)
	indicator.AttachMACD(f, 12, 26, 9)
	indicator.AttachVolumeMA(f, cfg.VolumeWindow)

	fast, slow := f.MustCol(indicator.MAColumn(cfg.FastMA)), f.MustCol(indicator.MAColumn(cfg.SlowMA))
	crossed := false
	for i := n - 1; i >= n-cfg.CrossWindow; i-- {
		if fast[i-1] < slow[i-1] && fast[i] >= slow[i] {
			crossed = true
			break
		}
	}
	if !crossed {
		return reject(GateNoMACross)
	}

	ma5, ma10, ma20 := fast[n-1], f.At(indicator.MAColumn(cfg.MidMA), -1), slow[n-1]
	m := hunt.NewMatch().
		SetFloat("ma5", indicator.Round2(ma5)).
		SetFloat("ma20", indicator.Round2(ma20)).
		SetString("ma_cross_signal", "golden_cross")

	dif, dea, bar := f.At(indicator.ColDIF, -1), f.At(indicator.ColDEA, -1), f.At(indicator.ColBar, -1)
	macdCross := f.At(indicator.ColDIF, -2) < f.At(indicator.ColDEA, -2) && dif >= dea
	macdWidening := dif > dea && bar > 0 && bar > f.At(indicator.ColBar, -2)
	if !macdCross && !macdWidening {
		return reject(GateNoMACDCross)
	}
	m.SetFloat("macd_dif", round(dif, 4)).
		SetFloat("macd_dea", round(dea, 4)).
		SetFloat("macd_bar", round(bar, 4))

	vol := f.MustCol(indicator.ColVolume)
	volMA := f.At(indicator.VolumeMAColumn(cfg.VolumeWindow), -1)
	avgRatio := 0.0
	if volMA > 0 {
		avgRatio = mean(vol[n-5:]) / volMA
	}
	if vol[n-1] <= volMA*cfg.MinVolRatio && avgRatio <= cfg.MinAvgRatio {
		return reject(GateLowVolume)
	}
	m.SetFloat("volume_ratio", round(avgRatio, 2)).
		SetInt("current_volume", int(vol[n-1])).
		SetInt("volume_ma_20", int(volMA))

	price := series.Last().Close
	if price < ma5*cfg.FastMAFloor {
		return reject(GateBelowFastMA)
	}
	m.SetFloat("close", indicator.Round2(price)).
		SetFloat("price_above_ma5_pct", round((price/ma5-1)*100, 2)).
		SetBool("bullish_alignment", ma5 > ma10 && ma10 > ma20)

	slope := 0.0
	if prior := fast[n-3]; prior > 0 {
		slope = (ma5 - prior) / prior
	}
	m.SetFloat("ma5_slope_pct", round(slope*100, 2))

	gain := 0.0
	if base := series.Bars[n-cfg.GainWindow].Close; base > 0 {
		gain = price/base - 1
	}
	if gain > cfg.MaxGain {
		return reject(GateOverextend)
	}
	m.SetFloat("gain_20d_pct", round(gain*100, 2))
	return m, "", nil
}
