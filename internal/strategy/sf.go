package strategy

import (
	"hunter/internal/hunt"
	"hunter/internal/indicator"
	"hunter/pkg/model"
)

// SF reject gates
const (
	GateBBITrend = "bbi_trend"
)

// SFConfig holds configuration for the SF oversold-ignition strategy
type SFConfig struct {
	MinBars int

	KDJPeriod, KDJK, KDJD int
	YellowWindows         []int
	JThreshold            float64
	WhiteFloor            float64 // white line must hold this share of the yellow line
	DoubleWindow          int
	DoubleRatio           float64

	// Ignition search over [n-SearchWindow, n-SkipRecent)
	SearchWindow   int
	SkipRecent     int
	BoxDays        int
	MinCandleGain  float64 // close over open, minus one
	MinVolMult     float64 // volume over the prior day's volume MA
	MinUpDownRatio float64

	// BBITrend, when set, requires a rising bull/bear index
	BBITrend   *TrendFilter
	BBIWindows []int
}

// DefaultSFConfig returns default configuration
func DefaultSFConfig() SFConfig {
	return SFConfig{
		MinBars: 365,

		KDJPeriod:     9,
		KDJK:          3,
		KDJD:          3,
		YellowWindows: indicator.DefaultYellowWindows,
		JThreshold:    5,
		WhiteFloor:    0.985,
		DoubleWindow:  60,
		DoubleRatio:   2,

		SearchWindow:   12,
		SkipRecent:     2,
		BoxDays:        10,
		MinCandleGain:  0.04,
		MinVolMult:     2,
		MinUpDownRatio: 1.8,

		BBITrend:   &TrendFilter{MinWindow: 20, MaxWindow: 120, Quantile: 0.2},
		BBIWindows: []int{3, 6, 12, 24},
	}
}

// SFStrategy implements the SF oversold pullback after a single-day ignition
// Buy signal when:
// 1. J is deeply oversold while price holds the yellow line
// 2. A big-volume candle of at least 4% printed in the last two weeks
// 3. Up days after it carried far more volume than down days
type SFStrategy struct {
	config SFConfig
}

// NewSFStrategy creates a new SF strategy
func NewSFStrategy(cfg SFConfig) *SFStrategy {
	return &SFStrategy{config: cfg}
}

func (s *SFStrategy) Name() string { return "sf" }

func (s *SFStrategy) Description() string {
	return "SF - oversold J above the yellow line after a recent volume ignition"
}

func (s *SFStrategy) MinBars() int { return s.config.MinBars }

func (s *SFStrategy) Analyze(series model.Series) (*hunt.Match, error) {
	return analyze(s, series)
}

func (s *SFStrategy) Diagnose(series model.Series) (*hunt.Match, string, error) {
	cfg := s.config
	n := series.Len()
	if n < max(cfg.MinBars, cfg.SearchWindow+1, cfg.DoubleWindow) {
		return reject(hunt.GateInsufficientBars)
	}
	if cfg.BBITrend != nil {
		if err := cfg.BBITrend.Validate(); err != nil {
			return nil, "", err
		}
	}

	f := indicator.NewFrame(series)
	if err := indicator.AttachKDJ(f, cfg.KDJPeriod, cfg.KDJK, cfg.KDJD); err != nil {
		return nil, "", err
	}
	if err := indicator.AttachDualTrend(f, cfg.YellowWindows...); err != nil {
		return nil, "", err
	}
	indicator.AttachVolumeMA(f, cfg.BoxDays)
	indicator.AttachBBI(f, cfg.BBIWindows...)

	j := f.At(indicator.ColJ, -1)
	if j > cfg.JThreshold {
		return reject(GateMomentum)
	}
	m := hunt.NewMatch().SetFloat("kdj_j", j)

	price := series.Last().Close
	white, yellow := f.At(indicator.ColWhite, -1), f.At(indicator.ColYellow, -1)
	if price < yellow || white < yellow*cfg.WhiteFloor {
		return reject(GateTrendSupport)
	}
	m.SetBool("is_between_white_yellow", price < white).
		SetBool("is_above_white", price >= white)

	close := f.MustCol(indicator.ColClose)
	lo := minOf(close[n-cfg.DoubleWindow:])
	if lo <= 0 || maxOf(close[n-cfg.DoubleWindow:])/lo >= cfg.DoubleRatio {
		return reject(GateDoubled)
	}

	if cfg.BBITrend != nil && !cfg.BBITrend.Rising(f.MustCol(indicator.ColBBI)) {
		return reject(GateBBITrend)
	}

	vol, volMA := f.MustCol(indicator.ColVolume), f.MustCol(indicator.VolumeMAColumn(cfg.BoxDays))
	fire := -1
	for i := max(n-cfg.SearchWindow, 1); i < n-cfg.SkipRecent; i++ {
		b := series.Bars[i]
		if b.Open <= 0 || volMA[i-1] <= 0 {
			continue
		}
		if b.Close/b.Open > 1+cfg.MinCandleGain && vol[i]/volMA[i-1] > cfg.MinVolMult {
			fire = i
		}
	}
	if fire < 0 {
		return reject(GateNoIgnition)
	}
	ign := series.Bars[fire]
	m.SetDate("fire_date", ign.Date).
		SetFloat("fire_pct", round((ign.Close/ign.Open-1)*100, 2))

	if price < ign.Low {
		return reject(GateSupport)
	}

	from := max(fire-cfg.BoxDays, 0)
	boxRange := 1.0
	if fire > from {
		high, low := f.MustCol(indicator.ColHigh), f.MustCol(indicator.ColLow)
		if boxLow := minOf(low[from:fire]); boxLow > 0 {
			boxRange = (maxOf(high[from:fire]) - boxLow) / boxLow
		}
	}
	m.SetFloat("box_range_pct", round(boxRange*100, 2))

	up, down := upDownVolume(close, vol, fire)
	if down <= 0 {
		return reject(GateVolumeShape)
	}
	ratio := up / down
	if ratio < cfg.MinUpDownRatio {
		return reject(GateVolumeShape)
	}
	m.SetFloat("up_down_vol_ratio", round(ratio, 2))
	return m, "", nil
}
