package strategy

import (
	"math"

	"hunter/internal/hunt"
	"hunter/internal/indicator"
	"hunter/pkg/model"
)

// Wyckoff reject gates
const (
	GateRangeTooNarrow = "range_too_narrow"
	GateRangeTooWide   = "range_too_wide"
	GateNoSetup        = "no_setup"
)

// WyckoffConfig holds configuration for the Wyckoff spring strategy
type WyckoffConfig struct {
	MinBars      int
	RangeDays    int // accumulation range length
	SpringWindow int
	TestWindow   int
	VolumeWindow int

	MinRangeWidth   float64
	MaxRangeWidth   float64
	SpringBreak     float64 // spring low below support times this
	MinVolumeRatio  float64 // tests need volume below MA times this
	SpringVolFactor float64 // springs allow MinVolumeRatio times this
	NearSupport     float64
	SmallBody       float64

	BreakoutThreshold float64
	BreakoutVolume    float64
}

// DefaultWyckoffConfig returns default configuration
func DefaultWyckoffConfig() WyckoffConfig {
	return WyckoffConfig{
		MinBars:      60,
		RangeDays:    40,
		SpringWindow: 5,
		TestWindow:   10,
		VolumeWindow: 20,

		MinRangeWidth:   0.05,
		MaxRangeWidth:   0.30,
		SpringBreak:     0.98,
		MinVolumeRatio:  0.6,
		SpringVolFactor: 1.2,
		NearSupport:     0.03,
		SmallBody:       0.3,

		BreakoutThreshold: 0.02,
		BreakoutVolume:    1.3,
	}
}

// WyckoffStrategy looks for a spring or a secondary test at the bottom of a
// trading range
type WyckoffStrategy struct {
	config WyckoffConfig
}

// NewWyckoffStrategy creates a new Wyckoff strategy
func NewWyckoffStrategy(cfg WyckoffConfig) *WyckoffStrategy {
	return &WyckoffStrategy{config: cfg}
}

func (s *WyckoffStrategy) Name() string { return "wyckoff" }

func (s *WyckoffStrategy) Description() string {
	return "Wyckoff - spring or low-volume secondary test of range support"
}

func (s *WyckoffStrategy) MinBars() int { return s.config.MinBars }

func (s *WyckoffStrategy) Analyze(series model.Series) (*hunt.Match, error) {
	return analyze(s, series)
}

func (s *WyckoffStrategy) Diagnose(series model.Series) (*hunt.Match, string, error) {
	cfg := s.config
	n := series.Len()
	if n < cfg.MinBars || n < cfg.RangeDays+cfg.VolumeWindow {
		return reject(hunt.GateInsufficientBars)
	}

	f := indicator.NewFrame(series)
	indicator.AttachVolumeMA(f, cfg.VolumeWindow)
	volMA := f.At(indicator.VolumeMAColumn(cfg.VolumeWindow), -1)
	high, low := f.MustCol(indicator.ColHigh), f.MustCol(indicator.ColLow)

	// Trading range, measured before the spring window so a spring can break it
	baseEnd := n - cfg.SpringWindow
	support := minOf(low[n-cfg.RangeDays : baseEnd])
	resistance := maxOf(high[n-cfg.RangeDays : baseEnd])
	if support <= 0 {
		return reject(GateRangeTooNarrow)
	}
	width := (resistance - support) / support
	if width < cfg.MinRangeWidth {
		return reject(GateRangeTooNarrow)
	}
	if width > cfg.MaxRangeWidth {
		return reject(GateRangeTooWide)
	}

	volRatio := func(b model.Bar) float64 {
		if volMA <= 0 {
			return 0
		}
		return round(float64(b.Volume)/volMA, 2)
	}

	m := hunt.NewMatch()

	// Spring: a shallow break of support, reclaimed on the close, on light volume
	found := false
	for _, b := range series.Bars[n-cfg.SpringWindow:] {
		if b.Low < support*cfg.SpringBreak && b.Close > support &&
			float64(b.Volume) < volMA*cfg.MinVolumeRatio*cfg.SpringVolFactor {
			m.SetString("type", "spring").
				SetDate("signal_date", b.Date).
				SetFloat("spring_price", indicator.Round2(b.Low)).
				SetFloat("close_reclaim", indicator.Round2(b.Close)).
				SetFloat("vol_ratio", volRatio(b))
			found = true
			break
		}
	}

	// Secondary test: a dry retest of support that closes firm
	if !found {
		for _, b := range series.Bars[n-cfg.TestWindow:] {
			nearSupport := math.Abs(b.Low-support)/support < cfg.NearSupport
			dry := float64(b.Volume) < volMA*cfg.MinVolumeRatio
			if !nearSupport || !dry || b.Close < b.Open {
				continue
			}
			longLower := b.Open-b.Low > 2*(b.High-b.Open)
			small := b.Body()/(b.Range()+1e-6) < cfg.SmallBody
			if !longLower && small {
				continue
			}
			pattern := "bullish_rejection"
			if longLower {
				pattern = "hammer"
			}
			m.SetString("type", "secondary_test").
				SetDate("signal_date", b.Date).
				SetFloat("test_price", indicator.Round2(b.Low)).
				SetFloat("vol_ratio", volRatio(b)).
				SetString("pattern", pattern)
			found = true
			break
		}
	}
	if !found {
		return reject(GateNoSetup)
	}

	last := series.Last()
	breakout := last.Close > resistance*(1+cfg.BreakoutThreshold) &&
		float64(last.Volume) > volMA*cfg.BreakoutVolume

	close := f.MustCol(indicator.ColClose)
	ema20 := indicator.EWM(close, indicator.SpanAlpha(20))
	ema50 := indicator.EWM(close, indicator.SpanAlpha(50))

	m.SetFloat("current_price", indicator.Round2(last.Close)).
		SetFloat("support", indicator.Round2(support)).
		SetFloat("resistance", indicator.Round2(resistance)).
		SetFloat("range_width_pct", round(width*100, 2)).
		SetInt("base_duration", cfg.RangeDays).
		SetBool("uptrend", ema20[n-1] > ema50[n-1]).
		SetBool("breakout_confirmed", breakout)
	return m, "", nil
}
