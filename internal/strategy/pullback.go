package strategy

import (
	"hunter/internal/hunt"
	"hunter/internal/indicator"
	"hunter/pkg/model"
)

// Breakout-pullback reject gates
const (
	GateBelowMA20   = "below_ma20"
	GateNoRally     = "no_rally"
	GateNoPullback  = "no_pullback"
	GateHeavyVolume = "heavy_volume"
)

// PullbackConfig holds configuration for the breakout-pullback strategy
type PullbackConfig struct {
	MinBars      int
	MAWindow     int     // trend filter, close must hold above it
	RallyWindow  int     // bars the breakout rally is measured over
	MinRally     float64 // high over low across the rally window
	PullbackDays int     // close must sit below the high of this many bars
	MaxVolRatio  float64 // volume over the pullback window mean
}

// DefaultPullbackConfig returns default configuration
func DefaultPullbackConfig() PullbackConfig {
	return PullbackConfig{
		MinBars:      30,
		MAWindow:     20,
		RallyWindow:  15,
		MinRally:     0.15,
		PullbackDays: 5,
		MaxVolRatio:  0.7,
	}
}

// PullbackStrategy implements the "Pullback after Breakout" strategy
// Buy signal when:
// 1. Price holds above MA20
// 2. A rally of at least 15% printed in the last 15 bars
// 3. Price is backing off the recent high on shrinking volume
type PullbackStrategy struct {
	config PullbackConfig
}

// NewPullbackStrategy creates a new pullback strategy
func NewPullbackStrategy(cfg PullbackConfig) *PullbackStrategy {
	return &PullbackStrategy{config: cfg}
}

// Name returns the strategy name
func (s *PullbackStrategy) Name() string { return "breakout-pullback" }

// Description returns the strategy description
func (s *PullbackStrategy) Description() string {
	return "Breakout pullback - low-volume dip after a sharp rally, above MA20"
}

func (s *PullbackStrategy) MinBars() int { return s.config.MinBars }

func (s *PullbackStrategy) Analyze(series model.Series) (*hunt.Match, error) {
	return analyze(s, series)
}

func (s *PullbackStrategy) Diagnose(series model.Series) (*hunt.Match, string, error) {
	cfg := s.config
	n := series.Len()
	if n < cfg.MinBars || n < cfg.MAWindow || n < cfg.RallyWindow || n < cfg.PullbackDays {
		return reject(hunt.GateInsufficientBars)
	}

	f := indicator.NewFrame(series)
	indicator.AttachMA(f, cfg.MAWindow)
	high, low := f.MustCol(indicator.ColHigh), f.MustCol(indicator.ColLow)
	vol := f.MustCol(indicator.ColVolume)

	last := series.Last()
	ma := f.At(indicator.MAColumn(cfg.MAWindow), -1)
	if last.Close <= ma {
		return reject(GateBelowMA20)
	}

	rallyLow := minOf(low[n-cfg.RallyWindow:])
	rallyHigh := maxOf(high[n-cfg.RallyWindow:])
	if rallyLow <= 0 {
		return reject(GateNoRally)
	}
	gain := (rallyHigh - rallyLow) / rallyLow
	if gain < cfg.MinRally {
		return reject(GateNoRally)
	}

	recentHigh := maxOf(high[n-cfg.PullbackDays:])
	if last.Close >= recentHigh {
		return reject(GateNoPullback)
	}

	volMean := mean(vol[n-cfg.PullbackDays:])
	volRatio := 0.0
	if volMean > 0 {
		volRatio = vol[n-1] / volMean
	}
	if volRatio > cfg.MaxVolRatio {
		return reject(GateHeavyVolume)
	}

	m := hunt.NewMatch().
		SetFloat("price", indicator.Round2(last.Close)).
		SetFloat("ma20", indicator.Round2(ma)).
		SetFloat("recent_gain_pct", round(gain*100, 2)).
		SetFloat("pullback_from_high", round((recentHigh-last.Close)/recentHigh*100, 2)).
		SetFloat("vol_ratio", round(volRatio, 2))
	return m, "", nil
}
