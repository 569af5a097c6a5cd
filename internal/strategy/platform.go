package strategy

import (
	"hunter/internal/hunt"
	"hunter/internal/indicator"
	"hunter/pkg/model"
)

// Platform-breakout reject gates
const (
	GateNoPlatform   = "no_platform"
	GateLostPlatform = "lost_platform"
	GateOverheated   = "overheated"
)

// PlatformConfig holds configuration for the platform breakout strategy
type PlatformConfig struct {
	MinBars       int
	MinDays       int // shortest platform tried
	MaxDays       int
	ConfirmDays   int     // bars after the platform the breakout may print in
	MaxAmplitude  float64 // platform high over low, minus one
	MaxCV         float64 // close standard deviation over mean inside the platform
	MinVolRatio   float64 // breakout volume over platform mean volume
	HoldRatio     float64 // close must stay above this share of the platform high
	MaxGain       float64 // since the breakout close
	FastMAFloor   float64
	BollWindow    int
	BollDev       float64
	MaxBollinger  float64 // position inside the bands, 1 is the upper band
	TargetHeight  float64 // target is close plus this many platform heights
	MinRiskReward float64
	TrendLookback int
}

// DefaultPlatformConfig returns default configuration
func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		MinBars:       120,
		MinDays:       10,
		MaxDays:       40,
		ConfirmDays:   5,
		MaxAmplitude:  0.10,
		MaxCV:         0.05,
		MinVolRatio:   1.8,
		HoldRatio:     0.97,
		MaxGain:       0.15,
		FastMAFloor:   0.98,
		BollWindow:    20,
		BollDev:       2,
		MaxBollinger:  1.2,
		TargetHeight:  1.2,
		MinRiskReward: 2,
		TrendLookback: 20,
	}
}

// PlatformStrategy implements the platform breakout
// Buy signal when:
// 1. Price moved sideways in a tight box for 10 to 40 days
// 2. A close above the box printed in the last 5 days on heavy volume
// 3. Price still holds the box top with room to a measured target
type PlatformStrategy struct {
	config PlatformConfig
}

// NewPlatformStrategy creates a new platform-breakout strategy
func NewPlatformStrategy(cfg PlatformConfig) *PlatformStrategy {
	return &PlatformStrategy{config: cfg}
}

func (s *PlatformStrategy) Name() string { return "platform-breakout" }

func (s *PlatformStrategy) Description() string {
	return "Platform breakout - heavy-volume close above a tight sideways box"
}

func (s *PlatformStrategy) MinBars() int { return s.config.MinBars }

func (s *PlatformStrategy) Analyze(series model.Series) (*hunt.Match, error) {
	return analyze(s, series)
}

// platform is a sideways box spanning bars [start, end)
type platform struct {
	start, end int
	low, high  float64
}

// findPlatform tries the shortest box first. Every box ends ConfirmDays
// bars before the last bar.
func (s *PlatformStrategy) findPlatform(high, low, close []float64) (platform, bool) {
	cfg := s.config
	n := len(close)
	for days := cfg.MinDays; days <= cfg.MaxDays; days++ {
		start, end := n-days-cfg.ConfirmDays, n-cfg.ConfirmDays
		if start < 0 {
			break
		}
		hi, lo := maxOf(high[start:end]), minOf(low[start:end])
		if lo <= 0 || (hi-lo)/lo > cfg.MaxAmplitude {
			continue
		}
		avg := mean(close[start:end])
		if avg <= 0 || sampleStddev(close[start:end])/avg >= cfg.MaxCV {
			continue
		}
		return platform{start: start, end: end, low: lo, high: hi}, true
	}
	return platform{}, false
}

func (s *PlatformStrategy) Diagnose(series model.Series) (*hunt.Match, string, error) {
	cfg := s.config
	n := series.Len()
	if n < max(cfg.MinBars, cfg.MinDays+cfg.ConfirmDays, cfg.BollWindow, 10) {
		return reject(hunt.GateInsufficientBars)
	}

	f := indicator.NewFrame(series)
	indicator.AttachMA(f, 5, 10)
	indicator.AttachBollinger(f, cfg.BollWindow, cfg.BollDev)
	high, low := f.MustCol(indicator.ColHigh), f.MustCol(indicator.ColLow)
	close, vol := f.MustCol(indicator.ColClose), f.MustCol(indicator.ColVolume)

	p, ok := s.findPlatform(high, low, close)
	if !ok {
		return reject(GateNoPlatform)
	}
	m := hunt.NewMatch().
		SetInt("platform_days", p.end-p.start).
		SetFloat("platform_low", indicator.Round2(p.low)).
		SetFloat("platform_high", indicator.Round2(p.high)).
		SetFloat("platform_amplitude_pct", round((p.high-p.low)/p.low*100, 2))

	breakout := -1
	for i := p.end; i < n; i++ {
		if close[i] > p.high {
			breakout = i
			break
		}
	}
	if breakout < 0 {
		return reject(GateNoBreakout)
	}
	bar := series.Bars[breakout]
	m.SetDate("breakout_date", bar.Date).
		SetFloat("breakout_price", indicator.Round2(bar.Close))

	platformVol := mean(vol[p.start:p.end])
	volRatio := 0.0
	if platformVol > 0 {
		volRatio = vol[breakout] / platformVol
	}
	if volRatio < cfg.MinVolRatio {
		return reject(GateLowVolume)
	}
	m.SetInt("breakout_volume", int(vol[breakout])).
		SetInt("platform_avg_volume", int(platformVol)).
		SetFloat("volume_surge_ratio", round(volRatio, 2))

	price := close[n-1]
	if price < p.high*cfg.HoldRatio {
		return reject(GateLostPlatform)
	}
	m.SetFloat("current_price", indicator.Round2(price)).
		SetFloat("above_platform_pct", round((price/p.high-1)*100, 2))

	gain := 0.0
	if bar.Close > 0 {
		gain = price/bar.Close - 1
	}
	if gain > cfg.MaxGain {
		return reject(GateOverextend)
	}
	m.SetFloat("gain_since_breakout_pct", round(gain*100, 2))

	upDays := 1
	for i := breakout + 1; i < n && close[i] > close[i-1]; i++ {
		upDays++
	}
	m.SetInt("consecutive_up_days", upDays)

	ma5, ma10 := f.At(indicator.MAColumn(5), -1), f.At(indicator.MAColumn(10), -1)
	aboveMA5 := price >= ma5*cfg.FastMAFloor
	m.SetFloat("ma5", indicator.Round2(ma5)).
		SetFloat("ma10", indicator.Round2(ma10)).
		SetBool("above_ma5", aboveMA5).
		SetBool("above_ma10", price >= ma10*0.95)
	if !aboveMA5 {
		return reject(GateBelowFastMA)
	}

	upper, lower := f.At(indicator.ColBBUpper, -1), f.At(indicator.ColBBLower, -1)
	if upper > lower {
		pos := (price - lower) / (upper - lower)
		m.SetFloat("bollinger_position", round(pos, 2))
		if pos > cfg.MaxBollinger {
			return reject(GateOverheated)
		}
	}

	guide := newTradeGuide(price, p.low, price+(p.high-p.low)*cfg.TargetHeight, 0)
	guide.annotate(m)
	if guide.RiskRewardRatio < cfg.MinRiskReward {
		return reject(GateRiskReward)
	}

	if p.start >= cfg.TrendLookback {
		before := mean(close[p.start-cfg.TrendLookback : p.start])
		inside := mean(close[p.start:p.end])
		trend := "sideways"
		switch {
		case inside > before*1.05:
			trend = "uptrend"
		case inside < before*0.95:
			trend = "downtrend"
		}
		m.SetString("trend_before_platform", trend)
	}
	return m, "", nil
}
