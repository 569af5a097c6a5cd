package strategy

import (
	"fmt"
	"math"

	"hunter/internal/hunt"
	"hunter/internal/indicator"
	"hunter/pkg/model"
)

// B1 reject gates, in cascade order
const (
	GateMomentum         = "momentum"
	GateVolatility       = "volatility"
	GateTrendSupport     = "trend_support"
	GateDoubled          = "doubled"
	GateNoIgnition       = "no_ignition"
	GateSupport          = "support"
	GateVolumeDecay      = "volume_decay"
	GateLateDistribution = "late_distribution"
	GateTop3Volume       = "top3_volume"
	GateConsolidation    = "consolidation"
	GateVolumeShape      = "volume_shape"
	GateRangePosition    = "range_position"
	GateCandleStability  = "candle_stability"
)

// IgnitionRule is the threshold a run of Days bars must clear to count as
// an ignition
type IgnitionRule struct {
	Days       int
	MinGain    float64 // cumulative close-to-close gain over the run
	MinVolMult float64 // mean run volume over the volume MA before the run
}

// B1Config holds configuration for the B1 breakout-ignition strategy
type B1Config struct {
	MinBars int

	// KDJ periods
	KDJPeriod, KDJK, KDJD int
	YellowWindows         []int

	// Stage 1: J at or below JThreshold, or turning up below JTurnCeiling
	// by less than JFlatTolerance
	JThreshold     float64
	JTurnCeiling   float64
	JFlatTolerance float64

	// Stage 2: last day's close change band
	MaxUpChange   float64
	MaxDownChange float64

	// Stage 3: close and white line against the yellow line
	YellowSupportRatio float64

	// Stage 4
	DoubleWindow int
	DoubleRatio  float64

	// Stage 5: ignition search over the last SearchWindow bars, skipping
	// the newest SkipRecent. Rules are tried in order at each end-day.
	SearchWindow   int
	SkipRecent     int
	IgnitionRules  []IgnitionRule
	VolumeMAWindow int
	LargeDown      DownCandle

	// Stage 6: last two volumes over the run's peak up volume
	LastVolCeiling float64
	PrevVolCeiling float64

	// Stage 8
	TopVolumeDays     int
	VolRatioThreshold float64

	// Stage 9
	ConsolidationDays int
	ConsolidationBox  float64

	// Stage 11
	DownShrinkRatio float64

	// Stage 13
	BodyStdCeiling float64
}

// DefaultB1Config returns default configuration
func DefaultB1Config() B1Config {
	return B1Config{
		MinBars: 500,

		KDJPeriod:     9,
		KDJK:          3,
		KDJD:          3,
		YellowWindows: indicator.DefaultYellowWindows,

		JThreshold:     13,
		JTurnCeiling:   20,
		JFlatTolerance: 3,

		MaxUpChange:   0.018,
		MaxDownChange: 0.02,

		YellowSupportRatio: 0.99,

		DoubleWindow: 60,
		DoubleRatio:  2.0,

		SearchWindow: 30,
		SkipRecent:   2,
		IgnitionRules: []IgnitionRule{
			{Days: 7, MinGain: 0.18, MinVolMult: 1.8},
			{Days: 6, MinGain: 0.15, MinVolMult: 2.0},
			{Days: 5, MinGain: 0.15, MinVolMult: 2.0},
			{Days: 4, MinGain: 0.12, MinVolMult: 1.8},
			{Days: 3, MinGain: 0.08, MinVolMult: 1.8},
			{Days: 2, MinGain: 0.05, MinVolMult: 1.8},
			{Days: 1, MinGain: 0.04, MinVolMult: 1.8},
		},
		VolumeMAWindow: 5,
		LargeDown:      DownCandle{MoveRatio: 0.4, VolRatio: 1.1},

		LastVolCeiling: 0.40,
		PrevVolCeiling: 0.55,

		TopVolumeDays:     3,
		VolRatioThreshold: 1.2,

		ConsolidationDays: 5,
		ConsolidationBox:  0.30,

		DownShrinkRatio: 0.60,
		BodyStdCeiling:  0.4,
	}
}

// Validate checks the configuration for values no series could satisfy
func (c B1Config) Validate() error {
	switch {
	case c.MinBars < 2:
		return fmt.Errorf("b1: min bars must be at least 2, got %d", c.MinBars)
	case c.DoubleWindow <= 0:
		return fmt.Errorf("b1: double window must be positive")
	case c.SearchWindow <= c.SkipRecent:
		return fmt.Errorf("b1: search window %d must exceed skipped bars %d", c.SearchWindow, c.SkipRecent)
	case len(c.IgnitionRules) == 0:
		return fmt.Errorf("b1: no ignition rules")
	case c.VolumeMAWindow <= 0 || c.ConsolidationDays <= 0 || c.TopVolumeDays <= 0:
		return fmt.Errorf("b1: windows must be positive")
	}
	for _, r := range c.IgnitionRules {
		if r.Days <= 0 {
			return fmt.Errorf("b1: ignition rule with %d days", r.Days)
		}
	}
	return nil
}

// B1Strategy finds a quiet base, a volume-backed ignition run and an
// orderly low-volume pullback that is now oversold on the KDJ J line.
type B1Strategy struct {
	config B1Config
}

// NewB1Strategy creates a new B1 strategy
func NewB1Strategy(cfg B1Config) *B1Strategy {
	return &B1Strategy{config: cfg}
}

func (s *B1Strategy) Name() string { return "b1" }

func (s *B1Strategy) Description() string {
	return "Breakout ignition - oversold pullback after a volume-backed ignition run"
}

func (s *B1Strategy) MinBars() int { return s.config.MinBars }

// Analyze implements hunt.Analyzer
func (s *B1Strategy) Analyze(series model.Series) (*hunt.Match, error) {
	return analyze(s, series)
}

// ignition is the run found by the backward search
type ignition struct {
	run
	gain    float64
	volMult float64
}

// Diagnose runs the stage cascade and names the first stage that failed
func (s *B1Strategy) Diagnose(series model.Series) (*hunt.Match, string, error) {
	cfg := s.config
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	n := series.Len()
	if n < cfg.MinBars || n < cfg.SearchWindow+1 || n < cfg.DoubleWindow {
		return reject(hunt.GateInsufficientBars)
	}

	f := indicator.NewFrame(series)
	if err := indicator.AttachKDJ(f, cfg.KDJPeriod, cfg.KDJK, cfg.KDJD); err != nil {
		return nil, "", err
	}
	if err := indicator.AttachDualTrend(f, cfg.YellowWindows...); err != nil {
		return nil, "", err
	}
	indicator.AttachVolumeMA(f, cfg.VolumeMAWindow)

	open, high, low := f.MustCol(indicator.ColOpen), f.MustCol(indicator.ColHigh), f.MustCol(indicator.ColLow)
	close, vol := f.MustCol(indicator.ColClose), f.MustCol(indicator.ColVolume)
	last := n - 1
	lastClose := close[last]

	// 1. Momentum exhaustion
	j, prevJ := f.At(indicator.ColJ, -1), f.At(indicator.ColJ, -2)
	turning := j > prevJ && j <= cfg.JTurnCeiling && math.Abs(j-prevJ) < cfg.JFlatTolerance
	if j > cfg.JThreshold && !turning {
		return reject(GateMomentum)
	}

	// 2. Single-day volatility
	if close[last-1] <= 0 {
		return reject(GateVolatility)
	}
	change := lastClose/close[last-1] - 1
	if change > cfg.MaxUpChange || change < -cfg.MaxDownChange {
		return reject(GateVolatility)
	}

	// 3. Trend-line support
	white, yellow := f.At(indicator.ColWhite, -1), f.At(indicator.ColYellow, -1)
	if lastClose < yellow*cfg.YellowSupportRatio || white < yellow*cfg.YellowSupportRatio {
		return reject(GateTrendSupport)
	}

	// 4. No recent double
	window := close[n-cfg.DoubleWindow:]
	lo, hi := minOf(window), maxOf(window)
	if lo <= 0 || hi/lo >= cfg.DoubleRatio {
		return reject(GateDoubled)
	}

	// 5. Ignition search
	ign, ok := s.findIgnition(f)
	if !ok {
		return reject(GateNoIgnition)
	}
	support := low[ign.start]
	if lastClose < support {
		return reject(GateSupport)
	}

	// 6. Post-ignition volume decay
	if ign.peakUpVol <= 0 ||
		vol[last] > cfg.LastVolCeiling*ign.peakUpVol ||
		vol[last-1] > cfg.PrevVolCeiling*ign.peakUpVol {
		return reject(GateVolumeDecay)
	}

	// 7. No late distribution
	if _, found := cfg.LargeDown.first(close, vol, ign.start, last, ign.run); found {
		return reject(GateLateDistribution)
	}

	// 8. Top volume shape, reclassifying shallow red candles that still
	// closed higher below the post-ignition peak
	peakHigh := maxOf(high[ign.start:])
	var ups, downs []float64
	for i := ign.start; i <= last; i++ {
		switch {
		case close[i] > open[i]:
			ups = append(ups, vol[i])
		case close[i] < open[i]:
			if close[i] > close[i-1] && high[i] < peakHigh {
				ups = append(ups, vol[i])
			} else {
				downs = append(downs, vol[i])
			}
		}
	}
	top3 := volumeRatio(topSum(ups, cfg.TopVolumeDays), topSum(downs, cfg.TopVolumeDays))
	if top3 <= cfg.VolRatioThreshold {
		return reject(GateTop3Volume)
	}

	// 9. Pre-ignition consolidation
	base := close[max(0, ign.start-cfg.ConsolidationDays):ign.start]
	boxLow := minOf(base)
	if len(base) == 0 || boxLow <= 0 {
		return reject(GateConsolidation)
	}
	box := (maxOf(base) - boxLow) / boxLow
	if box > cfg.ConsolidationBox {
		return reject(GateConsolidation)
	}

	// 10 and 11. Total up/down volume, or every down day shrinking
	upVol, downVol := upDownVolume(close, vol, ign.start)
	totalRatio := volumeRatio(upVol, downVol)
	shrinking := true
	for i := ign.start; i <= last; i++ {
		if close[i] < close[i-1] && vol[i] >= cfg.DownShrinkRatio*ign.peakUpVol {
			shrinking = false
			break
		}
	}
	if totalRatio <= cfg.VolRatioThreshold && !shrinking {
		return reject(GateVolumeShape)
	}

	// 12. Range position, measured over the bars after the run
	postHigh := maxOf(high[ign.end+1:])
	postLow := minOf(low[ign.end+1:])
	if lastClose > (postHigh+postLow)/2 {
		return reject(GateRangePosition)
	}
	position := 0.0
	if postHigh > postLow {
		position = (lastClose - postLow) / (postHigh - postLow)
	}

	// 13. Candle-shape stability
	ratios := make([]float64, 0, last-ign.end)
	for i := ign.end + 1; i <= last; i++ {
		ratios = append(ratios, bodyRatio(open[i], high[i], low[i], close[i]))
	}
	bodyStd := stddev(ratios)
	if bodyStd >= cfg.BodyStdCeiling {
		return reject(GateCandleStability)
	}

	m := hunt.NewMatch().
		SetFloat("kdj_j", j).
		SetFloat("change_pct", round(change*100, 2)).
		SetDate("fire_date", series.Bars[ign.start].Date).
		SetInt("fire_days", ign.days()).
		SetFloat("fire_pct", round(ign.gain*100, 2)).
		SetFloat("support_price", indicator.Round2(support)).
		SetFloat("max_volume_dur_fire", ign.maxVol).
		SetFloat("mean_volume_post_fire", round(mean(vol[ign.end+1:]), 0)).
		SetFloat("box_range_pct", round(box*100, 2)).
		SetFloat("top3_vol_ratio", round(top3, 2)).
		SetFloat("up_down_vol_ratio", round(totalRatio, 2)).
		SetBool("down_vol_shrinking", shrinking).
		SetFloat("range_position", round(position, 2)).
		SetFloat("body_ratio_std", round(bodyStd, 3)).
		SetBool("is_above_white", lastClose >= white).
		SetBool("is_between_white_yellow", lastClose >= yellow && lastClose < white)
	return m, "", nil
}

// findIgnition scans end-days from the most recent backwards and, at each,
// tries the rules in order. The first qualifying run wins, so a recent short
// run masks an older longer one.
func (s *B1Strategy) findIgnition(f *indicator.Frame) (ignition, bool) {
	cfg := s.config
	close, vol := f.MustCol(indicator.ColClose), f.MustCol(indicator.ColVolume)
	volMA := f.MustCol(indicator.VolumeMAColumn(cfg.VolumeMAWindow))
	n := f.Len()

	for end := n - 1 - cfg.SkipRecent; end >= n-cfg.SearchWindow && end >= 1; end-- {
		if close[end] < close[end-1] {
			continue
		}
		for _, rule := range cfg.IgnitionRules {
			start := end - rule.Days + 1
			pre := start - 1
			if pre < 0 {
				continue
			}
			preClose := close[pre]
			if preClose <= 0 || close[start] < preClose {
				continue
			}
			gain := close[end]/preClose - 1
			if gain < rule.MinGain {
				continue
			}
			if volMA[pre] <= 0 {
				continue
			}
			volMult := mean(vol[start:end+1]) / volMA[pre]
			if volMult < rule.MinVolMult {
				continue
			}
			r := measureRun(close, vol, start, end)
			if _, bad := cfg.LargeDown.first(close, vol, start, end, r); bad {
				continue
			}
			return ignition{run: r, gain: gain, volMult: volMult}, true
		}
	}
	return ignition{}, false
}
