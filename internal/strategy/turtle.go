package strategy

import (
	"math"

	"hunter/internal/hunt"
	"hunter/internal/indicator"
	"hunter/pkg/model"
)

// Turtle reject gates
const (
	GateNoBreakout       = "no_breakout"
	GateBearishCandle    = "bearish_candle"
	GateLowVolume        = "low_volume"
	GateRisk             = "risk"
	GateBreakoutStrength = "breakout_strength"
	GateBelowMA          = "below_ma"
	GateFalseBreakouts   = "false_breakouts"
	GateTrendStrength    = "trend_strength"
	GateChoppy           = "choppy"
	GateVolatilityBand   = "volatility_band"
)

// TurtleConfig holds configuration for the turtle breakout strategy
type TurtleConfig struct {
	MinBars int

	// System 1 enters on FastEntry highs and exits on FastExit lows; system 2
	// uses SlowEntry and SlowExit
	FastEntry, FastExit int
	SlowEntry, SlowExit int
	ATRWindow           int
	VolumeWindow        int

	MinVolumeRatio float64
	StopATR        float64 // stop at close minus this many ATRs, or the exit channel if higher
	MaxRisk        float64
	TargetATR      float64 // reward measured to close plus this many ATRs
	MinRiskReward  float64

	MinBreakout    float64
	MaxBreakout    float64
	MATrendWindow  int
	MATrendRatio   float64 // system 2 needs close above MA times this
	MaxFalseBreaks int
	FalseWindow    int

	MinTrendStrength float64
	TrendWindow      int
	MinTrendMove     float64
	MinVolatility    float64
	MaxVolatility    float64
	MinScore         int
}

// DefaultTurtleConfig returns default configuration
func DefaultTurtleConfig() TurtleConfig {
	return TurtleConfig{
		MinBars: 60,

		FastEntry: 20, FastExit: 10,
		SlowEntry: 55, SlowExit: 20,
		ATRWindow:    20,
		VolumeWindow: 20,

		MinVolumeRatio: 1.2,
		StopATR:        2,
		MaxRisk:        0.08,
		TargetATR:      3,
		MinRiskReward:  3,

		MinBreakout:    0.005,
		MaxBreakout:    0.05,
		MATrendWindow:  55,
		MATrendRatio:   0.95,
		MaxFalseBreaks: 2,
		FalseWindow:    10,

		MinTrendStrength: 0.3,
		TrendWindow:      20,
		MinTrendMove:     0.05,
		MinVolatility:    0.01,
		MaxVolatility:    0.08,
		MinScore:         6,
	}
}

// TurtleStrategy implements the turtle channel breakout
// Buy signal when:
// 1. Close breaks the prior 20 or 55 day high on a bullish candle
// 2. Volume expands and the ATR stop keeps risk small
// 3. The move is trending rather than choppy
type TurtleStrategy struct {
	config TurtleConfig
}

// NewTurtleStrategy creates a new turtle strategy
func NewTurtleStrategy(cfg TurtleConfig) *TurtleStrategy {
	return &TurtleStrategy{config: cfg}
}

func (s *TurtleStrategy) Name() string { return "turtle" }

func (s *TurtleStrategy) Description() string {
	return "Turtle breakout - Donchian channel breakout with ATR stops"
}

func (s *TurtleStrategy) MinBars() int { return s.config.MinBars }

func (s *TurtleStrategy) Analyze(series model.Series) (*hunt.Match, error) {
	return analyze(s, series)
}

func (s *TurtleStrategy) Diagnose(series model.Series) (*hunt.Match, string, error) {
	cfg := s.config
	n := series.Len()
	need := max(cfg.MinBars, cfg.SlowEntry+1, cfg.TrendWindow+1, cfg.FalseWindow+1)
	if n < need {
		return reject(hunt.GateInsufficientBars)
	}

	f := indicator.NewFrame(series)
	indicator.AttachATR(f, cfg.ATRWindow)
	indicator.AttachDonchian(f, cfg.FastEntry, cfg.FastExit, cfg.SlowEntry, cfg.SlowExit)
	indicator.AttachVolumeMA(f, cfg.VolumeWindow)
	indicator.AttachMA(f, cfg.TrendWindow, cfg.MATrendWindow)

	fastHigh, fastLow := indicator.DonchianColumns(cfg.FastEntry)
	slowHigh, _ := indicator.DonchianColumns(cfg.SlowEntry)
	_, fastExit := indicator.DonchianColumns(cfg.FastExit)
	_, slowExit := indicator.DonchianColumns(cfg.SlowExit)
	close := f.MustCol(indicator.ColClose)
	fastUpper := f.MustCol(fastHigh)

	last := series.Last()
	price := last.Close

	// Breakout of the previous bar's channels
	prevFast, prevSlow := f.At(fastHigh, -2), f.At(slowHigh, -2)
	system1 := price > prevFast
	system2 := price > prevSlow
	if !system1 && !system2 {
		return reject(GateNoBreakout)
	}
	system := "system1"
	switch {
	case system1 && system2:
		system = "both"
	case system2:
		system = "system2"
	}

	m := hunt.NewMatch().
		SetString("breakout_system", system).
		SetBool("system1_breakout", system1).
		SetBool("system2_breakout", system2).
		SetFloat("dc20_high", indicator.Round2(prevFast)).
		SetFloat("dc55_high", indicator.Round2(prevSlow)).
		SetFloat("current_price", indicator.Round2(price))

	// Breakout candle
	if !last.IsUp() {
		return reject(GateBearishCandle)
	}
	closeNearHigh := last.Range() > 0 && (last.High-last.Close)/last.Range() < 0.3
	m.SetBool("close_near_high", closeNearHigh)

	volMA := f.At(indicator.VolumeMAColumn(cfg.VolumeWindow), -1)
	volRatio := 0.0
	if volMA > 0 {
		volRatio = float64(last.Volume) / volMA
	}
	m.SetFloat("volume_ratio", round(volRatio, 2))
	if volRatio < cfg.MinVolumeRatio {
		return reject(GateLowVolume)
	}

	// Stops and risk
	atr := f.At(indicator.ATRColumn(cfg.ATRWindow), -1)
	exit := f.At(slowExit, -1)
	if system1 {
		exit = f.At(fastExit, -1)
	}
	stop := math.Max(price-cfg.StopATR*atr, exit)
	risk := (price - stop) / price
	m.SetFloat("atr20", indicator.Round2(atr)).
		SetFloat("atr_pct", round(atr/price*100, 2)).
		SetFloat("risk_pct", round(risk*100, 2))
	if risk > cfg.MaxRisk {
		return reject(GateRisk)
	}

	guide := newTradeGuide(price, stop, price+atr, price+cfg.TargetATR*atr)
	if guide.RiskRewardRatio < cfg.MinRiskReward {
		return reject(GateRiskReward)
	}
	guide.annotate(m)

	if system1 {
		upper, lower := f.At(fastHigh, -1), f.At(fastLow, -1)
		if mid := (upper + lower) / 2; mid > 0 {
			m.SetFloat("channel_width_pct", round((upper-lower)/mid*100, 2))
		}
	}

	// Breakout strength against the channel that fired
	channel := prevSlow
	if system1 {
		channel = prevFast
	}
	strength := 0.0
	if channel > 0 {
		strength = (price - channel) / channel
	}
	m.SetFloat("breakout_strength_pct", round(strength*100, 2))
	if strength < cfg.MinBreakout || strength > cfg.MaxBreakout {
		return reject(GateBreakoutStrength)
	}

	maTrend := f.At(indicator.MAColumn(cfg.MATrendWindow), -1)
	aboveMA := price > maTrend*cfg.MATrendRatio
	m.SetBool("above_ma55", aboveMA)
	if system2 && !aboveMA {
		return reject(GateBelowMA)
	}

	// Failed breakouts in the recent bars, each judged against its prior channel
	falseBreaks := 0
	if system1 {
		for i := n - cfg.FalseWindow; i < n-2; i++ {
			if close[i] > fastUpper[i-1] && close[i+1] < fastUpper[i-1] {
				falseBreaks++
			}
		}
	}
	m.SetInt("false_breakout_count", falseBreaks)
	if falseBreaks >= cfg.MaxFalseBreaks {
		return reject(GateFalseBreakouts)
	}

	// Directional share of recent returns
	var gains, losses float64
	for i := n - cfg.TrendWindow; i < n; i++ {
		if close[i-1] == 0 {
			continue
		}
		r := close[i]/close[i-1] - 1
		if r > 0 {
			gains += r
		} else {
			losses -= r
		}
	}
	trendStrength := 0.0
	if gains+losses > 0 {
		trendStrength = math.Abs(gains-losses) / (gains + losses)
		m.SetFloat("trend_strength", round(trendStrength, 2))
		if trendStrength < cfg.MinTrendStrength {
			return reject(GateTrendStrength)
		}
	}

	ma := f.MustCol(indicator.MAColumn(cfg.TrendWindow))
	trendMove := 0.0
	if base := ma[n-cfg.TrendWindow]; base > 0 {
		trendMove = (ma[n-1] - base) / base
	}
	m.SetFloat("trend_20d_pct", round(trendMove*100, 2))
	if math.Abs(trendMove) < cfg.MinTrendMove {
		return reject(GateChoppy)
	}

	volatility := atr / price
	if volatility < cfg.MinVolatility || volatility > cfg.MaxVolatility {
		return reject(GateVolatilityBand)
	}

	score := 0
	if system1 && system2 {
		score += 3
	}
	if closeNearHigh {
		score += 2
	}
	if volRatio > 1.5 {
		score += 2
	}
	if trendStrength > 0.5 {
		score += 2
	}
	if aboveMA {
		score += 2
	}
	if guide.RiskRewardRatio > 4 {
		score += 2
	}
	m.SetInt("turtle_score", score)
	if score < cfg.MinScore {
		return reject(GateScore)
	}
	return m, "", nil
}
