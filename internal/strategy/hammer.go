package strategy

import (
	"math"

	"hunter/internal/hunt"
	"hunter/internal/indicator"
	"hunter/pkg/model"
)

// Hammer reject gates
const (
	GateNoHammer     = "no_hammer"
	GateHighPosition = "high_position"
	GateNoDecline    = "no_decline"
	GateConfirmation = "confirmation"
	GateHammerLow    = "hammer_low"
	GateExtended     = "extended"
	GateRiskReward   = "risk_reward"
	GateScore        = "score"
)

// HammerConfig holds configuration for the hammer reversal strategy
type HammerConfig struct {
	MinBars  int
	Lookback int // hammer must be among the last Lookback bars

	// Candle shape
	LowerShadowBody float64 // lower shadow at least this many bodies
	UpperShadowBody float64 // upper shadow at most this many bodies
	UpperPartMax    float64 // body plus upper shadow over range
	LowerRatioMin   float64 // lower shadow over range

	// Position before the hammer
	PriorWindow      int
	MaxPricePosition float64 // hammer close in the lower part of the prior close range
	MinDecline       float64

	MinConfirmUpRatio float64 // share of bullish bars after the hammer
	SupportMargin     float64 // close must hold this multiple of the hammer low
	MaxGainSince      float64

	NearMA20      float64
	NearPriorLow  float64
	StopBuffer    float64 // stop at hammer low times this
	TargetHeight  float64 // target at close plus this many hammer heights
	MinRiskReward float64
	MinScore      int
}

// DefaultHammerConfig returns default configuration
func DefaultHammerConfig() HammerConfig {
	return HammerConfig{
		MinBars:  30,
		Lookback: 3,

		LowerShadowBody: 2,
		UpperShadowBody: 0.5,
		UpperPartMax:    0.4,
		LowerRatioMin:   0.6,

		PriorWindow:      10,
		MaxPricePosition: 0.5,
		MinDecline:       0.05,

		MinConfirmUpRatio: 0.5,
		SupportMargin:     1.01,
		MaxGainSince:      0.10,

		NearMA20:      0.03,
		NearPriorLow:  0.02,
		StopBuffer:    0.98,
		TargetHeight:  1.5,
		MinRiskReward: 2,
		MinScore:      4,
	}
}

// hammerShape describes a qualifying hammer candle
type hammerShape struct {
	strength   float64 // lower shadow ratio minus body and upper shadow ratios
	lowerRatio float64
	bullish    bool
}

func (c HammerConfig) shape(b model.Bar) (hammerShape, bool) {
	body := b.Body()
	rng := b.Range()
	if rng <= 0 || body <= 0 {
		return hammerShape{}, false
	}
	upper := b.High - math.Max(b.Open, b.Close)
	lower := math.Min(b.Open, b.Close) - b.Low

	if lower < body*c.LowerShadowBody || upper > body*c.UpperShadowBody {
		return hammerShape{}, false
	}
	if body+upper > rng*c.UpperPartMax {
		return hammerShape{}, false
	}
	lowerRatio := lower / rng
	if lowerRatio < c.LowerRatioMin {
		return hammerShape{}, false
	}
	return hammerShape{
		strength:   lowerRatio - body/rng - upper/rng,
		lowerRatio: lowerRatio,
		bullish:    b.IsUp(),
	}, true
}

// HammerStrategy implements the hammer reversal strategy
// Buy signal when:
// 1. A hammer printed in the last few bars after a decline
// 2. Later bars confirm and price holds above the hammer low
// 3. Risk/reward to a hammer-height target is attractive
type HammerStrategy struct {
	config HammerConfig
}

// NewHammerStrategy creates a new hammer strategy
func NewHammerStrategy(cfg HammerConfig) *HammerStrategy {
	return &HammerStrategy{config: cfg}
}

func (s *HammerStrategy) Name() string { return "hammer" }

func (s *HammerStrategy) Description() string {
	return "Hammer reversal - long lower shadow at a low after a decline"
}

func (s *HammerStrategy) MinBars() int { return s.config.MinBars }

func (s *HammerStrategy) Analyze(series model.Series) (*hunt.Match, error) {
	return analyze(s, series)
}

func (s *HammerStrategy) Diagnose(series model.Series) (*hunt.Match, string, error) {
	cfg := s.config
	n := series.Len()
	if n < cfg.MinBars || n < 2 {
		return reject(hunt.GateInsufficientBars)
	}

	f := indicator.NewFrame(series)
	indicator.AttachMA(f, 20)
	indicator.AttachMACD(f, 12, 26, 9)
	close, low, vol := f.MustCol(indicator.ColClose), f.MustCol(indicator.ColLow), f.MustCol(indicator.ColVolume)
	last := series.Last()

	// Find the most recent hammer
	h := -1
	var shape hammerShape
	for i := n - 1; i >= n-cfg.Lookback && i >= 0; i-- {
		if sh, ok := cfg.shape(series.Bars[i]); ok {
			h, shape = i, sh
			break
		}
	}
	if h < 0 {
		return reject(GateNoHammer)
	}
	hammer := series.Bars[h]

	m := hunt.NewMatch().
		SetDate("hammer_date", hammer.Date).
		SetFloat("hammer_price", indicator.Round2(hammer.Close)).
		SetFloat("hammer_low", indicator.Round2(hammer.Low)).
		SetFloat("hammer_strength", round(shape.strength, 3)).
		SetBool("is_bullish_hammer", shape.bullish).
		SetFloat("lower_shadow_pct", round(shape.lowerRatio*100, 1))

	// Low position after a decline
	from := max(0, h-cfg.PriorWindow)
	prior := close[from:h]
	if len(prior) > 0 {
		hi, lo := maxOf(prior), minOf(prior)
		position := 0.5
		if hi > lo {
			position = (hammer.Close - lo) / (hi - lo)
		}
		if position > cfg.MaxPricePosition {
			return reject(GateHighPosition)
		}
		decline := 0.0
		if hi > 0 {
			decline = (hi - hammer.Close) / hi
		}
		if decline < cfg.MinDecline {
			return reject(GateNoDecline)
		}
		m.SetFloat("price_position_in_range", round(position, 2)).
			SetFloat("decline_before_hammer_pct", round(decline*100, 2))
	}

	// Confirmation by the bars after the hammer
	if h < n-1 {
		post := series.Bars[h+1:]
		up := 0
		for _, b := range post {
			if b.IsUp() {
				up++
			}
		}
		ratio := float64(up) / float64(len(post))
		if ratio < cfg.MinConfirmUpRatio {
			return reject(GateConfirmation)
		}
		m.SetInt("confirm_up_days", up).SetFloat("confirm_up_ratio", round(ratio, 2))
	}

	// Support hold and no chase
	if last.Close < hammer.Low*cfg.SupportMargin {
		return reject(GateHammerLow)
	}
	gain := 0.0
	if hammer.Close > 0 {
		gain = last.Close/hammer.Close - 1
	}
	if gain > cfg.MaxGainSince {
		return reject(GateExtended)
	}
	m.SetFloat("current_price", indicator.Round2(last.Close)).
		SetFloat("above_hammer_low_pct", round((last.Close/hammer.Low-1)*100, 2)).
		SetFloat("gain_since_hammer_pct", round(gain*100, 2))

	if volMA := mean(vol[from:h]); volMA > 0 {
		m.SetFloat("hammer_volume_ratio", round(vol[h]/volMA, 2))
	}

	// Support context
	ma20 := f.At(indicator.MAColumn(20), h)
	nearMA20 := ma20 > 0 && math.Abs(hammer.Low-ma20)/ma20 < cfg.NearMA20
	nearPriorLow := false
	if lows := low[from:h]; len(lows) > 5 {
		lowest := minOf(lows)
		nearPriorLow = lowest > 0 && math.Abs(hammer.Low-lowest)/lowest < cfg.NearPriorLow
	}
	m.SetBool("near_ma20", nearMA20).SetBool("near_prev_low", nearPriorLow)

	// MACD low or about to cross
	dif, dea := f.At(indicator.ColDIF, -1), f.At(indicator.ColDEA, -1)
	macdFavorable := (dif < 0 && math.Abs(dif) < 0.5) || (dif < dea && dea-dif < 0.1)
	m.SetFloat("macd_dif", round(dif, 4)).
		SetFloat("macd_dea", round(dea, 4)).
		SetBool("macd_favorable", macdFavorable)

	// Risk/reward
	guide := newTradeGuide(last.Close, hammer.Low*cfg.StopBuffer, last.Close+hammer.Range()*cfg.TargetHeight, 0)
	if guide.RiskRewardRatio < cfg.MinRiskReward {
		return reject(GateRiskReward)
	}
	guide.annotate(m)

	score := 0
	switch {
	case shape.strength > 0.5:
		score += 2
	case shape.strength > 0.4:
		score++
	}
	if shape.bullish {
		score++
	}
	if nearMA20 || nearPriorLow {
		score += 2
	}
	if macdFavorable {
		score++
	}
	switch {
	case guide.RiskRewardRatio > 3:
		score += 2
	case guide.RiskRewardRatio > 2.5:
		score++
	}
	m.SetInt("total_score", score)
	if score < cfg.MinScore {
		return reject(GateScore)
	}
	return m, "", nil
}
