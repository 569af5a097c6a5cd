package strategy

import (
	"math"

	"hunter/internal/hunt"
	"hunter/internal/indicator"
	"hunter/pkg/model"
)

// MACD divergence reject gates
const (
	GateNoTroughs      = "no_troughs"
	GateTroughSpacing  = "trough_spacing"
	GateNoDivergence   = "no_divergence"
	GateWeakDivergence = "weak_divergence"
	GateTooFresh       = "too_fresh"
	GateNoRebound      = "no_rebound"
	GateMACDTurn       = "macd_turn"
	GateOverRebound    = "over_rebound"
)

// DivergenceConfig holds configuration for the MACD bullish divergence strategy
type DivergenceConfig struct {
	MinBars        int
	Lookback       int
	ExtremeWindow  int // a trough is strictly below this many bars on each side
	MinTroughGap   int
	MatchTolerance int // bars between a price trough and its DIF trough

	PriceNewLow        float64 // last trough close below prior trough times this
	MinMACDImprovement float64
	StrongImprovement  float64

	MinBarsSinceLow int
	MinRebound      float64
	MaxRebound      float64

	StopBuffer       float64 // stop at the last trough times this
	TargetGain       float64
	StrongTargetGain float64
	MinRiskReward    float64
	OversoldRSI      float64
}

// DefaultDivergenceConfig returns default configuration
func DefaultDivergenceConfig() DivergenceConfig {
	return DivergenceConfig{
		MinBars:        60,
		Lookback:       60,
		ExtremeWindow:  3,
		MinTroughGap:   5,
		MatchTolerance: 3,

		PriceNewLow:        0.99,
		MinMACDImprovement: 0.05,
		StrongImprovement:  0.15,

		MinBarsSinceLow: 2,
		MinRebound:      0.01,
		MaxRebound:      0.15,

		StopBuffer:       0.97,
		TargetGain:       0.05,
		StrongTargetGain: 0.08,
		MinRiskReward:    2,
		OversoldRSI:      40,
	}
}

// DivergenceStrategy finds a price lower low against a higher DIF low,
// followed by a rebound and a MACD turn
type DivergenceStrategy struct {
	config DivergenceConfig
}

// NewDivergenceStrategy creates a new MACD divergence strategy
func NewDivergenceStrategy(cfg DivergenceConfig) *DivergenceStrategy {
	return &DivergenceStrategy{config: cfg}
}

func (s *DivergenceStrategy) Name() string { return "macd-divergence" }

func (s *DivergenceStrategy) Description() string {
	return "MACD divergence - price lower low with a higher DIF low, then a rebound"
}

func (s *DivergenceStrategy) MinBars() int { return s.config.MinBars }

func (s *DivergenceStrategy) Analyze(series model.Series) (*hunt.Match, error) {
	return analyze(s, series)
}

// troughs returns the indexes strictly lower than every neighbour within w
func troughs(values []float64, w int) []int {
	var out []int
	for i := w; i < len(values)-w; i++ {
		lowest := true
		for j := i - w; j <= i+w; j++ {
			if j != i && values[j] <= values[i] {
				lowest = false
				break
			}
		}
		if lowest {
			out = append(out, i)
		}
	}
	return out
}

func (s *DivergenceStrategy) Diagnose(series model.Series) (*hunt.Match, string, error) {
	cfg := s.config
	n := series.Len()
	if n < cfg.MinBars || n < 2 {
		return reject(hunt.GateInsufficientBars)
	}

	f := indicator.NewFrame(series)
	indicator.AttachMACD(f, 12, 26, 9)
	indicator.AttachRSI(f, 14)

	lookback := min(cfg.Lookback, n)
	offset := n - lookback
	close := f.MustCol(indicator.ColClose)[offset:]
	dif := f.MustCol(indicator.ColDIF)[offset:]
	dea := f.MustCol(indicator.ColDEA)[offset:]
	bar := f.MustCol(indicator.ColBar)[offset:]

	priceTroughs := troughs(close, cfg.ExtremeWindow)
	difTroughs := troughs(dif, cfg.ExtremeWindow)
	if len(priceTroughs) < 2 || len(difTroughs) < 2 {
		return reject(GateNoTroughs)
	}
	lastLow, prevLow := priceTroughs[len(priceTroughs)-1], priceTroughs[len(priceTroughs)-2]
	if lastLow-prevLow < cfg.MinTroughGap {
		return reject(GateTroughSpacing)
	}

	// DIF trough nearest each price trough, falling back to the price trough itself
	nearest := func(at int) int {
		best := -1
		for _, t := range difTroughs {
			if t-at > cfg.MatchTolerance || at-t > cfg.MatchTolerance {
				continue
			}
			if best < 0 || dif[t] < dif[best] {
				best = t
			}
		}
		if best < 0 {
			return at
		}
		return best
	}
	prevDIF, lastDIF := dif[nearest(prevLow)], dif[nearest(lastLow)]
	prevPrice, lastPrice := close[prevLow], close[lastLow]

	if !(lastPrice < prevPrice*cfg.PriceNewLow && lastDIF > prevDIF) {
		return reject(GateNoDivergence)
	}
	improvement := 0.0
	if prevDIF != 0 {
		improvement = (lastDIF - prevDIF) / math.Abs(prevDIF)
	}
	if improvement < cfg.MinMACDImprovement {
		return reject(GateWeakDivergence)
	}
	strength := "medium"
	if improvement > cfg.StrongImprovement {
		strength = "strong"
	}

	m := hunt.NewMatch().
		SetFloat("prev_price_low", indicator.Round2(prevPrice)).
		SetFloat("last_price_low", indicator.Round2(lastPrice)).
		SetFloat("price_drop_pct", round((lastPrice/prevPrice-1)*100, 2)).
		SetFloat("prev_macd_dif", round(prevDIF, 4)).
		SetFloat("last_macd_dif", round(lastDIF, 4)).
		SetFloat("macd_improvement_pct", round(improvement*100, 2)).
		SetString("divergence_strength", strength)

	// Rebound off the last low
	end := lookback - 1
	if end-lastLow < cfg.MinBarsSinceLow {
		return reject(GateTooFresh)
	}
	current := close[end]
	if current <= lastPrice*(1+cfg.MinRebound) {
		return reject(GateNoRebound)
	}
	rebound := current/lastPrice - 1
	m.SetFloat("current_price", indicator.Round2(current)).
		SetFloat("rebound_from_low_pct", round(rebound*100, 2))

	// MACD crossing, closing in, or already bullish
	golden := dif[end-1] < dea[end-1] && dif[end] >= dea[end]
	approaching := dif[end] < dea[end] && dea[end]-dif[end] < dea[end-1]-dif[end-1]
	bullish := dif[end] > dea[end] && bar[end] > bar[end-1]
	var status string
	switch {
	case golden:
		status = "golden_cross"
	case approaching:
		status = "approaching"
	case bullish:
		status = "bullish"
	default:
		return reject(GateMACDTurn)
	}
	rsi := f.At(indicator.ColRSI, -1)
	m.SetString("macd_status", status).
		SetFloat("current_macd_dif", round(dif[end], 4)).
		SetFloat("current_macd_dea", round(dea[end], 4)).
		SetFloat("rsi", rsi).
		SetBool("is_oversold", rsi < cfg.OversoldRSI)

	targetGain := cfg.TargetGain
	if improvement > cfg.StrongImprovement {
		targetGain = cfg.StrongTargetGain
	}
	guide := newTradeGuide(current, lastPrice*cfg.StopBuffer, current*(1+targetGain), 0)
	if guide.RiskRewardRatio < cfg.MinRiskReward {
		return reject(GateRiskReward)
	}
	guide.annotate(m)

	if rebound > cfg.MaxRebound {
		return reject(GateOverRebound)
	}
	return m, "", nil
}
