// Package strategy holds the pattern analyzers run by the hunt machine.
package strategy

import (
	"hunter/internal/hunt"
	"hunter/internal/indicator"
	"hunter/pkg/model"
)

// Strategy is a pattern analyzer that can also report which stage rejected
// a series
type Strategy interface {
	hunt.Analyzer
	hunt.Diagnoser

	// Description returns a brief description
	Description() string

	// MinBars is the shortest series the strategy can judge
	MinBars() int
}

// TradeGuide holds the entry, stop and targets of a reversal or breakout setup
type TradeGuide struct {
	EntryPrice      float64
	StopLoss        float64
	StopLossPct     float64
	Target1         float64
	Target1Pct      float64
	Target2         float64
	Target2Pct      float64
	RiskRewardRatio float64 // reward to the last target over risk to the stop
}

// newTradeGuide derives percentages and the risk/reward ratio. With a
// single target, Target2 mirrors Target1.
func newTradeGuide(entry, stop, target1, target2 float64) TradeGuide {
	if target2 == 0 {
		target2 = target1
	}
	g := TradeGuide{
		EntryPrice: entry,
		StopLoss:   stop,
		Target1:    target1,
		Target2:    target2,
	}
	if entry > 0 {
		g.StopLossPct = (entry - stop) / entry * 100
		g.Target1Pct = (target1 - entry) / entry * 100
		g.Target2Pct = (target2 - entry) / entry * 100
	}
	if risk := entry - stop; risk > 0 {
		g.RiskRewardRatio = (target2 - entry) / risk
	}
	return g
}

// annotate writes the guide into a match record
func (g TradeGuide) annotate(m *hunt.Match) {
	m.SetFloat("entry_price", indicator.Round2(g.EntryPrice)).
		SetFloat("stop_loss", indicator.Round2(g.StopLoss)).
		SetFloat("stop_loss_pct", indicator.Round2(g.StopLossPct)).
		SetFloat("target_price", indicator.Round2(g.Target2)).
		SetFloat("risk_reward_ratio", indicator.Round2(g.RiskRewardRatio))
	if g.Target1 != g.Target2 {
		m.SetFloat("target1", indicator.Round2(g.Target1))
	}
}

// reject is the Diagnose result of a failed stage
func reject(gate string) (*hunt.Match, string, error) {
	return nil, gate, nil
}

// analyze adapts Diagnose to the Analyzer contract
func analyze(s Strategy, series model.Series) (*hunt.Match, error) {
	m, _, err := s.Diagnose(series)
	return m, err
}
