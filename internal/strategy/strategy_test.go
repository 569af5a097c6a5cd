package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hunter/internal/hunt"
	"hunter/pkg/model"
)

func TestRegistryListsBuiltins(t *testing.T) {
	assert.Equal(t, []string{
		"b1", "breakout-pullback", "golden-cross", "hammer", "macd-divergence",
		"platform-breakout", "sf", "turtle", "volume-surge", "wyckoff",
	}, List())

	for _, name := range List() {
		s, err := Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
		assert.NotEmpty(t, s.Description())
	}
}

func TestRegistryUnknownStrategy(t *testing.T) {
	_, err := Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b1")

	assert.Panics(t, func() { MustGet("nope") })
}

func TestAllInfo(t *testing.T) {
	infos := AllInfo()
	require.Len(t, infos, 10)
	assert.Equal(t, "b1", infos[0].Name)
	assert.Equal(t, 500, infos[0].MinBars)

	info, err := GetInfo("turtle")
	require.NoError(t, err)
	assert.Equal(t, 60, info.MinBars)

	info, err = GetInfo("sf")
	require.NoError(t, err)
	assert.Equal(t, 365, info.MinBars)
}

func TestTradeGuide(t *testing.T) {
	g := newTradeGuide(10, 9, 12, 0)
	assert.Equal(t, 12.0, g.Target2)
	assert.InDelta(t, 2.0, g.RiskRewardRatio, 1e-9)
	assert.InDelta(t, 10.0, g.StopLossPct, 1e-9)

	m := hunt.NewMatch()
	g.annotate(m)
	_, hasT1 := m.Get("target1")
	assert.False(t, hasT1)

	g = newTradeGuide(10, 9, 11, 13)
	assert.InDelta(t, 3.0, g.RiskRewardRatio, 1e-9)
	g.annotate(m)
	t1, _ := m.Float("target1")
	assert.Equal(t, 11.0, t1)

	assert.Zero(t, newTradeGuide(10, 10, 11, 0).RiskRewardRatio)
}

func TestCandleHelpers(t *testing.T) {
	assert.True(t, math.IsInf(volumeRatio(5, 0), 1))
	assert.Equal(t, 2.0, volumeRatio(4, 2))
	assert.Equal(t, 12.0, topSum([]float64{1, 5, 3, 4}, 3))
	assert.Equal(t, 3.0, topSum([]float64{1, 2}, 3))

	close := []float64{10, 11, 11, 10.5, 12}
	vol := []float64{1, 2, 3, 4, 5}
	up, down := upDownVolume(close, vol, 0)
	assert.Equal(t, 7.0, up)
	assert.Equal(t, 4.0, down)

	r := measureRun(close, vol, 1, 4)
	assert.Equal(t, 4, r.days())
	assert.Equal(t, 1.5, r.maxMove)
	assert.Equal(t, 5.0, r.peakUpVol)

	d := DownCandle{MoveRatio: 0.3, VolRatio: 0.5}
	i, ok := d.first(close, vol, 1, 4, r)
	require.True(t, ok)
	assert.Equal(t, 3, i)

	assert.Equal(t, 1.23, round(1.2345, 2))
	assert.True(t, math.IsInf(round(math.Inf(1), 2), 1))
	assert.Equal(t, 0.0, stddev([]float64{2, 2, 2}))
	assert.InDelta(t, 0.5, bodyRatio(10, 10.3, 9.9, 10.2), 1e-9)
	assert.Equal(t, 0.0, bodyRatio(10, 10, 10, 10))
}

func TestHammerShape(t *testing.T) {
	cfg := DefaultHammerConfig()

	sh, ok := cfg.shape(model.Bar{Open: 10, Close: 10.1, High: 10.12, Low: 9.5})
	require.True(t, ok)
	assert.True(t, sh.bullish)
	assert.InDelta(t, 0.5/0.62, sh.lowerRatio, 1e-9)
	assert.InDelta(t, (0.5-0.1-0.02)/0.62, sh.strength, 1e-9)

	_, ok = cfg.shape(model.Bar{Open: 10, Close: 10, High: 10.1, Low: 9.5})
	assert.False(t, ok, "doji has no body")

	_, ok = cfg.shape(model.Bar{Open: 10, Close: 10.3, High: 10.6, Low: 9.9})
	assert.False(t, ok, "upper shadow too long")
}

func TestTroughs(t *testing.T) {
	assert.Equal(t, []int{2, 5}, troughs([]float64{5, 4, 3, 4, 5, 2, 5}, 1))
	assert.Empty(t, troughs([]float64{1, 1, 1, 1, 1}, 1), "ties are not troughs")
	assert.Empty(t, troughs([]float64{3, 2, 1}, 3))
}

func breakoutPullback(lastVolume float64) model.Series {
	b := new(builder).flat(15, 10)
	for i := 1; i <= 10; i++ {
		c := 10 + 0.2*float64(i)
		b.add(c-0.1, c+0.1, c-0.1, c, 2e6)
	}
	for i, c := range []float64{11.9, 11.8, 11.7, 11.6, 11.5} {
		v := 1e6
		if i == 4 {
			v = lastVolume
		}
		b.add(c+0.05, c+0.1, c-0.1, c, v)
	}
	return b.series()
}

func TestBreakoutPullbackMatch(t *testing.T) {
	s := NewPullbackStrategy(DefaultPullbackConfig())
	m, gate, err := s.Diagnose(breakoutPullback(0.3e6))
	require.NoError(t, err)
	require.NotNil(t, m, "rejected at %s", gate)

	assert.Equal(t, []string{"price", "ma20", "recent_gain_pct", "pullback_from_high", "vol_ratio"}, m.Keys())
	price, _ := m.Float("price")
	assert.Equal(t, 11.5, price)
	gain, _ := m.Float("recent_gain_pct")
	assert.InDelta(t, 19.8, gain, 0.01)
	pullback, _ := m.Float("pullback_from_high")
	assert.InDelta(t, 4.17, pullback, 0.01)
	ratio, _ := m.Float("vol_ratio")
	assert.InDelta(t, 0.35, ratio, 0.01)
}

func TestBreakoutPullbackRejectsHeavyVolume(t *testing.T) {
	m, gate, err := NewPullbackStrategy(DefaultPullbackConfig()).Diagnose(breakoutPullback(2e6))
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, GateHeavyVolume, gate)
}

func TestFlatSeriesRejectedByEveryAnalyzer(t *testing.T) {
	flat := new(builder).flat(120, 10).series()
	cases := []struct {
		strategy Strategy
		gate     string
	}{
		{NewHammerStrategy(DefaultHammerConfig()), GateNoHammer},
		{NewDivergenceStrategy(DefaultDivergenceConfig()), GateNoTroughs},
		{NewTurtleStrategy(DefaultTurtleConfig()), GateNoBreakout},
		{NewWyckoffStrategy(DefaultWyckoffConfig()), GateRangeTooNarrow},
		{NewPullbackStrategy(DefaultPullbackConfig()), GateBelowMA20},
		{NewB1Strategy(DefaultB1Config()), hunt.GateInsufficientBars},
		{NewGoldenCrossStrategy(DefaultGoldenCrossConfig()), GateNoMACross},
		{NewVolumeSurgeStrategy(DefaultVolumeSurgeConfig()), GateFewSurgeDays},
		{NewPlatformStrategy(DefaultPlatformConfig()), GateNoBreakout},
		{NewSFStrategy(DefaultSFConfig()), hunt.GateInsufficientBars},
	}
	for _, tc := range cases {
		t.Run(tc.strategy.Name(), func(t *testing.T) {
			m, gate, err := tc.strategy.Diagnose(flat)
			require.NoError(t, err)
			assert.Nil(t, m)
			assert.Equal(t, tc.gate, gate)

			m, err = tc.strategy.Analyze(flat)
			require.NoError(t, err)
			assert.Nil(t, m)
		})
	}
}

func TestShortSeriesIsInsufficient(t *testing.T) {
	short := new(builder).flat(10, 10).series()
	for _, name := range List() {
		_, gate, err := MustGet(name).Diagnose(short)
		require.NoError(t, err, name)
		assert.Equal(t, hunt.GateInsufficientBars, gate, name)
	}
}

func TestHammerMatch(t *testing.T) {
	b := new(builder)
	for i := 0; i < 30; i++ {
		b.add(12, 12.02, 11.98, 12, 1e6)
	}
	for k := 1; k <= 10; k++ {
		prev := b.bars[len(b.bars)-1].Close
		c := 12 - 0.15*float64(k)
		b.add(prev, prev+0.01, c-0.01, c, 1e6)
	}
	b.add(10.20, 10.33, 9.00, 10.30, 2e6)
	b.add(9.12, 9.20, 9.10, 9.18, 1e6)
	series := b.series()

	m, gate, err := NewHammerStrategy(DefaultHammerConfig()).Diagnose(series)
	require.NoError(t, err)
	require.NotNil(t, m, "rejected at %s", gate)

	date, _ := m.Date("hammer_date")
	assert.Equal(t, series.Bars[40].Date, date)
	low, _ := m.Float("hammer_low")
	assert.InDelta(t, 9.0, low, 1e-9)
	bullish, _ := m.Bool("is_bullish_hammer")
	assert.True(t, bullish)
	rr, _ := m.Float("risk_reward_ratio")
	assert.InDelta(t, 5.54, rr, 0.01)
	score, _ := m.Int("total_score")
	assert.GreaterOrEqual(t, score, int64(5))
}

func TestDivergenceMatch(t *testing.T) {
	var closes []float64
	for i := 0; i < 60; i++ {
		closes = append(closes, 12)
	}
	for k := 1; k <= 10; k++ {
		closes = append(closes, 12-0.15*float64(k)) // sharp drop to 10.50
	}
	for k := 1; k <= 10; k++ {
		closes = append(closes, 10.5+0.1*float64(k))
	}
	for k := 1; k <= 25; k++ {
		closes = append(closes, 11.5-0.06*float64(k)) // slow grind to 10.00
	}
	closes = append(closes, 10.02, 10.04, 10.06, 10.08, 10.102)

	b := new(builder)
	for _, c := range closes {
		b.add(c, c+0.01, c-0.01, c, 1e6)
	}

	m, gate, err := NewDivergenceStrategy(DefaultDivergenceConfig()).Diagnose(b.series())
	require.NoError(t, err)
	require.NotNil(t, m, "rejected at %s", gate)

	prev, _ := m.Float("prev_price_low")
	last, _ := m.Float("last_price_low")
	assert.InDelta(t, 10.5, prev, 1e-9)
	assert.InDelta(t, 10.0, last, 1e-9)

	strength, _ := m.Str("divergence_strength")
	assert.Equal(t, "strong", strength)
	status, _ := m.Str("macd_status")
	assert.Equal(t, "golden_cross", status)
	improvement, _ := m.Float("macd_improvement_pct")
	assert.InDelta(t, 18.9, improvement, 0.1)
}

func TestTurtleMatch(t *testing.T) {
	b := new(builder)
	for i := 0; i < 50; i++ {
		b.add(10, 10.05, 9.95, 10, 1e6)
	}
	// rising bars with long lower shadows keep the channel top tight
	for k := 1; k <= 20; k++ {
		prev := b.bars[len(b.bars)-1].Close
		c := 10 + 0.1*float64(k)
		b.add(prev, c+0.02, prev-0.8, c, 1e6)
	}
	for i := 0; i < 9; i++ {
		b.add(12, 12.05, 11.95, 12, 1e6)
	}
	b.add(12, 12.22, 11.98, 12.2, 2e6)

	m, gate, err := NewTurtleStrategy(DefaultTurtleConfig()).Diagnose(b.series())
	require.NoError(t, err)
	require.NotNil(t, m, "rejected at %s", gate)

	system, _ := m.Str("breakout_system")
	assert.Equal(t, "both", system)
	dc, _ := m.Float("dc20_high")
	assert.InDelta(t, 12.05, dc, 1e-9)
	stop, _ := m.Float("stop_loss")
	assert.InDelta(t, 11.95, stop, 1e-9)
	rr, _ := m.Float("risk_reward_ratio")
	assert.InDelta(t, 6.2, rr, 0.01)
	falseBreaks, _ := m.Int("false_breakout_count")
	assert.Zero(t, falseBreaks)
	score, _ := m.Int("turtle_score")
	assert.EqualValues(t, 13, score)
}

func TestWyckoffSpring(t *testing.T) {
	b := new(builder)
	for i := 0; i < 60; i++ {
		if i == 57 {
			b.add(10.0, 10.3, 9.7, 10.2, 0.5e6)
			continue
		}
		b.add(10.5, 11, 10, 10.5, 1e6)
	}
	series := b.series()

	m, gate, err := NewWyckoffStrategy(DefaultWyckoffConfig()).Diagnose(series)
	require.NoError(t, err)
	require.NotNil(t, m, "rejected at %s", gate)

	kind, _ := m.Str("type")
	assert.Equal(t, "spring", kind)
	date, _ := m.Date("signal_date")
	assert.Equal(t, series.Bars[57].Date, date)
	support, _ := m.Float("support")
	resistance, _ := m.Float("resistance")
	assert.InDelta(t, 10.0, support, 1e-9)
	assert.InDelta(t, 11.0, resistance, 1e-9)
	width, _ := m.Float("range_width_pct")
	assert.InDelta(t, 10.0, width, 1e-9)
}
