package model

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestSeriesValidate(t *testing.T) {
	good := Series{Code: "600000.SH", Bars: []Bar{
		{Date: day(0), Open: 10, High: 10.5, Low: 9.8, Close: 10.2, Volume: 100},
		{Date: day(1), Open: 10.2, High: 10.4, Low: 10, Close: 10.1, Volume: 120},
	}}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		bars []Bar
	}{
		{"duplicate date", []Bar{
			{Date: day(0), Open: 10, High: 11, Low: 9, Close: 10},
			{Date: day(0), Open: 10, High: 11, Low: 9, Close: 10},
		}},
		{"descending", []Bar{
			{Date: day(1), Open: 10, High: 11, Low: 9, Close: 10},
			{Date: day(0), Open: 10, High: 11, Low: 9, Close: 10},
		}},
		{"close above high", []Bar{
			{Date: day(0), Open: 10, High: 11, Low: 9, Close: 12},
		}},
		{"negative volume", []Bar{
			{Date: day(0), Open: 10, High: 11, Low: 9, Close: 10, Volume: -1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Series{Code: "X", Bars: tt.bars}
			if err := s.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSeriesTailAndUntil(t *testing.T) {
	s := Series{Code: "000001.SZ"}
	for i := 0; i < 10; i++ {
		s.Bars = append(s.Bars, Bar{Date: day(i), Close: float64(i)})
	}

	if got := s.Tail(3); got.Len() != 3 || got.Bars[0].Close != 7 {
		t.Errorf("Tail(3) = %+v", got.Bars)
	}
	if got := s.Tail(50); got.Len() != 10 {
		t.Errorf("Tail(50) len = %d, want 10", got.Len())
	}
	if got := s.Until(day(4)); got.Len() != 5 || got.Last().Close != 4 {
		t.Errorf("Until(day 4) len = %d", got.Len())
	}
	if got := s.Until(day(-1)); !got.Empty() {
		t.Errorf("Until before first bar should be empty, got %d", got.Len())
	}
}

func TestStockInfoBrief(t *testing.T) {
	info := &StockInfo{Code: "600138.SH", Name: "中青旅", Industry: "旅游酒店"}
	if got := info.Brief(); got != "中青旅(600138.SH) 旅游酒店" {
		t.Errorf("Brief() = %q", got)
	}
	var nilInfo *StockInfo
	if nilInfo.Brief() != "" {
		t.Error("nil info should give empty brief")
	}
}
