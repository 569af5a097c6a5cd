package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical trading-day layout used in storage and output
const DateLayout = "2006-01-02"

// Bar represents one trading day's OHLCV record for one instrument
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"` // shares

	// Optional fields, zero when the source does not supply them
	Amount       float64 `json:"amount,omitempty"`
	Amplitude    float64 `json:"amplitude,omitempty"`
	ChangePct    float64 `json:"change_pct,omitempty"`
	PriceChange  float64 `json:"price_change,omitempty"`
	TurnoverRate float64 `json:"turnover_rate,omitempty"`
}

// IsUp reports whether the candle closed above its open
func (b Bar) IsUp() bool { return b.Close > b.Open }

// Body returns the absolute candle body size
func (b Bar) Body() float64 {
	if b.Close > b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Range returns high minus low
func (b Bar) Range() float64 { return b.High - b.Low }

// Series is an ascending, duplicate-free sequence of bars for one instrument
type Series struct {
	Code string `json:"code"`
	Bars []Bar  `json:"bars"`
}

// Len returns the number of bars
func (s Series) Len() int { return len(s.Bars) }

// Empty reports whether the series has no bars
func (s Series) Empty() bool { return len(s.Bars) == 0 }

// Last returns the most recent bar. Callers must check Empty first.
func (s Series) Last() Bar { return s.Bars[len(s.Bars)-1] }

// Closes returns the close column
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Opens returns the open column
func (s Series) Opens() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Open
	}
	return out
}

// Highs returns the high column
func (s Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows returns the low column
func (s Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Volumes returns the volume column as float64
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = float64(b.Volume)
	}
	return out
}

// Tail returns a series holding at most the last n bars
func (s Series) Tail(n int) Series {
	if n >= len(s.Bars) {
		return s
	}
	if n < 0 {
		n = 0
	}
	return Series{Code: s.Code, Bars: s.Bars[len(s.Bars)-n:]}
}

// Until returns the bars dated on or before the given day
func (s Series) Until(day time.Time) Series {
	end := len(s.Bars)
	for end > 0 && s.Bars[end-1].Date.After(day) {
		end--
	}
	return Series{Code: s.Code, Bars: s.Bars[:end]}
}

// Validate checks ordering and OHLC consistency
func (s Series) Validate() error {
	for i, b := range s.Bars {
		if i > 0 && !b.Date.After(s.Bars[i-1].Date) {
			return fmt.Errorf("%s: bar %d (%s) not after previous bar", s.Code, i, b.Date.Format(DateLayout))
		}
		if b.Low > b.High || b.Open < b.Low || b.Open > b.High || b.Close < b.Low || b.Close > b.High {
			return fmt.Errorf("%s: bar %s violates low <= open,close <= high", s.Code, b.Date.Format(DateLayout))
		}
		if b.Volume < 0 {
			return fmt.Errorf("%s: bar %s has negative volume", s.Code, b.Date.Format(DateLayout))
		}
	}
	return nil
}

// StockInfo is instrument metadata used for display
type StockInfo struct {
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	FullName     string    `json:"full_name,omitempty"`
	IndustryCode string    `json:"industry_code,omitempty"` // e.g. BK0025
	Industry     string    `json:"industry,omitempty"`
	ListDate     time.Time `json:"list_date,omitempty"`
}

// Brief returns a one-line description: "name(code) industry"
func (i *StockInfo) Brief() string {
	if i == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(i.Name)
	sb.WriteString("(")
	sb.WriteString(i.Code)
	sb.WriteString(")")
	if i.Industry != "" {
		sb.WriteString(" ")
		sb.WriteString(i.Industry)
	}
	return sb.String()
}
