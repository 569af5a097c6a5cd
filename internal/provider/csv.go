package provider

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"hunter/internal/symbols"
	"hunter/pkg/model"
)

var requiredCSVColumns = []string{"code", "date", "open", "high", "low", "close", "volume"}

// ImportCSV loads daily bars from a CSV export into the store. The header
// names the columns; code, date, open, high, low, close and volume are
// required, amount, amplitude, change_pct, price_change and turnover_rate
// are optional. Dates may be 2006-01-02 or 20060102. Returns the number of
// bars written.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("reading csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredCSVColumns {
		if _, ok := idx[col]; !ok {
			return 0, fmt.Errorf("csv missing column %q", col)
		}
	}

	byCode := make(map[string][]model.Bar)
	var order []string
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return 0, fmt.Errorf("csv line %d: %w", line, err)
		}

		code, err := symbols.Normalize(rec[idx["code"]])
		if err != nil {
			return 0, fmt.Errorf("csv line %d: %w", line, err)
		}
		bar, err := parseCSVBar(rec, idx)
		if err != nil {
			return 0, fmt.Errorf("csv line %d (%s): %w", line, code, err)
		}
		if _, seen := byCode[code]; !seen {
			order = append(order, code)
		}
		byCode[code] = append(byCode[code], bar)
	}

	total := 0
	for _, code := range order {
		if err := s.UpsertBars(ctx, code, byCode[code]); err != nil {
			return total, err
		}
		total += len(byCode[code])
		s.log.Debug().Str("code", code).Int("bars", len(byCode[code])).Msg("imported bars")
	}
	return total, nil
}

func parseCSVBar(rec []string, idx map[string]int) (model.Bar, error) {
	var b model.Bar
	var err error

	raw := strings.TrimSpace(rec[idx["date"]])
	layout := model.DateLayout
	if len(raw) == 8 {
		layout = "20060102"
	}
	if b.Date, err = time.Parse(layout, raw); err != nil {
		return b, fmt.Errorf("date %q: %w", raw, err)
	}

	float := func(col string, required bool) (float64, error) {
		i, ok := idx[col]
		if !ok || i >= len(rec) || strings.TrimSpace(rec[i]) == "" {
			if required {
				return 0, fmt.Errorf("missing %s", col)
			}
			return 0, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", col, err)
		}
		return v, nil
	}

	fields := []struct {
		col      string
		dst      *float64
		required bool
	}{
		{"open", &b.Open, true},
		{"high", &b.High, true},
		{"low", &b.Low, true},
		{"close", &b.Close, true},
		{"amount", &b.Amount, false},
		{"amplitude", &b.Amplitude, false},
		{"change_pct", &b.ChangePct, false},
		{"price_change", &b.PriceChange, false},
		{"turnover_rate", &b.TurnoverRate, false},
	}
	for _, f := range fields {
		if *f.dst, err = float(f.col, f.required); err != nil {
			return b, err
		}
	}

	vol, err := float("volume", true)
	if err != nil {
		return b, err
	}
	b.Volume = int64(vol)
	return b, nil
}
