// Package report renders hunt results for the terminal, for scripts and for
// notes.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"

	"hunter/internal/hunt"
)

// Output formats
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Formats lists the supported output formats
var Formats = []string{FormatTable, FormatJSON, FormatMarkdown}

// maxKeys caps the match columns shown in tables
const maxKeys = 6

// Summary is one finished hunt
type Summary struct {
	Strategy    string
	Pool        string
	AsOf        time.Time
	Scanned     int
	Elapsed     time.Duration
	Results     []*hunt.Result
	Diagnostics *hunt.Diagnostics // nil unless the hunt ran with diagnostics
}

// Write renders the summary in the given format
func Write(w io.Writer, format string, s Summary) error {
	switch strings.ToLower(format) {
	case FormatTable, "":
		return writeTable(w, s)
	case FormatJSON:
		return writeJSON(w, s)
	case FormatMarkdown, "md":
		return writeMarkdown(w, s)
	}
	return fmt.Errorf("unknown format %q (available: %s)", format, strings.Join(Formats, ", "))
}

// columns returns the match keys shown as table columns: the keys of the
// first result, in analyzer order
func columns(results []*hunt.Result) []string {
	if len(results) == 0 {
		return nil
	}
	keys := results[0].Match.Keys()
	if len(keys) > maxKeys {
		keys = keys[:maxKeys]
	}
	return keys
}

func row(r *hunt.Result, keys []string) []string {
	name := r.Name()
	if len([]rune(name)) > 12 {
		name = string([]rune(name)[:12]) + "..."
	}
	out := []string{r.Code, name}
	for _, k := range keys {
		v, ok := r.Match.Get(k)
		if !ok {
			out = append(out, "-")
			continue
		}
		out = append(out, v.String())
	}
	return out
}

func header(keys []string) []string {
	return append([]string{"Code", "Name"}, keys...)
}

func writeTable(w io.Writer, s Summary) error {
	if len(s.Results) == 0 {
		fmt.Fprintf(w, "No %s setups found.\n", s.Strategy)
	} else {
		fmt.Fprintf(w, "Found %d %s setups:\n\n", len(s.Results), s.Strategy)

		keys := columns(s.Results)
		table := tablewriter.NewTable(w, tablewriter.WithHeader(header(keys)))
		for _, r := range s.Results {
			table.Append(row(r, keys))
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("rendering results: %w", err)
		}
	}

	if s.Diagnostics != nil {
		fmt.Fprintln(w, "\n--- Reject Gates ---")
		if err := writeGates(w, s.Diagnostics, nil); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\nScanned %d stocks in %s\n", s.Scanned, s.Elapsed.Round(time.Millisecond))
	return nil
}

// writeGates renders the diagnostics histogram with each gate's share
func writeGates(w io.Writer, d *hunt.Diagnostics, opts []tablewriter.Option) error {
	total := d.Total()
	opts = append(opts, tablewriter.WithHeader([]string{"Gate", "Count", "Share"}))
	table := tablewriter.NewTable(w, opts...)
	for _, g := range d.Histogram() {
		share := 0.0
		if total > 0 {
			share = float64(g.Count) / float64(total) * 100
		}
		table.Append([]string{g.Gate, fmt.Sprintf("%d", g.Count), fmt.Sprintf("%.1f%%", share)})
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering gates: %w", err)
	}
	return nil
}

type jsonGate struct {
	Gate  string `json:"gate"`
	Count int    `json:"count"`
}

type jsonSummary struct {
	Strategy string         `json:"strategy"`
	Pool     string         `json:"pool,omitempty"`
	AsOf     string         `json:"as_of,omitempty"`
	Scanned  int            `json:"total_scanned"`
	Matched  int            `json:"matched"`
	Elapsed  string         `json:"scan_time"`
	Results  []*hunt.Result `json:"results"`
	Gates    []jsonGate     `json:"gates,omitempty"`
}

func writeJSON(w io.Writer, s Summary) error {
	out := jsonSummary{
		Strategy: s.Strategy,
		Pool:     s.Pool,
		Scanned:  s.Scanned,
		Matched:  len(s.Results),
		Elapsed:  s.Elapsed.String(),
		Results:  s.Results,
	}
	if out.Results == nil {
		out.Results = []*hunt.Result{}
	}
	if !s.AsOf.IsZero() {
		out.AsOf = s.AsOf.Format("2006-01-02")
	}
	if s.Diagnostics != nil {
		for _, g := range s.Diagnostics.Histogram() {
			out.Gates = append(out.Gates, jsonGate{Gate: g.Gate, Count: g.Count})
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func writeMarkdown(w io.Writer, s Summary) error {
	title := fmt.Sprintf("# Hunt: %s", s.Strategy)
	if !s.AsOf.IsZero() {
		title += " @ " + s.AsOf.Format("2006-01-02")
	}
	fmt.Fprintf(w, "%s\n\n", title)
	if s.Pool != "" {
		fmt.Fprintf(w, "- Pool: %s\n", s.Pool)
	}
	fmt.Fprintf(w, "- Scanned: %d\n- Matched: %d\n\n", s.Scanned, len(s.Results))

	md := tablewriter.WithRenderer(renderer.NewMarkdown())
	if len(s.Results) > 0 {
		keys := columns(s.Results)
		table := tablewriter.NewTable(w, md, tablewriter.WithHeader(header(keys)))
		for _, r := range s.Results {
			table.Append(row(r, keys))
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("rendering results: %w", err)
		}
	}

	if s.Diagnostics != nil {
		fmt.Fprintln(w, "\n## Reject gates")
		fmt.Fprintln(w)
		return writeGates(w, s.Diagnostics, []tablewriter.Option{md})
	}
	return nil
}
