package hunt

import (
	"sort"
	"sync"
)

// Gates recorded by the machine itself. Analyzers add their own stage names.
const (
	GateMatched          = "matched"
	GateRejected         = "rejected"
	GateInsufficientBars = "insufficient_bars"
	GateMetadataFailed   = "metadata_failed"
)

// GateCount is one row of a diagnostics histogram
type GateCount struct {
	Gate  string
	Count int
}

// Diagnostics collects the gate each analyzed code stopped at. A nil
// *Diagnostics records nothing.
type Diagnostics struct {
	mu     sync.Mutex
	byCode map[string]string
	counts map[string]int
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{
		byCode: make(map[string]string),
		counts: make(map[string]int),
	}
}

// Record stores the gate for code, replacing an earlier record
func (d *Diagnostics) Record(code, gate string) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.byCode[code]; ok {
		d.counts[prev]--
		if d.counts[prev] == 0 {
			delete(d.counts, prev)
		}
	}
	d.byCode[code] = gate
	d.counts[gate]++
}

// Gate returns the gate recorded for code
func (d *Diagnostics) Gate(code string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.byCode[code]
	return g, ok
}

// Total returns the number of codes recorded
func (d *Diagnostics) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byCode)
}

// Histogram returns gate counts, most frequent first
func (d *Diagnostics) Histogram() []GateCount {
	d.mu.Lock()
	out := make([]GateCount, 0, len(d.counts))
	for g, n := range d.counts {
		out = append(out, GateCount{Gate: g, Count: n})
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Gate < out[j].Gate
	})
	return out
}

// Codes lists the codes that stopped at gate, sorted
func (d *Diagnostics) Codes(gate string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for code, g := range d.byCode {
		if g == gate {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}
