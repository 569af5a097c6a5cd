package symbols

import (
	"fmt"
	"strings"
)

// Index represents an index whose constituents form a scan universe
type Index string

const (
	IndexHS300   Index = "000300" // CSI 300
	IndexCSI500  Index = "000905"
	IndexCSI1000 Index = "000852"
	IndexCSI2000 Index = "932000"
	IndexA500    Index = "000510"
)

var indexAliases = map[string]Index{
	"hs300":   IndexHS300,
	"csi300":  IndexHS300,
	"csi500":  IndexCSI500,
	"zz500":   IndexCSI500,
	"csi1000": IndexCSI1000,
	"csi2000": IndexCSI2000,
	"a500":    IndexA500,
}

// ParseIndex resolves an alias ("hs300") or raw index code
func ParseIndex(name string) (Index, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if idx, ok := indexAliases[n]; ok {
		return idx, nil
	}
	for _, idx := range indexAliases {
		if string(idx) == n {
			return idx, nil
		}
	}
	return "", fmt.Errorf("unknown index: %s", name)
}

// ParseIndexes parses a "+" separated list such as "hs300+csi500"
func ParseIndexes(s string) ([]Index, error) {
	var out []Index
	for _, part := range strings.Split(s, "+") {
		idx, err := ParseIndex(part)
		if err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, nil
}

// SampleCodes are known B1 setups at specific dates, used for regression hunts
var SampleCodes = []struct {
	Code string
	AsOf string
}{
	{"000725", "2025-12-23"},
	{"600138", "2026-01-06"},
	{"600750", "2025-12-30"},
	{"688799", "2025-05-09"},
	{"600601", "2025-06-23"},
	{"002627", "2026-01-06"},
	{"688321", "2025-06-19"},
	{"600366", "2025-06-26"},
}
