package symbols

import (
	"fmt"
	"strings"
)

// Exchange identifies an A-share exchange
type Exchange string

const (
	ExchangeSH Exchange = "SH" // Shanghai
	ExchangeSZ Exchange = "SZ" // Shenzhen
	ExchangeBJ Exchange = "BJ" // Beijing
)

// ExchangeOf infers the exchange from a 6-digit code
func ExchangeOf(digits string) (Exchange, error) {
	if len(digits) != 6 || !isDigits(digits) {
		return "", fmt.Errorf("invalid A-share code %q: want 6 digits", digits)
	}
	switch {
	case strings.HasPrefix(digits, "60"), strings.HasPrefix(digits, "68"):
		return ExchangeSH, nil
	case strings.HasPrefix(digits, "00"), strings.HasPrefix(digits, "30"):
		return ExchangeSZ, nil
	case strings.HasPrefix(digits, "8"), strings.HasPrefix(digits, "9"), strings.HasPrefix(digits, "4"):
		return ExchangeBJ, nil
	default:
		return "", fmt.Errorf("unsupported A-share code %q", digits)
	}
}

// Normalize converts any accepted spelling into the canonical "NNNNNN.EX" form.
//
// Accepted inputs: "600000", "321" (zero padded), "SH600000", "sh600000",
// "600000.SH", "600000.sh".
func Normalize(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return "", fmt.Errorf("empty code")
	}

	var hint Exchange
	switch {
	case strings.Contains(c, "."):
		parts := strings.SplitN(c, ".", 2)
		c, hint = parts[0], Exchange(parts[1])
	case len(c) > 2 && !isDigits(c[:2]):
		c, hint = c[2:], Exchange(c[:2])
	}

	if !isDigits(c) || len(c) > 6 {
		return "", fmt.Errorf("invalid A-share code %q", code)
	}
	c = strings.Repeat("0", 6-len(c)) + c

	ex, err := ExchangeOf(c)
	if err != nil {
		return "", err
	}
	if hint != "" && hint != ex {
		return "", fmt.Errorf("code %q: exchange %s does not match inferred %s", code, hint, ex)
	}
	return c + "." + string(ex), nil
}

// MustNormalize is Normalize for literals known to be valid
func MustNormalize(code string) string {
	c, err := Normalize(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Digits strips the exchange suffix from a canonical code
func Digits(code string) string {
	if i := strings.IndexByte(code, '.'); i >= 0 {
		return code[:i]
	}
	return code
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
