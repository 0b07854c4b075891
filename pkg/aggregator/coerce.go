package aggregator

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal converts an ERP money or quantity cell into a decimal.
// Currency symbols and thousands separators are ignored and "(x)" is read as
// -x. Empty cells are zero and ok; anything else that fails to parse is zero
// and not ok.
func ParseDecimal(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, true
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if strings.HasPrefix(s, "-") && negative {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// ParseBool reads the flag spellings found in ERP exports. Empty cells are
// false and ok.
func ParseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "t", "1", "yes", "y", "x":
		return true, true
	case "false", "f", "0", "no", "n", "":
		return false, true
	}
	return false, false
}
