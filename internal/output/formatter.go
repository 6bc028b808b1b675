// Package output renders calculation results, lineage records and
// integrity checks for people and for other programs.
package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// Formatter renders one calculation result
type Formatter interface {
	Name() string
	Format(res *domain.CalculationResult) ([]byte, error)
}

// NewFormatter returns the formatter registered under name
func NewFormatter(name string, verbose bool) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", "console":
		return ConsoleFormatter{Verbose: verbose}, nil
	case "json":
		return JSONFormatter{Pretty: true}, nil
	case "csv":
		return CSVFormatter{}, nil
	case "html":
		return HTMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", name)
	}
}

// FormatAmount renders an amount in crore with thousands separators
func FormatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac
}

// sortedKeys returns the intermediate names in display order
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
