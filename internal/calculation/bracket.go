package calculation

import (
	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// BracketResult is the outcome of applying progressive brackets to a value
type BracketResult struct {
	Total         decimal.Decimal
	Bucket        int
	Contributions []decimal.Decimal
}

// ApplyBrackets applies marginal coefficients the same way income tax
// brackets are applied: each coefficient covers only the slice of the value
// inside its bracket. Bracket i spans (previous threshold, threshold] and the
// last bracket has no upper bound. A value on a threshold belongs to the
// lower bracket; values at or below zero fall in bucket 1 with no charge.
func ApplyBrackets(value decimal.Decimal, brackets []domain.Bracket) BracketResult {
	result := BracketResult{Total: decimal.Zero, Bucket: 1}
	if len(brackets) == 0 {
		return result
	}

	lower := decimal.Zero
	located := !value.IsPositive()
	for i, b := range brackets {
		last := i == len(brackets)-1

		upper := value
		if !last {
			upper = decimal.Min(value, b.Threshold)
		}
		portion := upper.Sub(lower)
		if portion.IsNegative() {
			portion = decimal.Zero
		}
		contribution := portion.Mul(b.Coefficient)
		result.Contributions = append(result.Contributions, contribution)
		result.Total = result.Total.Add(contribution)

		if !located && (last || value.LessThanOrEqual(b.Threshold)) {
			result.Bucket = i + 1
			located = true
		}
		if !last {
			lower = b.Threshold
		}
	}
	return result
}
