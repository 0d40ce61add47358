// Package extract pulls named decimal values out of unstructured message
// bodies using capture-group patterns with ordered fallback.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mailvoucher/mailvoucher/internal/common"
)

var nonNumeric = regexp.MustCompile(`[^\d.,]`)

// NormalizeDecimal converts a locale-ambiguous numeric string to an exact
// decimal. Comma and period are both accepted as the fractional separator;
// when both appear, the rightmost one is the fractional separator and the
// other is a thousands separator. Any other character is stripped before
// parsing. The caller is responsible for rounding.
func NormalizeDecimal(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, common.ErrInvalidNumber
	}

	normalized := nonNumeric.ReplaceAllString(raw, "")

	lastComma := strings.LastIndex(normalized, ",")
	lastPeriod := strings.LastIndex(normalized, ".")

	switch {
	case lastComma >= 0 && lastPeriod >= 0:
		// "1,234.50" and "1.234,50" both resolve by the rightmost
		// separator.
		if lastPeriod > lastComma {
			normalized = strings.ReplaceAll(normalized, ",", "")
		} else {
			normalized = strings.ReplaceAll(normalized, ".", "")
			normalized = strings.ReplaceAll(normalized, ",", ".")
		}
	case lastComma >= 0:
		if strings.Count(normalized, ",") > 1 {
			// Repeated commas can only be thousands separators.
			normalized = strings.ReplaceAll(normalized, ",", "")
		} else {
			normalized = strings.ReplaceAll(normalized, ",", ".")
		}
	case lastPeriod >= 0:
		if strings.Count(normalized, ".") > 1 {
			normalized = strings.ReplaceAll(normalized, ".", "")
		}
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", common.ErrInvalidNumber, raw)
	}
	return d, nil
}
