// Package formula evaluates arithmetic and percentage formulas over
// extracted variables, producing exact decimals for voucher entries.
package formula

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mailvoucher/mailvoucher/internal/common"
	"github.com/mailvoucher/mailvoucher/internal/model"
)

var (
	// validExpr is the character whitelist applied after variable
	// substitution and before parsing. Nothing outside digits, whitespace,
	// arithmetic operators, parentheses, and decimal separators survives.
	validExpr = regexp.MustCompile(`^[\d\s+\-*/().,]+$`)

	// percentToken rewrites "N%" to "(N/100)".
	percentToken = regexp.MustCompile(`(\d+)%`)
)

// Evaluate resolves an amount to an exact decimal rounded half-up to two
// fractional digits. Literal numbers pass through; a formula string equal
// to a variable name returns that variable's value; anything else is
// evaluated as arithmetic after substituting variables (longest names
// first, whole-word matches only) and rewriting percentage tokens.
func Evaluate(amount model.Amount, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	if !amount.Set {
		return decimal.Zero, fmt.Errorf("%w: no expression", common.ErrEvaluationFailed)
	}

	if amount.IsNumber {
		return amount.Number.Round(2), nil
	}

	expr := amount.Formula

	if v, ok := vars[expr]; ok {
		return v.Round(2), nil
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	// Longest first so one variable name being a prefix of another never
	// truncates the longer match.
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	for _, name := range names {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(name) + `\b`)
		if err != nil {
			continue
		}
		expr = re.ReplaceAllString(expr, vars[name].String())
	}

	expr = percentToken.ReplaceAllString(expr, "($1/100)")

	if !validExpr.MatchString(expr) {
		return decimal.Zero, fmt.Errorf("%w: %q", common.ErrInvalidCharacters, expr)
	}

	expr = strings.ReplaceAll(expr, ",", ".")

	result, err := evalExpression(expr)
	if err != nil {
		return decimal.Zero, err
	}

	return result.Round(2), nil
}

// CalculateEntries resolves entry templates into concrete voucher lines.
// A failed or absent debit/credit expression resolves to zero; failures
// are contained to the single entry field and never abort the pass.
func CalculateEntries(templates []model.EntryTemplate, vars map[string]decimal.Decimal) []model.Entry {
	entries := make([]model.Entry, 0, len(templates))

	for _, tmpl := range templates {
		entry := model.Entry{Account: tmpl.Account}

		if tmpl.Debit.Set {
			v, err := Evaluate(tmpl.Debit, vars)
			if err != nil {
				slog.Warn("debit evaluation failed",
					"account", tmpl.Account, "expression", tmpl.Debit.String(), "error", err)
			} else {
				entry.Debit = v
			}
		}

		if tmpl.Credit.Set {
			v, err := Evaluate(tmpl.Credit, vars)
			if err != nil {
				slog.Warn("credit evaluation failed",
					"account", tmpl.Account, "expression", tmpl.Credit.String(), "error", err)
			} else {
				entry.Credit = v
			}
		}

		entries = append(entries, entry)
	}

	return entries
}

// Totals sums the resolved debits and credits.
func Totals(entries []model.Entry) (totalDebit, totalCredit decimal.Decimal) {
	for _, e := range entries {
		totalDebit = totalDebit.Add(e.Debit)
		totalCredit = totalCredit.Add(e.Credit)
	}
	return totalDebit, totalCredit
}

// IsBalanced reports whether total debit equals total credit exactly.
// Balance is only reported, never auto-corrected.
func IsBalanced(entries []model.Entry) bool {
	totalDebit, totalCredit := Totals(entries)
	return totalDebit.Equal(totalCredit)
}
