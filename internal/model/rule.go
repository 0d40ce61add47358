// Package model defines the core data structures for the mailvoucher application.
package model

import (
	"github.com/shopspring/decimal"
)

// Rule describes one recurring email-borne charge: how to recognize the
// message, which values to pull out of its body, and how to book them.
type Rule struct {
	DataExtraction map[string]ExtractionSpec `mapstructure:"data_extraction"`
	Name           string                    `mapstructure:"name"`
	Sender         string                    `mapstructure:"sender"`
	Subject        string                    `mapstructure:"subject"`
	BodyContains   []string                  `mapstructure:"body_contains"`
	Accounting     AccountingTemplate        `mapstructure:"accounting"`
}

// HasCriteria reports whether the rule constrains matching at all. A rule
// with no sender, subject, or body terms matches every message in the
// lookback window; that is permitted but worth warning about.
func (r Rule) HasCriteria() bool {
	return r.Sender != "" || r.Subject != "" || len(r.BodyContains) > 0
}

// ExtractionSpec describes how to pull one named decimal value out of a
// message body. Pattern runs against the plain-text body (and the
// tag-stripped HTML as a fallback); HTMLPattern, when set, is tried first
// against the raw HTML. Default, when set, is used if no pattern matches.
type ExtractionSpec struct {
	Default     *Amount `mapstructure:"default"`
	Pattern     string  `mapstructure:"pattern"`
	HTMLPattern string  `mapstructure:"html_pattern"`
}

// AccountingTemplate is the bookkeeping half of a rule: the voucher
// description, series code, and the entry templates to resolve.
type AccountingTemplate struct {
	Description string          `mapstructure:"description"`
	Series      string          `mapstructure:"series"`
	Entries     []EntryTemplate `mapstructure:"entries"`
}

// EntryTemplate is one line of the voucher before evaluation. Account is an
// opaque identifier, never numerically coerced. Debit and Credit are each
// either a literal number or a formula over extracted variables.
type EntryTemplate struct {
	Debit   Amount `mapstructure:"debit"`
	Credit  Amount `mapstructure:"credit"`
	Account string `mapstructure:"account"`
}

// Amount holds a value that configuration may supply either as a number or
// as a formula string referencing extracted variables.
type Amount struct {
	Formula  string
	Number   decimal.Decimal
	IsNumber bool
	Set      bool
}

// NumberAmount wraps a literal decimal.
func NumberAmount(d decimal.Decimal) Amount {
	return Amount{Number: d, IsNumber: true, Set: true}
}

// FormulaAmount wraps a formula (or bare variable name) string.
func FormulaAmount(expr string) Amount {
	return Amount{Formula: expr, Set: true}
}

// String renders the amount the way it appeared in configuration.
func (a Amount) String() string {
	if !a.Set {
		return ""
	}
	if a.IsNumber {
		return a.Number.String()
	}
	return a.Formula
}
