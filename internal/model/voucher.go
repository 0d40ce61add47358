package model

import (
	"github.com/shopspring/decimal"
)

// Entry is one resolved voucher line. Debit and Credit are rounded to two
// fractional digits and default to zero when the template left them unset
// or evaluation failed.
type Entry struct {
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Account string
}

// VoucherResult is a fully computed voucher ready for submission. It is
// created fresh per processed message and never mutated afterwards.
type VoucherResult struct {
	Description string
	Series      string
	Date        string // YYYY-MM-DD
	Entries     []Entry
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Balanced    bool
}

// VoucherRef identifies a voucher created in the external ledger.
type VoucherRef struct {
	Series string
	Number string
}

// String renders the reference the way operators see it in the ledger UI,
// e.g. "F123".
func (v VoucherRef) String() string {
	return v.Series + v.Number
}
