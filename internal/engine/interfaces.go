// Package engine orchestrates one processing run: search, match,
// extract, compute, preview, submit, record.
package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mailvoucher/mailvoucher/internal/model"
)

// Decision is the operator's answer to a voucher preview.
type Decision int

const (
	// DecisionCreate submits the voucher to the ledger.
	DecisionCreate Decision = iota
	// DecisionSkip leaves the email untouched; it will come up again
	// next run.
	DecisionSkip
	// DecisionIgnore marks the email ignored so it never comes up again.
	DecisionIgnore
)

// FailureAction is the operator's answer after a failed submission.
type FailureAction int

const (
	// FailureRetryWithoutAttachment resubmits the voucher with no
	// attachment. Only offered when the ledger rejected the attachment
	// field specifically.
	FailureRetryWithoutAttachment FailureAction = iota
	// FailureIgnore marks the email ignored.
	FailureIgnore
	// FailureSkip leaves the email untouched for the next run.
	FailureSkip
)

// VoucherPreview carries everything the operator sees before deciding.
type VoucherPreview struct {
	Email          *model.EmailContent
	RuleName       string
	Voucher        model.VoucherResult
	Extracted      map[string]decimal.Decimal
	AttachmentPath string
	DryRun         bool
}

// Prompter is the interactive decision surface for a run.
type Prompter interface {
	// ReviewVoucher shows the preview and asks whether to create it.
	ReviewVoucher(ctx context.Context, preview VoucherPreview) (Decision, error)

	// ResolveFailure asks what to do with a failed submission.
	// canRetryWithoutAttachment is set when the failure was an
	// attachment rejection and the voucher carried one.
	ResolveFailure(ctx context.Context, preview VoucherPreview, submitErr error, canRetryWithoutAttachment bool) (FailureAction, error)

	// SetTotalEmails sizes the progress indicator for the run.
	SetTotalEmails(total int)

	// ShowCompletion reports run totals once processing finishes.
	ShowCompletion(created, skipped, ignored, failed int)
}
