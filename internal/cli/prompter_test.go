package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvoucher/mailvoucher/internal/engine"
	"github.com/mailvoucher/mailvoucher/internal/model"
)

func samplePreview() engine.VoucherPreview {
	return engine.VoucherPreview{
		Email: &model.EmailContent{
			ID:      "msg-1",
			Sender:  "billing@example.com",
			Subject: "Your cloud invoice",
			Date:    time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
		},
		RuleName: "Cloud hosting",
		Voucher: model.VoucherResult{
			Description: "Cloud hosting March",
			Series:      "A",
			Date:        "2024-03-15",
			Entries: []model.Entry{
				{Account: "6540", Debit: decimal.RequireFromString("1234.50")},
				{Account: "1930", Credit: decimal.RequireFromString("1234.50")},
			},
			TotalDebit:  decimal.RequireFromString("1234.50"),
			TotalCredit: decimal.RequireFromString("1234.50"),
			Balanced:    true,
		},
		Extracted:      map[string]decimal.Decimal{"total": decimal.RequireFromString("1234.50")},
		AttachmentPath: "/tmp/invoice.pdf",
	}
}

func TestReviewVoucherDecisions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  engine.Decision
	}{
		{"yes creates", "y\n", engine.DecisionCreate},
		{"enter defaults to create", "\n", engine.DecisionCreate},
		{"no skips", "n\n", engine.DecisionSkip},
		{"i ignores", "i\n", engine.DecisionIgnore},
		{"invalid then yes", "x\ny\n", engine.DecisionCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(strings.NewReader(tt.input), &out)

			decision, err := p.ReviewVoucher(context.Background(), samplePreview())
			require.NoError(t, err)
			assert.Equal(t, tt.want, decision)
		})
	}
}

func TestReviewVoucherShowsDetails(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("y\n"), &out)

	_, err := p.ReviewVoucher(context.Background(), samplePreview())
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "billing@example.com")
	assert.Contains(t, output, "Cloud hosting March")
	assert.Contains(t, output, "6540")
	assert.Contains(t, output, "1234.50")
	assert.Contains(t, output, "total = 1234.5")
	assert.Contains(t, output, "/tmp/invoice.pdf")
}

func TestReviewVoucherWarnsOnImbalance(t *testing.T) {
	preview := samplePreview()
	preview.Voucher.TotalCredit = decimal.RequireFromString("1000.00")
	preview.Voucher.Balanced = false

	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("n\n"), &out)

	decision, err := p.ReviewVoucher(context.Background(), preview)
	require.NoError(t, err)
	assert.Equal(t, engine.DecisionSkip, decision)
	assert.Contains(t, out.String(), "UNBALANCED")
	assert.Contains(t, out.String(), "do NOT balance")
}

func TestReviewVoucherCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPrompter(strings.NewReader("y\n"), &bytes.Buffer{})
	_, err := p.ReviewVoucher(ctx, samplePreview())
	require.ErrorIs(t, err, context.Canceled)
}

func TestResolveFailureRetryWithoutAttachment(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("y\n"), &out)

	action, err := p.ResolveFailure(context.Background(), samplePreview(), errors.New("bad field"), true)
	require.NoError(t, err)
	assert.Equal(t, engine.FailureRetryWithoutAttachment, action)
	assert.Contains(t, out.String(), "rejected the attachment field")
}

func TestResolveFailureDeclineRetryThenIgnore(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("n\ny\n"), &out)

	action, err := p.ResolveFailure(context.Background(), samplePreview(), errors.New("bad field"), true)
	require.NoError(t, err)
	assert.Equal(t, engine.FailureIgnore, action)
}

func TestResolveFailureDefaultsToSkip(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("\n"), &out)

	action, err := p.ResolveFailure(context.Background(), samplePreview(), errors.New("server error"), false)
	require.NoError(t, err)
	assert.Equal(t, engine.FailureSkip, action)
}

func TestShowCompletion(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader(""), &out)

	p.ShowCompletion(2, 1, 1, 0)

	output := out.String()
	assert.Contains(t, output, "Created: 2")
	assert.Contains(t, output, "Skipped: 1")
	assert.Contains(t, output, "Ignored: 1")
	assert.Contains(t, output, "Failed: 0")
}
