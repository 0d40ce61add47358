// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/mailvoucher/mailvoucher/internal/model"
)

// MessageRef identifies one message in a search result page.
type MessageRef struct {
	ID       string
	ThreadID string
}

// MailService defines the contract for the mail collaborator. Search runs
// a narrowed server-side query; body criteria are always re-checked
// in-memory because the server query cannot express them.
type MailService interface {
	SearchEmails(ctx context.Context, query string, maxResults int64) ([]MessageRef, error)
	GetEmailContent(ctx context.Context, id string) (*model.EmailContent, error)
}

// CreateVoucherRequest carries everything a ledger needs to file a voucher.
// AttachmentPath is optional; an empty string means no attachment.
type CreateVoucherRequest struct {
	Description    string
	Series         string
	Date           string // YYYY-MM-DD
	AttachmentPath string
	Entries        []model.Entry
}

// VoucherSeries is one voucher numbering series in the ledger.
type VoucherSeries struct {
	Code        string
	Description string
}

// Account is one account in the ledger's chart of accounts.
type Account struct {
	Number      string
	Description string
	Active      bool
}

// LedgerClient is the capability interface every accounting vendor client
// implements. The concrete variant is selected by configuration at
// construction time.
type LedgerClient interface {
	// Name identifies the vendor, e.g. "fortnox".
	Name() string

	// Auth lifecycle.
	IsAuthenticated() bool
	EnsureAuth(ctx context.Context) error
	AuthorizationURL(state string) string
	RedirectURI() string
	FetchTokens(ctx context.Context, authorizationCode string) error

	// Ledger operations.
	CreateVoucher(ctx context.Context, req CreateVoucherRequest) (model.VoucherRef, error)
	VoucherSeries(ctx context.Context) ([]VoucherSeries, error)
	ChartOfAccounts(ctx context.Context) ([]Account, error)
	TestConnection(ctx context.Context) error
}

// Renderer produces a PDF rendering of a message, returned as a file path,
// for attachment to the voucher as supporting evidence.
type Renderer interface {
	RenderToPDF(ctx context.Context, email *model.EmailContent) (string, error)
}

// VoucherRecord is one row of the local submission log.
type VoucherRecord struct {
	CreatedAt   time.Time
	EmailID     string
	Description string
	Series      string
	Number      string
	Date        string
}

// Storage defines the contract for our persistence layer: the append-only
// processed/ignored message ID sets and the voucher submission log.
type Storage interface {
	Migrate(ctx context.Context) error

	ProcessedIDs(ctx context.Context) ([]string, error)
	MarkProcessed(ctx context.Context, emailID string) error
	IgnoredIDs(ctx context.Context) ([]string, error)
	MarkIgnored(ctx context.Context, emailID string) error

	RecordVoucher(ctx context.Context, rec VoucherRecord) error
	Vouchers(ctx context.Context) ([]VoucherRecord, error)

	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
