package ledger

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mailvoucher/mailvoucher/internal/common"
	"github.com/mailvoucher/mailvoucher/internal/service"
)

// Supported vendor names for Options.Vendor.
const (
	VendorFortnox = "fortnox"
	VendorKleer   = "kleer"
)

const defaultHTTPTimeout = 30 * time.Second

// Options configures a vendor client. AuthURL, TokenURL and BaseURL
// default to the vendor's production endpoints when empty; tests point
// them at an httptest server.
type Options struct {
	Vendor       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BaseURL      string
	AuthURL      string
	TokenURL     string
	TokenFile    string
	HTTPClient   *http.Client
	Logger       *slog.Logger
	Retry        service.RetryOptions
}

// NewClient returns the ledger client for the configured vendor.
func NewClient(opts Options) (service.LedgerClient, error) {
	switch opts.Vendor {
	case VendorFortnox:
		return NewFortnoxClient(opts), nil
	case VendorKleer:
		return NewKleerClient(opts), nil
	default:
		return nil, fmt.Errorf("%w: unknown ledger vendor %q (want %q or %q)",
			common.ErrInvalidConfig, opts.Vendor, VendorFortnox, VendorKleer)
	}
}

func authURLOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func retryOptionsOr(opts service.RetryOptions) service.RetryOptions {
	if opts.MaxAttempts == 0 {
		opts = service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		}
	}
	return opts
}
