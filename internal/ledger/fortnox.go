package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mailvoucher/mailvoucher/internal/common"
	"github.com/mailvoucher/mailvoucher/internal/model"
	"github.com/mailvoucher/mailvoucher/internal/service"
)

const (
	fortnoxBaseURL  = "https://api.fortnox.se/3"
	fortnoxAuthURL  = "https://apps.fortnox.se/oauth-v1/auth"
	fortnoxTokenURL = "https://apps.fortnox.se/oauth-v1/token"
)

var fortnoxScopes = []string{"bookkeeping", "archive", "connectfile"}

// FortnoxClient files vouchers through the Fortnox REST API.
type FortnoxClient struct {
	auth       *tokenAuth
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	retry      service.RetryOptions
}

// NewFortnoxClient builds a Fortnox client from vendor options. An empty
// BaseURL uses the production API.
func NewFortnoxClient(opts Options) *FortnoxClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = fortnoxBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Fortnox wants client credentials as basic auth on the token endpoint.
	auth := newTokenAuth(opts.ClientID, opts.ClientSecret, opts.RedirectURI,
		authURLOr(opts.AuthURL, fortnoxAuthURL), authURLOr(opts.TokenURL, fortnoxTokenURL),
		opts.TokenFile, fortnoxScopes, true, httpClient, logger)

	return &FortnoxClient{
		auth:       auth,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		retry:      retryOptionsOr(opts.Retry),
	}
}

func (c *FortnoxClient) Name() string { return VendorFortnox }

func (c *FortnoxClient) IsAuthenticated() bool { return c.auth.IsAuthenticated() }

func (c *FortnoxClient) EnsureAuth(ctx context.Context) error { return c.auth.EnsureAuth(ctx) }

func (c *FortnoxClient) AuthorizationURL(state string) string { return c.auth.AuthorizationURL(state) }

func (c *FortnoxClient) RedirectURI() string { return c.auth.RedirectURI() }

func (c *FortnoxClient) FetchTokens(ctx context.Context, code string) error {
	return c.auth.FetchTokens(ctx, code)
}

type fortnoxVoucherRow struct {
	Account string  `json:"Account"`
	Debit   float64 `json:"Debit"`
	Credit  float64 `json:"Credit"`
}

type fortnoxVoucher struct {
	Description     string              `json:"Description"`
	VoucherSeries   string              `json:"VoucherSeries"`
	TransactionDate string              `json:"TransactionDate"`
	VoucherRows     []fortnoxVoucherRow `json:"VoucherRows"`
}

type fortnoxVoucherEnvelope struct {
	Voucher struct {
		VoucherNumber int    `json:"VoucherNumber"`
		VoucherSeries string `json:"VoucherSeries"`
	} `json:"Voucher"`
}

type fortnoxUploadResponse struct {
	FileID     string `json:"FileId"`
	Attachment struct {
		FileID string `json:"FileId"`
	} `json:"Attachment"`
	ID string `json:"@id"`
}

func (r fortnoxUploadResponse) fileID() string {
	switch {
	case r.FileID != "":
		return r.FileID
	case r.Attachment.FileID != "":
		return r.Attachment.FileID
	default:
		return r.ID
	}
}

// CreateVoucher uploads the attachment when present, posts the voucher,
// then connects the attachment to the created voucher. A failed
// connection is logged but does not fail the submission; the voucher
// already exists in the ledger at that point.
func (c *FortnoxClient) CreateVoucher(ctx context.Context, req service.CreateVoucherRequest) (model.VoucherRef, error) {
	var fileID string
	if req.AttachmentPath != "" {
		id, err := c.uploadAttachment(ctx, req.AttachmentPath)
		if err != nil {
			return model.VoucherRef{}, err
		}
		fileID = id
	}

	payload := struct {
		Voucher fortnoxVoucher `json:"Voucher"`
	}{
		Voucher: fortnoxVoucher{
			Description:     req.Description,
			VoucherSeries:   req.Series,
			TransactionDate: req.Date,
			VoucherRows:     fortnoxRows(req.Entries),
		},
	}

	var result fortnoxVoucherEnvelope
	err := common.WithRetry(ctx, func() error {
		return doJSON(ctx, c.httpClient, c.auth, http.MethodPost, c.baseURL+"/vouchers", payload, &result)
	}, c.retry)
	if err != nil {
		return model.VoucherRef{}, err
	}

	ref := model.VoucherRef{
		Series: result.Voucher.VoucherSeries,
		Number: fmt.Sprintf("%d", result.Voucher.VoucherNumber),
	}

	if fileID != "" {
		if err := c.connectAttachment(ctx, ref, fileID); err != nil {
			c.logger.Warn("voucher created but attachment connection failed",
				"voucher", ref.String(), "file_id", fileID, "error", err)
		}
	}

	return ref, nil
}

func fortnoxRows(entries []model.Entry) []fortnoxVoucherRow {
	rows := make([]fortnoxVoucherRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, fortnoxVoucherRow{
			Account: e.Account,
			Debit:   decimalFloat(e.Debit),
			Credit:  decimalFloat(e.Credit),
		})
	}
	return rows
}

func decimalFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// uploadAttachment pushes the file into the Fortnox archive inbox and
// returns its file ID.
func (c *FortnoxClient) uploadAttachment(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading attachment %s: %w", path, err)
	}

	c.logger.Debug("uploading attachment", "file", filepath.Base(path), "bytes", len(data))

	var result fortnoxUploadResponse
	err = common.WithRetry(ctx, func() error {
		return doUpload(ctx, c.httpClient, c.auth, c.baseURL+"/archive", contentTypeFor(path), data, &result)
	}, c.retry)
	if err != nil {
		return "", err
	}

	if result.fileID() == "" {
		return "", &common.LedgerError{Message: "archive upload returned no file id"}
	}
	return result.fileID(), nil
}

func (c *FortnoxClient) connectAttachment(ctx context.Context, ref model.VoucherRef, fileID string) error {
	url := fmt.Sprintf("%s/vouchers/%s/%s/attachments", c.baseURL, ref.Series, ref.Number)
	payload := map[string]string{"FileId": fileID}
	return doJSON(ctx, c.httpClient, c.auth, http.MethodPost, url, payload, nil)
}

// VoucherSeries lists the ledger's voucher numbering series.
func (c *FortnoxClient) VoucherSeries(ctx context.Context) ([]service.VoucherSeries, error) {
	var result struct {
		VoucherSeriesCollection struct {
			VoucherSeries []struct {
				Code        string `json:"Code"`
				Description string `json:"Description"`
			} `json:"VoucherSeries"`
		} `json:"VoucherSeriesCollection"`
	}

	err := common.WithRetry(ctx, func() error {
		return doJSON(ctx, c.httpClient, c.auth, http.MethodGet, c.baseURL+"/voucherseries", nil, &result)
	}, c.retry)
	if err != nil {
		return nil, err
	}

	series := make([]service.VoucherSeries, 0, len(result.VoucherSeriesCollection.VoucherSeries))
	for _, s := range result.VoucherSeriesCollection.VoucherSeries {
		series = append(series, service.VoucherSeries{Code: s.Code, Description: s.Description})
	}
	return series, nil
}

// ChartOfAccounts lists the ledger's accounts.
func (c *FortnoxClient) ChartOfAccounts(ctx context.Context) ([]service.Account, error) {
	var result struct {
		Accounts struct {
			Account []struct {
				Number      int    `json:"Number"`
				Description string `json:"Description"`
				Active      bool   `json:"Active"`
			} `json:"Account"`
		} `json:"Accounts"`
	}

	err := common.WithRetry(ctx, func() error {
		return doJSON(ctx, c.httpClient, c.auth, http.MethodGet, c.baseURL+"/accounts", nil, &result)
	}, c.retry)
	if err != nil {
		return nil, err
	}

	accounts := make([]service.Account, 0, len(result.Accounts.Account))
	for _, a := range result.Accounts.Account {
		accounts = append(accounts, service.Account{
			Number:      fmt.Sprintf("%d", a.Number),
			Description: a.Description,
			Active:      a.Active,
		})
	}
	return accounts, nil
}

// TestConnection verifies authentication and basic API reachability by
// fetching company information.
func (c *FortnoxClient) TestConnection(ctx context.Context) error {
	if err := c.auth.EnsureAuth(ctx); err != nil {
		return err
	}

	var result struct {
		CompanyInformation struct {
			Name string `json:"CompanyName"`
		} `json:"CompanyInformation"`
	}
	if err := doJSON(ctx, c.httpClient, c.auth, http.MethodGet, c.baseURL+"/companyinformation", nil, &result); err != nil {
		return err
	}

	c.logger.Info("connected to ledger", "vendor", c.Name(), "company", result.CompanyInformation.Name)
	return nil
}
