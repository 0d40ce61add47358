package ledger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mailvoucher/mailvoucher/internal/common"
	"github.com/mailvoucher/mailvoucher/internal/model"
	"github.com/mailvoucher/mailvoucher/internal/service"
)

const (
	kleerBaseURL  = "https://api.kleer.se"
	kleerAuthURL  = "https://auth.kleer.se/oauth/authorize"
	kleerTokenURL = "https://auth.kleer.se/oauth/token"
)

var kleerScopes = []string{"vouchers:read", "vouchers:write", "accounts:read", "files:write"}

// KleerClient files vouchers through the Kleer REST API. Unlike Fortnox,
// attachments are pre-uploaded and referenced directly in the voucher
// payload.
type KleerClient struct {
	auth       *tokenAuth
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	retry      service.RetryOptions
}

// NewKleerClient builds a Kleer client from vendor options.
func NewKleerClient(opts Options) *KleerClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = kleerBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Kleer expects client credentials in the token request body.
	auth := newTokenAuth(opts.ClientID, opts.ClientSecret, opts.RedirectURI,
		authURLOr(opts.AuthURL, kleerAuthURL), authURLOr(opts.TokenURL, kleerTokenURL),
		opts.TokenFile, kleerScopes, false, httpClient, logger)

	return &KleerClient{
		auth:       auth,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		retry:      retryOptionsOr(opts.Retry),
	}
}

func (c *KleerClient) Name() string { return VendorKleer }

func (c *KleerClient) IsAuthenticated() bool { return c.auth.IsAuthenticated() }

func (c *KleerClient) EnsureAuth(ctx context.Context) error { return c.auth.EnsureAuth(ctx) }

func (c *KleerClient) AuthorizationURL(state string) string { return c.auth.AuthorizationURL(state) }

func (c *KleerClient) RedirectURI() string { return c.auth.RedirectURI() }

func (c *KleerClient) FetchTokens(ctx context.Context, code string) error {
	return c.auth.FetchTokens(ctx, code)
}

type kleerVoucherRow struct {
	AccountNumber string  `json:"accountNumber"`
	Debit         float64 `json:"debit"`
	Credit        float64 `json:"credit"`
}

type kleerVoucher struct {
	Description     string            `json:"description"`
	SeriesID        string            `json:"seriesId"`
	TransactionDate string            `json:"transactionDate"`
	Rows            []kleerVoucherRow `json:"rows"`
	AttachmentIDs   []string          `json:"attachmentIds,omitempty"`
}

type kleerVoucherResponse struct {
	ID       string `json:"id"`
	SeriesID string `json:"seriesId"`
}

// CreateVoucher pre-uploads the attachment when present and posts the
// voucher with the attachment referenced in the payload.
func (c *KleerClient) CreateVoucher(ctx context.Context, req service.CreateVoucherRequest) (model.VoucherRef, error) {
	payload := kleerVoucher{
		Description:     req.Description,
		SeriesID:        req.Series,
		TransactionDate: req.Date,
		Rows:            kleerRows(req.Entries),
	}

	if req.AttachmentPath != "" {
		id, err := c.uploadAttachment(ctx, req.AttachmentPath)
		if err != nil {
			return model.VoucherRef{}, err
		}
		payload.AttachmentIDs = []string{id}
	}

	var result kleerVoucherResponse
	err := common.WithRetry(ctx, func() error {
		return doJSON(ctx, c.httpClient, c.auth, http.MethodPost, c.baseURL+"/v1/vouchers", payload, &result)
	}, c.retry)
	if err != nil {
		return model.VoucherRef{}, err
	}

	return model.VoucherRef{Series: result.SeriesID, Number: result.ID}, nil
}

func kleerRows(entries []model.Entry) []kleerVoucherRow {
	rows := make([]kleerVoucherRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, kleerVoucherRow{
			AccountNumber: e.Account,
			Debit:         decimalFloat(e.Debit),
			Credit:        decimalFloat(e.Credit),
		})
	}
	return rows
}

// uploadAttachment sends the file as multipart form data and returns the
// attachment ID.
func (c *KleerClient) uploadAttachment(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading attachment %s: %w", path, err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("building multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("building multipart body: %w", err)
	}

	c.logger.Debug("uploading attachment", "file", filepath.Base(path), "bytes", len(data))

	var result struct {
		ID string `json:"id"`
	}

	err = common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/attachments", bytes.NewReader(buf.Bytes()))
		if err != nil {
			return fmt.Errorf("building upload request: %w", err)
		}

		bearer, err := c.auth.bearer(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", bearer)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &common.TransportError{Op: "POST " + c.baseURL + "/v1/attachments", Err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &common.TransportError{Op: "POST " + c.baseURL + "/v1/attachments", Err: err}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return newAPIError(resp.StatusCode, string(body))
		}
		return decodeJSON(body, &result)
	}, c.retry)
	if err != nil {
		return "", err
	}

	if result.ID == "" {
		return "", &common.LedgerError{Message: "attachment upload returned no id"}
	}
	return result.ID, nil
}

// VoucherSeries lists the ledger's voucher numbering series.
func (c *KleerClient) VoucherSeries(ctx context.Context) ([]service.VoucherSeries, error) {
	var result []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	err := common.WithRetry(ctx, func() error {
		return doJSON(ctx, c.httpClient, c.auth, http.MethodGet, c.baseURL+"/v1/series", nil, &result)
	}, c.retry)
	if err != nil {
		return nil, err
	}

	series := make([]service.VoucherSeries, 0, len(result))
	for _, s := range result {
		desc := s.Description
		if desc == "" {
			desc = s.Name
		}
		series = append(series, service.VoucherSeries{Code: s.ID, Description: desc})
	}
	return series, nil
}

// ChartOfAccounts lists the ledger's accounts.
func (c *KleerClient) ChartOfAccounts(ctx context.Context) ([]service.Account, error) {
	var result []struct {
		Number      string `json:"number"`
		Name        string `json:"name"`
		Active      bool   `json:"active"`
	}

	err := common.WithRetry(ctx, func() error {
		return doJSON(ctx, c.httpClient, c.auth, http.MethodGet, c.baseURL+"/v1/accounts", nil, &result)
	}, c.retry)
	if err != nil {
		return nil, err
	}

	accounts := make([]service.Account, 0, len(result))
	for _, a := range result {
		accounts = append(accounts, service.Account{
			Number:      a.Number,
			Description: a.Name,
			Active:      a.Active,
		})
	}
	return accounts, nil
}

// TestConnection verifies authentication and basic API reachability by
// fetching company information.
func (c *KleerClient) TestConnection(ctx context.Context) error {
	if err := c.auth.EnsureAuth(ctx); err != nil {
		return err
	}

	var result struct {
		Name string `json:"name"`
	}
	if err := doJSON(ctx, c.httpClient, c.auth, http.MethodGet, c.baseURL+"/v1/company", nil, &result); err != nil {
		return err
	}

	c.logger.Info("connected to ledger", "vendor", c.Name(), "company", result.Name)
	return nil
}
