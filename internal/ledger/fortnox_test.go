package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvoucher/mailvoucher/internal/common"
	"github.com/mailvoucher/mailvoucher/internal/model"
	"github.com/mailvoucher/mailvoucher/internal/service"
)

// writeTokenFile seeds a token file with a currently valid access token
// so clients under test skip the refresh path.
func writeTokenFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "token.json")
	tok := storedToken{
		AccessToken:  "test-access",
		RefreshToken: "test-refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
	data, err := json.Marshal(tok)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func noRetry() service.RetryOptions {
	return service.RetryOptions{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestFortnoxCreateVoucher(t *testing.T) {
	var voucherPayload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-access", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/vouchers":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&voucherPayload))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"Voucher":{"VoucherNumber":42,"VoucherSeries":"A"}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewFortnoxClient(Options{
		ClientID:  "id",
		BaseURL:   server.URL,
		TokenFile: writeTokenFile(t),
		Retry:     noRetry(),
	})

	ref, err := client.CreateVoucher(context.Background(), service.CreateVoucherRequest{
		Description: "Cloud hosting March",
		Series:      "A",
		Date:        "2024-03-15",
		Entries: []model.Entry{
			{Account: "6540", Debit: decimal.RequireFromString("1234.50")},
			{Account: "1930", Credit: decimal.RequireFromString("1234.50")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "A", ref.Series)
	assert.Equal(t, "42", ref.Number)
	assert.Equal(t, "A42", ref.String())

	voucher := voucherPayload["Voucher"].(map[string]any)
	assert.Equal(t, "Cloud hosting March", voucher["Description"])
	assert.Equal(t, "2024-03-15", voucher["TransactionDate"])
	rows := voucher["VoucherRows"].([]any)
	require.Len(t, rows, 2)
	first := rows[0].(map[string]any)
	assert.Equal(t, "6540", first["Account"])
	assert.InDelta(t, 1234.50, first["Debit"], 0.001)
}

func TestFortnoxCreateVoucherWithAttachment(t *testing.T) {
	var connected bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/archive":
			assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
			w.Write([]byte(`{"FileId":"file-123"}`))
		case "/vouchers":
			w.Write([]byte(`{"Voucher":{"VoucherNumber":7,"VoucherSeries":"F"}}`))
		case "/vouchers/F/7/attachments":
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "file-123", payload["FileId"])
			connected = true
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	attachment := filepath.Join(t.TempDir(), "receipt.pdf")
	require.NoError(t, os.WriteFile(attachment, []byte("%PDF-1.4"), 0o600))

	client := NewFortnoxClient(Options{
		BaseURL:   server.URL,
		TokenFile: writeTokenFile(t),
		Retry:     noRetry(),
	})

	ref, err := client.CreateVoucher(context.Background(), service.CreateVoucherRequest{
		Description:    "Receipt",
		Series:         "F",
		Date:           "2024-03-15",
		AttachmentPath: attachment,
		Entries:        []model.Entry{{Account: "6540", Debit: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "F7", ref.String())
	assert.True(t, connected)
}

func TestFortnoxAttachmentConnectionFailureDoesNotFailVoucher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/archive":
			w.Write([]byte(`{"FileId":"file-123"}`))
		case "/vouchers":
			w.Write([]byte(`{"Voucher":{"VoucherNumber":8,"VoucherSeries":"F"}}`))
		default:
			// Attachment connection fails; the voucher must still succeed.
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"cannot connect file"}`))
		}
	}))
	defer server.Close()

	attachment := filepath.Join(t.TempDir(), "receipt.pdf")
	require.NoError(t, os.WriteFile(attachment, []byte("%PDF-1.4"), 0o600))

	client := NewFortnoxClient(Options{
		BaseURL:   server.URL,
		TokenFile: writeTokenFile(t),
		Retry:     noRetry(),
	})

	ref, err := client.CreateVoucher(context.Background(), service.CreateVoucherRequest{
		Description:    "Receipt",
		Series:         "F",
		Date:           "2024-03-15",
		AttachmentPath: attachment,
		Entries:        []model.Entry{{Account: "6540", Debit: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "F8", ref.String())
}

func TestFortnoxAttachmentRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ErrorInformation":{"message":"invalid attachment reference"}}`))
	}))
	defer server.Close()

	client := NewFortnoxClient(Options{
		BaseURL:   server.URL,
		TokenFile: writeTokenFile(t),
		Retry:     noRetry(),
	})

	_, err := client.CreateVoucher(context.Background(), service.CreateVoucherRequest{
		Description: "Receipt",
		Series:      "F",
		Date:        "2024-03-15",
		Entries:     []model.Entry{{Account: "6540", Debit: decimal.NewFromInt(10)}},
	})
	require.Error(t, err)

	var ledgerErr *common.LedgerError
	require.True(t, errors.As(err, &ledgerErr))
	assert.True(t, ledgerErr.AttachmentRejected)
	assert.Equal(t, http.StatusBadRequest, ledgerErr.StatusCode)
}

func TestFortnoxVoucherSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/voucherseries", r.URL.Path)
		w.Write([]byte(`{"VoucherSeriesCollection":{"VoucherSeries":[
			{"Code":"A","Description":"Main series"},
			{"Code":"F","Description":"Invoices"}]}}`))
	}))
	defer server.Close()

	client := NewFortnoxClient(Options{
		BaseURL:   server.URL,
		TokenFile: writeTokenFile(t),
		Retry:     noRetry(),
	})

	series, err := client.VoucherSeries(context.Background())
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, service.VoucherSeries{Code: "A", Description: "Main series"}, series[0])
}

func TestFortnoxChartOfAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts", r.URL.Path)
		w.Write([]byte(`{"Accounts":{"Account":[
			{"Number":1930,"Description":"Bank account","Active":true},
			{"Number":6540,"Description":"IT services","Active":true}]}}`))
	}))
	defer server.Close()

	client := NewFortnoxClient(Options{
		BaseURL:   server.URL,
		TokenFile: writeTokenFile(t),
		Retry:     noRetry(),
	})

	accounts, err := client.ChartOfAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "1930", accounts[0].Number)
	assert.Equal(t, "IT services", accounts[1].Description)
}

func TestFortnoxRefreshOnExpiredToken(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "old-refresh", r.FormValue("refresh_token"))
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600}`))
	})
	mux.HandleFunc("/companyinformation", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer new-access", r.Header.Get("Authorization"))
		w.Write([]byte(`{"CompanyInformation":{"CompanyName":"Acme AB"}}`))
	})

	tokenFile := filepath.Join(t.TempDir(), "token.json")
	expired := storedToken{AccessToken: "old-access", RefreshToken: "old-refresh", ExpiresAt: time.Now().Add(-time.Hour).Unix()}
	data, err := json.Marshal(expired)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(tokenFile, data, 0o600))

	client := NewFortnoxClient(Options{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/token",
		TokenFile:    tokenFile,
		Retry:        noRetry(),
	})

	assert.False(t, client.IsAuthenticated())
	require.NoError(t, client.TestConnection(context.Background()))
	assert.True(t, client.IsAuthenticated())

	// Refreshed tokens are persisted.
	saved, err := os.ReadFile(tokenFile)
	require.NoError(t, err)
	var tok storedToken
	require.NoError(t, json.Unmarshal(saved, &tok))
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, "new-refresh", tok.RefreshToken)
}

func TestFortnoxRetriesServerErrors(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message":"temporary"}`))
			return
		}
		w.Write([]byte(`{"Voucher":{"VoucherNumber":1,"VoucherSeries":"A"}}`))
	}))
	defer server.Close()

	client := NewFortnoxClient(Options{
		BaseURL:   server.URL,
		TokenFile: writeTokenFile(t),
		Retry:     service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	})

	ref, err := client.CreateVoucher(context.Background(), service.CreateVoucherRequest{
		Description: "Retry",
		Series:      "A",
		Date:        "2024-03-15",
		Entries:     []model.Entry{{Account: "6540", Debit: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "A1", ref.String())
	assert.Equal(t, 2, attempts)
}
