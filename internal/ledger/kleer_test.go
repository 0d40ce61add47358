package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvoucher/mailvoucher/internal/model"
	"github.com/mailvoucher/mailvoucher/internal/service"
)

func TestKleerCreateVoucherWithAttachment(t *testing.T) {
	var voucherPayload kleerVoucher

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/attachments":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			file.Close()
			assert.Equal(t, "receipt.pdf", header.Filename)
			w.Write([]byte(`{"id":"att-9"}`))
		case "/v1/vouchers":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&voucherPayload))
			w.Write([]byte(`{"id":"v-100","seriesId":"A"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	attachment := filepath.Join(t.TempDir(), "receipt.pdf")
	require.NoError(t, os.WriteFile(attachment, []byte("%PDF-1.4"), 0o600))

	client := NewKleerClient(Options{
		BaseURL:   server.URL,
		TokenFile: writeTokenFile(t),
		Retry:     noRetry(),
	})

	ref, err := client.CreateVoucher(context.Background(), service.CreateVoucherRequest{
		Description:    "Subscription",
		Series:         "A",
		Date:           "2024-03-15",
		AttachmentPath: attachment,
		Entries: []model.Entry{
			{Account: "6540", Debit: decimal.RequireFromString("99.00")},
			{Account: "1930", Credit: decimal.RequireFromString("99.00")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "A", ref.Series)
	assert.Equal(t, "v-100", ref.Number)

	assert.Equal(t, []string{"att-9"}, voucherPayload.AttachmentIDs)
	assert.Equal(t, "Subscription", voucherPayload.Description)
	require.Len(t, voucherPayload.Rows, 2)
	assert.Equal(t, "6540", voucherPayload.Rows[0].AccountNumber)
	assert.InDelta(t, 99.00, voucherPayload.Rows[0].Debit, 0.001)
}

func TestKleerVoucherWithoutAttachmentOmitsIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, present := raw["attachmentIds"]
		assert.False(t, present)
		w.Write([]byte(`{"id":"v-2","seriesId":"B"}`))
	}))
	defer server.Close()

	client := NewKleerClient(Options{
		BaseURL:   server.URL,
		TokenFile: writeTokenFile(t),
		Retry:     noRetry(),
	})

	ref, err := client.CreateVoucher(context.Background(), service.CreateVoucherRequest{
		Description: "No attachment",
		Series:      "B",
		Date:        "2024-03-15",
		Entries:     []model.Entry{{Account: "6540", Debit: decimal.NewFromInt(5)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bv-2", ref.String())
}

func TestKleerVoucherSeriesAndAccounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/series":
			w.Write([]byte(`[{"id":"A","name":"Main","description":""},{"id":"B","name":"","description":"Bank"}]`))
		case "/v1/accounts":
			w.Write([]byte(`[{"number":"1930","name":"Bank account","active":true}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewKleerClient(Options{
		BaseURL:   server.URL,
		TokenFile: writeTokenFile(t),
		Retry:     noRetry(),
	})

	series, err := client.VoucherSeries(context.Background())
	require.NoError(t, err)
	require.Len(t, series, 2)
	// Name fills in when no description exists.
	assert.Equal(t, service.VoucherSeries{Code: "A", Description: "Main"}, series[0])
	assert.Equal(t, service.VoucherSeries{Code: "B", Description: "Bank"}, series[1])

	accounts, err := client.ChartOfAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, service.Account{Number: "1930", Description: "Bank account", Active: true}, accounts[0])
}

func TestNewClientVendorSelection(t *testing.T) {
	fortnox, err := NewClient(Options{Vendor: VendorFortnox, TokenFile: filepath.Join(t.TempDir(), "t.json")})
	require.NoError(t, err)
	assert.Equal(t, "fortnox", fortnox.Name())

	kleer, err := NewClient(Options{Vendor: VendorKleer, TokenFile: filepath.Join(t.TempDir(), "t.json")})
	require.NoError(t, err)
	assert.Equal(t, "kleer", kleer.Name())

	_, err = NewClient(Options{Vendor: "quickbooks"})
	require.Error(t, err)
}
