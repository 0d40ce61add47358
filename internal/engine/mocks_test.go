package engine

import (
	"context"
	"fmt"

	"github.com/mailvoucher/mailvoucher/internal/model"
	"github.com/mailvoucher/mailvoucher/internal/service"
)

type mockMail struct {
	searchResults map[string][]service.MessageRef
	emails        map[string]*model.EmailContent
	searchErr     error
	getErr        map[string]error
	searches      []string
}

func (m *mockMail) SearchEmails(_ context.Context, query string, _ int64) ([]service.MessageRef, error) {
	m.searches = append(m.searches, query)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if refs, ok := m.searchResults[query]; ok {
		return refs, nil
	}
	// Fall back to all refs for queries the test didn't pin down.
	var all []service.MessageRef
	for _, refs := range m.searchResults {
		all = append(all, refs...)
	}
	return all, nil
}

func (m *mockMail) GetEmailContent(_ context.Context, id string) (*model.EmailContent, error) {
	if err, ok := m.getErr[id]; ok {
		return nil, err
	}
	email, ok := m.emails[id]
	if !ok {
		return nil, fmt.Errorf("no such email %s", id)
	}
	return email, nil
}

type createdVoucher struct {
	req service.CreateVoucherRequest
}

type mockLedger struct {
	created    []createdVoucher
	createErrs []error // consumed in order; nil means success
	authErr    error
}

func (m *mockLedger) Name() string                                { return "mock" }
func (m *mockLedger) IsAuthenticated() bool                       { return m.authErr == nil }
func (m *mockLedger) EnsureAuth(context.Context) error            { return m.authErr }
func (m *mockLedger) AuthorizationURL(string) string              { return "http://auth.test" }
func (m *mockLedger) RedirectURI() string                         { return "http://localhost/callback" }
func (m *mockLedger) FetchTokens(context.Context, string) error   { return nil }
func (m *mockLedger) TestConnection(context.Context) error        { return m.authErr }
func (m *mockLedger) VoucherSeries(context.Context) ([]service.VoucherSeries, error) {
	return nil, nil
}
func (m *mockLedger) ChartOfAccounts(context.Context) ([]service.Account, error) {
	return nil, nil
}

func (m *mockLedger) CreateVoucher(_ context.Context, req service.CreateVoucherRequest) (model.VoucherRef, error) {
	var err error
	if len(m.createErrs) > 0 {
		err = m.createErrs[0]
		m.createErrs = m.createErrs[1:]
	}
	if err != nil {
		return model.VoucherRef{}, err
	}
	m.created = append(m.created, createdVoucher{req: req})
	return model.VoucherRef{Series: req.Series, Number: fmt.Sprintf("%d", len(m.created))}, nil
}

type mockRenderer struct {
	path string
	err  error
}

func (m *mockRenderer) RenderToPDF(context.Context, *model.EmailContent) (string, error) {
	return m.path, m.err
}

type mockStorage struct {
	processed []string
	ignored   []string
	vouchers  []service.VoucherRecord
}

func (m *mockStorage) Migrate(context.Context) error { return nil }

func (m *mockStorage) ProcessedIDs(context.Context) ([]string, error) { return m.processed, nil }

func (m *mockStorage) MarkProcessed(_ context.Context, id string) error {
	m.processed = append(m.processed, id)
	return nil
}

func (m *mockStorage) IgnoredIDs(context.Context) ([]string, error) { return m.ignored, nil }

func (m *mockStorage) MarkIgnored(_ context.Context, id string) error {
	m.ignored = append(m.ignored, id)
	return nil
}

func (m *mockStorage) RecordVoucher(_ context.Context, rec service.VoucherRecord) error {
	m.vouchers = append(m.vouchers, rec)
	return nil
}

func (m *mockStorage) Vouchers(context.Context) ([]service.VoucherRecord, error) {
	return m.vouchers, nil
}

func (m *mockStorage) Close() error { return nil }

type mockPrompter struct {
	decisions      []Decision      // consumed per review; default DecisionSkip
	failureActions []FailureAction // consumed per failure; default FailureSkip
	previews       []VoucherPreview
	failures       []error
	total          int
	completions    []int
}

func (m *mockPrompter) ReviewVoucher(_ context.Context, preview VoucherPreview) (Decision, error) {
	m.previews = append(m.previews, preview)
	if len(m.decisions) == 0 {
		return DecisionSkip, nil
	}
	d := m.decisions[0]
	m.decisions = m.decisions[1:]
	return d, nil
}

func (m *mockPrompter) ResolveFailure(_ context.Context, _ VoucherPreview, submitErr error, _ bool) (FailureAction, error) {
	m.failures = append(m.failures, submitErr)
	if len(m.failureActions) == 0 {
		return FailureSkip, nil
	}
	a := m.failureActions[0]
	m.failureActions = m.failureActions[1:]
	return a, nil
}

func (m *mockPrompter) SetTotalEmails(total int) { m.total = total }

func (m *mockPrompter) ShowCompletion(created, skipped, ignored, failed int) {
	m.completions = []int{created, skipped, ignored, failed}
}
