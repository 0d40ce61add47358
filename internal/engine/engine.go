package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mailvoucher/mailvoucher/internal/common"
	"github.com/mailvoucher/mailvoucher/internal/extract"
	"github.com/mailvoucher/mailvoucher/internal/formula"
	gmailq "github.com/mailvoucher/mailvoucher/internal/gmail"
	"github.com/mailvoucher/mailvoucher/internal/match"
	"github.com/mailvoucher/mailvoucher/internal/model"
	"github.com/mailvoucher/mailvoucher/internal/service"
)

// defaultMaxResults bounds one rule's server-side search.
const defaultMaxResults = 200

// Engine runs rules against a mailbox and turns matching emails into
// ledger vouchers, one at a time, with an operator decision per email.
type Engine struct {
	mail      service.MailService
	ledger    service.LedgerClient
	renderer  service.Renderer
	storage   service.Storage
	prompter  Prompter
	extractor *extract.Extractor
	logger    *slog.Logger

	// now is swappable for deterministic voucher dates in tests.
	now func() time.Time
}

// New creates an engine. All collaborators are required except renderer,
// which may be nil when PDF attachment is disabled.
func New(mail service.MailService, ledger service.LedgerClient, renderer service.Renderer, storage service.Storage, prompter Prompter, logger *slog.Logger) (*Engine, error) {
	if mail == nil {
		return nil, errors.New("mail service is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger client is required")
	}
	if storage == nil {
		return nil, errors.New("storage is required")
	}
	if prompter == nil {
		return nil, errors.New("prompter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		mail:      mail,
		ledger:    ledger,
		renderer:  renderer,
		storage:   storage,
		prompter:  prompter,
		extractor: extract.NewExtractor(logger),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// RunOptions tunes one processing run.
type RunOptions struct {
	// DryRun previews and records decisions without calling the ledger.
	DryRun bool
	// IgnoreProcessed skips the processed-set check, reconsidering
	// emails that were already filed. The ignored set still applies.
	IgnoreProcessed bool
	// MonthsBack sets the search window; values below 1 mean one month.
	MonthsBack int
	// MaxResults caps matches per rule; zero uses the default.
	MaxResults int64
}

// RunStats summarizes a completed run.
type RunStats struct {
	Matched int
	Created int
	Skipped int
	Ignored int
	Failed  int
}

// candidate is one email matched to the first rule that claimed it.
type candidate struct {
	email *model.EmailContent
	rule  model.Rule
}

// Run executes one full pass: collect matching emails for every rule,
// then review them newest first. A mail transport failure abandons the
// current rule but not the run.
func (e *Engine) Run(ctx context.Context, rules []model.Rule, opts RunOptions) (RunStats, error) {
	var stats RunStats

	if len(rules) == 0 {
		return stats, fmt.Errorf("%w: no rules configured", common.ErrMissingConfig)
	}

	if !opts.DryRun {
		if err := e.ledger.EnsureAuth(ctx); err != nil {
			return stats, fmt.Errorf("ledger authentication: %w", err)
		}
	}

	processed, ignored, err := e.loadSets(ctx, opts.IgnoreProcessed)
	if err != nil {
		return stats, err
	}

	candidates, err := e.collect(ctx, rules, opts, processed, ignored)
	if err != nil {
		return stats, err
	}
	stats.Matched = len(candidates)

	if len(candidates) == 0 {
		e.logger.Info("no new matching emails")
		e.prompter.ShowCompletion(0, 0, 0, 0)
		return stats, nil
	}

	// Newest first; dateless emails sink to the end.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].email.Date.After(candidates[j].email.Date)
	})

	e.prompter.SetTotalEmails(len(candidates))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		e.processOne(ctx, c, opts, &stats)
	}

	e.prompter.ShowCompletion(stats.Created, stats.Skipped, stats.Ignored, stats.Failed)
	return stats, nil
}

func (e *Engine) loadSets(ctx context.Context, ignoreProcessed bool) (processed, ignored map[string]bool, err error) {
	processed = make(map[string]bool)
	if !ignoreProcessed {
		ids, err := e.storage.ProcessedIDs(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("loading processed set: %w", err)
		}
		for _, id := range ids {
			processed[id] = true
		}
	} else {
		e.logger.Info("reconsidering previously processed emails")
	}

	ignored = make(map[string]bool)
	ids, err := e.storage.IgnoredIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading ignored set: %w", err)
	}
	for _, id := range ids {
		ignored[id] = true
	}

	return processed, ignored, nil
}

// collect runs every rule's search and returns matched, not-yet-handled
// emails. Each email belongs to the first rule that matches it.
func (e *Engine) collect(ctx context.Context, rules []model.Rule, opts RunOptions, processed, ignored map[string]bool) ([]candidate, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	since := gmailq.SinceMonthsBack(e.now(), opts.MonthsBack)

	var candidates []candidate
	claimed := make(map[string]bool)

	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !rule.HasCriteria() {
			e.logger.Warn("rule has no matching criteria and will match every email", "rule", rule.Name)
		}

		query := gmailq.BuildQuery(rule, since)
		e.logger.Info("searching", "rule", rule.Name, "query", query)

		refs, err := e.mail.SearchEmails(ctx, query, maxResults)
		if err != nil {
			// A transport failure abandons this rule only.
			e.logger.Error("search failed, skipping rule", "rule", rule.Name, "error", err)
			continue
		}

		matched := 0
		for _, ref := range refs {
			if processed[ref.ID] || ignored[ref.ID] || claimed[ref.ID] {
				continue
			}

			email, err := e.mail.GetEmailContent(ctx, ref.ID)
			if err != nil {
				var transportErr *common.TransportError
				if errors.As(err, &transportErr) {
					e.logger.Error("fetch failed, abandoning rule", "rule", rule.Name, "email_id", ref.ID, "error", err)
					break
				}
				e.logger.Warn("fetch failed, skipping email", "email_id", ref.ID, "error", err)
				continue
			}

			if !match.Matches(email, rule, e.logger) {
				continue
			}

			claimed[ref.ID] = true
			candidates = append(candidates, candidate{email: email, rule: rule})
			matched++
		}

		e.logger.Info("rule evaluated", "rule", rule.Name, "searched", len(refs), "matched", matched)
	}

	return candidates, nil
}

// processOne takes one matched email through extraction, computation,
// review, and (when confirmed) submission.
func (e *Engine) processOne(ctx context.Context, c candidate, opts RunOptions, stats *RunStats) {
	email := c.email
	rule := c.rule

	vars := e.extractor.ExtractAll(extract.Content{
		BodyText: email.BodyText,
		BodyHTML: email.BodyHTML,
	}, rule.DataExtraction)

	entries := formula.CalculateEntries(rule.Accounting.Entries, vars)
	totalDebit, totalCredit := formula.Totals(entries)

	voucher := model.VoucherResult{
		Description: rule.Accounting.Description,
		Series:      rule.Accounting.Series,
		Date:        e.now().Format("2006-01-02"),
		Entries:     entries,
		TotalDebit:  totalDebit,
		TotalCredit: totalCredit,
		Balanced:    formula.IsBalanced(entries),
	}

	attachmentPath := e.renderAttachment(ctx, email)

	preview := VoucherPreview{
		Email:          email,
		RuleName:       rule.Name,
		Voucher:        voucher,
		Extracted:      vars,
		AttachmentPath: attachmentPath,
		DryRun:         opts.DryRun,
	}

	decision, err := e.prompter.ReviewVoucher(ctx, preview)
	if err != nil {
		e.logger.Error("review aborted", "email_id", email.ID, "error", err)
		stats.Skipped++
		return
	}

	switch decision {
	case DecisionSkip:
		e.logger.Info("voucher skipped", "email_id", email.ID)
		stats.Skipped++
	case DecisionIgnore:
		e.markIgnored(ctx, email.ID)
		stats.Ignored++
	case DecisionCreate:
		e.submit(ctx, preview, opts, stats)
	}
}

func (e *Engine) renderAttachment(ctx context.Context, email *model.EmailContent) string {
	if e.renderer == nil {
		return ""
	}

	path, err := e.renderer.RenderToPDF(ctx, email)
	if err != nil {
		// The voucher can still go in without supporting evidence.
		e.logger.Warn("pdf rendering failed, continuing without attachment", "email_id", email.ID, "error", err)
		return ""
	}
	return path
}

// submit files the voucher and records the outcome. On failure the
// operator decides between retrying without the attachment (when that
// was the rejection), ignoring the email, or leaving it for next run.
func (e *Engine) submit(ctx context.Context, preview VoucherPreview, opts RunOptions, stats *RunStats) {
	email := preview.Email

	if opts.DryRun {
		e.logger.Info("dry run: voucher not submitted", "email_id", email.ID, "description", preview.Voucher.Description)
		e.markProcessed(ctx, email.ID)
		stats.Created++
		return
	}

	ref, err := e.createVoucher(ctx, preview, preview.AttachmentPath)
	if err == nil {
		e.recordSuccess(ctx, preview, ref)
		stats.Created++
		return
	}

	e.logger.Error("voucher submission failed", "email_id", email.ID, "error", err)

	canRetry := preview.AttachmentPath != "" && isAttachmentRejection(err)
	action, promptErr := e.prompter.ResolveFailure(ctx, preview, err, canRetry)
	if promptErr != nil {
		e.logger.Error("failure resolution aborted", "email_id", email.ID, "error", promptErr)
		stats.Failed++
		return
	}

	switch action {
	case FailureRetryWithoutAttachment:
		ref, retryErr := e.createVoucher(ctx, preview, "")
		if retryErr == nil {
			e.recordSuccess(ctx, preview, ref)
			stats.Created++
			return
		}

		e.logger.Error("retry without attachment failed", "email_id", email.ID, "error", retryErr)
		followup, promptErr := e.prompter.ResolveFailure(ctx, preview, retryErr, false)
		if promptErr == nil && followup == FailureIgnore {
			e.markIgnored(ctx, email.ID)
			stats.Ignored++
			return
		}
		stats.Failed++
	case FailureIgnore:
		e.markIgnored(ctx, email.ID)
		stats.Ignored++
	default:
		stats.Failed++
	}
}

func (e *Engine) createVoucher(ctx context.Context, preview VoucherPreview, attachmentPath string) (model.VoucherRef, error) {
	return e.ledger.CreateVoucher(ctx, service.CreateVoucherRequest{
		Description:    preview.Voucher.Description,
		Series:         preview.Voucher.Series,
		Date:           preview.Voucher.Date,
		AttachmentPath: attachmentPath,
		Entries:        preview.Voucher.Entries,
	})
}

func (e *Engine) recordSuccess(ctx context.Context, preview VoucherPreview, ref model.VoucherRef) {
	email := preview.Email

	e.logger.Info("voucher created", "email_id", email.ID, "voucher", ref.String())

	if err := e.storage.RecordVoucher(ctx, service.VoucherRecord{
		CreatedAt:   e.now(),
		EmailID:     email.ID,
		Description: preview.Voucher.Description,
		Series:      ref.Series,
		Number:      ref.Number,
		Date:        preview.Voucher.Date,
	}); err != nil {
		e.logger.Warn("failed to record voucher locally", "email_id", email.ID, "error", err)
	}

	e.markProcessed(ctx, email.ID)
}

func (e *Engine) markProcessed(ctx context.Context, emailID string) {
	if err := e.storage.MarkProcessed(ctx, emailID); err != nil {
		e.logger.Error("failed to mark email processed", "email_id", emailID, "error", err)
	}
}

func (e *Engine) markIgnored(ctx context.Context, emailID string) {
	if err := e.storage.MarkIgnored(ctx, emailID); err != nil {
		e.logger.Error("failed to mark email ignored", "email_id", emailID, "error", err)
	}
	e.logger.Info("email marked ignored", "email_id", emailID)
}

func isAttachmentRejection(err error) bool {
	var ledgerErr *common.LedgerError
	return errors.As(err, &ledgerErr) && ledgerErr.AttachmentRejected
}
