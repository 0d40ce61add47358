package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mailvoucher/mailvoucher/internal/engine"
)

// Prompter implements the interactive review surface for voucher
// submission decisions.
type Prompter struct {
	startTime   time.Time
	writer      io.Writer
	reader      *NonBlockingReader
	progressBar *progressbar.ProgressBar
	totalEmails int
	mu          sync.Mutex
}

// NewPrompter creates a prompter reading from reader and writing to
// writer. Nil values default to stdin/stdout.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &Prompter{
		reader:    NewNonBlockingReader(reader),
		writer:    writer,
		startTime: time.Now(),
	}
}

// ReviewVoucher shows the voucher preview and asks the operator whether
// to create it, skip it, or ignore the email for good.
func (p *Prompter) ReviewVoucher(ctx context.Context, preview engine.VoucherPreview) (engine.Decision, error) {
	select {
	case <-ctx.Done():
		return engine.DecisionSkip, ctx.Err()
	default:
	}

	p.updateProgress()

	content := p.formatPreview(preview)
	if _, err := fmt.Fprintln(p.writer, RenderBox("Voucher Review", content)); err != nil {
		return engine.DecisionSkip, fmt.Errorf("failed to write voucher box: %w", err)
	}

	if !preview.Voucher.Balanced {
		if _, err := fmt.Fprintln(p.writer, FormatWarning("Debits and credits do NOT balance. Check the rule before creating.")); err != nil {
			return engine.DecisionSkip, fmt.Errorf("failed to write balance warning: %w", err)
		}
	}

	if preview.DryRun {
		if _, err := fmt.Fprintln(p.writer, FormatInfo("Dry run: nothing will be sent to the ledger.")); err != nil {
			return engine.DecisionSkip, fmt.Errorf("failed to write dry run note: %w", err)
		}
	}

	choice, err := p.promptChoice(ctx, "Create this voucher? [Y/n/i]", []string{"y", "n", "i"}, "y")
	if err != nil {
		return engine.DecisionSkip, err
	}

	switch choice {
	case "y":
		return engine.DecisionCreate, nil
	case "i":
		return engine.DecisionIgnore, nil
	default:
		return engine.DecisionSkip, nil
	}
}

// ResolveFailure reports a failed submission and asks what to do next.
func (p *Prompter) ResolveFailure(ctx context.Context, preview engine.VoucherPreview, submitErr error, canRetryWithoutAttachment bool) (engine.FailureAction, error) {
	if _, err := fmt.Fprintln(p.writer, FormatError(fmt.Sprintf("Voucher submission failed: %v", submitErr))); err != nil {
		return engine.FailureSkip, fmt.Errorf("failed to write failure message: %w", err)
	}

	if canRetryWithoutAttachment {
		if _, err := fmt.Fprintln(p.writer, FormatInfo("The ledger rejected the attachment field. The voucher itself may still be accepted.")); err != nil {
			return engine.FailureSkip, fmt.Errorf("failed to write attachment note: %w", err)
		}

		choice, err := p.promptChoice(ctx, "Retry without the attachment? [Y/n]", []string{"y", "n"}, "y")
		if err != nil {
			return engine.FailureSkip, err
		}
		if choice == "y" {
			return engine.FailureRetryWithoutAttachment, nil
		}
	}

	choice, err := p.promptChoice(ctx, "Ignore this email in the future? [y/N]", []string{"y", "n"}, "n")
	if err != nil {
		return engine.FailureSkip, err
	}
	if choice == "y" {
		return engine.FailureIgnore, nil
	}
	return engine.FailureSkip, nil
}

// SetTotalEmails sizes the progress bar for the run.
func (p *Prompter) SetTotalEmails(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalEmails = total
	if total > 1 {
		p.initProgressBar()
	}
}

// ShowCompletion prints the run summary.
func (p *Prompter) ShowCompletion(created, skipped, ignored, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.progressBar != nil {
		if err := p.progressBar.Finish(); err != nil {
			slog.Warn("Failed to finish progress bar", "error", err)
		}
	}

	elapsed := time.Since(p.startTime).Round(time.Second)

	summary := fmt.Sprintf("Created: %d  Skipped: %d  Ignored: %d  Failed: %d", created, skipped, ignored, failed)
	content := summary + "\n" + SubtleStyle.Render(fmt.Sprintf("Completed in %s", elapsed))

	if _, err := fmt.Fprintln(p.writer, RenderBox("Run Complete", content)); err != nil {
		slog.Warn("Failed to write completion summary", "error", err)
	}
}

func (p *Prompter) initProgressBar() {
	p.progressBar = progressbar.NewOptions(p.totalEmails,
		progressbar.OptionSetWriter(p.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Reviewing emails...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(p.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

func (p *Prompter) updateProgress() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.progressBar != nil {
		if err := p.progressBar.Add(1); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

func (p *Prompter) formatPreview(preview engine.VoucherPreview) string {
	email := preview.Email
	voucher := preview.Voucher

	header := fmt.Sprintf("%s Email:\n", InfoIcon) +
		fmt.Sprintf("  From: %s\n", email.Sender) +
		fmt.Sprintf("  Subject: %s\n", email.Subject)
	if !email.Date.IsZero() {
		header += fmt.Sprintf("  Date: %s\n", email.Date.Format("Jan 2, 2006"))
	}

	details := fmt.Sprintf("\n%s Voucher (rule: %s):\n", LedgerIcon, preview.RuleName) +
		fmt.Sprintf("  Description: %s\n", voucher.Description) +
		fmt.Sprintf("  Series: %s\n", voucher.Series) +
		fmt.Sprintf("  Date: %s\n", voucher.Date)

	if preview.AttachmentPath != "" {
		details += fmt.Sprintf("  %s Attachment: %s\n", PDFIcon, preview.AttachmentPath)
	}

	details += "\n  Entries:\n"
	for _, entry := range voucher.Entries {
		if !entry.Debit.IsZero() {
			details += fmt.Sprintf("    %s  debit  %s\n", entry.Account, entry.Debit.StringFixed(2))
		}
		if !entry.Credit.IsZero() {
			details += fmt.Sprintf("    %s  credit %s\n", entry.Account, entry.Credit.StringFixed(2))
		}
	}

	totals := fmt.Sprintf("\n  Total: %s = %s",
		voucher.TotalDebit.StringFixed(2), voucher.TotalCredit.StringFixed(2))
	if voucher.Balanced {
		totals += "  " + SuccessStyle.Render("balanced")
	} else {
		totals += "  " + ErrorStyle.Render("UNBALANCED")
	}

	extracted := p.formatExtracted(preview)

	return header + details + totals + extracted
}

func (p *Prompter) formatExtracted(preview engine.VoucherPreview) string {
	if len(preview.Extracted) == 0 {
		return ""
	}

	names := make([]string, 0, len(preview.Extracted))
	for name := range preview.Extracted {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("\n\n  Extracted values:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "    %s = %s\n", name, preview.Extracted[name].String())
	}
	return strings.TrimRight(b.String(), "\n")
}

func (p *Prompter) promptChoice(ctx context.Context, prompt string, validChoices []string, defaultChoice string) (string, error) {
	for {
		if _, err := fmt.Fprint(p.writer, FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		line, err := p.reader.ReadLine(ctx)
		if err != nil {
			if err == ErrInputCancelled {
				return "", ctx.Err()
			}
			if err == io.EOF {
				return defaultChoice, nil
			}
			return "", fmt.Errorf("failed to read input: %w", err)
		}

		choice := strings.ToLower(strings.TrimSpace(line))
		if choice == "" {
			return defaultChoice, nil
		}

		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}

		if _, err := fmt.Fprintln(p.writer, FormatWarning(fmt.Sprintf("Please answer one of: %s", strings.Join(validChoices, ", ")))); err != nil {
			return "", fmt.Errorf("failed to write retry prompt: %w", err)
		}
	}
}
