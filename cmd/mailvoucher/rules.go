package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailvoucher/mailvoucher/internal/cli"
	"github.com/mailvoucher/mailvoucher/internal/common"
	"github.com/mailvoucher/mailvoucher/internal/extract"
	"github.com/mailvoucher/mailvoucher/internal/formula"
	"github.com/mailvoucher/mailvoucher/internal/gmail"
	"github.com/mailvoucher/mailvoucher/internal/match"
	"github.com/mailvoucher/mailvoucher/internal/model"
	"github.com/mailvoucher/mailvoucher/internal/service"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and test email rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesTestCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(cfg.Rules) == 0 {
				fmt.Fprintln(out, cli.FormatWarning("No rules configured"))
				return nil
			}

			for _, rule := range cfg.Rules {
				fmt.Fprintln(out, cli.RenderBox(rule.Name, describeRule(rule)))
			}
			return nil
		},
	}
}

func describeRule(rule model.Rule) string {
	var b strings.Builder
	if rule.Sender != "" {
		fmt.Fprintf(&b, "Sender:   %s\n", rule.Sender)
	}
	if rule.Subject != "" {
		fmt.Fprintf(&b, "Subject:  %s\n", rule.Subject)
	}
	if len(rule.BodyContains) > 0 {
		fmt.Fprintf(&b, "Body:     %s\n", strings.Join(rule.BodyContains, ", "))
	}
	if !rule.HasCriteria() {
		b.WriteString(cli.FormatWarning("Matches every email in the window") + "\n")
	}

	if len(rule.DataExtraction) > 0 {
		b.WriteString("\nExtracted values:\n")
		names := make([]string, 0, len(rule.DataExtraction))
		for name := range rule.DataExtraction {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			spec := rule.DataExtraction[name]
			line := "  " + name
			if spec.Default != nil && spec.Default.Set {
				line += fmt.Sprintf(" (default %s)", spec.Default)
			}
			b.WriteString(line + "\n")
		}
	}

	fmt.Fprintf(&b, "\nVoucher: %s (series %s)\n", rule.Accounting.Description, rule.Accounting.Series)
	for _, entry := range rule.Accounting.Entries {
		switch {
		case entry.Debit.Set:
			fmt.Fprintf(&b, "  %s  debit  %s\n", entry.Account, entry.Debit)
		case entry.Credit.Set:
			fmt.Fprintf(&b, "  %s  credit %s\n", entry.Account, entry.Credit)
		default:
			fmt.Fprintf(&b, "  %s\n", entry.Account)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func rulesTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <rule-name>",
		Short: "Test a rule against real mail",
		Long: `Search Gmail with a rule's criteria and show what the most recent
matching email would produce: the extracted values, the computed entries,
and whether the voucher balances. Nothing is created or recorded.`,
		Args: cobra.ExactArgs(1),
		RunE: runRulesTest,
	}

	cmd.Flags().String("email", "", "test against a specific message ID instead of searching")
	cmd.Flags().Int("months-back", 0, "how many months back to search (default from config)")

	return cmd
}

func runRulesTest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var rule model.Rule
	found := false
	for _, r := range cfg.Rules {
		if r.Name == args[0] {
			rule = r
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: no rule named %q", common.ErrNotFound, args[0])
	}

	mail, err := initMailService(ctx, cfg)
	if err != nil {
		return err
	}

	email, err := findTestEmail(cmd, mail, rule, cfg.MonthsBack)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\n", cli.FormatInfo(fmt.Sprintf("Testing against %q from %s (%s)",
		email.Subject, email.Sender, email.Date.Format("2006-01-02"))))

	if !match.Matches(email, rule, slog.Default()) {
		fmt.Fprintln(out, cli.FormatError("Email does not match the rule"))
		return nil
	}

	extractor := extract.NewExtractor(slog.Default())
	values := extractor.ExtractAll(extract.Content{
		BodyText: email.BodyText,
		BodyHTML: email.BodyHTML,
	}, rule.DataExtraction)

	var b strings.Builder
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s = %s\n", name, values[name])
	}
	for name := range rule.DataExtraction {
		if _, ok := values[name]; !ok {
			fmt.Fprintf(&b, "%s\n", cli.FormatWarning(name+" did not resolve"))
		}
	}

	entries := formula.CalculateEntries(rule.Accounting.Entries, values)
	totalDebit, totalCredit := formula.Totals(entries)
	b.WriteString("\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "%-8s debit %12s  credit %12s\n",
			entry.Account, entry.Debit.StringFixed(2), entry.Credit.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotals: debit %s, credit %s\n", totalDebit.StringFixed(2), totalCredit.StringFixed(2))
	if formula.IsBalanced(entries) {
		b.WriteString(cli.FormatSuccess("Voucher balances"))
	} else {
		b.WriteString(cli.FormatError("Voucher does NOT balance"))
	}

	fmt.Fprintln(out, cli.RenderBox(rule.Name, b.String()))
	return nil
}

// findTestEmail resolves the message to test against: an explicit ID when
// given, otherwise the newest message the rule's query returns.
func findTestEmail(cmd *cobra.Command, mail service.MailService, rule model.Rule, monthsBack int) (*model.EmailContent, error) {
	ctx := cmd.Context()

	if id, _ := cmd.Flags().GetString("email"); id != "" {
		return mail.GetEmailContent(ctx, id)
	}

	if flagMonths, _ := cmd.Flags().GetInt("months-back"); flagMonths > 0 {
		monthsBack = flagMonths
	}
	since := gmail.SinceMonthsBack(time.Now(), monthsBack)
	refs, err := mail.SearchEmails(ctx, gmail.BuildQuery(rule, since), 25)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no mail found for rule %q", common.ErrNotFound, rule.Name)
	}

	var newest *model.EmailContent
	for _, ref := range refs {
		email, err := mail.GetEmailContent(ctx, ref.ID)
		if err != nil {
			slog.Warn("Failed to fetch email", "id", ref.ID, "error", err)
			continue
		}
		if match.Matches(email, rule, slog.Default()) {
			if newest == nil || email.Date.After(newest.Date) {
				newest = email
			}
		}
	}
	if newest == nil {
		// Fall back to the newest message the server query returned so
		// the operator still sees why matching failed.
		return mail.GetEmailContent(ctx, refs[0].ID)
	}
	return newest, nil
}
