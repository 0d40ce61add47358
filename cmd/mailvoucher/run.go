package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailvoucher/mailvoucher/internal/cli"
	"github.com/mailvoucher/mailvoucher/internal/common"
	"github.com/mailvoucher/mailvoucher/internal/engine"
	"github.com/mailvoucher/mailvoucher/internal/pdf"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan mail and file vouchers interactively",
		Long: `Search Gmail for messages matching your configured rules, extract the
amounts, and file one voucher per matched email after you confirm it.

Each voucher is shown for review before anything is created. Answer y to
create it, n to skip it for now, or i to ignore the email permanently.`,
		RunE: runRun,
	}

	cmd.Flags().Bool("dry-run", false, "preview vouchers without creating anything in the ledger")
	cmd.Flags().Int("months-back", 0, "how many months back to search (default from config)")
	cmd.Flags().Bool("ignore-processed", false, "reconsider emails that were already processed")
	cmd.Flags().Int64("max-results", 0, "cap matched emails per rule (default from config)")

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ignoreProcessed, _ := cmd.Flags().GetBool("ignore-processed")
	monthsBack, _ := cmd.Flags().GetInt("months-back")
	if monthsBack == 0 {
		monthsBack = cfg.MonthsBack
	}
	maxResults, _ := cmd.Flags().GetInt64("max-results")
	if maxResults == 0 {
		maxResults = cfg.MaxResults
	}

	mail, err := initMailService(ctx, cfg)
	if err != nil {
		if errors.Is(err, common.ErrNotAuthenticated) {
			return common.NewUserError("Gmail access is not set up. Run 'mailvoucher auth gmail' first", err)
		}
		return err
	}

	ledgerClient, err := initLedgerClient(cfg)
	if err != nil {
		return err
	}
	if !dryRun && !ledgerClient.IsAuthenticated() {
		return common.NewUserError(
			fmt.Sprintf("%s access is not set up. Run 'mailvoucher auth ledger' first", ledgerClient.Name()), nil)
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Warn("Failed to close storage", "error", closeErr)
		}
	}()

	renderer := pdf.NewRenderer(cfg.Data.PDFDir, slog.Default())
	prompter := cli.NewPrompter(os.Stdin, os.Stdout)

	eng, err := engine.New(mail, ledgerClient, renderer, store, prompter, slog.Default())
	if err != nil {
		return err
	}

	interrupts := cli.NewInterruptHandler(os.Stdout)
	ctx = interrupts.HandleInterrupts(ctx)

	stats, err := eng.Run(ctx, cfg.Rules, engine.RunOptions{
		DryRun:          dryRun,
		IgnoreProcessed: ignoreProcessed,
		MonthsBack:      monthsBack,
		MaxResults:      maxResults,
	})
	if interrupts.WasInterrupted() && errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	if stats.Failed > 0 {
		return fmt.Errorf("%d voucher(s) failed", stats.Failed)
	}
	return nil
}
