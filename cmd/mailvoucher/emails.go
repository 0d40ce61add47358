package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailvoucher/mailvoucher/internal/cli"
	"github.com/mailvoucher/mailvoucher/internal/model"
	"github.com/mailvoucher/mailvoucher/internal/service"
)

func emailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emails",
		Short: "Inspect tracked email decisions",
	}

	cmd.AddCommand(emailsListCmd("processed", "Emails that already produced a voucher (or were skipped in dry-run)",
		func(ctx context.Context, store service.Storage) ([]string, error) {
			return store.ProcessedIDs(ctx)
		}))
	cmd.AddCommand(emailsListCmd("ignored", "Emails you chose to never see again",
		func(ctx context.Context, store service.Storage) ([]string, error) {
			return store.IgnoredIDs(ctx)
		}))

	return cmd
}

func emailsListCmd(name, short string, fetch func(context.Context, service.Storage) ([]string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ids, err := fetch(ctx, store)
			if err != nil {
				return err
			}

			if len(ids) == 0 {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("No %s emails", name)))
				return nil
			}

			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%d %s email(s)", len(ids), name)))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s  %s\n", id, model.EmailContent{ID: id}.WebURL())
			}
			return nil
		},
	}
}

func vouchersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vouchers",
		Short: "List vouchers created by previous runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records, err := store.Vouchers(ctx)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No vouchers recorded yet"))
				return nil
			}

			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%d voucher(s)", len(records))))
			for _, rec := range records {
				fmt.Fprintf(out, "  %s%-6s %s  %s\n", rec.Series, rec.Number, rec.Date, rec.Description)
			}
			return nil
		},
	}
}
