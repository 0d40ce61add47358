package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailvoucher/mailvoucher/internal/cli"
)

func seriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "series",
		Short: "List voucher series available in the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := initLedgerClient(cfg)
			if err != nil {
				return err
			}
			if err := client.EnsureAuth(ctx); err != nil {
				return err
			}

			series, err := client.VoucherSeries(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Voucher series in %s", client.Name())))
			for _, s := range series {
				fmt.Fprintf(out, "  %-4s %s\n", s.Code, s.Description)
			}
			return nil
		},
	}
}

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List the ledger's chart of accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := initLedgerClient(cfg)
			if err != nil {
				return err
			}
			if err := client.EnsureAuth(ctx); err != nil {
				return err
			}

			accounts, err := client.ChartOfAccounts(ctx)
			if err != nil {
				return err
			}

			all, _ := cmd.Flags().GetBool("all")
			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Accounts in %s", client.Name())))
			for _, a := range accounts {
				if !a.Active && !all {
					continue
				}
				marker := " "
				if !a.Active {
					marker = "-"
				}
				fmt.Fprintf(out, " %s%-8s %s\n", marker, a.Number, a.Description)
			}
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "include inactive accounts")

	return cmd
}
