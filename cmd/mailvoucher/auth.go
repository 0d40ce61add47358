package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailvoucher/mailvoucher/internal/cli"
	"github.com/mailvoucher/mailvoucher/internal/common"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Gmail and your ledger",
	}

	cmd.AddCommand(authGmailCmd())
	cmd.AddCommand(authLedgerCmd())
	cmd.AddCommand(authStatusCmd())

	return cmd
}

func authGmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gmail",
		Short: "Authorize read-only Gmail access",
		Long: `Run the Gmail OAuth flow in your browser and save the resulting token.

Requires OAuth client credentials downloaded from Google Cloud Console at
the configured gmail.credentials_file path.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if err := gmailAuth(cfg).Authorize(cmd.Context()); err != nil {
				return fmt.Errorf("gmail authorization failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Gmail authorized"))
			return nil
		},
	}
}

func authLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Authorize access to the configured ledger",
		Long: `Run the OAuth flow for the configured ledger vendor and save the tokens.

Opens an authorization URL; after you approve access the vendor redirects
back to the configured redirect URI, which must point at localhost.`,
		RunE: runAuthLedger,
	}

	cmd.Flags().Bool("check", false, "only test the existing connection, do not re-authorize")

	return cmd
}

func runAuthLedger(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if check, _ := cmd.Flags().GetBool("check"); check {
		client, err := initLedgerClient(cfg)
		if err != nil {
			return err
		}
		if err := client.TestConnection(ctx); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Connected to %s", client.Name())))
		return nil
	}
	if cfg.Ledger.ClientID == "" || cfg.Ledger.ClientSecret == "" {
		return fmt.Errorf("%w: ledger.client_id and ledger.client_secret are required", common.ErrMissingConfig)
	}

	client, err := initLedgerClient(cfg)
	if err != nil {
		return err
	}

	state, err := randomState()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, cli.FormatInfo("Open this URL in your browser and approve access:"))
	fmt.Fprintln(out, client.AuthorizationURL(state))

	code, err := waitForCallback(ctx, client.RedirectURI(), state)
	if err != nil {
		return err
	}

	if err := client.FetchTokens(ctx, code); err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}

	if err := client.TestConnection(ctx); err != nil {
		return fmt.Errorf("authorized, but connection test failed: %w", err)
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Authorized with %s", client.Name())))
	return nil
}

// waitForCallback runs a one-shot HTTP server on the redirect URI's
// address and returns the authorization code it receives.
func waitForCallback(ctx context.Context, redirectURI, expectedState string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: invalid redirect URI %q", common.ErrInvalidConfig, redirectURI)
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" {
		return "", fmt.Errorf("%w: redirect URI must point at localhost for the local callback flow", common.ErrInvalidConfig)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(u.Path, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != expectedState {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errChan <- fmt.Errorf("oauth state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errChan <- fmt.Errorf("callback had no authorization code")
			return
		}
		fmt.Fprintln(w, "Authorization received. You can close this window.")
		codeChan <- code
	})

	listener, err := net.Listen("tcp", net.JoinHostPort(host, u.Port()))
	if err != nil {
		return "", fmt.Errorf("failed to listen on redirect address: %w", err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	select {
	case code := <-codeChan:
		return code, nil
	case err := <-errChan:
		return "", err
	case <-time.After(5 * time.Minute):
		return "", fmt.Errorf("timed out waiting for authorization")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func authStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if gmailAuth(cfg).HasToken() {
				fmt.Fprintln(out, cli.FormatSuccess("Gmail: token saved"))
			} else {
				fmt.Fprintln(out, cli.FormatWarning("Gmail: not authorized (run 'mailvoucher auth gmail')"))
			}

			client, err := initLedgerClient(cfg)
			if err != nil {
				return err
			}
			if !client.IsAuthenticated() {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s: not authorized (run 'mailvoucher auth ledger')", client.Name())))
				return nil
			}
			if err := client.TestConnection(ctx); err != nil {
				slog.Debug("Ledger connection test failed", "error", err)
				fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: token saved but connection test failed: %v", client.Name(), err)))
				return nil
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s: connected", client.Name())))
			return nil
		},
	}
}
