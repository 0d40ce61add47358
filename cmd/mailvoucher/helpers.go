package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mailvoucher/mailvoucher/internal/config"
	"github.com/mailvoucher/mailvoucher/internal/gmail"
	"github.com/mailvoucher/mailvoucher/internal/ledger"
	"github.com/mailvoucher/mailvoucher/internal/service"
	"github.com/mailvoucher/mailvoucher/internal/storage"
)

// loadConfig materializes the typed configuration from Viper.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// initStorage opens the tracking database and runs migrations.
func initStorage(ctx context.Context, cfg *config.Config) (service.Storage, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Data.Database), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Data.Database)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// gmailAuth builds the Gmail OAuth helper from configuration.
func gmailAuth(cfg *config.Config) *gmail.Auth {
	return &gmail.Auth{
		CredentialsPath: cfg.Gmail.CredentialsFile,
		TokenPath:       cfg.Gmail.TokenFile,
		Logger:          slog.Default(),
	}
}

// initMailService returns an authenticated Gmail service.
func initMailService(ctx context.Context, cfg *config.Config) (service.MailService, error) {
	auth := gmailAuth(cfg)
	httpClient, err := auth.Client(ctx)
	if err != nil {
		return nil, err
	}
	return gmail.NewService(ctx, httpClient, slog.Default())
}

// initLedgerClient builds the configured vendor client.
func initLedgerClient(cfg *config.Config) (service.LedgerClient, error) {
	return ledger.NewClient(ledger.Options{
		Vendor:       cfg.Ledger.Vendor,
		ClientID:     cfg.Ledger.ClientID,
		ClientSecret: cfg.Ledger.ClientSecret,
		RedirectURI:  cfg.Ledger.RedirectURI,
		BaseURL:      cfg.Ledger.BaseURL,
		AuthURL:      cfg.Ledger.AuthURL,
		TokenURL:     cfg.Ledger.TokenURL,
		TokenFile:    cfg.Ledger.TokenFile,
		Logger:       slog.Default(),
	})
}
