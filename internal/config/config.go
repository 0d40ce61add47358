package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/mailvoucher/mailvoucher/internal/common"
	"github.com/mailvoucher/mailvoucher/internal/model"
)

// Config is the full application configuration, loaded from Viper
// (config file plus MAILVOUCHER_ environment variables).
type Config struct {
	Gmail      GmailConfig  `mapstructure:"gmail"`
	Ledger     LedgerConfig `mapstructure:"ledger"`
	Data       DataConfig   `mapstructure:"data"`
	Rules      []model.Rule `mapstructure:"email_rules"`
	MonthsBack int          `mapstructure:"months_back"`
	MaxResults int64        `mapstructure:"max_results"`
}

// GmailConfig holds the Gmail OAuth file locations.
type GmailConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
}

// LedgerConfig selects and configures the bookkeeping backend.
type LedgerConfig struct {
	Vendor       string `mapstructure:"vendor"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	BaseURL      string `mapstructure:"base_url"`
	AuthURL      string `mapstructure:"auth_url"`
	TokenURL     string `mapstructure:"token_url"`
	TokenFile    string `mapstructure:"token_file"`
}

// DataConfig holds local state locations: the tracking database and the
// directory rendered PDFs are written to.
type DataConfig struct {
	Dir      string `mapstructure:"dir"`
	Database string `mapstructure:"database"`
	PDFDir   string `mapstructure:"pdf_dir"`
}

// SetDefaults registers default values on v. Call before reading the
// config file so file values win over defaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", "~/.config/mailvoucher")
	v.SetDefault("ledger.vendor", "fortnox")
	v.SetDefault("ledger.redirect_uri", "http://localhost:8000/callback")
	v.SetDefault("months_back", 3)
	v.SetDefault("max_results", 200)
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		amountDecodeHook,
		stringToSliceDecodeHook,
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	cfg.applyDerivedDefaults()
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDerivedDefaults fills in paths that default relative to data.dir.
func (c *Config) applyDerivedDefaults() {
	dir := c.Data.Dir
	if c.Data.Database == "" {
		c.Data.Database = filepath.Join(dir, "mailvoucher.db")
	}
	if c.Data.PDFDir == "" {
		c.Data.PDFDir = filepath.Join(dir, "pdfs")
	}
	if c.Gmail.CredentialsFile == "" {
		c.Gmail.CredentialsFile = filepath.Join(dir, "gmail-credentials.json")
	}
	if c.Gmail.TokenFile == "" {
		c.Gmail.TokenFile = filepath.Join(dir, "gmail-token.json")
	}
	if c.Ledger.TokenFile == "" {
		c.Ledger.TokenFile = filepath.Join(dir, c.Ledger.Vendor+"-token.json")
	}
}

func (c *Config) expandPaths() {
	c.Data.Dir = ExpandPath(c.Data.Dir)
	c.Data.Database = ExpandPath(c.Data.Database)
	c.Data.PDFDir = ExpandPath(c.Data.PDFDir)
	c.Gmail.CredentialsFile = ExpandPath(c.Gmail.CredentialsFile)
	c.Gmail.TokenFile = ExpandPath(c.Gmail.TokenFile)
	c.Ledger.TokenFile = ExpandPath(c.Ledger.TokenFile)
}

// Validate checks vendor selection and rule shape. Pattern strings must be
// valid regular expressions so bad rules fail at startup rather than
// mid-run.
func (c *Config) Validate() error {
	switch c.Ledger.Vendor {
	case "fortnox", "kleer":
	default:
		return fmt.Errorf("%w: unknown ledger vendor %q", common.ErrInvalidConfig, c.Ledger.Vendor)
	}
	if c.MonthsBack < 1 {
		return fmt.Errorf("%w: months_back must be at least 1", common.ErrInvalidConfig)
	}
	names := make(map[string]bool, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.Name == "" {
			return fmt.Errorf("%w: email_rules[%d] has no name", common.ErrInvalidConfig, i)
		}
		if names[rule.Name] {
			return fmt.Errorf("%w: duplicate rule name %q", common.ErrInvalidConfig, rule.Name)
		}
		names[rule.Name] = true
		if err := validateRule(rule); err != nil {
			return fmt.Errorf("%w: rule %q: %w", common.ErrInvalidConfig, rule.Name, err)
		}
	}
	return nil
}

func validateRule(rule model.Rule) error {
	for name, spec := range rule.DataExtraction {
		if spec.Pattern == "" && spec.HTMLPattern == "" && (spec.Default == nil || !spec.Default.Set) {
			return fmt.Errorf("extraction %q has no pattern and no default", name)
		}
		for _, pattern := range []string{spec.Pattern, spec.HTMLPattern} {
			if pattern == "" {
				continue
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("extraction %q: %w", name, err)
			}
			if re.NumSubexp() < 1 {
				return fmt.Errorf("extraction %q: pattern has no capture group", name)
			}
		}
	}
	if len(rule.Accounting.Entries) == 0 {
		return fmt.Errorf("accounting has no entries")
	}
	for i, entry := range rule.Accounting.Entries {
		if entry.Account == "" {
			return fmt.Errorf("entry %d has no account", i)
		}
	}
	return nil
}

// amountDecodeHook lets configuration write amounts as YAML numbers or as
// formula strings. Numeric strings are treated as literals.
func amountDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(model.Amount{}) {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return model.NumberAmount(decimal.NewFromInt(int64(v))), nil
	case int64:
		return model.NumberAmount(decimal.NewFromInt(v)), nil
	case float64:
		return model.NumberAmount(decimal.NewFromFloat(v)), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return model.Amount{}, nil
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return model.NumberAmount(d), nil
		}
		return model.FormulaAmount(s), nil
	default:
		return data, nil
	}
}

// stringToSliceDecodeHook accepts a bare string where a list of strings is
// expected, so `body_contains: receipt` and `body_contains: [receipt]` are
// equivalent.
func stringToSliceDecodeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string(nil)) {
		return data, nil
	}
	s, ok := data.(string)
	if !ok || s == "" {
		return []string{}, nil
	}
	return []string{s}, nil
}
