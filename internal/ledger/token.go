// Package ledger provides accounting vendor clients behind the
// service.LedgerClient interface. The concrete vendor is selected by
// configuration through NewClient.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mailvoucher/mailvoucher/internal/common"
)

// expiryMargin refreshes tokens a bit before they actually expire so an
// in-flight request never races the expiry.
const expiryMargin = 60 * time.Second

// storedToken is the on-disk token file format.
type storedToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// tokenResponse is the OAuth token endpoint response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// tokenAuth implements the authorization-code OAuth2 lifecycle shared by
// the vendor clients: authorization URL, code exchange, refresh, and
// token file persistence.
type tokenAuth struct {
	clientID     string
	clientSecret string
	redirectURI  string
	authURL      string
	tokenURL     string
	tokenFile    string
	scopes       []string

	// basicAuth selects HTTP basic auth on the token endpoint; when
	// false the credentials go in the form body instead.
	basicAuth bool

	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func newTokenAuth(clientID, clientSecret, redirectURI, authURL, tokenURL, tokenFile string, scopes []string, basicAuth bool, httpClient *http.Client, logger *slog.Logger) *tokenAuth {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &tokenAuth{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		authURL:      authURL,
		tokenURL:     tokenURL,
		tokenFile:    tokenFile,
		scopes:       scopes,
		basicAuth:    basicAuth,
		httpClient:   httpClient,
		logger:       logger,
	}
	a.load()
	return a
}

func (a *tokenAuth) load() {
	data, err := os.ReadFile(a.tokenFile)
	if err != nil {
		return
	}

	var tok storedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		a.logger.Debug("ignoring unreadable token file", "path", a.tokenFile, "error", err)
		return
	}

	a.accessToken = tok.AccessToken
	a.refreshToken = tok.RefreshToken
	a.expiresAt = time.Unix(tok.ExpiresAt, 0)
}

func (a *tokenAuth) save() error {
	tok := storedToken{
		AccessToken:  a.accessToken,
		RefreshToken: a.refreshToken,
		ExpiresAt:    a.expiresAt.Unix(),
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(a.tokenFile), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	if err := os.WriteFile(a.tokenFile, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// AuthorizationURL builds the URL the user visits to grant access.
func (a *tokenAuth) AuthorizationURL(state string) string {
	params := url.Values{
		"client_id":     {a.clientID},
		"scope":         {strings.Join(a.scopes, " ")},
		"response_type": {"code"},
		"redirect_uri":  {a.redirectURI},
		"state":         {state},
	}
	return a.authURL + "?" + params.Encode()
}

// RedirectURI returns the registered redirect URI.
func (a *tokenAuth) RedirectURI() string {
	return a.redirectURI
}

// FetchTokens exchanges an authorization code for tokens and persists them.
func (a *tokenAuth) FetchTokens(ctx context.Context, code string) error {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {a.redirectURI},
	}
	return a.tokenRequest(ctx, form)
}

// refresh exchanges the refresh token for a new access token. Callers
// must hold a.mu.
func (a *tokenAuth) refresh(ctx context.Context) error {
	if a.refreshToken == "" {
		return fmt.Errorf("%w: no refresh token", common.ErrNotAuthenticated)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {a.refreshToken},
	}
	return a.tokenRequestLocked(ctx, form)
}

func (a *tokenAuth) tokenRequest(ctx context.Context, form url.Values) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokenRequestLocked(ctx, form)
}

func (a *tokenAuth) tokenRequestLocked(ctx context.Context, form url.Values) error {
	if !a.basicAuth {
		form.Set("client_id", a.clientID)
		form.Set("client_secret", a.clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if a.basicAuth {
		req.SetBasicAuth(a.clientID, a.clientSecret)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &common.TransportError{Op: "token", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &common.TransportError{Op: "token", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return &common.LedgerError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Err:        common.ErrNotAuthenticated,
		}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}

	a.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		a.refreshToken = tok.RefreshToken
	}
	expiresIn := tok.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}
	a.expiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)

	if err := a.save(); err != nil {
		a.logger.Warn("failed to persist tokens", "error", err)
	}
	return nil
}

// EnsureAuth guarantees a usable access token, refreshing when the
// current one is expired or about to expire.
func (a *tokenAuth) EnsureAuth(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.expiresAt.Add(-expiryMargin)) {
		return nil
	}
	return a.refresh(ctx)
}

// IsAuthenticated reports whether a currently valid access token exists.
func (a *tokenAuth) IsAuthenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accessToken != "" && time.Now().Before(a.expiresAt)
}

// bearer returns the Authorization header value, ensuring freshness first.
func (a *tokenAuth) bearer(ctx context.Context) (string, error) {
	if err := a.EnsureAuth(ctx); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return "Bearer " + a.accessToken, nil
}
