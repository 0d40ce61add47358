package gmail

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/mailvoucher/mailvoucher/internal/common"
)

const (
	callbackPort = 8085
	callbackPath = "/callback"

	// authTimeout bounds the wait for the browser round-trip.
	authTimeout = 5 * time.Minute
)

// Auth handles the Gmail OAuth flow and token persistence.
type Auth struct {
	CredentialsPath string
	TokenPath       string
	Logger          *slog.Logger
}

// Client returns an authenticated HTTP client. A saved token is used
// when present; otherwise ErrNotAuthenticated is returned so the
// caller can direct the user to `mailvoucher auth gmail`.
func (a *Auth) Client(ctx context.Context) (*http.Client, error) {
	config, err := a.config()
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(a.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("%w: no saved Gmail token, run 'mailvoucher auth gmail'", common.ErrNotAuthenticated)
	}

	return config.Client(ctx, tok), nil
}

// Authorize runs the interactive browser flow and saves the resulting
// token to TokenPath.
func (a *Auth) Authorize(ctx context.Context) error {
	config, err := a.config()
	if err != nil {
		return err
	}

	tok, err := a.tokenFromWeb(ctx, config)
	if err != nil {
		return err
	}

	return saveToken(a.TokenPath, tok)
}

// HasToken reports whether a saved token exists on disk.
func (a *Auth) HasToken() bool {
	_, err := tokenFromFile(a.TokenPath)
	return err == nil
}

func (a *Auth) config() (*oauth2.Config, error) {
	b, err := os.ReadFile(a.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading Gmail credentials file %s: %v", common.ErrMissingConfig, a.CredentialsPath, err)
	}

	config, err := google.ConfigFromJSON(b, gmailv1.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing Gmail credentials: %w", err)
	}

	config.RedirectURL = fmt.Sprintf("http://localhost:%d%s", callbackPort, callbackPath)
	return config, nil
}

func (a *Auth) tokenFromWeb(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	server, err := startCallbackServer(ctx, state, codeChan, errChan, logger)
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Printf("\nVisit this URL to authorize Gmail read access:\n%s\n\n", authURL)

	select {
	case code := <-codeChan:
		tok, err := config.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code: %w", err)
		}
		return tok, nil
	case err := <-errChan:
		return nil, fmt.Errorf("oauth callback: %w", err)
	case <-time.After(authTimeout):
		return nil, fmt.Errorf("oauth flow timed out after %v", authTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func startCallbackServer(ctx context.Context, expectedState string, codeChan chan<- string, errChan chan<- error, logger *slog.Logger) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		if state := r.URL.Query().Get("state"); state != expectedState {
			errChan <- fmt.Errorf("invalid state parameter")
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		if errMsg := r.URL.Query().Get("error"); errMsg != "" {
			errChan <- fmt.Errorf("%s: %s", errMsg, r.URL.Query().Get("error_description"))
			http.Error(w, fmt.Sprintf("Authentication failed: %s", errMsg), http.StatusBadRequest)
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Authentication successful</h1><p>You can close this window and return to the terminal.</p></body></html>")

		codeChan <- code
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", callbackPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("port %d unavailable: %w", callbackPort, err)
	}

	go func() {
		logger.Debug("starting OAuth callback server", "port", callbackPort)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	return server, nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return nil
}
