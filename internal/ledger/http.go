package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/mailvoucher/mailvoucher/internal/common"
)

// contentTypes maps attachment file extensions to MIME types; anything
// else uploads as octet-stream.
var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func contentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// doJSON performs one authenticated JSON request and decodes the
// response into out (when out is non-nil). Non-2xx responses become
// LedgerError values carrying the status and response body.
func doJSON(ctx context.Context, client *http.Client, auth *tokenAuth, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	bearer, err := auth.bearer(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", bearer)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return &common.TransportError{Op: method + " " + url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &common.TransportError{Op: method + " " + url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// doUpload performs one authenticated raw-body upload (the Fortnox
// archive style) and decodes the JSON response into out.
func doUpload(ctx context.Context, client *http.Client, auth *tokenAuth, url, contentType string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building upload request: %w", err)
	}

	bearer, err := auth.bearer(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", bearer)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return &common.TransportError{Op: "POST " + url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &common.TransportError{Op: "POST " + url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding upload response: %w", err)
		}
	}
	return nil
}

func decodeJSON(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// newAPIError classifies an error response. A client error whose body
// mentions attachments is flagged so callers can offer a retry without
// the attachment.
func newAPIError(status int, body string) *common.LedgerError {
	msg := strings.TrimSpace(body)
	lerr := &common.LedgerError{
		StatusCode:         status,
		Message:            msg,
		AttachmentRejected: status >= 400 && status < 500 && strings.Contains(strings.ToLower(msg), "attachment"),
	}
	if status == http.StatusTooManyRequests {
		lerr.Err = common.ErrRateLimit
	}
	return lerr
}
