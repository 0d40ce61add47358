// Package gmail wraps the Gmail API as the application's mail collaborator.
package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailvoucher/mailvoucher/internal/common"
	"github.com/mailvoucher/mailvoucher/internal/model"
	"github.com/mailvoucher/mailvoucher/internal/service"
)

const user = "me"

// pageSize is the Gmail API per-page maximum for message listing.
const pageSize = 500

// Service implements service.MailService against the Gmail API.
type Service struct {
	svc    *gmailv1.Service
	logger *slog.Logger
}

// NewService creates a Gmail service from an authenticated HTTP client.
func NewService(ctx context.Context, httpClient *http.Client, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &Service{svc: svc, logger: logger}, nil
}

// SearchEmails returns message references matching the query, paging
// through results up to maxResults.
func (s *Service) SearchEmails(ctx context.Context, query string, maxResults int64) ([]service.MessageRef, error) {
	var refs []service.MessageRef
	var pageToken string

	for int64(len(refs)) < maxResults {
		size := maxResults - int64(len(refs))
		if size > pageSize {
			size = pageSize
		}

		call := s.svc.Users.Messages.List(user).Q(query).MaxResults(size).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, &common.TransportError{Op: "search", Err: err}
		}

		for _, m := range resp.Messages {
			refs = append(refs, service.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}

		s.logger.Debug("fetching next result page", "fetched", len(refs), "query", query)
	}

	return refs, nil
}

// GetEmailContent fetches a message in full and decodes its headers and
// text/HTML bodies.
func (s *Service) GetEmailContent(ctx context.Context, id string) (*model.EmailContent, error) {
	msg, err := s.svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, &common.TransportError{Op: "get", Err: err}
	}

	return decodeMessage(msg), nil
}
