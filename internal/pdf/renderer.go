// Package pdf renders emails to PDF files for attachment to vouchers.
package pdf

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"

	"github.com/mailvoucher/mailvoucher/internal/model"
)

// maxSubjectLen caps the subject portion of generated filenames.
const maxSubjectLen = 30

// Renderer converts emails into PDF files under OutputDir.
type Renderer struct {
	outputDir string
	logger    *slog.Logger

	// now is swappable for deterministic filenames in tests.
	now func() time.Time
}

// NewRenderer creates a renderer writing into outputDir.
func NewRenderer(outputDir string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{outputDir: outputDir, logger: logger, now: time.Now}
}

// RenderToPDF writes the email as a PDF and returns the file path. The
// HTML body is rendered directly when present; otherwise the plain text
// body is escaped and wrapped.
func (r *Renderer) RenderToPDF(ctx context.Context, email *model.EmailContent) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	html, err := buildHTML(email)
	if err != nil {
		return "", fmt.Errorf("building email HTML: %w", err)
	}

	gen, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return "", fmt.Errorf("initializing pdf generator: %w", err)
	}

	page := wkhtmltopdf.NewPageReader(strings.NewReader(html))
	page.EnableLocalFileAccess.Set(false)
	gen.AddPage(page)
	gen.MarginTop.Set(10)
	gen.MarginBottom.Set(10)

	if err := gen.CreateContext(ctx); err != nil {
		return "", fmt.Errorf("rendering pdf: %w", err)
	}

	path := filepath.Join(r.outputDir, r.filename(email))
	if err := gen.WriteFile(path); err != nil {
		return "", fmt.Errorf("writing pdf: %w", err)
	}

	r.logger.Debug("rendered email to pdf", "email_id", email.ID, "path", path)
	return path, nil
}

// filename builds "<subject>_<timestamp>_<id-prefix>.pdf" with the
// subject reduced to filesystem-safe characters.
func (r *Renderer) filename(email *model.EmailContent) string {
	subject := safeSubject(email.Subject)
	timestamp := r.now().Format("20060102_150405")

	id := email.ID
	if len(id) > 8 {
		id = id[:8]
	}

	return fmt.Sprintf("%s_%s_%s.pdf", subject, timestamp, id)
}

func safeSubject(subject string) string {
	var b strings.Builder
	for _, c := range subject {
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == ' ' || c == '-' || c == '_' {
			b.WriteRune(c)
		}
	}

	s := strings.TrimSpace(b.String())
	if len(s) > maxSubjectLen {
		s = strings.TrimSpace(s[:maxSubjectLen])
	}
	if s == "" {
		s = "email"
	}
	return s
}

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Subject}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
.email-header { border-bottom: 1px solid #ddd; padding-bottom: 10px; margin-bottom: 20px; }
.email-metadata { color: #666; font-size: 0.9em; }
.email-text { white-space: pre-wrap; }
</style>
</head>
<body>
<div class="email-header">
<h2>{{.Subject}}</h2>
<div class="email-metadata">
<p><strong>From:</strong> {{.Sender}}</p>
<p><strong>Date:</strong> {{.Date}}</p>
</div>
</div>
<div class="email-content">
{{if .BodyHTML}}{{.BodyHTML}}{{else}}<div class="email-text">{{.BodyText}}</div>{{end}}
</div>
</body>
</html>
`))

func buildHTML(email *model.EmailContent) (string, error) {
	data := struct {
		Subject  string
		Sender   string
		Date     string
		BodyHTML template.HTML
		BodyText string
	}{
		Subject:  email.Subject,
		Sender:   email.Sender,
		Date:     email.Date.Format("2006-01-02 15:04:05"),
		BodyHTML: template.HTML(email.BodyHTML),
		BodyText: email.BodyText,
	}

	var b strings.Builder
	if err := emailTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
