package gmail

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/mailvoucher/mailvoucher/internal/model"
)

// decodeMessage flattens a full-format Gmail message into EmailContent.
// Multipart bodies are walked recursively; the first text/plain and
// text/html parts win.
func decodeMessage(msg *gmailv1.Message) *model.EmailContent {
	content := &model.EmailContent{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}

	if msg.Payload == nil {
		return content
	}

	for _, h := range msg.Payload.Headers {
		content.Headers = append(content.Headers, model.Header{Name: h.Name, Value: h.Value})
		switch strings.ToLower(h.Name) {
		case "subject":
			content.Subject = h.Value
		case "from":
			content.Sender = h.Value
		case "date":
			content.Date = parseDate(h.Value)
		}
	}

	text, html := extractBodies(msg.Payload)
	content.BodyText = text
	content.BodyHTML = html

	return content
}

// extractBodies walks a part tree and returns the first text/plain and
// text/html bodies found. A non-multipart payload carries its body
// directly on the root part.
func extractBodies(part *gmailv1.MessagePart) (text, html string) {
	if part == nil {
		return "", ""
	}

	switch {
	case part.MimeType == "text/plain" && text == "":
		text = decodeBody(part.Body)
	case part.MimeType == "text/html" && html == "":
		html = decodeBody(part.Body)
	}

	for _, sub := range part.Parts {
		subText, subHTML := extractBodies(sub)
		if text == "" {
			text = subText
		}
		if html == "" {
			html = subHTML
		}
		if text != "" && html != "" {
			break
		}
	}

	return text, html
}

func decodeBody(body *gmailv1.MessagePartBody) string {
	if body == nil || body.Data == "" {
		return ""
	}

	// The API uses URL-safe base64; padding varies by producer.
	data, err := base64.URLEncoding.DecodeString(body.Data)
	if err != nil {
		data, err = base64.RawURLEncoding.DecodeString(body.Data)
		if err != nil {
			return ""
		}
	}

	return string(data)
}

func parseDate(value string) time.Time {
	if t, err := mail.ParseDate(value); err == nil {
		return t
	}
	return time.Time{}
}
