package model

import (
	"fmt"
	"strings"
	"time"
)

// Header is a single raw message header.
type Header struct {
	Name  string
	Value string
}

// EmailContent is the decoded content of one fetched message. It is
// produced once per fetch and read-only afterwards; the core never
// persists it.
type EmailContent struct {
	Date     time.Time
	ID       string
	ThreadID string
	Subject  string
	Sender   string
	BodyText string
	BodyHTML string
	Headers  []Header
}

// HeaderValue returns the value of the first header with the given name,
// compared case-insensitively, or "" when absent.
func (e EmailContent) HeaderValue(name string) string {
	for _, h := range e.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// WebURL returns the Gmail web interface URL for the message.
func (e EmailContent) WebURL() string {
	return fmt.Sprintf("https://mail.google.com/mail/u/0/#inbox/%s", e.ID)
}
