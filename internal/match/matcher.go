// Package match decides whether a message satisfies a rule's
// sender/subject/body criteria.
package match

import (
	"log/slog"
	"strings"

	"github.com/mailvoucher/mailvoucher/internal/model"
)

// Matches checks a message against a rule. All checks are case-sensitive
// substring containment and are AND-ed together; an unset criterion passes
// automatically, so a rule with no criteria at all matches every message.
//
// Body terms are checked independently against the plain-text and HTML
// bodies: with multiple terms, every term must appear in one body or the
// other, but not necessarily all in the same one.
//
// The logger controls diagnostic verbosity for the one call; matching
// itself keeps no state and never fails.
func Matches(email *model.EmailContent, rule model.Rule, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}

	if rule.Sender != "" && !strings.Contains(email.Sender, rule.Sender) {
		logger.Debug("sender mismatch",
			"want", rule.Sender, "got", email.Sender, "email_id", email.ID)
		return false
	}

	if rule.Subject != "" && !strings.Contains(email.Subject, rule.Subject) {
		logger.Debug("subject mismatch",
			"want", rule.Subject, "got", email.Subject, "email_id", email.ID)
		return false
	}

	for _, term := range rule.BodyContains {
		textMatch := email.BodyText != "" && strings.Contains(email.BodyText, term)
		htmlMatch := email.BodyHTML != "" && strings.Contains(email.BodyHTML, term)

		if !textMatch && !htmlMatch {
			logger.Debug("body term not found", "term", term, "email_id", email.ID)
			return false
		}
	}

	return true
}
