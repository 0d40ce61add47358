package gmail

import (
	"fmt"
	"strings"
	"time"

	"github.com/mailvoucher/mailvoucher/internal/model"
)

// BuildQuery composes a Gmail search query narrowing results to the
// rule's sender and the given date window. Subject and body criteria
// are deliberately left out of the server-side query; Gmail tokenizes
// them too aggressively, so those checks happen in memory after fetch.
func BuildQuery(rule model.Rule, since time.Time) string {
	parts := []string{fmt.Sprintf("after:%s", since.Format("2006/01/02"))}

	if rule.Sender != "" {
		parts = append(parts, fmt.Sprintf("from:(%s)", rule.Sender))
	}

	return strings.Join(parts, " ")
}

// SinceMonthsBack returns the start of the search window, monthsBack
// whole months before now.
func SinceMonthsBack(now time.Time, monthsBack int) time.Time {
	if monthsBack < 1 {
		monthsBack = 1
	}
	return now.AddDate(0, -monthsBack, 0)
}
