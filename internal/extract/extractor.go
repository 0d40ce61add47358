package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mailvoucher/mailvoucher/internal/model"
)

// Extractor runs extraction specs against message bodies.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger falls back to the
// default slog logger.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Content is the body material extraction runs against.
type Content struct {
	BodyText string
	BodyHTML string
}

// ExtractAll resolves every spec against the content. Per variable, in
// strict order and stopping at the first captured value: the HTML pattern
// against the raw HTML, the plain pattern against the plain-text body,
// then the plain pattern against the tag-stripped HTML. A captured value
// that fails to normalize falls through to the spec's default. Variables
// with no final value are absent from the result; absence is meaningful
// and propagates to formula evaluation as "unresolved".
func (e *Extractor) ExtractAll(content Content, specs map[string]model.ExtractionSpec) map[string]decimal.Decimal {
	results := make(map[string]decimal.Decimal, len(specs))

	var strippedHTML string
	stripped := false

	for name, spec := range specs {
		var captured string

		if spec.HTMLPattern != "" && content.BodyHTML != "" {
			captured = e.extractValue(spec.HTMLPattern, content.BodyHTML)
		}
		if captured == "" && spec.Pattern != "" && content.BodyText != "" {
			captured = e.extractValue(spec.Pattern, content.BodyText)
		}
		if captured == "" && spec.Pattern != "" && content.BodyHTML != "" {
			if !stripped {
				strippedHTML = StripHTML(content.BodyHTML)
				stripped = true
			}
			captured = e.extractValue(spec.Pattern, strippedHTML)
		}

		value, ok := decimal.Zero, false
		if captured != "" {
			d, err := NormalizeDecimal(captured)
			if err != nil {
				e.logger.Debug("captured value did not normalize",
					"variable", name, "captured", captured, "error", err)
			} else {
				value, ok = d, true
			}
		}

		if !ok && spec.Default != nil && spec.Default.Set {
			if spec.Default.IsNumber {
				value, ok = spec.Default.Number, true
			} else if d, err := decimal.NewFromString(spec.Default.Formula); err == nil {
				value, ok = d, true
			} else {
				e.logger.Warn("invalid default value", "variable", name, "default", spec.Default.Formula)
			}
		}

		if !ok {
			e.logger.Debug("no value extracted", "variable", name)
			continue
		}

		results[name] = value.Round(2)
	}

	return results
}

// extractValue applies a single capture-group pattern to text and returns
// the trimmed first capture group, or "" when nothing matched. An invalid
// pattern is treated as a non-match.
func (e *Extractor) extractValue(pattern, text string) string {
	if pattern == "" || text == "" {
		return ""
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		e.logger.Warn("invalid extraction pattern", "pattern", pattern, "error", err)
		return ""
	}

	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
