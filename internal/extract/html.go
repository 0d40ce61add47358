package extract

import (
	stdhtml "html"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// StripHTML reduces HTML markup to plain text: tags removed, entities
// decoded, whitespace runs collapsed to a single space, ends trimmed.
// Malformed markup never raises; if parsing fails the reduction falls back
// to regex tag stripping plus entity decoding.
func StripHTML(raw string) string {
	if raw == "" {
		return ""
	}

	text, err := parseText(raw)
	if err != nil {
		text = stdhtml.UnescapeString(tagPattern.ReplaceAllString(raw, " "))
	}

	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// parseText walks the parsed document and collects text nodes, skipping
// script and style content.
func parseText(raw string) (string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return b.String(), nil
}
