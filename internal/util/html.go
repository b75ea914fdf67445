// Package util renders provider event text for the terminal.
package util

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

type rewrite struct {
	re   *regexp.Regexp
	with string
}

var (
	tagRe         = regexp.MustCompile(`<[^>]*>`)
	anchorRe      = regexp.MustCompile(`(?i)<a\s[^>]*href\s*=\s*["']([^"']*)["'][^>]*>`)
	anchorCloseRe = regexp.MustCompile(`(?i)</a\s*>`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
	spacesRe      = regexp.MustCompile(`[^\S\n]+`)

	// Outlook sends whole documents; their head and styles are not text.
	invisibleRe = regexp.MustCompile(`(?is)<(head|style|script)(?:\s[^>]*)?>.*?</(?:head|style|script)\s*>|<!--.*?-->`)

	// Applied in order, before links are converted.
	structure = []rewrite{
		{regexp.MustCompile(`(?i)<br\s*/?\s*>`), "\n"},
		{regexp.MustCompile(`(?i)</(?:p|div|h[1-6]|blockquote|pre|table|tr)\s*>`), "\n\n"},
		{regexp.MustCompile(`(?i)<(?:p|div|h[1-6]|blockquote|pre|table|tr)(?:\s[^>]*)?\s*>`), "\n"},
		{regexp.MustCompile(`(?i)</?(?:ul|ol)(?:\s[^>]*)?\s*>`), ""},
		{regexp.MustCompile(`(?i)<li(?:\s[^>]*)?\s*>`), "\n" + bullet},
		{regexp.MustCompile(`(?i)</li\s*>`), ""},
		{regexp.MustCompile(`(?i)<hr(?:\s[^>]*)?\s*/?>`), "\n────────\n"},
	}
)

const bullet = "  • "

// HTMLToText converts an event description to plain terminal text. Links
// become OSC 8 hyperlinks whose label is cut to width cells; width <= 0
// keeps labels whole. Plain text passes through with whitespace tidied.
func HTMLToText(s string, width int) string {
	if s == "" {
		return s
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = invisibleRe.ReplaceAllString(s, "")
	for _, r := range structure {
		s = r.re.ReplaceAllString(s, r.with)
	}
	s = convertLinks(s, width)
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	// html.UnescapeString turns &nbsp; into U+00A0, which \s does not match.
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spacesRe.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "• "); ok {
			lines[i] = bullet + rest
		} else {
			lines[i] = trimmed
		}
	}
	s = strings.Join(lines, "\n")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

// convertLinks replaces anchors with terminal hyperlinks. An anchor without
// a closing tag loses its opening tag and keeps its text.
func convertLinks(s string, maxWidth int) string {
	var b strings.Builder
	for {
		loc := anchorRe.FindStringSubmatchIndex(s)
		if loc == nil {
			break
		}
		href := s[loc[2]:loc[3]]
		rest := s[loc[1]:]

		end := anchorCloseRe.FindStringIndex(rest)
		if end == nil {
			b.WriteString(s[:loc[0]])
			s = rest
			continue
		}

		label := strings.TrimSpace(tagRe.ReplaceAllString(rest[:end[0]], ""))
		href = UnwrapRedirect(html.UnescapeString(href))
		if label == "" {
			label = href
		}
		if maxWidth > 0 {
			label = TruncateText(label, maxWidth)
		}

		b.WriteString(s[:loc[0]])
		b.WriteString(MakeHyperlink(href, label))
		s = rest[end[1]:]
	}
	b.WriteString(s)
	return b.String()
}

// UnwrapRedirect returns the target of a Google redirect or an Outlook Safe
// Links URL. Any other URL is returned unchanged.
func UnwrapRedirect(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	var param string
	switch {
	case u.Host == "www.google.com" && u.Path == "/url":
		param = "q"
	case strings.HasSuffix(u.Host, ".safelinks.protection.outlook.com"):
		param = "url"
	default:
		return rawURL
	}
	if target := u.Query().Get(param); target != "" {
		return target
	}
	return rawURL
}
