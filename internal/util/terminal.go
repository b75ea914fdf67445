package util

import (
	"github.com/charmbracelet/x/ansi"
)

// MakeHyperlink wraps displayText in an OSC 8 hyperlink to url. Terminals
// without OSC 8 support show displayText alone.
func MakeHyperlink(url, displayText string) string {
	if url == "" {
		return displayText
	}
	return ansi.SetHyperlink(url) + displayText + ansi.ResetHyperlink()
}

// TruncateText cuts s to at most maxLen terminal cells, ending it with "…"
// when anything was removed. Escape sequences are kept and not counted.
func TruncateText(s string, maxLen int) string {
	if maxLen <= 0 || ansi.StringWidth(s) <= maxLen {
		return s
	}
	return ansi.Truncate(s, maxLen, "…")
}
