package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Weekly sync", "Weekly sync"},
		{"paragraphs", "<p>Agenda</p><p>Second</p>", "Agenda\n\nSecond"},
		{"breaks", "one<br>two<BR/>three", "one\ntwo\nthree"},
		{"list", "<ul><li>alpha</li><li>beta</li></ul>", "• alpha\n  • beta"},
		{"entities", "Q&amp;A&nbsp;&nbsp;session", "Q&A session"},
		{"outlook document", "<html><head><style>p{margin:0}</style></head><body><p>Hello</p><!-- x --></body></html>", "Hello"},
		{"unclosed anchor", `<a href="https://x.test">dangling`, "dangling"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTMLToText(tt.in, 0))
		})
	}
}

func TestHTMLToText_Links(t *testing.T) {
	got := HTMLToText(`Join <a href="https://www.google.com/url?q=https://meet.test/abc&amp;sa=D">the call</a> now`, 0)
	assert.Equal(t, "Join "+MakeHyperlink("https://meet.test/abc", "the call")+" now", got)

	got = HTMLToText(`<a href="https://docs.test/a-very-long-document-name"></a>`, 10)
	assert.Equal(t, MakeHyperlink("https://docs.test/a-very-long-document-name", "https://d…"), got)
}

func TestUnwrapRedirect(t *testing.T) {
	assert.Equal(t, "https://meet.test/x",
		UnwrapRedirect("https://www.google.com/url?q=https%3A%2F%2Fmeet.test%2Fx&sa=D"))
	assert.Equal(t, "https://teams.test/join",
		UnwrapRedirect("https://eur01.safelinks.protection.outlook.com/?url=https%3A%2F%2Fteams.test%2Fjoin&data=1"))
	assert.Equal(t, "https://example.test/", UnwrapRedirect("https://example.test/"))
	assert.Equal(t, "https://www.google.com/url", UnwrapRedirect("https://www.google.com/url"))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", TruncateText("short", 10))
	assert.Equal(t, "abcd…", TruncateText("abcdefgh", 5))
	assert.Equal(t, "unbounded", TruncateText("unbounded", 0))

	link := MakeHyperlink("https://x.test", "abcdefgh")
	assert.Equal(t, link, TruncateText(link, 8))
}

func TestMakeHyperlink(t *testing.T) {
	assert.Equal(t, "label", MakeHyperlink("", "label"))
	got := MakeHyperlink("https://x.test", "label")
	assert.Contains(t, got, "https://x.test")
	assert.Contains(t, got, "label")
	assert.NotEqual(t, "label", got)
}
