package util

import (
	"github.com/microcosm-cc/bluemonday"
)

var contentPolicy = newContentPolicy()

// newContentPolicy builds the allow-list for remote post HTML.
// Roughly the element set Mastodon emits, nothing more.
func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "span", "a", "b", "strong", "i", "em",
		"u", "del", "code", "pre", "blockquote", "ul", "ol", "li",
		"h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowAttrs("href", "rel").OnElements("a")
	p.AllowAttrs("class").OnElements("span", "a")
	p.AllowStandardURLs()
	p.RequireNoFollowOnLinks(true)
	return p
}

// SanitizeContent strips everything outside the HTML allow-list from
// remote post content
func SanitizeContent(content string) string {
	return contentPolicy.Sanitize(content)
}
