package content

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer holds the two policies used for display output: strict for plain text fields and UGC
// for post bodies. Policies are safe for concurrent use once built.
type Sanitizer struct {
	text *bluemonday.Policy
	html *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	html := bluemonday.UGCPolicy()
	html.AllowAttrs("class").OnElements("p", "div", "span", "pre", "code", "blockquote", "figure", "img")

	return &Sanitizer{
		text: bluemonday.StrictPolicy(),
		html: html,
	}
}

// Text strips all markup. Entities stay escaped, so applying it twice yields the same string.
func (s *Sanitizer) Text(in string) string {
	if in == "" {
		return ""
	}
	return strings.TrimSpace(s.text.Sanitize(in))
}

func (s *Sanitizer) HTML(in string) string {
	if in == "" {
		return ""
	}
	return s.html.Sanitize(in)
}

// SanitizeURL returns raw when it is an http(s) or relative URL, otherwise an empty string.
func SanitizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.ContainsAny(raw, "\x00\r\n\t<>\"") {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return ""
		}
		return u.String()
	case "":
		if u.Opaque != "" {
			return ""
		}
		return u.String()
	default:
		return ""
	}
}
