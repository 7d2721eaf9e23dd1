package scrape

import (
	"net/url"
	"strings"
	"unicode"
)

// NormalizeURL canonicalizes a hint into scheme://host/path. Query strings and
// fragments are dropped. Returns false when no host can be recovered.
func NormalizeURL(raw string) (string, bool) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", false
	}

	lower := strings.ToLower(candidate)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return "", false
	}
	if strings.ContainsFunc(u.Host, unicode.IsSpace) {
		return "", false
	}

	return u.Scheme + "://" + u.Host + u.EscapedPath(), true
}
