package scrape

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTextChars caps excerpts and snippets.
const MaxTextChars = 700

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	titleRe       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaDescRe    = regexp.MustCompile(`(?is)<meta[^>]+name=["']description["'][^>]+content=["'](.*?)["']`)
	scriptStyleRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>|<style[^>]*>.*?</style>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
)

// CleanText collapses every whitespace run to a single space and trims.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Truncate shortens s to at most max characters, ending with an ellipsis
// when anything was cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:max-1]), " \t\n\r") + "…"
}

// ExtractTitle pulls the <title> text from an HTML document.
func ExtractTitle(doc string) string {
	m := titleRe.FindStringSubmatch(doc)
	if len(m) < 2 {
		return ""
	}
	return CleanText(html.UnescapeString(m[1]))
}

// ExtractMetaDescription pulls the content of <meta name="description">.
func ExtractMetaDescription(doc string) string {
	m := metaDescRe.FindStringSubmatch(doc)
	if len(m) < 2 {
		return ""
	}
	return CleanText(html.UnescapeString(m[1]))
}

// ExtractVisibleExcerpt strips script and style blocks, then all markup, and
// returns the collapsed text truncated to max characters.
func ExtractVisibleExcerpt(doc string, max int) string {
	text := scriptStyleRe.ReplaceAllString(doc, " ")
	text = tagRe.ReplaceAllString(text, " ")
	return Truncate(CleanText(html.UnescapeString(text)), max)
}
