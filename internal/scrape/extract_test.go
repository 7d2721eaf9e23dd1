package scrape

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	assert.Equal(t, "", CleanText(""))
	assert.Equal(t, "a b c", CleanText("  a\n\tb   c \r\n"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "exactly10!", Truncate("exactly10!", 10))

	out := Truncate("hello world again", 7)
	assert.Equal(t, "hello…", out)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), 7)
}

func TestTruncate_CountsRunes(t *testing.T) {
	in := strings.Repeat("é", 800)
	out := Truncate(in, MaxTextChars)
	assert.Equal(t, MaxTextChars, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.True(t, utf8.ValidString(out))
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Acme & Co", ExtractTitle(`<html><head><TITLE lang="en">
		Acme &amp; Co </TITLE></head></html>`))
	assert.Equal(t, "", ExtractTitle(`<html><body>no title</body></html>`))
}

func TestExtractMetaDescription(t *testing.T) {
	doc := `<head><meta charset="utf-8"><meta name="description" content="Billing   for
	teams"></head>`
	assert.Equal(t, "Billing for teams", ExtractMetaDescription(doc))

	single := `<meta name='description' content='Single quoted'>`
	assert.Equal(t, "Single quoted", ExtractMetaDescription(single))

	assert.Equal(t, "", ExtractMetaDescription(`<meta property="og:title" content="x">`))
}

func TestExtractVisibleExcerpt(t *testing.T) {
	doc := `<html><head><style>body{color:red}</style>
<script type="text/javascript">var tracking = true;</script></head>
<body><h1>Welcome</h1><p>We build   great products.</p></body></html>`

	out := ExtractVisibleExcerpt(doc, MaxTextChars)
	assert.Equal(t, "Welcome We build great products.", out)
	assert.NotContains(t, out, "tracking")
	assert.NotContains(t, out, "color")
}

func TestExtractVisibleExcerpt_Truncates(t *testing.T) {
	doc := "<p>" + strings.Repeat("word ", 400) + "</p>"
	out := ExtractVisibleExcerpt(doc, MaxTextChars)
	assert.LessOrEqual(t, utf8.RuneCountInString(out), MaxTextChars)
	assert.True(t, strings.HasSuffix(out, "…"))
}
