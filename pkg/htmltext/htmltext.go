package htmltext

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockElements = "p, div, section, article, li, tr, h1, h2, h3, h4, h5, h6, blockquote, pre, table, ul, ol"

var (
	spaceRun   = regexp.MustCompile(`[ \t\r\f\v\x{00a0}]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// LooksLikeHTML reports whether s contains something shaped like a tag.
func LooksLikeHTML(s string) bool {
	open := strings.IndexByte(s, '<')
	return open >= 0 && strings.IndexByte(s[open:], '>') > 0
}

// Clean converts rich-text content to plain text. Block elements become
// paragraph breaks so downstream chunking can still split on them; scripts
// and styles are dropped and entities decoded. Plain text passes through with
// only whitespace normalized.
func Clean(s string) string {
	if !LooksLikeHTML(s) {
		return normalize(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return normalize(s)
	}
	doc.Find("script, style, noscript, iframe").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockElements).Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n\n")
	})
	return normalize(doc.Text())
}

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(newlineRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
