package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopwords are dropped from queries before keyword matching.
var stopwords = map[string]struct{}{
	"apa": {}, "itu": {}, "yang": {}, "dan": {}, "di": {}, "ke": {}, "dari": {},
	"untuk": {}, "ada": {}, "adalah": {}, "bagaimana": {}, "berapa": {}, "kapan": {},
	"siapa": {}, "dimana": {}, "mana": {}, "saya": {}, "kami": {}, "ini": {},
	"dengan": {}, "atau": {}, "juga": {}, "bisa": {}, "apakah": {}, "tentang": {},
	"the": {}, "is": {}, "are": {}, "what": {}, "how": {}, "when": {}, "and": {},
	"there": {}, "for": {}, "of": {},
}

// Keywords splits query into lowercased, de-duplicated terms of at least
// three letters, without stopwords.
func Keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// KeywordScore is the summed length of keywords found in text divided by the
// summed length of all keywords, so it lies in [0, 1].
func KeywordScore(keywords []string, text string) float64 {
	if len(keywords) == 0 || text == "" {
		return 0
	}
	lower := strings.ToLower(text)

	var matched, total int
	for _, kw := range keywords {
		n := utf8.RuneCountInString(kw)
		total += n
		if strings.Contains(lower, kw) {
			matched += n
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}
