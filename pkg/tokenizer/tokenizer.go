package tokenizer

import "unicode/utf8"

// EstimateTokens approximates the token count as one token per four characters,
// rounded up.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// CharsForTokens is the inverse of EstimateTokens: the largest character count
// that still estimates to at most tokens.
func CharsForTokens(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return tokens * 4
}
