package knowledge

import "unicode/utf8"

// EstimateTokens provides a rough token count.
// Uses rune count divided by 2 as a conservative estimate that works
// for both English (~4 chars/token) and CJK (~1.5 chars/token) text.
func EstimateTokens(text string) int {
	runeCount := utf8.RuneCountInString(text)
	if runeCount == 0 {
		return 0
	}
	tokens := runeCount / 2
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
