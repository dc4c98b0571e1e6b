package internal

import (
	"errors"
	"strings"
)

// ErrNoLetters is returned for words that have nothing left after CleanWord
var ErrNoLetters = errors.New("word contains no letters")

// CleanWord normalizes a vocabulary word so it can be used in lookup URLs
// and as a file name. The word is lower-cased and everything that is not a
// Latin letter (including æ, ø and å) is dropped.
func CleanWord(word string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(word) {
		if isWordLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isWordLetter reports whether r is kept by CleanWord
func isWordLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= 0x00C0 && r <= 0x024F) || // Latin-1 Supplement letters and Latin Extended-A/B
		(r >= 0x1E00 && r <= 0x1EFF) // Latin Extended Additional
}
