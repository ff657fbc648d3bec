package cleaner

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"meetingrelay/internal/domain"
)

// Clean strips a leading owner reference from text and capitalizes the result.
// Only the first matching form is removed: "<owner> to ", "<owner>: ", "<owner> ".
func Clean(text, owner string) string {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	if owner != "" {
		for _, prefix := range []string{owner + " to ", owner + ": ", owner + " "} {
			if hasPrefixFold(text, prefix) {
				text = text[len(prefix):]
				break
			}
		}
	}
	return capitalize(strings.TrimSpace(text))
}

// Task cleans a parsed entry.
func Task(e domain.TaskEntry) domain.CleanedTask {
	return domain.CleanedTask{Text: Clean(e.RawText, e.Owner), Owner: e.Owner}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
