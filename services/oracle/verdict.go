package oracle

import (
	"strings"
	"unicode"
)

// Verdict is the normalized oracle answer
type Verdict struct {
	Allowed   bool
	Ambiguous bool
}

var negativeWords = map[string]bool{
	"false": true,
	"no":    true,
}

// ParseVerdict normalizes raw oracle output. The answer is affirmative iff
// the lower-cased text contains "true" or "yes"; anything else denies.
// Ambiguous marks output that carries neither an affirmative nor a
// recognizable negative token.
func ParseVerdict(raw string) Verdict {
	answer := strings.ToLower(strings.TrimSpace(raw))

	if strings.Contains(answer, "true") || strings.Contains(answer, "yes") {
		return Verdict{Allowed: true}
	}

	words := strings.FieldsFunc(answer, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if negativeWords[w] {
			return Verdict{Allowed: false}
		}
	}

	return Verdict{Allowed: false, Ambiguous: true}
}
