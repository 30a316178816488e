package formulate

import (
	"regexp"
	"strings"
)

// Short-choice detection: tiny replies to a pending clarification that
// unambiguously pick one of the offered options. These are classified
// deterministically, without a judgment call, because the judgment model
// misclassifies trivial inputs like "2" often enough to matter.
const shortChoiceMaxRunes = 15

var (
	bareDigitPattern = regexp.MustCompile(`^\d{1,2}[).:]?$`)
	variantNPattern  = regexp.MustCompile(`^вариант\s+\d{1,2}$`)
)

// Ordinal words in the two languages partners write in.
var ordinalWords = map[string]bool{
	"первый": true, "второй": true, "третий": true, "четвертый": true,
	"четвёртый": true, "пятый": true, "последний": true,
	"first": true, "second": true, "third": true, "fourth": true,
	"fifth": true, "last": true,
}

// IsShortChoice reports whether reply is a bare option pick: a digit, an
// ordinal word, or "вариант N", at most 15 runes long.
func IsShortChoice(reply string) bool {
	normalized := strings.ToLower(strings.TrimSpace(reply))
	if normalized == "" || len([]rune(normalized)) > shortChoiceMaxRunes {
		return false
	}

	if bareDigitPattern.MatchString(normalized) {
		return true
	}

	if variantNPattern.MatchString(normalized) {
		return true
	}

	return ordinalWords[strings.Trim(normalized, ".!)")]
}
