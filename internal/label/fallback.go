package label

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const fallbackWords = 5

// greetingPattern matches one leading greeting, optionally followed by a salutation
// aimed at whoever is on the other side ("Hi doctor,", "Good morning Dr.").
// A capitalised name after "Dr" is dropped too; after "doctor" or "nurse" only when
// punctuation closes it ("Hi doctor Patel, ...").
var greetingPattern = regexp.MustCompile(`(?i)^(?:hi|hello|hey|hiya|greetings|good\s+(?:morning|afternoon|evening))\b[\s,!.:;-]*` +
	`(?:(?:dear\s+)?(?:` +
	`dr\b\.?[\s,!.:;-]*(?:(?-i:[A-Z][a-z'-]+)\b[\s,!.:;-]*)?` +
	`|(?:doctor|doc|nurse)\b[\s,!.:;-]*(?:(?-i:[A-Z][a-z'-]+)[,!:;][\s,!.:;-]*)?` +
	`|(?:there|team|everyone|all)\b[\s,!.:;-]*` +
	`))?`)

// Fallback derives a label from the first user message without any external call.
func Fallback(text string) string {
	stripped := stripGreetings(text)
	if label := titleWords(stripped); label != "" {
		return label
	}
	return titleWords(text)
}

func stripGreetings(text string) string {
	s := strings.TrimSpace(text)
	for {
		loc := greetingPattern.FindStringIndex(s)
		if loc == nil || loc[1] == 0 {
			return s
		}
		s = strings.TrimSpace(s[loc[1]:])
	}
}

func titleWords(text string) string {
	var words []string
	for _, tok := range strings.Fields(text) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if tok == "" {
			continue
		}
		words = append(words, titleCase(tok))
		if len(words) == fallbackWords {
			break
		}
	}
	return Truncate(strings.Join(words, " "), MaxLength)
}

// titleCase upper-cases the first rune and leaves the rest alone so acronyms survive.
func titleCase(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}
