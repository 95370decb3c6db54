package resolver

import (
	"regexp"
	"strings"
	"unicode"
)

const wildcard = "%"

var strongRun = regexp.MustCompile(`[\p{L}\p{N} ]{4,12}`)

// stripParens removes one pair of parentheses wrapping the whole title.
func stripParens(title string) string {
	t := strings.TrimSpace(title)
	if len(t) >= 2 && strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		return strings.TrimSpace(t[1 : len(t)-1])
	}
	return t
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// wildcardize replaces every run of non-alphanumeric runes with a single %.
func wildcardize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		if isWordRune(r) {
			b.WriteRune(r)
			inRun = false
			continue
		}
		if !inRun {
			b.WriteString(wildcard)
			inRun = true
		}
	}
	return b.String()
}

// WeakTitlePattern turns an award-list title into a LIKE pattern: the wrapping
// parentheses are dropped and punctuation and whitespace runs become %.
// An empty result means the title has nothing to match on.
func WeakTitlePattern(title string) string {
	p := wildcardize(stripParens(title))
	if strings.Trim(p, wildcard) == "" {
		return ""
	}
	return p
}

// StrongTitlePattern anchors on the first run of 4 to 12 letters, digits and
// spaces in the title that is not blank, and matches it anywhere:
// "%Mon%Oncle%".
func StrongTitlePattern(title string) (string, bool) {
	for _, run := range strongRun.FindAllString(stripParens(title), -1) {
		if run = strings.TrimSpace(run); run != "" {
			return wildcard + wildcardize(run) + wildcard, true
		}
	}
	return "", false
}

// DirectorPattern keeps even-indexed name tokens, replaces odd interior tokens
// with % and wildcards every boundary, so "Francis Ford Coppola" becomes
// "%Francis%Coppola%".
func DirectorPattern(director string) string {
	tokens := strings.Fields(director)
	if len(tokens) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(wildcard)
	for i, tok := range tokens {
		if i%2 == 1 && i != len(tokens)-1 {
			continue
		}
		b.WriteString(tok)
		b.WriteString(wildcard)
	}
	return b.String()
}
