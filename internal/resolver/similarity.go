package resolver

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const gramSize = 3

// Fold lowercases s, drops diacritics and keeps only letters and digits.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if isWordRune(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// grams returns the rune n-gram counts of an already folded string. Strings
// shorter than n count as one gram.
func grams(s string, n int) map[string]int {
	rs := []rune(s)
	freq := make(map[string]int, len(rs))
	if len(rs) == 0 {
		return freq
	}
	if len(rs) < n {
		freq[s]++
		return freq
	}
	for i := 0; i+n <= len(rs); i++ {
		freq[string(rs[i:i+n])]++
	}
	return freq
}

func cosine(a, b map[string]int) float64 {
	var dot, magA, magB float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += float64(va * vb)
		}
		magA += float64(va * va)
	}
	for _, vb := range b {
		magB += float64(vb * vb)
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// TrigramCosine scores two titles in [0, 1] by the cosine of their folded
// character trigram frequencies.
func TrigramCosine(a, b string) float64 {
	return cosine(grams(Fold(a), gramSize), grams(Fold(b), gramSize))
}
