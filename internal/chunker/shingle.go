package chunker

import (
	"hash/fnv"
	"sort"
	"strings"
	"unicode"
)

// Normalize lowercases text, strips non-alphanumeric runes from word
// boundaries, and collapses whitespace, returning the resulting token
// stream.
func Normalize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		trimmed := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if trimmed != "" {
			tokens = append(tokens, trimmed)
		}
	}
	return tokens
}

// Shingles returns the set of word 3-grams over the normalized token
// stream of text. Texts with fewer than 3 tokens fall back to the set of
// unigrams, so very short memories still produce a usable fingerprint.
func Shingles(text string) map[string]struct{} {
	tokens := Normalize(text)
	set := make(map[string]struct{})
	if len(tokens) < 3 {
		for _, t := range tokens {
			set[t] = struct{}{}
		}
		return set
	}
	for i := 0; i+3 <= len(tokens); i++ {
		set[tokens[i]+" "+tokens[i+1]+" "+tokens[i+2]] = struct{}{}
	}
	return set
}

// ShingleHash returns a stable 64-bit fingerprint of a shingle set,
// independent of insertion order, used as a fast pre-filter before the
// more expensive Jaccard comparison.
func ShingleHash(shingles map[string]struct{}) uint64 {
	sorted := make([]string, 0, len(shingles))
	for s := range shingles {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)

	h := fnv.New64a()
	for _, s := range sorted {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Jaccard returns |a ∩ b| / |a ∪ b| for two shingle sets. Two empty sets
// are considered identical.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for s := range a {
		if _, ok := b[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
