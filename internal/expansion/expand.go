// Package expansion implements colinear query expansion: deterministic
// templated paraphrases of a search query, generated to broaden recall before
// per-variant results are merged.
package expansion

import "fmt"

// templates are the fixed paraphrase forms, in variant order 1..N.
// Variant 0 is always the unmodified original query.
var templates = []string{
	"document about %s",
	"file containing %s",
	"information regarding %s",
	"data related to %s",
}

// MaxExpansions is the number of templated paraphrases available.
const MaxExpansions = 4

// Expand returns count+1 query variants: the original first, then templated
// paraphrases. count is clamped to [0, MaxExpansions].
func Expand(query string, count int) []string {
	if count < 0 {
		count = 0
	}
	if count > MaxExpansions {
		count = MaxExpansions
	}
	variants := make([]string, 0, count+1)
	variants = append(variants, query)
	for i := 0; i < count; i++ {
		variants = append(variants, fmt.Sprintf(templates[i], query))
	}
	return variants
}

// Label returns the provenance label for variant i: "original_query" for the
// original, "expanded_query_N" for paraphrases.
func Label(i int) string {
	if i == 0 {
		return "original_query"
	}
	return fmt.Sprintf("expanded_query_%d", i)
}
