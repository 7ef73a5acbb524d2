package store

import (
	"regexp"
	"strings"
)

// termRegex matches words and identifiers. Hyphens and slashes inside a
// term are kept so "INV-001" and "2023/24" stay whole.
var termRegex = regexp.MustCompile(`[\p{L}\p{N}]+(?:[-/][\p{L}\p{N}]+)*`)

// DefaultStopWords are dropped from lexical queries.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "did", "do", "does", "for",
	"from", "has", "have", "how", "i", "in", "is", "it", "me", "my", "of", "on",
	"or", "show", "that", "the", "this", "to", "was", "were", "what", "when",
	"where", "which", "who", "with",
}

var defaultStopWordMap = BuildStopWordMap(DefaultStopWords)

// QueryTerms splits a query into lowercased, deduplicated terms with stop
// words and single characters removed.
func QueryTerms(query string, stopWords map[string]struct{}) []string {
	if stopWords == nil {
		stopWords = defaultStopWordMap
	}
	seen := make(map[string]bool)
	var terms []string
	for _, t := range termRegex.FindAllString(query, -1) {
		lower := strings.ToLower(t)
		if len([]rune(lower)) < 2 || seen[lower] {
			continue
		}
		if _, stop := stopWords[lower]; stop {
			continue
		}
		seen[lower] = true
		terms = append(terms, lower)
	}
	return terms
}

// FTSQuery renders terms as an FTS5 expression of OR-ed quoted strings, so
// user punctuation never reaches the FTS5 query parser. Returns "" when
// there are no terms.
func FTSQuery(terms []string) string {
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
