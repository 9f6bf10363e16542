package textanalytics

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultKeywordCount is the number of keywords returned when callers have
// no preference.
const DefaultKeywordCount = 10

// minKeywordLength is exclusive: tokens must be longer than this.
const minKeywordLength = 3

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "from": {}, "as": {}, "is": {}, "was": {},
	"are": {}, "were": {}, "been": {}, "be": {}, "have": {}, "has": {},
	"had": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "may": {}, "might": {}, "must": {}, "can": {},
	"this": {}, "that": {}, "these": {}, "those": {},
}

// IsStopWord reports whether the lowercase word is ignored by FindKeywords.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

type termCount struct {
	term  string
	count int
}

// FindKeywords ranks the distinct tokens of text by frequency and returns
// at most topN of them. Ties keep first-encounter order.
func FindKeywords(text string, topN int) []string {
	if topN <= 0 {
		return []string{}
	}
	counts := make([]termCount, 0)
	index := make(map[string]int)
	for _, word := range keywordTokens(text) {
		if len(word) <= minKeywordLength || IsStopWord(word) {
			continue
		}
		if i, ok := index[word]; ok {
			counts[i].count++
			continue
		}
		index[word] = len(counts)
		counts = append(counts, termCount{term: word, count: 1})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].count > counts[j].count
	})
	if len(counts) > topN {
		counts = counts[:topN]
	}
	keywords := make([]string, len(counts))
	for i, tc := range counts {
		keywords[i] = tc.term
	}
	return keywords
}

// keywordTokens lowercases text, drops every rune that is neither an ASCII
// word character nor whitespace, and splits on whitespace.
func keywordTokens(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if isASCIIWordRune(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, strings.ToLower(text))
	return strings.Fields(cleaned)
}

func isASCIIWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
