package analysis

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultKeywordLimit is the keyword count used when the caller does not ask
// for a specific number.
const DefaultKeywordLimit = 6

// bigramWeight ranks two-word phrases above single words so that phrases win
// ties against their constituent tokens.
const bigramWeight = 1.2

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "him": true, "his": true, "how": true, "its": true,
	"may": true, "new": true, "now": true, "old": true, "see": true,
	"two": true, "way": true, "who": true, "did": true, "get": true,
	"got": true, "she": true, "they": true, "them": true, "this": true,
	"that": true, "with": true, "from": true, "have": true, "been": true,
	"were": true, "will": true, "what": true, "when": true, "your": true,
	"just": true, "like": true, "about": true, "would": true, "there": true,
	"their": true, "which": true, "really": true, "going": true, "because": true,
	"think": true, "know": true, "some": true, "then": true, "than": true,
	"also": true, "very": true, "into": true, "over": true, "such": true,
}

var nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

type keywordEntry struct {
	term   string
	weight float64
	order  int // first-seen position, stable tiebreak
}

// ExtractKeywords mines the most frequent non-stopword unigrams and bigrams
// out of raw text. This is the fallback path used whenever the upstream
// classifier supplies no usable keyword list.
func ExtractKeywords(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultKeywordLimit
	}

	tokens := strings.Fields(nonWordRe.ReplaceAllString(strings.ToLower(text), " "))

	weights := make(map[string]*keywordEntry)
	bump := func(term string, w float64) {
		if e, ok := weights[term]; ok {
			e.weight += w
			return
		}
		weights[term] = &keywordEntry{term: term, weight: w, order: len(weights)}
	}

	for i, tok := range tokens {
		if stopwords[tok] || len(tok) <= 2 {
			continue
		}
		bump(tok, 1.0)
		if i+1 < len(tokens) && !stopwords[tokens[i+1]] {
			bump(tok+" "+tokens[i+1], bigramWeight)
		}
	}

	entries := make([]*keywordEntry, 0, len(weights))
	for _, e := range weights {
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].weight != entries[b].weight {
			return entries[a].weight > entries[b].weight
		}
		return entries[a].order < entries[b].order
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSpace(e.term))
	}
	return out
}
