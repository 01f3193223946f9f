package analysis

import (
	"strings"
	"unicode"
)

// Sentiment label values. Every Result carries exactly one of these.
const (
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
	LabelPositive = "positive"
)

// FallbackModel identifies results derived locally without reaching the
// upstream classifier.
const FallbackModel = "local-fallback"

// maxKeywords caps the keyword list on every Result.
const maxKeywords = 7

// maxSummaryLen caps ShortSummary on every Result.
const maxSummaryLen = 220

// Result is the canonical analysis record handed to consumers. Every field is
// always populated and in range; callers never see raw upstream payloads.
type Result struct {
	Sentiment      float64  `json:"sentiment"`       // 0 = very negative, 1 = very positive
	SentimentLabel string   `json:"sentiment_label"` // negative | neutral | positive
	Confidence     float64  `json:"confidence"`      // 0-1, rounded to 3 decimals
	Keywords       []string `json:"keywords"`        // 0..7, case-insensitively unique
	Tone           string   `json:"tone"`            // single word, free-form
	ShortSummary   string   `json:"short_summary"`   // <= 220 chars
	Model          string   `json:"model"`           // upstream model id, or "local-fallback"
	IsFallback     bool     `json:"is_fallback"`
}

// Fallback builds a locally derived Result from the original input text. Used
// when the upstream classifier is unreachable or its output is unusable end to
// end. The visualization keeps moving on a neutral signal instead of freezing.
func Fallback(input string) Result {
	summary := truncate(strings.TrimSpace(input), 100)
	return Result{
		Sentiment:      0.5,
		SentimentLabel: LabelNeutral,
		Confidence:     0.3,
		Keywords:       fallbackKeywords(input, 5),
		Tone:           LabelNeutral,
		ShortSummary:   summary,
		Model:          FallbackModel,
		IsFallback:     true,
	}
}

// Neutral builds the result returned for inputs too short to classify.
func Neutral(input string) Result {
	r := Fallback(input)
	r.Keywords = []string{}
	return r
}

// fallbackKeywords picks the first distinct words longer than 3 characters.
// Cruder than the frequency extractor on purpose: this path runs when
// everything else already failed.
func fallbackKeywords(text string, limit int) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, limit)
	seen := make(map[string]bool, limit)
	for _, w := range words {
		if len(w) <= 3 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == limit {
			break
		}
	}
	return out
}

// dedupeKeywords removes case-insensitive duplicates preserving first-seen
// casing and order, and caps the list at maxKeywords.
func dedupeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		lower := strings.ToLower(k)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, k)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
