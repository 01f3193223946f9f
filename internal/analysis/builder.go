package analysis

import "strings"

// Build composes a canonical Result out of whatever the upstream classifier
// produced. parsed may be nil (the parser gave up entirely); every field then
// falls back to local derivation. Build is total: it never fails, and the
// returned Result always satisfies the canonical shape.
//
//   - parsed: structured object recovered by ExtractJSON, or nil
//   - rawModelText: the model text the structured object came from, used
//     for summary and keyword derivation when fields are missing
//   - originalInput: the transcript line that was classified
//   - model: identifier of the upstream model that produced the text
func Build(parsed map[string]any, rawModelText, originalInput, model string) Result {
	sentiment := NormalizeSentiment(field(parsed, "sentiment"), stringField(parsed, "sentiment_label"))

	confidence, ok := asFloat(field(parsed, "confidence"))
	if !ok || confidence < 0 || confidence > 1 {
		confidence = DeriveConfidence(sentiment)
	}

	tone := stringField(parsed, "tone")
	if tone == "" {
		tone = DeriveTone(sentiment)
	}

	summary := DeriveSummary(stringField(parsed, "short_summary"), rawModelText, originalInput)

	keywords := stringSliceField(parsed, "keywords")
	if len(keywords) == 0 {
		source := summary
		if source == "" {
			source = rawModelText
		}
		if source == "" {
			source = originalInput
		}
		keywords = ExtractKeywords(source, DefaultKeywordLimit)
	}

	label := strings.ToLower(stringField(parsed, "sentiment_label"))
	if label != LabelNegative && label != LabelNeutral && label != LabelPositive {
		label = DeriveSentimentLabel(sentiment)
	}

	return Result{
		Sentiment:      sentiment,
		SentimentLabel: label,
		Confidence:     RoundConfidence(confidence),
		Keywords:       dedupeKeywords(keywords),
		Tone:           tone,
		ShortSummary:   summary,
		Model:          model,
		IsFallback:     false,
	}
}

func field(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

func stringField(m map[string]any, key string) string {
	s, _ := field(m, key).(string)
	return strings.TrimSpace(s)
}

func stringSliceField(m map[string]any, key string) []string {
	raw, _ := field(m, key).([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
