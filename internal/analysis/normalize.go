package analysis

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// labelSentiments maps classifier labels to a midpoint sentiment when the
// numeric score is missing.
var labelSentiments = map[string]float64{
	LabelPositive: 0.8,
	LabelNeutral:  0.5,
	LabelNegative: 0.2,
}

// NormalizeSentiment maps whatever the classifier returned for sentiment into
// [0,1]. Numeric values in (1,100] are treated as percentages; anything else
// numeric is clamped. With no usable number the label decides, defaulting to
// neutral.
func NormalizeSentiment(value any, label string) float64 {
	if v, ok := asFloat(value); ok {
		if v > 1 && v <= 100 {
			v /= 100
		}
		return clamp(v, 0, 1)
	}
	if s, ok := labelSentiments[strings.ToLower(strings.TrimSpace(label))]; ok {
		return s
	}
	return 0.5
}

// DeriveConfidence estimates confidence from distance to neutral. The
// classifier's self-reported confidence is never trusted at the extremes, so
// the derived value stays in [0.5, 0.99].
func DeriveConfidence(sentiment float64) float64 {
	return clamp(0.4+math.Abs(sentiment-0.5)*1.1, 0.5, 0.99)
}

// DeriveTone maps sentiment to a one-word tone.
func DeriveTone(sentiment float64) string {
	switch {
	case sentiment >= 0.7:
		return LabelPositive
	case sentiment <= 0.3:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// DeriveSentimentLabel maps sentiment to a label. The neutral band is
// (0.4, 0.6]: exactly 0.6 is neutral, not positive. Behavior-preserving;
// do not "fix" the asymmetry.
func DeriveSentimentLabel(sentiment float64) string {
	switch {
	case sentiment < 0.4:
		return LabelNegative
	case sentiment > 0.6:
		return LabelPositive
	default:
		return LabelNeutral
	}
}

// DeriveSummary picks the summary field when the classifier supplied one,
// otherwise condenses the first two non-blank lines of the raw model text
// (or of the original input when the model text is blank). Capped at 220
// characters.
func DeriveSummary(parsed, rawModelText, originalInput string) string {
	if s := strings.TrimSpace(parsed); s != "" {
		return truncate(s, maxSummaryLen)
	}
	source := rawModelText
	if strings.TrimSpace(source) == "" {
		source = originalInput
	}
	var lines []string
	for _, line := range strings.Split(source, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
			if len(lines) == 2 {
				break
			}
		}
	}
	return truncate(strings.Join(lines, " "), maxSummaryLen)
}

// RoundConfidence rounds to 3 decimals, the precision every Result carries.
func RoundConfidence(c float64) float64 {
	return math.Round(c*1000) / 1000
}

// truncate cuts s to at most max bytes without splitting a rune; transcripts
// are routinely non-ASCII and the output must stay valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// asFloat coerces the loosely typed values json.Unmarshal can produce for a
// numeric field. Numeric strings count: the model sometimes quotes numbers.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
