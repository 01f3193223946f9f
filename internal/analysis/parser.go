package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ExtractJSON pulls a JSON object out of free-form model output. The upstream
// model is instructed to emit only JSON but routinely wraps it in prose or
// markdown fences, so we take the greedy span from the first '{' to the last
// '}' and parse that. On a strict-parse failure a single bounded repair pass
// runs (trailing commas stripped, single quotes doubled) before giving up.
//
// Returns nil when no object can be recovered. Never panics; pure function.
func ExtractJSON(raw string) map[string]any {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil
	}
	candidate := raw[start : end+1]

	if m := tryParse(candidate); m != nil {
		return m
	}
	return tryParse(repairJSON(candidate))
}

func tryParse(s string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// bareKeyRe matches an unquoted identifier in key position.
var bareKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// repairJSON applies the cheap fixes that cover most malformed model output:
// trailing commas before a closing brace/bracket, single-quoted strings, and
// unquoted keys. Anything worse than that is not worth recovering.
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c == ',' {
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n' || runes[j] == '\r') {
				j++
			}
			if j < len(runes) && (runes[j] == '}' || runes[j] == ']') {
				continue
			}
		}
		if c == '\'' {
			b.WriteRune('"')
			continue
		}
		b.WriteRune(c)
	}
	return bareKeyRe.ReplaceAllString(b.String(), `$1"$2":`)
}
