package classifier

import "fmt"

// analysisPromptTemplate instructs the model to return a single JSON object.
// The parser still assumes the model ignores the "only JSON" instruction at
// least some of the time.
const analysisPromptTemplate = `Analyze the sentiment of the following spoken text and respond with ONLY a JSON object, no prose, no markdown fences:

{
  "sentiment": 0.0-1.0,
  "sentiment_label": "negative|neutral|positive",
  "confidence": 0.0-1.0,
  "keywords": ["up to 7 notable words or short phrases"],
  "tone": "one word describing the emotional tone",
  "short_summary": "one sentence, max 220 characters"
}

sentiment is a score where 0 means very negative and 1 means very positive.

Text:
%s`

// AnalysisPrompt embeds the transcript text into the instructional prompt.
func AnalysisPrompt(text string) string {
	return fmt.Sprintf(analysisPromptTemplate, text)
}
