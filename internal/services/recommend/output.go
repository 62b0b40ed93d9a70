package recommend

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Candidate is one recommendation object recovered from AI output.
type Candidate struct {
	Title      string `json:"title"`
	ExternalID string `json:"external_id"`
	ImageURL   string `json:"image_url"`
}

// recoveryStrategy is one named attempt at turning untrusted model output
// into parseable JSON. Every strategy operates on the fence-stripped text
// so a failed extraction never poisons the next attempt.
type recoveryStrategy struct {
	name  string
	clean func(string) string
}

// recoveryStrategies is the ordered recovery chain for model output. The
// model is asked for a plain JSON array but routinely wraps it in markdown
// fences, prose, or single-quoted pseudo-JSON; parsing stops at the first
// strategy whose output decodes.
var recoveryStrategies = []recoveryStrategy{
	{name: "strip_fences", clean: func(s string) string { return s }},
	{name: "first_array", clean: firstBracketedArray},
	{name: "bracket_span", clean: bracketSpan},
	{name: "normalize_quotes", clean: func(s string) string { return normalizeQuotes(bracketSpan(s)) }},
}

// ParseCandidates recovers a typed candidate list from raw model output.
// All failures degrade to an empty list; malformed AI output is never an
// error. The second return names the winning strategy ("" when nothing
// parsed) so callers can log it alongside the raw and cleaned text.
func ParseCandidates(raw string) ([]Candidate, string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return []Candidate{}, ""
	}

	if candidates, ok := tryDecode(text); ok {
		return candidates, "as_is"
	}

	stripped := stripCodeFences(text)
	for _, strategy := range recoveryStrategies {
		if candidates, ok := tryDecode(strategy.clean(stripped)); ok {
			return candidates, strategy.name
		}
	}

	return []Candidate{}, ""
}

func tryDecode(text string) ([]Candidate, bool) {
	var candidates []Candidate
	if err := json.Unmarshal([]byte(text), &candidates); err != nil {
		return nil, false
	}
	return candidates, true
}

var (
	openFenceRegex  = regexp.MustCompile("(?m)^```(json)?")
	closeFenceRegex = regexp.MustCompile("(?m)```$")
	arrayRegex      = regexp.MustCompile(`(?s)\[.*?\]`)
)

// stripCodeFences removes markdown code-fence markers.
func stripCodeFences(text string) string {
	text = openFenceRegex.ReplaceAllString(text, "")
	text = closeFenceRegex.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// firstBracketedArray extracts the first non-greedy [...] span when the
// text is not already a bare array.
func firstBracketedArray(text string) string {
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return text
	}
	if match := arrayRegex.FindString(text); match != "" {
		return match
	}
	return text
}

// bracketSpan extracts the substring between the first '[' and the last
// ']', for output where a non-greedy match cuts an array short.
func bracketSpan(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// normalizeQuotes converts single-quoted pseudo-JSON to double quotes.
// Output that already contains double quotes is left alone.
func normalizeQuotes(text string) string {
	if strings.Contains(text, `"`) {
		return text
	}
	return strings.ReplaceAll(text, "'", `"`)
}
