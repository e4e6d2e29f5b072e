// Package judge implements the safety judge backends and their registry.
//
// A judge backend takes an analysis prompt and returns a scored
// domain.SafetyResult. Three backends exist, selected through
// configuration:
//   - one-shot CLI: spawns the judge command per query
//   - persistent CLI: keeps a resident judge subprocess alive
//   - HTTP REST: posts a templated body to a configured endpoint
//
// All backends share the response parser, which tolerates judges that wrap
// their JSON verdict in prose.
package judge

import (
	"encoding/json"
	"strings"

	"github.com/doeshing/toolgate/internal/domain"
)

// Parser turns raw judge output into a SafetyResult. When heuristics are
// enabled, output with no parseable JSON is scored from safety keywords
// instead of failing outright.
type Parser struct {
	heuristics bool
}

// NewParser builds a Parser.
func NewParser(heuristics bool) *Parser {
	return &Parser{heuristics: heuristics}
}

type verdictPayload struct {
	SafetyScore *int   `json:"safetyScore"`
	Score       *int   `json:"score"`
	Category    string `json:"category"`
	Reasoning   string `json:"reasoning"`
}

// Parse extracts a verdict from raw output. elapsedMillis is stamped onto
// the result so callers report wall time uniformly.
func (p *Parser) Parse(raw string, elapsedMillis int64) domain.SafetyResult {
	if len(raw) > domain.MaxCaptureBytes {
		return domain.FailureResult("judge output exceeds size limit", elapsedMillis)
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return domain.FailureResult("judge returned empty output", elapsedMillis)
	}

	if candidate := extractJSONObject(trimmed); candidate != "" {
		var payload verdictPayload
		if err := json.Unmarshal([]byte(candidate), &payload); err == nil {
			if result, ok := p.fromPayload(payload, elapsedMillis); ok {
				return result
			}
			// CLI judges in JSON output mode wrap the answer in a result
			// envelope. Unwrap and parse the inner text.
			var envelope struct {
				Result string `json:"result"`
			}
			if json.Unmarshal([]byte(candidate), &envelope) == nil && envelope.Result != "" {
				return p.Parse(envelope.Result, elapsedMillis)
			}
		}
	}

	if p.heuristics {
		if result, ok := heuristicVerdict(trimmed, elapsedMillis); ok {
			return result
		}
	}

	return domain.FailureResult("judge output contained no verdict", elapsedMillis)
}

func (p *Parser) fromPayload(payload verdictPayload, elapsedMillis int64) (domain.SafetyResult, bool) {
	score := payload.SafetyScore
	if score == nil {
		score = payload.Score
	}
	if score == nil {
		return domain.SafetyResult{}, false
	}

	result := domain.SafetyResult{
		Success:       true,
		Score:         domain.ClampScore(*score),
		Category:      domain.ParseCategory(payload.Category),
		Reasoning:     payload.Reasoning,
		ElapsedMillis: elapsedMillis,
	}
	return result.Normalize(), true
}

// extractJSONObject returns the first balanced JSON object in text, using
// brace counting that skips braces inside string literals. Returns "" when
// no balanced object exists.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// Keyword vocabularies for the heuristic path. The set with the most
// occurrences decides the verdict; any tie for the lead stays at the
// conservative cautious/50 outcome.
var (
	dangerousWords = []string{"dangerous", "unsafe", "destructive", "malicious"}
	riskyWords     = []string{"risky", "caution", "careful"}
	safeWords      = []string{"safe", "harmless", "benign"}
)

// heuristicVerdict scores free-form output by counting occurrences of the
// three keyword vocabularies.
func heuristicVerdict(text string, elapsedMillis int64) (domain.SafetyResult, bool) {
	lower := strings.ToLower(text)

	dangerous := countAny(lower, dangerousWords)
	risky := countAny(lower, riskyWords)
	// "unsafe" contains "safe"; those hits belong to the dangerous set.
	safe := countAny(lower, safeWords) - strings.Count(lower, "unsafe")

	if dangerous == 0 && risky == 0 && safe <= 0 {
		return domain.SafetyResult{}, false
	}

	score, category := 50, domain.CategoryCautious
	switch {
	case dangerous > risky && dangerous > safe:
		score, category = 10, domain.CategoryDangerous
	case risky > dangerous && risky > safe:
		score, category = 45, domain.CategoryRisky
	case safe > dangerous && safe > risky:
		score, category = 90, domain.CategorySafe
	}

	return domain.SafetyResult{
		Success:       true,
		Score:         score,
		Category:      category,
		Reasoning:     "keyword match on non-JSON judge output",
		ElapsedMillis: elapsedMillis,
	}.Normalize(), true
}

func countAny(text string, words []string) int {
	total := 0
	for _, w := range words {
		total += strings.Count(text, w)
	}
	return total
}
