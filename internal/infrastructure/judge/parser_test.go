package judge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doeshing/toolgate/internal/domain"
)

func TestParseCleanJSON(t *testing.T) {
	p := NewParser(false)
	res := p.Parse(`{"safetyScore": 92, "category": "safe", "reasoning": "read-only"}`, 120)
	assert.True(t, res.Success)
	assert.Equal(t, 92, res.Score)
	assert.Equal(t, domain.CategorySafe, res.Category)
	assert.Equal(t, "read-only", res.Reasoning)
	assert.Equal(t, int64(120), res.ElapsedMillis)
}

func TestParseJSONEmbeddedInProse(t *testing.T) {
	p := NewParser(false)
	raw := "Here is my assessment:\n{\"safetyScore\": 25, \"category\": \"dangerous\", \"reasoning\": \"rm -rf\"}\nLet me know if you need more."
	res := p.Parse(raw, 0)
	assert.True(t, res.Success)
	assert.Equal(t, 25, res.Score)
	assert.Equal(t, domain.CategoryDangerous, res.Category)
}

func TestParseUnwrapsResultEnvelope(t *testing.T) {
	p := NewParser(false)
	raw := `{"type": "result", "subtype": "success", "result": "{\"safetyScore\": 35, \"category\": \"risky\", \"reasoning\": \"writes outside cwd\"}"}`
	res := p.Parse(raw, 10)
	assert.True(t, res.Success)
	assert.Equal(t, 35, res.Score)
	assert.Equal(t, domain.CategoryRisky, res.Category)
}

func TestParseBraceInsideStringLiteral(t *testing.T) {
	p := NewParser(false)
	raw := `{"safetyScore": 60, "category": "cautious", "reasoning": "writes {config} file"}`
	res := p.Parse(raw, 0)
	assert.True(t, res.Success)
	assert.Equal(t, "writes {config} file", res.Reasoning)
}

func TestParseNestedObject(t *testing.T) {
	p := NewParser(false)
	raw := `prefix {"safetyScore": 70, "category": "cautious", "reasoning": "ok", "detail": {"inner": true}} suffix`
	res := p.Parse(raw, 0)
	assert.True(t, res.Success)
	assert.Equal(t, 70, res.Score)
}

func TestParseAcceptsScoreAlias(t *testing.T) {
	p := NewParser(false)
	res := p.Parse(`{"score": 88, "category": "safe"}`, 0)
	assert.True(t, res.Success)
	assert.Equal(t, 88, res.Score)
}

func TestParseClampsAndCoerces(t *testing.T) {
	p := NewParser(false)
	res := p.Parse(`{"safetyScore": 250, "category": "mostly-harmless"}`, 0)
	assert.True(t, res.Success)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, domain.CategoryUnknown, res.Category)
}

func TestParseEmptyOutputFails(t *testing.T) {
	p := NewParser(true)
	res := p.Parse("   \n  ", 42)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, domain.CategoryError, res.Category)
	assert.Equal(t, int64(42), res.ElapsedMillis)
}

func TestParseHeuristicFallback(t *testing.T) {
	p := NewParser(true)

	res := p.Parse("This command looks dangerous to me.", 0)
	assert.True(t, res.Success)
	assert.Equal(t, 10, res.Score)
	assert.Equal(t, domain.CategoryDangerous, res.Category)

	res = p.Parse("Seems safe overall.", 0)
	assert.True(t, res.Success)
	assert.Equal(t, 90, res.Score)
}

func TestParseHeuristicCountsOccurrences(t *testing.T) {
	p := NewParser(true)

	// Two dangerous mentions outweigh one safe mention.
	res := p.Parse("unsafe and destructive, though the read looks safe", 0)
	assert.Equal(t, 10, res.Score)
	assert.Equal(t, domain.CategoryDangerous, res.Category)

	res = p.Parse("risky, proceed with caution", 0)
	assert.Equal(t, 45, res.Score)
	assert.Equal(t, domain.CategoryRisky, res.Category)
}

func TestParseHeuristicTieIsCautious(t *testing.T) {
	p := NewParser(true)
	// One hit per set: the tie stays conservative.
	res := p.Parse("not safe, actually dangerous", 0)
	assert.True(t, res.Success)
	assert.Equal(t, 50, res.Score)
	assert.Equal(t, domain.CategoryCautious, res.Category)
}

func TestParseRejectsOversizeOutput(t *testing.T) {
	p := NewParser(true)
	res := p.Parse(strings.Repeat("a", domain.MaxCaptureBytes+1), 5)
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "size limit")
}

func TestParseHeuristicsDisabled(t *testing.T) {
	p := NewParser(false)
	res := p.Parse("This command looks dangerous to me.", 0)
	assert.False(t, res.Success)
	assert.Equal(t, domain.CategoryError, res.Category)
}

func TestParseUnbalancedJSONFallsThrough(t *testing.T) {
	p := NewParser(true)
	res := p.Parse(`{"safetyScore": 90, "category": "safe"`, 0)
	// Unbalanced object, but the word "safe" lets the heuristic score it.
	assert.True(t, res.Success)
	assert.Equal(t, 90, res.Score)
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSONObject(`xx {"a":1} yy`))
	assert.Equal(t, "", extractJSONObject("no json here"))
	assert.Equal(t, "", extractJSONObject(`{"open": true`))
	assert.Equal(t, `{"s":"}"}`, extractJSONObject(`{"s":"}"}`))
	assert.Equal(t, `{"e":"\""}`, extractJSONObject(`{"e":"\""} extra`))
}
