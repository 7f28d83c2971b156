package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeys_TaskAndGeneralAlwaysPresent(t *testing.T) {
	keys := ExtractKeys(Interaction{TaskType: "review", Instruction: "ok"})
	assert.Contains(t, keys, "task:review")
	assert.Contains(t, keys, "task:general")
}

func TestExtractKeys_LanguageAndFileExt(t *testing.T) {
	keys := ExtractKeys(Interaction{
		TaskType: "fix",
		Language: "Go",
		FilePath: "internal/worker/Pool.GO",
	})
	assert.Contains(t, keys, "lang:go")
	assert.Contains(t, keys, "fileext:go")
}

func TestExtractKeys_FileExtNoDot(t *testing.T) {
	keys := ExtractKeys(Interaction{TaskType: "fix", FilePath: "Makefile"})
	for _, k := range keys {
		assert.NotContains(t, k, "fileext:")
	}
}

func TestExtractKeys_KeywordsDedupedAndCapped(t *testing.T) {
	keys := ExtractKeys(Interaction{
		TaskType:    "generate",
		Instruction: "refactor refactor handler handler middleware pipeline database gateway scheduler",
	})
	kwCount := 0
	for _, k := range keys {
		if len(k) > 3 && k[:3] == "kw:" {
			kwCount++
		}
	}
	assert.LessOrEqual(t, kwCount, 6)
}

func TestExtractKeys_ErrorHandlingPattern(t *testing.T) {
	keys := ExtractKeys(Interaction{
		TaskType: "fix",
		Response: "wrap the call in a try block and catch the exception",
	})
	assert.Contains(t, keys, "pattern:error-handling")
}

func TestExtractKeys_TypedAPIPattern(t *testing.T) {
	keys := ExtractKeys(Interaction{
		TaskType: "generate",
		Response: "type Widget struct { Name string }\n\ninterface Renderer { Render() }",
	})
	assert.Contains(t, keys, "pattern:typed-api")
}

func TestQualityScore_SuccessBeatsFailure(t *testing.T) {
	success := QualityScore(Interaction{Success: true})
	failure := QualityScore(Interaction{Success: false})
	assert.Greater(t, success, failure)
}

func TestQualityScore_LatencyPenaltyClamped(t *testing.T) {
	q := QualityScore(Interaction{Success: true, LatencyMs: 10_000_000})
	assert.GreaterOrEqual(t, q, 0.05)
}

func TestQualityScore_TokenBonusIgnoredWhenUnknown(t *testing.T) {
	withTokens := QualityScore(Interaction{Success: true, TokensKnown: true, CompletionTokens: 1600})
	withoutTokens := QualityScore(Interaction{Success: true, TokensKnown: false, CompletionTokens: 1600})
	assert.Greater(t, withTokens, withoutTokens)
}

func TestQualityScore_WithinBounds(t *testing.T) {
	q := QualityScore(Interaction{Success: true, TokensKnown: true, CompletionTokens: 5000, PromptTokens: 20000})
	assert.GreaterOrEqual(t, q, 0.05)
	assert.LessOrEqual(t, q, 1.0)
}
