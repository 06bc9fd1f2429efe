package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	CanHeal    bool    `json:"can_heal"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func TestParseJSONResponsePlainObject(t *testing.T) {
	got, err := ParseJSONResponse[verdict](`{"can_heal": true, "confidence": 0.9, "reasoning": "same label"}`)
	require.NoError(t, err)
	assert.True(t, got.CanHeal)
	assert.Equal(t, 0.9, got.Confidence)
}

func TestParseJSONResponseMarkdownFence(t *testing.T) {
	response := "```json\n{\"can_heal\": true, \"confidence\": 0.85, \"reasoning\": \"ok\"}\n```"
	got, err := ParseJSONResponse[verdict](response)
	require.NoError(t, err)
	assert.True(t, got.CanHeal)
	assert.Equal(t, 0.85, got.Confidence)
}

func TestParseJSONResponseFenceWithoutLanguageTag(t *testing.T) {
	response := "```\n{\"can_heal\": false, \"confidence\": 0.2, \"reasoning\": \"no match\"}\n```"
	got, err := ParseJSONResponse[verdict](response)
	require.NoError(t, err)
	assert.False(t, got.CanHeal)
}

func TestParseJSONResponseBuriedInProse(t *testing.T) {
	response := `Sure! Here is my assessment: {"can_heal": true, "confidence": 0.8, "reasoning": "renamed"} Hope that helps.`
	got, err := ParseJSONResponse[verdict](response)
	require.NoError(t, err)
	assert.True(t, got.CanHeal)
	assert.Equal(t, "renamed", got.Reasoning)
}

func TestParseJSONResponseArray(t *testing.T) {
	response := "```json\n[1, 2, 3]\n```"
	got, err := ParseJSONResponse[[]int](response)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, *got)
}

func TestParseJSONResponseMalformedIsHardError(t *testing.T) {
	_, err := ParseJSONResponse[verdict](`{"can_heal": maybe}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}

func TestParseJSONResponseEmptyInput(t *testing.T) {
	_, err := ParseJSONResponse[verdict]("")
	assert.Error(t, err)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 10))
	assert.Equal(t, "abcde...", truncateString("abcdefgh", 5))
	assert.Equal(t, "", truncateString("abc", 0))
}
