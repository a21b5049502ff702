package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	t.Run("bare object", func(t *testing.T) {
		got, ok := ExtractJSONObject(`{"a":1}`)
		require.True(t, ok)
		assert.Equal(t, `{"a":1}`, got)
	})

	t.Run("object wrapped in prose", func(t *testing.T) {
		text := "Here is the plan:\n\n{\"delegations\": []}\n\nLet me know."
		got, ok := ExtractJSONObject(text)
		require.True(t, ok)
		assert.Equal(t, `{"delegations": []}`, got)
	})

	t.Run("markdown fenced object", func(t *testing.T) {
		text := "```json\n{\"key\": \"value\"}\n```"
		got, ok := ExtractJSONObject(text)
		require.True(t, ok)
		assert.JSONEq(t, `{"key": "value"}`, got)
	})

	t.Run("nested objects return outermost", func(t *testing.T) {
		text := `prefix {"outer": {"inner": [1, 2]}} suffix`
		got, ok := ExtractJSONObject(text)
		require.True(t, ok)
		assert.Equal(t, `{"outer": {"inner": [1, 2]}}`, got)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(got), &decoded))
	})

	t.Run("braces inside strings are ignored", func(t *testing.T) {
		text := `{"note": "use {braces} carefully", "n": 1}`
		got, ok := ExtractJSONObject(text)
		require.True(t, ok)
		assert.Equal(t, text, got)
	})

	t.Run("escaped quotes inside strings", func(t *testing.T) {
		text := `{"quote": "she said \"{\" loudly"}`
		got, ok := ExtractJSONObject(text)
		require.True(t, ok)
		assert.Equal(t, text, got)
	})

	t.Run("no object present", func(t *testing.T) {
		_, ok := ExtractJSONObject("no structured output here")
		assert.False(t, ok)
	})

	t.Run("unbalanced braces", func(t *testing.T) {
		_, ok := ExtractJSONObject(`{"truncated": true`)
		assert.False(t, ok)
	})

	t.Run("empty input", func(t *testing.T) {
		_, ok := ExtractJSONObject("")
		assert.False(t, ok)
	})
}
