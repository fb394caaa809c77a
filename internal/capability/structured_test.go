package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructured(t *testing.T) {
	type reply struct {
		Intent string `json:"intent"`
	}

	t.Run("parses bare JSON", func(t *testing.T) {
		var out reply
		require.NoError(t, ParseStructured(`{"intent": "admin"}`, &out))
		assert.Equal(t, "admin", out.Intent)
	})

	t.Run("parses a fenced block", func(t *testing.T) {
		var out reply
		raw := "Here you go:\n```json\n{\"intent\": \"research\"}\n```\nLet me know if that helps."
		require.NoError(t, ParseStructured(raw, &out))
		assert.Equal(t, "research", out.Intent)
	})

	t.Run("parses JSON surrounded by prose", func(t *testing.T) {
		var out reply
		raw := `Sure - the classification is {"intent": "council"} based on the drafting request.`
		require.NoError(t, ParseStructured(raw, &out))
		assert.Equal(t, "council", out.Intent)
	})

	t.Run("parses an array", func(t *testing.T) {
		var out []reply
		raw := `[{"intent": "a"}, {"intent": "b"}]`
		require.NoError(t, ParseStructured(raw, &out))
		require.Len(t, out, 2)
	})

	t.Run("pure prose is malformed", func(t *testing.T) {
		var out reply
		err := ParseStructured("I think this is an admin request.", &out)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("broken JSON is malformed", func(t *testing.T) {
		var out reply
		err := ParseStructured(`{"intent": `, &out)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("empty reply is malformed", func(t *testing.T) {
		var out reply
		assert.ErrorIs(t, ParseStructured("", &out), ErrMalformed)
	})
}

func TestStripStructuredFragments(t *testing.T) {
	t.Run("removes fenced blocks", func(t *testing.T) {
		text := "The update is done.\n```json\n{\"ok\": true}\n```\nAnything else?"
		got := StripStructuredFragments(text)
		assert.NotContains(t, got, "ok")
		assert.Contains(t, got, "The update is done.")
		assert.Contains(t, got, "Anything else?")
	})

	t.Run("removes bare JSON lines", func(t *testing.T) {
		text := "Done.\n{\"call_id\": \"1\", \"content\": \"created\"}\nThe party is on record."
		got := StripStructuredFragments(text)
		assert.NotContains(t, got, "call_id")
		assert.Contains(t, got, "The party is on record.")
	})

	t.Run("keeps plain prose untouched", func(t *testing.T) {
		text := "All three changes went through."
		assert.Equal(t, text, StripStructuredFragments(text))
	})

	t.Run("all-JSON input strips to empty", func(t *testing.T) {
		assert.Empty(t, StripStructuredFragments(`{"only": "json"}`))
	})
}
