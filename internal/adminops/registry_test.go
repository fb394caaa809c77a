package adminops

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaseRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("create party attaches a mutation record", func(t *testing.T) {
		reg := NewCaseRegistry()

		res := reg.Invoke(ctx, ToolCall{ID: "1", Name: "create_party",
			Args: map[string]string{"name": "Acme Ltd", "role": "defendant"}})

		require.True(t, res.OK())
		require.NotNil(t, res.Mutation)
		assert.Equal(t, "create", res.Mutation.Verb)
		assert.Equal(t, "party", res.Mutation.EntityType)
		assert.Regexp(t, regexp.MustCompile(`^party-[0-9a-f]{8}$`), res.Mutation.EntityID)
		assert.Contains(t, res.Content, res.Mutation.EntityID)
	})

	t.Run("update and delete round-trip through the stored identifier", func(t *testing.T) {
		reg := NewCaseRegistry()

		created := reg.Invoke(ctx, ToolCall{ID: "1", Name: "create_party",
			Args: map[string]string{"name": "Acme Ltd", "role": "defendant"}})
		require.True(t, created.OK())
		id := created.Mutation.EntityID

		updated := reg.Invoke(ctx, ToolCall{ID: "2", Name: "update_party",
			Args: map[string]string{"party_id": id, "role": "claimant"}})
		require.True(t, updated.OK())
		assert.Equal(t, "update", updated.Mutation.Verb)
		assert.Contains(t, updated.Content, "claimant")

		deleted := reg.Invoke(ctx, ToolCall{ID: "3", Name: "delete_party",
			Args: map[string]string{"party_id": id}})
		require.True(t, deleted.OK())
		assert.Equal(t, "delete", deleted.Mutation.Verb)

		gone := reg.Invoke(ctx, ToolCall{ID: "4", Name: "delete_party",
			Args: map[string]string{"party_id": id}})
		assert.False(t, gone.OK())
	})

	t.Run("failures carry no mutation record", func(t *testing.T) {
		reg := NewCaseRegistry()

		res := reg.Invoke(ctx, ToolCall{ID: "1", Name: "update_party",
			Args: map[string]string{"party_id": "party-00000000"}})
		assert.False(t, res.OK())
		assert.Nil(t, res.Mutation)

		res = reg.Invoke(ctx, ToolCall{ID: "2", Name: "create_party", Args: map[string]string{}})
		assert.False(t, res.OK())
		assert.Nil(t, res.Mutation)
	})

	t.Run("read-only listing has no mutation record", func(t *testing.T) {
		reg := NewCaseRegistry()

		res := reg.Invoke(ctx, ToolCall{ID: "1", Name: "list_parties", Args: map[string]string{}})
		require.True(t, res.OK())
		assert.Nil(t, res.Mutation)
		assert.Equal(t, "no parties on record", res.Content)
	})

	t.Run("unknown tool fails the single call", func(t *testing.T) {
		reg := NewCaseRegistry()

		res := reg.Invoke(ctx, ToolCall{ID: "1", Name: "launch_missiles", Args: map[string]string{}})
		assert.False(t, res.OK())
	})
}
