package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/moot/internal/graph"
)

func TestReflectorRun(t *testing.T) {
	ctx := context.Background()

	t.Run("admin decision routes to admin ops", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		r := NewReflector(deps)

		reasoner.Enqueue(`{"action": "admin"}`)

		st := &graph.State{Input: "yes, remove that deadline"}
		require.NoError(t, r.Run(ctx, st))

		assert.Equal(t, graph.IntentAdmin, st.Intent)
		assert.Equal(t, graph.StageAdminOps, st.Next)
	})

	t.Run("answer decision terminates with the response", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		r := NewReflector(deps)

		reasoner.Enqueue(`{"action": "answer", "response": "Then the deadline does not apply to you."}`)

		st := &graph.State{Input: "the contract was never signed"}
		require.NoError(t, r.Run(ctx, st))

		assert.Equal(t, "Then the deadline does not apply to you.", st.FinalResponse)
		assert.Equal(t, graph.StageEnd, st.Next)
		assert.Equal(t, graph.ConvDelivery, st.ConversationStage)
	})

	t.Run("answer with empty response degrades to clarification text", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		r := NewReflector(deps)

		reasoner.Enqueue(`{"action": "answer", "response": ""}`)

		st := &graph.State{Input: "ok"}
		require.NoError(t, r.Run(ctx, st))

		assert.Equal(t, graph.ClarificationResponse, st.FinalResponse)
	})

	t.Run("research decision resumes the inquiry", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		r := NewReflector(deps)

		reasoner.Enqueue(`{"action": "research"}`)

		st := &graph.State{Input: "the other party is Acme Ltd"}
		require.NoError(t, r.Run(ctx, st))

		assert.Equal(t, graph.IntentResearch, st.Intent)
		assert.Equal(t, graph.StageInquiry, st.Next)
	})

	t.Run("failed decision defaults to research", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		r := NewReflector(deps)

		reasoner.EnqueueErr(context.DeadlineExceeded)

		st := &graph.State{Input: "hmm"}
		require.NoError(t, r.Run(ctx, st))

		assert.Equal(t, graph.StageInquiry, st.Next)
	})

	t.Run("unparseable decision defaults to research", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		r := NewReflector(deps)

		reasoner.Enqueue("continue with the case I suppose")

		st := &graph.State{Input: "as I said"}
		require.NoError(t, r.Run(ctx, st))

		assert.Equal(t, graph.StageInquiry, st.Next)
	})
}
