package stages

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/moot/internal/graph"
	"github.com/dyluth/moot/internal/testutil"
	"github.com/dyluth/moot/pkg/blackboard"
)

const passingScoreJSON = `{"relevance": 9, "accuracy": 9, "quality": 9, "critique": ""}`

func threeSectionPlan() string {
	sections := []Section{
		{Title: "Background", Purpose: "facts", LengthHint: "short"},
		{Title: "Analysis", Purpose: "apply research", LengthHint: "medium"},
		{Title: "Recommendation", Purpose: "advice", LengthHint: "short"},
	}
	encoded, _ := json.Marshal(sections)
	return string(encoded)
}

func setupDrafterSession(t *testing.T, deps Deps) {
	t.Helper()
	ctx := context.Background()
	_, err := deps.Store.Initialize(ctx, "s1")
	require.NoError(t, err)
	ok, err := deps.Store.UpdateSegment(ctx, "s1", blackboard.SegmentStrategy,
		`{"objective": "settle"}`, &blackboard.StatusPatch{
			Council: blackboard.StatusOf(blackboard.StageDone),
		})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDrafterRun(t *testing.T) {
	ctx := context.Background()

	t.Run("plans, writes, validates and assembles", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		setupDrafterSession(t, deps)
		dr := NewDrafter(deps)

		reasoner.Enqueue(threeSectionPlan())
		// One write call per section.
		reasoner.Enqueue("The dispute arose in March.")
		reasoner.Enqueue("The research supports a claim under Article 40.")
		reasoner.Enqueue("Send a demand letter within 14 days.")
		// One validation call per section, all passing.
		reasoner.Enqueue(passingScoreJSON)
		reasoner.Enqueue(passingScoreJSON)
		reasoner.Enqueue(passingScoreJSON)

		st := &graph.State{SessionID: "s1", Input: "prepare the advice"}
		require.NoError(t, dr.Run(ctx, st))

		record, err := deps.Store.ReadLatest(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, blackboard.StageDone, record.Status.Drafter)

		out := record.Segments.FinalOutput
		assert.Contains(t, out, "## Background")
		assert.Contains(t, out, "## Analysis")
		assert.Contains(t, out, "## Recommendation")
		assert.Contains(t, out, "demand letter")
		assert.Equal(t, graph.ConvDelivery, st.ConversationStage)

		// The plan was persisted for audit.
		assert.NotEmpty(t, record.Segments.DraftPlan)
	})

	t.Run("failed section becomes a labeled placeholder", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		setupDrafterSession(t, deps)
		dr := NewDrafter(deps)

		reasoner.Enqueue(threeSectionPlan())
		reasoner.Enqueue("First section body.")
		reasoner.EnqueueErr(context.DeadlineExceeded) // Analysis fails
		reasoner.Enqueue("Third section body.")
		// Validation only runs for the two surviving sections.
		reasoner.Enqueue(passingScoreJSON)
		reasoner.Enqueue(passingScoreJSON)

		st := &graph.State{SessionID: "s1", Input: "prepare the advice"}
		require.NoError(t, dr.Run(ctx, st))

		record, err := deps.Store.ReadLatest(ctx, "s1")
		require.NoError(t, err)
		assert.Contains(t, record.Segments.FinalOutput, "[section unavailable: Analysis]")
		assert.Equal(t, blackboard.StageDone, record.Status.Drafter)
	})

	t.Run("low score triggers exactly one rewrite", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		setupDrafterSession(t, deps)
		dr := NewDrafter(deps)

		reasoner.Enqueue(threeSectionPlan())
		reasoner.Enqueue("Weak first section.")
		reasoner.Enqueue("Fine second section.")
		reasoner.Enqueue("Fine third section.")
		reasoner.Enqueue(`{"relevance": 4, "accuracy": 6, "quality": 5, "critique": "too thin"}`)
		reasoner.Enqueue("Much stronger first section.")
		reasoner.Enqueue(passingScoreJSON)
		reasoner.Enqueue(passingScoreJSON)

		st := &graph.State{SessionID: "s1", Input: "prepare the advice"}
		require.NoError(t, dr.Run(ctx, st))

		record, err := deps.Store.ReadLatest(ctx, "s1")
		require.NoError(t, err)
		assert.Contains(t, record.Segments.FinalOutput, "Much stronger first section.")
		assert.NotContains(t, record.Segments.FinalOutput, "Weak first section.")
	})

	t.Run("unparseable score keeps the original section", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		setupDrafterSession(t, deps)
		dr := NewDrafter(deps)

		reasoner.Enqueue(threeSectionPlan())
		reasoner.Enqueue("Body one.")
		reasoner.Enqueue("Body two.")
		reasoner.Enqueue("Body three.")
		reasoner.Enqueue("looks good to me")
		reasoner.Enqueue(passingScoreJSON)
		reasoner.Enqueue(passingScoreJSON)

		st := &graph.State{SessionID: "s1", Input: "prepare the advice"}
		require.NoError(t, dr.Run(ctx, st))

		record, err := deps.Store.ReadLatest(ctx, "s1")
		require.NoError(t, err)
		assert.Contains(t, record.Segments.FinalOutput, "Body one.")
	})

	t.Run("planning failure uses the skeleton sections", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		setupDrafterSession(t, deps)
		dr := NewDrafter(deps)

		reasoner.EnqueueErr(context.DeadlineExceeded)
		reasoner.Enqueue("Background body.")
		reasoner.Enqueue("Analysis body.")
		reasoner.Enqueue("Recommendation body.")
		reasoner.Enqueue(passingScoreJSON)
		reasoner.Enqueue(passingScoreJSON)
		reasoner.Enqueue(passingScoreJSON)

		st := &graph.State{SessionID: "s1", Input: "prepare the advice"}
		require.NoError(t, dr.Run(ctx, st))

		record, err := deps.Store.ReadLatest(ctx, "s1")
		require.NoError(t, err)
		assert.Contains(t, record.Segments.FinalOutput, "## Background")
		assert.Contains(t, record.Segments.FinalOutput, "## Recommendation")
	})

	t.Run("idempotent when already done: zero calls, output untouched", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		setupDrafterSession(t, deps)
		dr := NewDrafter(deps)

		ok, err := deps.Store.UpdateSegment(context.Background(), "s1",
			blackboard.SegmentFinalOutput, "## Done\n\nAlready drafted.",
			&blackboard.StatusPatch{Drafter: blackboard.StatusOf(blackboard.StageDone)})
		require.NoError(t, err)
		require.True(t, ok)

		st := &graph.State{SessionID: "s1", Input: "prepare the advice again"}
		require.NoError(t, dr.Run(ctx, st))

		assert.Equal(t, 0, reasoner.Calls())

		record, err := deps.Store.ReadLatest(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "## Done\n\nAlready drafted.", record.Segments.FinalOutput)
	})

	t.Run("emits plan lifecycle events", func(t *testing.T) {
		deps, reasoner, _ := testDeps(t)
		sink := &testutil.RecordingSink{}
		deps.Sink = sink
		setupDrafterSession(t, deps)
		dr := NewDrafter(deps)

		reasoner.Enqueue(threeSectionPlan())
		for i := 0; i < 3; i++ {
			reasoner.Enqueue("section body")
		}
		for i := 0; i < 3; i++ {
			reasoner.Enqueue(passingScoreJSON)
		}

		st := &graph.State{SessionID: "s1", Input: "prepare the advice"}
		require.NoError(t, dr.Run(ctx, st))

		var created, completed bool
		for _, ev := range sink.Events() {
			switch ev.Type {
			case blackboard.ProgressPlanCreated:
				created = true
				assert.True(t, strings.Contains(ev.Detail, "Background"))
			case blackboard.ProgressPlanCompleted:
				completed = true
			}
		}
		assert.True(t, created, "expected a plan_created event")
		assert.True(t, completed, "expected a plan_completed event")
	})
}

func TestClampSections(t *testing.T) {
	t.Run("drops untitled sections", func(t *testing.T) {
		in := []Section{{Title: "A"}, {Title: "  "}, {Title: "B"}}
		out := clampSections(in)
		require.Len(t, out, 2)
		assert.Equal(t, "A", out[0].Title)
	})

	t.Run("caps at the maximum", func(t *testing.T) {
		var in []Section
		for i := 0; i < 10; i++ {
			in = append(in, Section{Title: "S"})
		}
		assert.Len(t, clampSections(in), maxSections)
	})
}
