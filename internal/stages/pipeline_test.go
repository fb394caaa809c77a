package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/moot/internal/graph"
	"github.com/dyluth/moot/internal/testutil"
	"github.com/dyluth/moot/pkg/blackboard"
)

// newPipeline wires a full engine over the real stage nodes with scripted
// capabilities.
func newPipeline(t *testing.T, deps Deps, sink *testutil.RecordingSink) *graph.Engine {
	t.Helper()
	deps.Sink = sink
	nodes := Registry(deps, nil)
	return graph.NewEngine(deps.Store, nodes, sink, deps.Log)
}

func TestPipelineGreeting(t *testing.T) {
	deps, reasoner, _ := testDeps(t)
	sink := &testutil.RecordingSink{}
	engine := newPipeline(t, deps, sink)

	result, err := engine.RunTurn(context.Background(), graph.TurnInput{
		SessionID: "s1",
		Text:      "hello",
	})
	require.NoError(t, err)

	assert.Contains(t, result.FinalResponse, "Hello")
	assert.Equal(t, graph.StageEnd, result.NextStage)
	assert.Equal(t, []string{"gatekeeper", "fasttrack"}, sink.StagesRun())
	assert.Equal(t, 0, reasoner.Calls())
}

func TestPipelineSimpleQuestion(t *testing.T) {
	deps, reasoner, retriever := testDeps(t)
	sink := &testutil.RecordingSink{}
	engine := newPipeline(t, deps, sink)

	retriever.Snippets = snippets("Article 77 provides for a penalty of up to 10,000.")
	reasoner.Enqueue("Under Article 77 the penalty is up to 10,000.")

	result, err := engine.RunTurn(context.Background(), graph.TurnInput{
		SessionID: "s1",
		Text:      "what is the penalty under Article 77?",
	})
	require.NoError(t, err)

	assert.Contains(t, result.FinalResponse, "Article 77")
	assert.Equal(t, graph.StageEnd, result.NextStage)

	// Triage, supervision, one research pass - and nothing heavier.
	assert.Equal(t, []string{"gatekeeper", "judge", "inquiry"}, sink.StagesRun())
	assert.Equal(t, 1, reasoner.Calls())

	record, err := deps.Store.ReadLatest(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, blackboard.StageDone, record.Status.Researcher)
	assert.Equal(t, blackboard.StagePending, record.Status.Council)
	assert.Equal(t, blackboard.StagePending, record.Status.Drafter)
}

func TestPipelineComplexDraft(t *testing.T) {
	ctx := context.Background()
	deps, reasoner, retriever := testDeps(t)
	sink := &testutil.RecordingSink{}
	engine := newPipeline(t, deps, sink)

	retriever.Snippets = snippets("Deposits must be returned within 30 days of lease end.")

	// Inquiry: fact extraction.
	reasoner.Enqueue(`{"status": "COMPLETE", "structured_facts": {"claim": "unpaid deposit", "counterparty": "landlord"}}`)
	// Council: strategy.
	reasoner.Enqueue(`{"objective": "recover the deposit", "approach": "formal demand letter", "key_points": ["30-day statutory deadline"], "risks": ["landlord counterclaims for damage"]}`)
	// Drafter: plan, three sections, three validations.
	reasoner.Enqueue(threeSectionPlan())
	reasoner.Enqueue("The tenancy ended in June and the deposit was withheld.")
	reasoner.Enqueue("The statute requires return within 30 days.")
	reasoner.Enqueue("Demand repayment within 14 days, then file a claim.")
	reasoner.Enqueue(passingScoreJSON)
	reasoner.Enqueue(passingScoreJSON)
	reasoner.Enqueue(passingScoreJSON)

	result, err := engine.RunTurn(ctx, graph.TurnInput{
		SessionID: "s1",
		Text:      "draft a letter to the landlord about the unpaid deposit",
	})
	require.NoError(t, err)

	// The judge delivers the assembled document verbatim.
	assert.Contains(t, result.FinalResponse, "## Background")
	assert.Contains(t, result.FinalResponse, "file a claim")
	assert.Equal(t, graph.StageEnd, result.NextStage)

	// Full pipeline order, with council and drafter exactly once.
	assert.Equal(t,
		[]string{"gatekeeper", "judge", "inquiry", "council", "drafter", "judge"},
		sink.StagesRun())

	record, err := deps.Store.ReadLatest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, blackboard.StageDone, record.Status.Investigator)
	assert.Equal(t, blackboard.StageDone, record.Status.Researcher)
	assert.Equal(t, blackboard.StageDone, record.Status.Council)
	assert.Equal(t, blackboard.StageDone, record.Status.Drafter)
}

func TestPipelineDrafterIdempotence(t *testing.T) {
	ctx := context.Background()
	deps, reasoner, retriever := testDeps(t)
	sink := &testutil.RecordingSink{}
	engine := newPipeline(t, deps, sink)

	retriever.Snippets = snippets("Deposits must be returned within 30 days.")

	reasoner.Enqueue(`{"status": "COMPLETE", "structured_facts": {"claim": "unpaid deposit"}}`)
	reasoner.Enqueue(`{"objective": "recover", "approach": "letter", "key_points": [], "risks": []}`)
	reasoner.Enqueue(threeSectionPlan())
	for i := 0; i < 3; i++ {
		reasoner.Enqueue("section body")
	}
	for i := 0; i < 3; i++ {
		reasoner.Enqueue(passingScoreJSON)
	}

	first, err := engine.RunTurn(ctx, graph.TurnInput{
		SessionID: "s1",
		Text:      "draft a letter about the unpaid deposit for my landlord dispute",
	})
	require.NoError(t, err)
	callsAfterFirst := reasoner.Calls()

	// Same session, same kind of request: the stored draft is delivered
	// again with zero further reasoning calls.
	second, err := engine.RunTurn(ctx, graph.TurnInput{
		SessionID: "s1",
		Text:      "show me that letter draft again",
	})
	require.NoError(t, err)

	assert.Equal(t, first.FinalResponse, second.FinalResponse)
	assert.Equal(t, callsAfterFirst, reasoner.Calls())
}

func TestPipelineEmptyRetrievalAsksForSpecifics(t *testing.T) {
	deps, reasoner, retriever := testDeps(t)
	sink := &testutil.RecordingSink{}
	engine := newPipeline(t, deps, sink)

	retriever.Snippets = nil
	// Judge complexity call, then fact extraction.
	reasoner.Enqueue(`{"complexity": "medium"}`)
	reasoner.Enqueue(`{"status": "COMPLETE", "structured_facts": {"claim": "obscure matter"}}`)

	result, err := engine.RunTurn(context.Background(), graph.TurnInput{
		SessionID: "s1",
		Text:      "research the precedent on my unusual situation for me please",
	})
	require.NoError(t, err)

	assert.Equal(t, graph.StageUser, result.NextStage)
	assert.Equal(t, graph.ConvClarification, result.ConversationStage)
	assert.Contains(t, result.FinalResponse, "specifics")
}
