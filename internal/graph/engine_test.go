package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/moot/internal/testutil"
	"github.com/dyluth/moot/pkg/blackboard"
)

func setupEngineStore(t *testing.T) *blackboard.Store {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := blackboard.NewStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// fakeNode runs a canned function in place of a real stage.
type fakeNode struct {
	stage Stage
	run   func(ctx context.Context, st *State) error
	calls int
}

func (f *fakeNode) Stage() Stage { return f.stage }

func (f *fakeNode) Run(ctx context.Context, st *State) error {
	f.calls++
	if f.run != nil {
		return f.run(ctx, st)
	}
	return nil
}

func TestRunTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects empty input", func(t *testing.T) {
		store := setupEngineStore(t)
		engine := NewEngine(store, map[Stage]Node{}, nil, testLogger())

		_, err := engine.RunTurn(ctx, TurnInput{SessionID: "", Text: "hi"})
		assert.Error(t, err)

		_, err = engine.RunTurn(ctx, TurnInput{SessionID: "s", Text: ""})
		assert.Error(t, err)
	})

	t.Run("runs gatekeeper then terminal stage", func(t *testing.T) {
		store := setupEngineStore(t)

		gatekeeper := &fakeNode{stage: StageGatekeeper, run: func(ctx context.Context, st *State) error {
			st.Intent = IntentGreeting
			return nil
		}}
		fastTrack := &fakeNode{stage: StageFastTrack, run: func(ctx context.Context, st *State) error {
			st.FinalResponse = "Hello."
			st.ConversationStage = ConvGreeting
			return nil
		}}

		sink := &testutil.RecordingSink{}
		engine := NewEngine(store, map[Stage]Node{
			StageGatekeeper: gatekeeper,
			StageFastTrack:  fastTrack,
		}, sink, testLogger())

		result, err := engine.RunTurn(ctx, TurnInput{SessionID: "s1", Text: "hello"})
		require.NoError(t, err)

		assert.Equal(t, "Hello.", result.FinalResponse)
		assert.Equal(t, StageEnd, result.NextStage)
		assert.Equal(t, ConvGreeting, result.ConversationStage)
		assert.Equal(t, []string{"gatekeeper", "fasttrack"}, sink.StagesRun())
	})

	t.Run("initializes the blackboard on first contact", func(t *testing.T) {
		store := setupEngineStore(t)

		gatekeeper := &fakeNode{stage: StageGatekeeper, run: func(ctx context.Context, st *State) error {
			st.Intent = IntentGreeting
			return nil
		}}
		fastTrack := &fakeNode{stage: StageFastTrack, run: func(ctx context.Context, st *State) error {
			st.FinalResponse = "Hello."
			return nil
		}}

		engine := NewEngine(store, map[Stage]Node{
			StageGatekeeper: gatekeeper,
			StageFastTrack:  fastTrack,
		}, nil, testLogger())

		_, err := engine.RunTurn(ctx, TurnInput{SessionID: "s1", Text: "hello"})
		require.NoError(t, err)

		record, err := store.ReadLatest(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, 1, record.Version)
		assert.Equal(t, blackboard.AllPending(), record.Status)
	})

	t.Run("node error degrades to clarification", func(t *testing.T) {
		store := setupEngineStore(t)

		gatekeeper := &fakeNode{stage: StageGatekeeper, run: func(ctx context.Context, st *State) error {
			return errors.New("boom")
		}}

		sink := &testutil.RecordingSink{}
		engine := NewEngine(store, map[Stage]Node{StageGatekeeper: gatekeeper}, sink, testLogger())

		result, err := engine.RunTurn(ctx, TurnInput{SessionID: "s1", Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, ClarificationResponse, result.FinalResponse)
		assert.Equal(t, StageUser, result.NextStage)
		assert.Equal(t, ConvClarification, result.ConversationStage)

		var failed bool
		for _, ev := range sink.Events() {
			if ev.Type == blackboard.ProgressStageFailed {
				failed = true
			}
		}
		assert.True(t, failed, "expected a stage_failed event")
	})

	t.Run("node panic degrades to clarification", func(t *testing.T) {
		store := setupEngineStore(t)

		gatekeeper := &fakeNode{stage: StageGatekeeper, run: func(ctx context.Context, st *State) error {
			panic("unexpected")
		}}

		engine := NewEngine(store, map[Stage]Node{StageGatekeeper: gatekeeper}, nil, testLogger())

		result, err := engine.RunTurn(ctx, TurnInput{SessionID: "s1", Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, ClarificationResponse, result.FinalResponse)
	})

	t.Run("empty final response is replaced, never delivered", func(t *testing.T) {
		store := setupEngineStore(t)

		gatekeeper := &fakeNode{stage: StageGatekeeper, run: func(ctx context.Context, st *State) error {
			st.Intent = IntentGreeting
			return nil
		}}
		// Terminal stage that forgets to set a response.
		fastTrack := &fakeNode{stage: StageFastTrack}

		engine := NewEngine(store, map[Stage]Node{
			StageGatekeeper: gatekeeper,
			StageFastTrack:  fastTrack,
		}, nil, testLogger())

		result, err := engine.RunTurn(ctx, TurnInput{SessionID: "s1", Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, ClarificationResponse, result.FinalResponse)
		assert.Equal(t, StageUser, result.NextStage)
	})

	t.Run("hop budget exhaustion degrades to clarification", func(t *testing.T) {
		store := setupEngineStore(t)

		// Judge and inquiry ping-pong forever; researcher never completes.
		judge := &fakeNode{stage: StageJudge, run: func(ctx context.Context, st *State) error {
			st.Next = StageInquiry
			return nil
		}}
		inquiry := &fakeNode{stage: StageInquiry, run: func(ctx context.Context, st *State) error {
			st.Next = StageJudge
			return nil
		}}
		gatekeeper := &fakeNode{stage: StageGatekeeper, run: func(ctx context.Context, st *State) error {
			st.Intent = IntentResearch
			return nil
		}}

		engine := NewEngine(store, map[Stage]Node{
			StageGatekeeper: gatekeeper,
			StageJudge:      judge,
			StageInquiry:    inquiry,
		}, nil, testLogger())
		engine.SetMaxHops(6)

		result, err := engine.RunTurn(ctx, TurnInput{SessionID: "s1", Text: "loop"})
		require.NoError(t, err)
		assert.Equal(t, ClarificationResponse, result.FinalResponse)
		assert.LessOrEqual(t, gatekeeper.calls+judge.calls+inquiry.calls, 6)
	})

	t.Run("clarification reply enters at the reflector", func(t *testing.T) {
		store := setupEngineStore(t)

		gatekeeper := &fakeNode{stage: StageGatekeeper}
		reflector := &fakeNode{stage: StageReflector, run: func(ctx context.Context, st *State) error {
			st.FinalResponse = "Revised answer."
			st.ConversationStage = ConvDelivery
			st.Next = StageEnd
			return nil
		}}

		engine := NewEngine(store, map[Stage]Node{
			StageGatekeeper: gatekeeper,
			StageReflector:  reflector,
		}, nil, testLogger())

		result, err := engine.RunTurn(ctx, TurnInput{
			SessionID:         "s1",
			Text:              "I meant Article 12",
			ConversationStage: ConvClarification,
		})
		require.NoError(t, err)

		assert.Equal(t, "Revised answer.", result.FinalResponse)
		assert.Equal(t, 1, reflector.calls)
		assert.Equal(t, 0, gatekeeper.calls)
	})
}
