package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/moot/internal/testutil"
	"github.com/dyluth/moot/pkg/blackboard"
)

func TestStoreSink(t *testing.T) {
	t.Run("emitted events reach a store subscriber", func(t *testing.T) {
		store := setupEngineStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sub, err := store.SubscribeProgress(ctx)
		require.NoError(t, err)
		defer sub.Close()

		// Give the subscriber a moment to register.
		time.Sleep(50 * time.Millisecond)

		sink := NewStoreSink(store, testLogger())
		sink.Emit(ctx, blackboard.ProgressEvent{
			TurnID:    "turn-1",
			SessionID: "session-1",
			Stage:     string(StageJudge),
			Type:      blackboard.ProgressStageStarted,
			AtMs:      time.Now().UnixMilli(),
		})

		select {
		case got := <-sub.Events():
			require.NotNil(t, got)
			assert.Equal(t, "turn-1", got.TurnID)
			assert.Equal(t, string(StageJudge), got.Stage)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for progress event")
		}
	})
}

func TestMultiSink(t *testing.T) {
	t.Run("fans every event out to all sinks", func(t *testing.T) {
		first := &testutil.RecordingSink{}
		second := &testutil.RecordingSink{}
		sink := MultiSink{first, second}

		sink.Emit(context.Background(), blackboard.ProgressEvent{
			Stage: string(StageInquiry),
			Type:  blackboard.ProgressStageStarted,
		})

		require.Len(t, first.Events(), 1)
		require.Len(t, second.Events(), 1)
		assert.Equal(t, string(StageInquiry), first.Events()[0].Stage)
	})
}

func TestExecutionPlanCompleted(t *testing.T) {
	plan := NewExecutionPlan("1:create_party", "2:add_note")
	assert.False(t, plan.Completed())

	plan.SetStatus("1:create_party", PlanStepCompleted)
	assert.False(t, plan.Completed())

	plan.SetStatus("2:add_note", PlanStepFailed)
	assert.True(t, plan.Completed())
}
