package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dyluth/moot/pkg/blackboard"
)

// ClarificationResponse is the deterministic reply for any turn the engine
// cannot complete. Raw errors, stack traces and empty replies never reach
// the user.
const ClarificationResponse = "I wasn't able to complete that. Could you rephrase or clarify what you'd like me to do?"

// defaultMaxHops bounds node invocations per turn. The no-re-entry invariant
// makes this bound generous; hitting it means a routing bug, and the user
// still gets a clarification rather than a hang.
const defaultMaxHops = 12

// Node is one unit of work in the graph: it consumes the turn state, may call
// capabilities and the blackboard, and mutates the state as its patch.
type Node interface {
	Stage() Stage
	Run(ctx context.Context, st *State) error
}

// Engine drives one turn through the stage graph to a terminal signal.
// All handles are injected; the engine holds no global state, so independent
// sessions run fully concurrently while stages within a turn stay sequential.
type Engine struct {
	store   *blackboard.Store
	nodes   map[Stage]Node
	sink    ProgressSink
	log     *logrus.Entry
	maxHops int
}

// NewEngine creates an engine over the given node set. sink may be nil.
func NewEngine(store *blackboard.Store, nodes map[Stage]Node, sink ProgressSink, log *logrus.Entry) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		store:   store,
		nodes:   nodes,
		sink:    sink,
		log:     log.WithField("component", "engine"),
		maxHops: defaultMaxHops,
	}
}

// SetMaxHops overrides the per-turn node invocation budget. Values below 1
// are ignored.
func (e *Engine) SetMaxHops(n int) {
	if n > 0 {
		e.maxHops = n
	}
}

// RunTurn executes one conversational turn. It always returns a usable
// result: any unhandled node failure, routing failure, panic or exhausted
// hop budget degrades to the deterministic clarification response.
func (e *Engine) RunTurn(ctx context.Context, in TurnInput) (result *TurnResult, err error) {
	st := &State{
		TurnID:            uuid.New().String(),
		SessionID:         in.SessionID,
		Input:             in.Text,
		History:           in.History,
		Intent:            IntentUnknown,
		Complexity:        ComplexityMedium,
		ConversationStage: in.ConversationStage,
	}

	log := e.log.WithFields(logrus.Fields{
		"turn_id": st.TurnID,
		"session": st.SessionID,
	})

	// A panicking node must never crash the turn or leak a stack trace.
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("node panicked; degrading to clarification")
			result = e.clarify(st)
			err = nil
		}
	}()

	if in.SessionID == "" || in.Text == "" {
		return nil, fmt.Errorf("turn input requires a session ID and text")
	}

	// Idempotent: creates version 1 all-pending on first contact.
	if _, err := e.store.Initialize(ctx, in.SessionID); err != nil {
		log.WithError(err).Error("failed to initialize blackboard")
		return e.clarify(st), nil
	}

	current := e.entryStage(in)

	for hop := 0; hop < e.maxHops; hop++ {
		node, ok := e.nodes[current]
		if !ok {
			log.WithField("stage", current).Error("no node registered for stage")
			return e.clarify(st), nil
		}

		e.emit(ctx, st, current, blackboard.ProgressStageStarted, "")

		if err := node.Run(ctx, st); err != nil {
			log.WithError(err).WithField("stage", current).Error("stage failed")
			e.emit(ctx, st, current, blackboard.ProgressStageFailed, err.Error())
			return e.clarify(st), nil
		}

		e.emit(ctx, st, current, blackboard.ProgressStageCompleted, "")

		// Routing must see the freshest status: a node's write (or a
		// concurrent writer) may have completed a stage since the turn
		// began. Never trust the in-memory copy across an await.
		record, err := e.store.ReadLatest(ctx, st.SessionID)
		if err != nil {
			log.WithError(err).Error("failed to read blackboard for routing")
			return e.clarify(st), nil
		}

		next, err := Route(current, st, record.Status)
		if err != nil {
			log.WithError(err).WithField("stage", current).Error("routing failed")
			return e.clarify(st), nil
		}

		log.WithFields(logrus.Fields{
			"from": current,
			"to":   next,
			"hop":  hop,
		}).Debug("routed")

		if next.Terminal() {
			return e.finish(st, next), nil
		}

		current = next
	}

	log.Error("hop budget exhausted; degrading to clarification")
	return e.clarify(st), nil
}

// entryStage picks where the turn enters the graph. A turn answering a
// clarifying question resumes at the reflector, which revises the prior
// routing decision; everything else starts at the gatekeeper.
func (e *Engine) entryStage(in TurnInput) Stage {
	if in.ConversationStage == ConvClarification {
		if _, ok := e.nodes[StageReflector]; ok {
			return StageReflector
		}
	}
	return StageGatekeeper
}

// finish builds the terminal result, enforcing the output contract: the
// caller always receives a non-empty final response.
func (e *Engine) finish(st *State, terminal Stage) *TurnResult {
	response := st.FinalResponse
	if response == "" {
		response = ClarificationResponse
		terminal = StageUser
		st.ConversationStage = ConvClarification
	}

	conv := st.ConversationStage
	if conv == "" {
		if terminal == StageUser {
			conv = ConvClarification
		} else {
			conv = ConvDelivery
		}
	}

	return &TurnResult{
		FinalResponse:     response,
		NextStage:         terminal,
		ConversationStage: conv,
	}
}

// clarify ends an unrecoverable turn with the deterministic message.
func (e *Engine) clarify(st *State) *TurnResult {
	st.FinalResponse = ClarificationResponse
	st.ConversationStage = ConvClarification
	return e.finish(st, StageUser)
}

// emit publishes a lifecycle event; failures are deliberately ignored.
func (e *Engine) emit(ctx context.Context, st *State, stage Stage, typ blackboard.ProgressEventType, detail string) {
	e.sink.Emit(ctx, blackboard.ProgressEvent{
		TurnID:    st.TurnID,
		SessionID: st.SessionID,
		Stage:     string(stage),
		Type:      typ,
		Detail:    detail,
		AtMs:      time.Now().UnixMilli(),
	})
}
