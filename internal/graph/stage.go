// Package graph composes the workflow stages into a routed graph and drives
// one conversational turn through it to a terminal signal. Routing decisions
// always consult the latest blackboard workflow status in addition to the
// in-memory turn state, because turn state can be stale across retries and
// restarts.
package graph

import "fmt"

// Stage identifies one node of the workflow graph, or a terminal signal.
type Stage string

const (
	StageGatekeeper Stage = "gatekeeper"
	StageFastTrack  Stage = "fasttrack"
	StageJudge      Stage = "judge"
	StageInquiry    Stage = "inquiry"
	StageCouncil    Stage = "council"
	StageDrafter    Stage = "drafter"
	StageReflector  Stage = "reflector"
	StageAdminOps   Stage = "adminops"

	// StageEnd terminates the turn with a final response.
	StageEnd Stage = "end"

	// StageUser terminates the turn waiting on the user (a clarifying
	// question was asked).
	StageUser Stage = "user"
)

// Terminal reports whether the stage ends the turn.
func (s Stage) Terminal() bool {
	return s == StageEnd || s == StageUser
}

// Validate checks if the Stage is a valid enum value.
func (s Stage) Validate() error {
	switch s {
	case StageGatekeeper, StageFastTrack, StageJudge, StageInquiry,
		StageCouncil, StageDrafter, StageReflector, StageAdminOps,
		StageEnd, StageUser:
		return nil
	default:
		return fmt.Errorf("unknown stage: %q", s)
	}
}

// Intent is the classified purpose of the user's turn.
type Intent string

const (
	IntentGreeting Intent = "greeting"
	IntentAdmin    Intent = "admin"
	IntentSimple   Intent = "simple"
	IntentResearch Intent = "research"
	IntentCouncil  Intent = "council"
	IntentUnknown  Intent = "unknown"
)

// Validate checks if the Intent is a valid enum value.
func (i Intent) Validate() error {
	switch i {
	case IntentGreeting, IntentAdmin, IntentSimple, IntentResearch,
		IntentCouncil, IntentUnknown:
		return nil
	default:
		return fmt.Errorf("unknown intent: %q", i)
	}
}

// Complexity is the judged difficulty of the user's request.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Validate checks if the Complexity is a valid enum value.
func (c Complexity) Validate() error {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return nil
	default:
		return fmt.Errorf("unknown complexity: %q", c)
	}
}

// ConversationStage tags where the conversation stands when a turn ends,
// so the next turn can resume at the right entry point.
type ConversationStage string

const (
	ConvGreeting      ConversationStage = "greeting"
	ConvClarification ConversationStage = "clarification"
	ConvResearch      ConversationStage = "research"
	ConvStrategy      ConversationStage = "strategy"
	ConvDelivery      ConversationStage = "delivery"
	ConvAdmin         ConversationStage = "admin"
)
