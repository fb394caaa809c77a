package graph

// Message is one entry of the chat history handed in with a turn.
type Message struct {
	Role string `json:"role"` // "user" or "agent"
	Text string `json:"text"`
}

// State is the ephemeral working state of one turn. It exists only for the
// duration of a single RunTurn call and is never persisted; durable facts
// live exclusively on the blackboard. Nodes mutate it and the routing
// function reads it alongside the latest blackboard status.
type State struct {
	TurnID    string
	SessionID string
	Input     string
	History   []Message

	Intent     Intent
	Complexity Complexity

	// Next is a node's local routing proposal. Route validates it against
	// the blackboard status; the no-re-entry invariant can override it.
	Next Stage

	ConversationStage ConversationStage
	FinalResponse     string

	// ResearchSnapshot carries this turn's retrieval output between nodes
	// so the judge can synthesize without a re-read.
	ResearchSnapshot string

	// FromResearch marks that the turn just returned from the inquiry node
	// with research in hand (judge hard rule 2).
	FromResearch bool

	// AdminEscalated marks that admin-ops exhausted its re-plan budget and
	// is handing the turn to the judge.
	AdminEscalated bool
}

// TurnInput is the external contract for starting a turn.
type TurnInput struct {
	SessionID string
	Text      string
	History   []Message

	// ConversationStage is the tag returned by the previous turn, if any.
	// A turn that follows a clarifying question enters at the reflector.
	ConversationStage ConversationStage
}

// TurnResult is the external contract for a finished turn. FinalResponse is
// never empty: callers always receive either an answer or a clarifying
// question.
type TurnResult struct {
	FinalResponse     string
	NextStage         Stage // terminal sentinel: StageEnd or StageUser
	ConversationStage ConversationStage
}
