// Package adminops implements the data-mutation executor subgraph: an
// Action -> Execute -> Synthesize cycle with a bounded Execute -> Action
// re-plan loop, used for turns that change the case record (parties,
// deadlines, notes) rather than reason about it.
package adminops

import "context"

// ToolCall is one planned tool invocation. Args values may reference the
// output of earlier calls with the placeholders "@last" (most recent
// identifier of the argument's implied type) or "@last:<entity-type>".
type ToolCall struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Args map[string]string `json:"args"`
}

// MutationRecord is the structured evidence that a mutating call changed
// something. It is attached to the ToolResult by the toolset itself, so the
// synthesis guard checks a verified causal link instead of re-deriving
// "was this a write?" by string-matching serialized context.
type MutationRecord struct {
	Verb       string `json:"verb"` // create | update | delete
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

// ToolResult is the outcome of one tool call. Err is set (and Mutation nil)
// when the call failed or was skipped.
type ToolResult struct {
	CallID   string          `json:"call_id"`
	Content  string          `json:"content"`
	Err      string          `json:"error,omitempty"`
	Mutation *MutationRecord `json:"mutation,omitempty"`
}

// OK reports whether the call succeeded.
func (r ToolResult) OK() bool { return r.Err == "" }

// ToolDef describes one tool for the planning prompt.
type ToolDef struct {
	Name        string
	Description string
	EntityType  string // entity type produced/affected, "" for read-only tools
	Verb        string // create | update | delete, "" for read-only tools
	Args        []string
}

// Mutating reports whether the tool changes records.
func (d ToolDef) Mutating() bool { return d.Verb != "" }

// Toolset is the injected set of case-record operations. Implementations
// must attach a MutationRecord to every successful mutating call.
type Toolset interface {
	Definitions() []ToolDef
	Invoke(ctx context.Context, call ToolCall) ToolResult
}
