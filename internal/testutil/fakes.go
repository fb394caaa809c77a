// Package testutil provides scripted doubles for the reasoning, retrieval
// and progress interfaces so pipeline tests run without network access.
package testutil

import (
	"context"
	"sync"

	"github.com/dyluth/moot/internal/capability"
	"github.com/dyluth/moot/pkg/blackboard"
)

// ScriptedReply is one queued reasoner response.
type ScriptedReply struct {
	Text string
	Err  error
}

// ScriptedReasoner replays queued replies in order and records every prompt
// it was asked. Once the queue is exhausted it returns Fallback (or
// ErrExhausted when Fallback is empty).
type ScriptedReasoner struct {
	mu       sync.Mutex
	queue    []ScriptedReply
	prompts  []string
	Fallback string
}

// NewScriptedReasoner creates a reasoner that will return the given text
// replies in order.
func NewScriptedReasoner(replies ...string) *ScriptedReasoner {
	r := &ScriptedReasoner{}
	for _, text := range replies {
		r.queue = append(r.queue, ScriptedReply{Text: text})
	}
	return r
}

// Enqueue appends a reply to the script.
func (r *ScriptedReasoner) Enqueue(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, ScriptedReply{Text: text})
}

// EnqueueErr appends a failing reply to the script.
func (r *ScriptedReasoner) EnqueueErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, ScriptedReply{Err: err})
}

// Complete implements capability.Reasoner.
func (r *ScriptedReasoner) Complete(ctx context.Context, req capability.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prompts = append(r.prompts, req.Prompt)

	if len(r.queue) == 0 {
		if r.Fallback != "" {
			return r.Fallback, nil
		}
		return "", capability.ErrTimeout
	}

	reply := r.queue[0]
	r.queue = r.queue[1:]
	if reply.Err != nil {
		return "", reply.Err
	}
	return reply.Text, nil
}

// Calls returns how many completions were requested.
func (r *ScriptedReasoner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

// Prompts returns a copy of every prompt seen so far.
func (r *ScriptedReasoner) Prompts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.prompts))
	copy(out, r.prompts)
	return out
}

// StubRetriever returns a fixed snippet list (or error) for every search and
// records the queries it received.
type StubRetriever struct {
	mu       sync.Mutex
	Snippets []capability.Snippet
	Err      error
	queries  []string
}

// Search implements capability.Retriever.
func (s *StubRetriever) Search(ctx context.Context, query string, filters map[string]string) ([]capability.Snippet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Snippets, nil
}

// Queries returns a copy of every search query seen so far.
func (s *StubRetriever) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

// RecordingSink captures emitted progress events for assertions.
type RecordingSink struct {
	mu     sync.Mutex
	events []blackboard.ProgressEvent
}

// Emit implements graph.ProgressSink.
func (s *RecordingSink) Emit(ctx context.Context, ev blackboard.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a copy of everything emitted so far.
func (s *RecordingSink) Events() []blackboard.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]blackboard.ProgressEvent, len(s.events))
	copy(out, s.events)
	return out
}

// StagesRun extracts the ordered stage names from stage_started events.
func (s *RecordingSink) StagesRun() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		if ev.Type == blackboard.ProgressStageStarted {
			out = append(out, ev.Stage)
		}
	}
	return out
}
