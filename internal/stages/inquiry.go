package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyluth/moot/internal/capability"
	"github.com/dyluth/moot/internal/graph"
	"github.com/dyluth/moot/pkg/blackboard"
)

// inquiryMode is the internal sub-machine state of the Inquiry node.
type inquiryMode int

const (
	modeInvestigating inquiryMode = iota
	modeResearching
)

// Inquiry is the investigator/researcher pair as one component. The mode is
// derived from the blackboard status on entry - never hardcoded - so a turn
// interrupted after fact gathering resumes safely at research. The old
// "self-loop by re-dispatch" is an explicit internal transition here: a
// completed investigation falls straight through to research inside the same
// Run call.
type Inquiry struct {
	store     *blackboard.Store
	reasoner  capability.Reasoner
	retriever capability.Retriever
	timeout   time.Duration
	log       *logrus.Entry
}

// NewInquiry creates the investigator/researcher node.
func NewInquiry(d Deps) *Inquiry {
	return &Inquiry{
		store:     d.Store,
		reasoner:  d.Reasoner,
		retriever: d.Retriever,
		timeout:   d.timeout(),
		log:       d.Log.WithField("component", "inquiry"),
	}
}

// Stage implements graph.Node.
func (q *Inquiry) Stage() graph.Stage { return graph.StageInquiry }

// Run implements graph.Node.
func (q *Inquiry) Run(ctx context.Context, st *graph.State) error {
	record, err := q.store.ReadLatest(ctx, st.SessionID)
	if err != nil {
		return fmt.Errorf("inquiry: failed to read blackboard: %w", err)
	}

	mode := modeInvestigating
	facts := record.Segments.Facts

	// Simple lookups skip fact gathering entirely, using the raw turn input
	// as the fact snapshot; a done investigator resumes at research.
	if st.Intent == graph.IntentSimple {
		mode = modeResearching
		if facts == "" {
			facts = st.Input
		}
	} else if record.Status.Investigator == blackboard.StageDone {
		mode = modeResearching
	}

	for {
		switch mode {
		case modeInvestigating:
			done, newFacts := q.investigate(ctx, st)
			if !done {
				// Investigator status stays pending; the turn ends with a
				// question for the user.
				return nil
			}
			facts = newFacts
			mode = modeResearching

		case modeResearching:
			return q.research(ctx, st, facts)
		}
	}
}

// investigation is the structured extraction contract.
type investigation struct {
	Status       string            `json:"status"` // COMPLETE | INCOMPLETE
	MissingInfo  []string          `json:"missing_info"`
	NextQuestion string            `json:"next_question"`
	Facts        map[string]string `json:"structured_facts"`
}

// investigate runs one extraction call. done=true means facts were written
// and the investigator marked done; done=false means the turn ended with a
// clarifying question (state already patched).
func (q *Inquiry) investigate(ctx context.Context, st *graph.State) (done bool, facts string) {
	prompt := fmt.Sprintf(`Extract the case facts needed to research this request.
Reply with JSON only:
{"status": "COMPLETE"|"INCOMPLETE", "missing_info": [...], "next_question": "...", "structured_facts": {"key": "value"}}
Use INCOMPLETE when essential facts are missing and put the single most
useful follow-up in next_question.

Request: %s

Conversation so far:
%s`, st.Input, renderHistory(st.History))

	var inv investigation
	raw, err := complete(ctx, q.reasoner, q.timeout, "", prompt)
	if err == nil {
		err = capability.ParseStructured(raw, &inv)
	}
	if err != nil {
		// Defensive degrade: treat as incomplete and ask a generic question
		// rather than inventing facts.
		q.log.WithError(err).Debug("investigation call failed; asking for details")
		q.askUser(st, "Could you share a little more detail about the case - who is involved and what happened?")
		return false, ""
	}

	if !strings.EqualFold(strings.TrimSpace(inv.Status), "COMPLETE") {
		question := strings.TrimSpace(inv.NextQuestion)
		if question == "" {
			question = "Could you tell me more? I'm missing: " + strings.Join(inv.MissingInfo, ", ")
		}
		q.askUser(st, question)
		return false, ""
	}

	encoded, err := json.Marshal(inv.Facts)
	if err != nil || len(inv.Facts) == 0 {
		encoded = []byte(st.Input)
	}

	ok, err := q.store.UpdateSegment(ctx, st.SessionID, blackboard.SegmentFacts,
		string(encoded), &blackboard.StatusPatch{
			Investigator: blackboard.StatusOf(blackboard.StageDone),
		})
	if err != nil || !ok {
		q.log.WithError(err).Error("failed to persist facts")
		q.askUser(st, graph.ClarificationResponse)
		return false, ""
	}

	q.log.WithFields(logrus.Fields{
		"turn_id": st.TurnID,
		"facts":   len(inv.Facts),
	}).Debug("investigation complete")

	return true, string(encoded)
}

// research invokes retrieval over the fact snapshot. Fail-fast rule: empty
// results reset the investigator to pending and end the turn with a
// clarification - the pipeline never proceeds on empty context.
func (q *Inquiry) research(ctx context.Context, st *graph.State, facts string) error {
	query := searchQuery(facts)

	snippets, err := q.retriever.Search(ctx, query, nil)
	if err != nil {
		q.log.WithError(err).Warn("retrieval failed; treating as empty")
		snippets = nil
	}

	if len(snippets) == 0 {
		q.log.WithError(capability.ErrNoResults).WithField("query", query).Debug("failing fast")
		ok, uerr := q.store.UpdateSegment(ctx, st.SessionID, blackboard.SegmentFacts,
			facts, &blackboard.StatusPatch{
				Investigator: blackboard.StatusOf(blackboard.StagePending),
			})
		if uerr != nil || !ok {
			q.log.WithError(uerr).Error("failed to reset investigator status")
		}
		q.askUser(st, "I couldn't find anything relevant with what I have. Could you give me more specifics - names, dates, or the provision involved?")
		return nil
	}

	research := formatSnippets(snippets)

	ok, err := q.store.UpdateSegment(ctx, st.SessionID, blackboard.SegmentResearch,
		research, &blackboard.StatusPatch{
			Researcher: blackboard.StatusOf(blackboard.StageDone),
		})
	if err != nil {
		return fmt.Errorf("inquiry: failed to persist research: %w", err)
	}
	if !ok {
		return fmt.Errorf("inquiry: research write lost the record after retries")
	}

	st.ResearchSnapshot = research
	st.FromResearch = true
	st.ConversationStage = graph.ConvResearch

	// Simple-query circuit breaker: answer here and terminate, without
	// handing back to the judge for a second decision. This intentionally
	// overlaps with the judge's own rule so whichever path reaches the
	// condition first ends the turn.
	if st.Intent == graph.IntentSimple {
		st.Complexity = graph.ComplexityLow
		st.FinalResponse = q.answerDirectly(ctx, st.Input, research)
		st.ConversationStage = graph.ConvDelivery
		st.Next = graph.StageEnd
		return nil
	}

	st.Next = graph.StageCouncil
	return nil
}

// answerDirectly is the one constrained synthesis call of the circuit
// breaker; failure degrades to a deterministic research digest.
func (q *Inquiry) answerDirectly(ctx context.Context, question, research string) string {
	prompt := fmt.Sprintf(`Answer directly now using only this research. Plain text only.

Question: %s

Research:
%s`, question, research)

	answer, err := complete(ctx, q.reasoner, q.timeout, "", prompt)
	if err != nil || strings.TrimSpace(answer) == "" {
		q.log.WithError(err).Debug("direct answer failed; using research digest")
		return "Here is what I found: " + truncate(strings.TrimSpace(research), 600)
	}
	return strings.TrimSpace(answer)
}

func (q *Inquiry) askUser(st *graph.State, question string) {
	st.FinalResponse = question
	st.ConversationStage = graph.ConvClarification
	st.Next = graph.StageUser
}

// searchQuery flattens a fact snapshot (JSON map or raw text) into query
// terms.
func searchQuery(facts string) string {
	var m map[string]string
	if err := json.Unmarshal([]byte(facts), &m); err == nil && len(m) > 0 {
		parts := make([]string, 0, len(m))
		for _, v := range m {
			parts = append(parts, v)
		}
		return strings.Join(parts, " ")
	}
	return facts
}

func formatSnippets(snippets []capability.Snippet) string {
	var sb strings.Builder
	for i, s := range snippets {
		fmt.Fprintf(&sb, "[%d] %s", i+1, strings.TrimSpace(s.Content))
		if src := s.Metadata["source"]; src != "" {
			fmt.Fprintf(&sb, " (source: %s)", src)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func renderHistory(history []graph.Message) string {
	if len(history) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, m := range history {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Text)
	}
	return strings.TrimSpace(sb.String())
}
