package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyluth/moot/internal/capability"
	"github.com/dyluth/moot/internal/graph"
	"github.com/dyluth/moot/pkg/blackboard"
)

// Judge is the supervisor and circuit breaker of the graph. It classifies
// complexity, decides the next stage, and enforces the three hard rules that
// keep a turn from re-entering completed work:
//
//  1. a completed draft is delivered verbatim, never re-drafted;
//  2. a turn returning from research with a simple question is answered
//     directly from the research, without asking a model where to go next;
//  3. completed research is never re-entered - the turn is redirected to
//     synthesis (low complexity) or council.
//
// Any failure inside the judge ends the turn with the deterministic
// clarification response, never a crash or silence.
type Judge struct {
	store    *blackboard.Store
	reasoner capability.Reasoner
	timeout  time.Duration
	log      *logrus.Entry
}

// NewJudge creates the supervisor node.
func NewJudge(d Deps) *Judge {
	return &Judge{
		store:    d.Store,
		reasoner: d.Reasoner,
		timeout:  d.timeout(),
		log:      d.Log.WithField("component", "judge"),
	}
}

// Stage implements graph.Node.
func (j *Judge) Stage() graph.Stage { return graph.StageJudge }

// Run implements graph.Node.
func (j *Judge) Run(ctx context.Context, st *graph.State) error {
	// An escalated admin failure terminates the turn; routing back into
	// admin-ops would loop.
	if st.AdminEscalated {
		if st.FinalResponse == "" {
			st.FinalResponse = "I was not able to complete the requested record changes. Nothing was modified."
		}
		st.ConversationStage = graph.ConvClarification
		st.Next = graph.StageEnd
		return nil
	}

	record, err := j.store.ReadLatest(ctx, st.SessionID)
	if err != nil {
		// Unhandled failures become a clarification, not a crash.
		j.log.WithError(err).Error("blackboard read failed")
		j.clarify(st)
		return nil
	}

	// Hard rule 1: a finished draft is delivered verbatim.
	if record.Status.Drafter == blackboard.StageDone && record.Segments.FinalOutput != "" {
		st.FinalResponse = record.Segments.FinalOutput
		st.ConversationStage = graph.ConvDelivery
		st.Next = graph.StageEnd
		return nil
	}

	if !st.FromResearch {
		st.Complexity = j.classifyComplexity(ctx, st)
	}

	// Hard rule 2: back from research with a simple question - answer now,
	// never re-ask a decision model what to do next.
	if st.FromResearch && st.Complexity == graph.ComplexityLow {
		research := st.ResearchSnapshot
		if research == "" {
			research = record.Segments.Research
		}
		st.FinalResponse = j.synthesize(ctx, st.Input, research)
		st.ConversationStage = graph.ConvDelivery
		st.Next = graph.StageEnd
		return nil
	}

	naive := j.naiveRoute(st)

	// Hard rule 3: completed research is never re-entered.
	if naive == graph.StageInquiry && record.Status.Researcher == blackboard.StageDone {
		if st.Complexity == graph.ComplexityLow {
			st.FinalResponse = j.synthesize(ctx, st.Input, record.Segments.Research)
			st.ConversationStage = graph.ConvDelivery
			st.Next = graph.StageEnd
			return nil
		}
		naive = graph.StageCouncil
	}

	st.Next = naive
	return nil
}

// naiveRoute is the routing table before the hard rules: admin work goes to
// the admin subgraph, everything substantive goes research-first.
func (j *Judge) naiveRoute(st *graph.State) graph.Stage {
	switch st.Intent {
	case graph.IntentAdmin:
		return graph.StageAdminOps
	case graph.IntentGreeting:
		// A stray greeting that reached the judge just ends politely.
		st.FinalResponse = "Hello! What can I help you with on this case?"
		st.ConversationStage = graph.ConvGreeting
		return graph.StageEnd
	default:
		// Council and research intents are always research-first.
		return graph.StageInquiry
	}
}

// classifyComplexity runs the cheap pre-filter and, only when ambiguous, one
// bounded reasoning call whose output is parsed defensively. Timeouts and
// malformed replies default to medium.
func (j *Judge) classifyComplexity(ctx context.Context, st *graph.State) graph.Complexity {
	if c, ok := heuristicComplexity(st.Intent, st.Input); ok {
		return c
	}

	prompt := fmt.Sprintf(`Rate the complexity of this legal-assistant request.
Reply with JSON only: {"complexity": "low"|"medium"|"high"}.
"low" is a single factual lookup; "high" needs multi-step strategy or drafting.

Request: %s`, st.Input)

	raw, err := complete(ctx, j.reasoner, j.timeout, "", prompt)
	if err != nil {
		j.log.WithError(err).Debug("complexity call failed; defaulting to medium")
		return graph.ComplexityMedium
	}

	var out struct {
		Complexity string `json:"complexity"`
	}
	if err := capability.ParseStructured(raw, &out); err != nil {
		j.log.WithError(err).Debug("complexity reply unparseable; defaulting to medium")
		return graph.ComplexityMedium
	}

	c := graph.Complexity(strings.ToLower(strings.TrimSpace(out.Complexity)))
	if c.Validate() != nil {
		return graph.ComplexityMedium
	}
	return c
}

// heuristicComplexity short-circuits the obvious cases on length and
// keywords; ok=false means ambiguous.
func heuristicComplexity(intent graph.Intent, input string) (graph.Complexity, bool) {
	if intent == graph.IntentSimple {
		return graph.ComplexityLow, true
	}
	if intent == graph.IntentCouncil {
		return graph.ComplexityHigh, true
	}

	lower := strings.ToLower(input)
	words := len(strings.Fields(lower))

	if containsAny(lower, councilKeywords) ||
		containsAny(lower, []string{"comprehensive", "detailed", "full analysis", "appeal"}) ||
		words > 60 {
		return graph.ComplexityHigh, true
	}

	if words <= 8 && strings.HasSuffix(strings.TrimSpace(lower), "?") {
		return graph.ComplexityLow, true
	}

	return "", false
}

// synthesize answers directly from research with one constrained call; any
// failure substitutes a deterministic digest of the research itself.
func (j *Judge) synthesize(ctx context.Context, question, research string) string {
	if strings.TrimSpace(research) == "" {
		return graph.ClarificationResponse
	}

	prompt := fmt.Sprintf(`Answer the question directly now, using only the research below.
Do not plan further steps. Plain text only.

Question: %s

Research:
%s`, question, research)

	answer, err := complete(ctx, j.reasoner, j.timeout, "", prompt)
	if err != nil || strings.TrimSpace(answer) == "" {
		j.log.WithError(err).Debug("synthesis call failed; using research digest")
		return "Based on the material on file: " + truncate(strings.TrimSpace(research), 600)
	}

	return strings.TrimSpace(answer)
}

func (j *Judge) clarify(st *graph.State) {
	st.FinalResponse = graph.ClarificationResponse
	st.ConversationStage = graph.ConvClarification
	st.Next = graph.StageUser
}
