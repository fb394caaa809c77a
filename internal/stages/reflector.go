package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyluth/moot/internal/capability"
	"github.com/dyluth/moot/internal/graph"
)

// Reflector is the entry point for a turn that answers a clarifying
// question. It revises the prior routing decision in one bounded call:
// continue into admin work, resume fact gathering/research, or answer and
// terminate. A failed or malformed decision defaults to the research path,
// which is always safe because the inquiry node re-derives its own mode
// from the blackboard.
type Reflector struct {
	reasoner capability.Reasoner
	timeout  time.Duration
	log      *logrus.Entry
}

// NewReflector creates the reflection node.
func NewReflector(d Deps) *Reflector {
	return &Reflector{
		reasoner: d.Reasoner,
		timeout:  d.timeout(),
		log:      d.Log.WithField("component", "reflector"),
	}
}

// Stage implements graph.Node.
func (r *Reflector) Stage() graph.Stage { return graph.StageReflector }

// Run implements graph.Node.
func (r *Reflector) Run(ctx context.Context, st *graph.State) error {
	prompt := fmt.Sprintf(`The assistant previously asked the user a clarifying question;
the user has now replied. Decide how to continue.
Reply with JSON only: {"action": "admin"|"research"|"answer", "response": "..."}.
Use "admin" for data changes, "research" to resume the case work,
"answer" only if the reply alone fully settles the conversation
(put the final answer in "response").

User reply: %s

Conversation so far:
%s`, st.Input, renderHistory(st.History))

	action, response := r.decide(ctx, prompt)

	switch action {
	case "admin":
		st.Intent = graph.IntentAdmin
		st.ConversationStage = graph.ConvAdmin
		st.Next = graph.StageAdminOps

	case "answer":
		if strings.TrimSpace(response) == "" {
			response = graph.ClarificationResponse
		}
		st.FinalResponse = response
		st.ConversationStage = graph.ConvDelivery
		st.Next = graph.StageEnd

	default: // "research" and every degraded case
		st.Intent = graph.IntentResearch
		st.ConversationStage = graph.ConvResearch
		st.Next = graph.StageInquiry
	}

	r.log.WithFields(logrus.Fields{
		"turn_id": st.TurnID,
		"action":  action,
	}).Debug("reflection decided")

	return nil
}

func (r *Reflector) decide(ctx context.Context, prompt string) (action, response string) {
	raw, err := complete(ctx, r.reasoner, r.timeout, "", prompt)
	if err != nil {
		r.log.WithError(err).Debug("reflection call failed; defaulting to research")
		return "research", ""
	}

	var out struct {
		Action   string `json:"action"`
		Response string `json:"response"`
	}
	if err := capability.ParseStructured(raw, &out); err != nil {
		r.log.WithError(err).Debug("reflection reply unparseable; defaulting to research")
		return "research", ""
	}

	return strings.ToLower(strings.TrimSpace(out.Action)), out.Response
}
