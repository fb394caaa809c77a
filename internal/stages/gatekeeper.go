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

// Gatekeeper triages every incoming turn. A cheap keyword/shape pre-filter
// settles the obvious cases; only genuinely ambiguous input spends a bounded
// reasoning call, and a malformed or late reply degrades to unknown (which
// routes to the judge, never to a crash).
type Gatekeeper struct {
	reasoner capability.Reasoner
	timeout  time.Duration
	log      *logrus.Entry
}

// NewGatekeeper creates the triage node.
func NewGatekeeper(d Deps) *Gatekeeper {
	return &Gatekeeper{
		reasoner: d.Reasoner,
		timeout:  d.timeout(),
		log:      d.Log.WithField("component", "gatekeeper"),
	}
}

// Stage implements graph.Node.
func (g *Gatekeeper) Stage() graph.Stage { return graph.StageGatekeeper }

// Run classifies the turn's intent and tags the conversation stage.
func (g *Gatekeeper) Run(ctx context.Context, st *graph.State) error {
	st.Intent = heuristicIntent(st.Input)

	if st.Intent == graph.IntentUnknown {
		st.Intent = g.classifyWithModel(ctx, st.Input)
	}

	switch st.Intent {
	case graph.IntentGreeting:
		st.ConversationStage = graph.ConvGreeting
	case graph.IntentAdmin:
		st.ConversationStage = graph.ConvAdmin
	default:
		st.ConversationStage = graph.ConvResearch
	}

	g.log.WithFields(logrus.Fields{
		"turn_id": st.TurnID,
		"intent":  st.Intent,
	}).Debug("triaged")

	return nil
}

// classifyWithModel is the single bounded fallback for ambiguous input.
func (g *Gatekeeper) classifyWithModel(ctx context.Context, input string) graph.Intent {
	prompt := fmt.Sprintf(`Classify the intent of this legal-assistant request.
Reply with JSON only: {"intent": "greeting"|"admin"|"simple"|"research"|"council"}.
"admin" means a data change (add/update/delete a party, deadline or note).
"simple" means a short factual lookup. "council" means drafting or strategy work.

Request: %s`, input)

	raw, err := complete(ctx, g.reasoner, g.timeout, "", prompt)
	if err != nil {
		g.log.WithError(err).Debug("intent fallback failed; defaulting to unknown")
		return graph.IntentUnknown
	}

	var out struct {
		Intent string `json:"intent"`
	}
	if err := capability.ParseStructured(raw, &out); err != nil {
		g.log.WithError(err).Debug("intent reply unparseable; defaulting to unknown")
		return graph.IntentUnknown
	}

	intent := graph.Intent(strings.ToLower(strings.TrimSpace(out.Intent)))
	if intent.Validate() != nil {
		return graph.IntentUnknown
	}
	return intent
}

var greetingOpeners = []string{
	"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
	"thanks", "thank you",
}

var adminVerbs = []string{
	"add", "create", "delete", "remove", "update", "register", "schedule",
	"cancel", "rename", "set",
}

var adminNouns = []string{
	"party", "parties", "deadline", "deadlines", "note", "notes", "hearing",
	"contact", "client", "record",
}

var councilKeywords = []string{
	"draft", "letter", "document", "memo", "opinion", "strategy", "advise",
	"argue", "prepare", "brief",
}

var researchKeywords = []string{
	"research", "find", "look up", "precedent", "case law", "compare",
}

// heuristicIntent is the pre-filter. It only claims a classification when
// the signal is unmistakable; everything else is unknown and falls through
// to the model.
func heuristicIntent(input string) graph.Intent {
	lower := strings.ToLower(strings.TrimSpace(input))
	words := strings.Fields(lower)

	if len(words) == 0 {
		return graph.IntentUnknown
	}

	if len(words) <= 4 {
		for _, opener := range greetingOpeners {
			if strings.HasPrefix(lower, opener) {
				return graph.IntentGreeting
			}
		}
	}

	if containsAny(lower, adminVerbs) && containsAny(lower, adminNouns) {
		return graph.IntentAdmin
	}

	if containsAny(lower, councilKeywords) {
		return graph.IntentCouncil
	}

	if strings.HasSuffix(lower, "?") && len(words) <= 12 {
		return graph.IntentSimple
	}

	if containsAny(lower, researchKeywords) {
		return graph.IntentResearch
	}

	return graph.IntentUnknown
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if containsWord(haystack, n) {
			return true
		}
	}
	return false
}

// containsWord matches whole words so "additional" never triggers "add".
func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
