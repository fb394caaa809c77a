package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyluth/moot/internal/capability"
	"github.com/dyluth/moot/internal/graph"
	"github.com/dyluth/moot/pkg/blackboard"
)

// Strategy is the council's structured output, stored as JSON in the
// strategy segment.
type Strategy struct {
	Objective string   `json:"objective"`
	Approach  string   `json:"approach"`
	KeyPoints []string `json:"key_points"`
	Risks     []string `json:"risks"`
	Fallback  bool     `json:"fallback,omitempty"`
}

// Council synthesizes a strategy from facts and research in one bounded
// reasoning call. Every failure mode - timeout, parse error, anything -
// substitutes a clearly labeled fallback strategy and still marks the stage
// done, so the pipeline always advances.
type Council struct {
	store    *blackboard.Store
	reasoner capability.Reasoner
	timeout  time.Duration
	log      *logrus.Entry
}

// NewCouncil creates the strategy node.
func NewCouncil(d Deps) *Council {
	return &Council{
		store:    d.Store,
		reasoner: d.Reasoner,
		timeout:  d.timeout(),
		log:      d.Log.WithField("component", "council"),
	}
}

// Stage implements graph.Node.
func (c *Council) Stage() graph.Stage { return graph.StageCouncil }

// Run implements graph.Node.
func (c *Council) Run(ctx context.Context, st *graph.State) error {
	record, err := c.store.ReadLatest(ctx, st.SessionID)
	if err != nil {
		return fmt.Errorf("council: failed to read blackboard: %w", err)
	}

	// Already done for this version: nothing to redo, routing advances to
	// the drafter.
	if record.Status.Council == blackboard.StageDone {
		return nil
	}

	strategy := c.deliberate(ctx, st.Input, record.Segments.Facts, record.Segments.Research)

	encoded, err := json.Marshal(strategy)
	if err != nil {
		return fmt.Errorf("council: failed to encode strategy: %w", err)
	}

	ok, err := c.store.UpdateSegment(ctx, st.SessionID, blackboard.SegmentStrategy,
		string(encoded), &blackboard.StatusPatch{
			Council: blackboard.StatusOf(blackboard.StageDone),
		})
	if err != nil {
		return fmt.Errorf("council: failed to persist strategy: %w", err)
	}
	if !ok {
		return fmt.Errorf("council: strategy write lost the record after retries")
	}

	st.ConversationStage = graph.ConvStrategy

	c.log.WithFields(logrus.Fields{
		"turn_id":  st.TurnID,
		"fallback": strategy.Fallback,
	}).Debug("strategy recorded")

	return nil
}

// deliberate makes the single bounded strategy call; its fallback is a fixed
// structure built from whatever material exists.
func (c *Council) deliberate(ctx context.Context, input, facts, research string) Strategy {
	prompt := fmt.Sprintf(`Produce a case strategy for the request below.
Reply with JSON only:
{"objective": "...", "approach": "...", "key_points": ["..."], "risks": ["..."]}

Request: %s

Facts:
%s

Research:
%s`, input, facts, research)

	raw, err := complete(ctx, c.reasoner, c.timeout, "", prompt)
	if err == nil {
		var s Strategy
		if perr := capability.ParseStructured(raw, &s); perr == nil && s.Objective != "" {
			return s
		}
		err = fmt.Errorf("%w: strategy reply missing objective", capability.ErrMalformed)
	}

	if capability.IsTimeout(err) {
		c.log.WithError(err).Warn("strategy call timed out; substituting fallback")
	} else {
		c.log.WithError(err).Warn("strategy call failed; substituting fallback")
	}

	return Strategy{
		Objective: "[fallback strategy] Address the request using the material on file.",
		Approach:  "Summarize the gathered facts, apply the research findings, and state a direct recommendation.",
		KeyPoints: []string{
			"Facts: " + truncate(facts, 200),
			"Research: " + truncate(research, 200),
		},
		Risks:    []string{"Strategy was generated from a fallback template; have a practitioner review it."},
		Fallback: true,
	}
}
