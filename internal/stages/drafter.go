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

const (
	minSections = 3
	maxSections = 7

	// Any validation score below this triggers exactly one rewrite.
	passingScore = 7
)

// Section is one planned unit of the output document.
type Section struct {
	Title      string   `json:"title"`
	Purpose    string   `json:"purpose"`
	KeyPoints  []string `json:"key_points"`
	LengthHint string   `json:"length_hint"`
}

// Drafter turns the council's strategy into the final document in four
// phases: plan, write, validate, assemble. Every reasoning call is
// independently timeout-guarded; a failed section becomes a labeled
// placeholder, never a pipeline abort.
//
// Idempotence: if the drafter is already done for the current version, the
// stored output is returned unchanged with zero reasoning calls.
type Drafter struct {
	store    *blackboard.Store
	reasoner capability.Reasoner
	sink     graph.ProgressSink
	timeout  time.Duration
	log      *logrus.Entry
}

// NewDrafter creates the drafting node.
func NewDrafter(d Deps) *Drafter {
	sink := d.Sink
	if sink == nil {
		sink = graph.NopSink{}
	}
	return &Drafter{
		store:    d.Store,
		reasoner: d.Reasoner,
		sink:     sink,
		timeout:  d.timeout(),
		log:      d.Log.WithField("component", "drafter"),
	}
}

// Stage implements graph.Node.
func (dr *Drafter) Stage() graph.Stage { return graph.StageDrafter }

// Run implements graph.Node.
func (dr *Drafter) Run(ctx context.Context, st *graph.State) error {
	record, err := dr.store.ReadLatest(ctx, st.SessionID)
	if err != nil {
		return fmt.Errorf("drafter: failed to read blackboard: %w", err)
	}

	if record.Status.Drafter == blackboard.StageDone && record.Segments.FinalOutput != "" {
		// Already drafted for this version; the judge delivers it.
		st.ConversationStage = graph.ConvDelivery
		return nil
	}

	strategy := record.Segments.Strategy

	// Phase 1: plan
	sections := dr.plan(ctx, st.Input, strategy)

	planJSON, err := json.Marshal(sections)
	if err != nil {
		return fmt.Errorf("drafter: failed to encode plan: %w", err)
	}
	ok, err := dr.store.UpdateSegment(ctx, st.SessionID, blackboard.SegmentDraftPlan,
		string(planJSON), nil)
	if err != nil || !ok {
		dr.log.WithError(err).Warn("failed to persist draft plan; continuing")
	}

	progress := graph.NewExecutionPlan(sectionNames(sections)...)
	dr.emitPlan(ctx, st, blackboard.ProgressPlanCreated, progress)

	// Phase 2: write (one independently guarded call per section)
	bodies := make([]string, len(sections))
	for i, sec := range sections {
		progress.SetStatus(sec.Title, graph.PlanStepInProgress)

		body, werr := dr.writeSection(ctx, st.Input, strategy, sec)
		if werr != nil {
			dr.log.WithError(werr).WithField("section", sec.Title).Warn("section write failed; using placeholder")
			bodies[i] = fmt.Sprintf("[section unavailable: %s]", sec.Title)
			progress.SetStatus(sec.Title, graph.PlanStepFailed)
			continue
		}
		bodies[i] = body
		progress.SetStatus(sec.Title, graph.PlanStepCompleted)
	}

	// Phase 3: validate, one rewrite at most per section
	for i, sec := range sections {
		if strings.HasPrefix(bodies[i], "[section unavailable") {
			continue
		}
		bodies[i] = dr.validateSection(ctx, sec, bodies[i])
	}

	// Phase 4: assemble
	final := assemble(sections, bodies)

	ok, err = dr.store.UpdateSegment(ctx, st.SessionID, blackboard.SegmentFinalOutput,
		final, &blackboard.StatusPatch{
			Drafter: blackboard.StatusOf(blackboard.StageDone),
		})
	if err != nil {
		return fmt.Errorf("drafter: failed to persist final output: %w", err)
	}
	if !ok {
		return fmt.Errorf("drafter: final output write lost the record after retries")
	}

	dr.emitPlan(ctx, st, blackboard.ProgressPlanCompleted, progress)

	st.ConversationStage = graph.ConvDelivery

	dr.log.WithFields(logrus.Fields{
		"turn_id":  st.TurnID,
		"sections": len(sections),
	}).Debug("draft assembled")

	return nil
}

// plan proposes 3-7 titled sections; any failure falls back to the fixed
// three-section skeleton.
func (dr *Drafter) plan(ctx context.Context, input, strategy string) []Section {
	prompt := fmt.Sprintf(`Plan the sections of a document answering this request.
Reply with JSON only: an array of 3 to 7 objects
{"title": "...", "purpose": "...", "key_points": ["..."], "length_hint": "short"|"medium"|"long"}.

Request: %s

Strategy:
%s`, input, strategy)

	raw, err := complete(ctx, dr.reasoner, dr.timeout, "", prompt)
	if err == nil {
		var sections []Section
		if perr := capability.ParseStructured(raw, &sections); perr == nil {
			sections = clampSections(sections)
			if len(sections) >= minSections {
				return sections
			}
		}
	}

	dr.log.WithError(err).Warn("section planning failed; using skeleton")
	return skeletonSections()
}

func skeletonSections() []Section {
	return []Section{
		{Title: "Background", Purpose: "Set out the relevant facts", LengthHint: "short"},
		{Title: "Analysis", Purpose: "Apply the research to the facts", LengthHint: "medium"},
		{Title: "Recommendation", Purpose: "State the advised course of action", LengthHint: "short"},
	}
}

func clampSections(sections []Section) []Section {
	out := sections[:0]
	for _, s := range sections {
		if strings.TrimSpace(s.Title) != "" {
			out = append(out, s)
		}
	}
	if len(out) > maxSections {
		out = out[:maxSections]
	}
	return out
}

func (dr *Drafter) writeSection(ctx context.Context, input, strategy string, sec Section) (string, error) {
	prompt := fmt.Sprintf(`Write the %q section of a document answering this request.
Purpose: %s. Key points: %s. Length: %s. Plain text only, no heading.

Request: %s

Strategy:
%s`, sec.Title, sec.Purpose, strings.Join(sec.KeyPoints, "; "), sec.LengthHint, input, strategy)

	body, err := complete(ctx, dr.reasoner, dr.timeout, "", prompt)
	if err != nil {
		return "", err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("%w: empty section body", capability.ErrMalformed)
	}
	return body, nil
}

// sectionScore is the validation contract: 0-10 per dimension.
type sectionScore struct {
	Relevance int    `json:"relevance"`
	Accuracy  int    `json:"accuracy"`
	Quality   int    `json:"quality"`
	Critique  string `json:"critique"`
}

// validateSection scores a section and rewrites it exactly once when any
// score falls below the bar. An unparseable score passes the original; a
// failed rewrite keeps the original.
func (dr *Drafter) validateSection(ctx context.Context, sec Section, body string) string {
	prompt := fmt.Sprintf(`Score this document section 0-10 on relevance, accuracy and quality.
Reply with JSON only: {"relevance": n, "accuracy": n, "quality": n, "critique": "..."}.

Section %q (purpose: %s):
%s`, sec.Title, sec.Purpose, body)

	raw, err := complete(ctx, dr.reasoner, dr.timeout, "", prompt)
	if err != nil {
		dr.log.WithError(err).WithField("section", sec.Title).Debug("validation call failed; keeping section")
		return body
	}

	var score sectionScore
	if err := capability.ParseStructured(raw, &score); err != nil {
		dr.log.WithError(err).WithField("section", sec.Title).Debug("score unparseable; keeping section")
		return body
	}

	if score.Relevance >= passingScore && score.Accuracy >= passingScore && score.Quality >= passingScore {
		return body
	}

	rewritten, err := dr.rewriteSection(ctx, sec, body, score.Critique)
	if err != nil {
		dr.log.WithError(err).WithField("section", sec.Title).Debug("rewrite failed; keeping original")
		return body
	}
	return rewritten
}

func (dr *Drafter) rewriteSection(ctx context.Context, sec Section, body, critique string) (string, error) {
	prompt := fmt.Sprintf(`Rewrite this document section to address the critique.
Plain text only, no heading.

Section %q. Critique: %s

Original:
%s`, sec.Title, critique, body)

	rewritten, err := complete(ctx, dr.reasoner, dr.timeout, "", prompt)
	if err != nil {
		return "", err
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return "", fmt.Errorf("%w: empty rewrite", capability.ErrMalformed)
	}
	return rewritten, nil
}

func assemble(sections []Section, bodies []string) string {
	var sb strings.Builder
	for i, sec := range sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "## %s\n\n%s", sec.Title, bodies[i])
	}
	return sb.String()
}

func sectionNames(sections []Section) []string {
	names := make([]string, len(sections))
	for i, s := range sections {
		names[i] = s.Title
	}
	return names
}

func (dr *Drafter) emitPlan(ctx context.Context, st *graph.State, typ blackboard.ProgressEventType, plan *graph.ExecutionPlan) {
	detail, err := json.Marshal(plan)
	if err != nil {
		return
	}
	dr.sink.Emit(ctx, blackboard.ProgressEvent{
		TurnID:    st.TurnID,
		SessionID: st.SessionID,
		Stage:     string(graph.StageDrafter),
		Type:      typ,
		Detail:    string(detail),
		AtMs:      time.Now().UnixMilli(),
	})
}
