package adminops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyluth/moot/internal/capability"
	"github.com/dyluth/moot/internal/graph"
	"github.com/dyluth/moot/pkg/blackboard"
)

var (
	// ErrUnresolved marks a tool call skipped because a placeholder
	// argument could not be bound to any earlier result. Only the
	// offending call is skipped.
	ErrUnresolved = errors.New("adminops: unresolved dependency")

	// ErrPlanFailed marks an iteration in which every planned call failed,
	// triggering the bounded re-plan.
	ErrPlanFailed = errors.New("adminops: all planned calls failed")
)

// maxIterations caps the Execute -> Action re-plan loop.
const maxIterations = 3

// Node is the admin-ops subgraph as a single graph node: it plans an ordered
// tool-call list, executes it with dependency resolution, and synthesizes a
// confirmation. Only a turn in which every call of every bounded iteration
// failed escalates to the judge.
type Node struct {
	reasoner capability.Reasoner
	toolset  Toolset
	sink     graph.ProgressSink
	timeout  time.Duration
	replans  int
	log      *logrus.Entry
}

// New creates the admin-ops node. sink may be nil.
func New(reasoner capability.Reasoner, toolset Toolset, sink graph.ProgressSink, timeout time.Duration, log *logrus.Entry) *Node {
	if sink == nil {
		sink = graph.NopSink{}
	}
	return &Node{
		reasoner: reasoner,
		toolset:  toolset,
		sink:     sink,
		timeout:  timeout,
		replans:  maxIterations,
		log:      log.WithField("component", "adminops"),
	}
}

// SetReplans overrides the bounded re-plan budget. Values below 1 are
// ignored.
func (n *Node) SetReplans(count int) {
	if count > 0 {
		n.replans = count
	}
}

// Stage implements graph.Node.
func (n *Node) Stage() graph.Stage { return graph.StageAdminOps }

// Run implements graph.Node.
func (n *Node) Run(ctx context.Context, st *graph.State) error {
	tracker := NewEntityTracker()
	var results []ToolResult

	for iter := 0; iter < n.replans; iter++ {
		plan, err := n.planActions(ctx, st.Input, results)
		if err != nil {
			// Malformed planning output degrades to "no tools, ask for
			// clarification" - never a crash.
			n.log.WithError(err).Warn("action planning failed")
			st.FinalResponse = "I couldn't work out which record changes you need. Could you spell out the exact change - for example, which party or deadline?"
			st.ConversationStage = graph.ConvClarification
			return nil
		}

		n.emitPlan(ctx, st, blackboard.ProgressPlanCreated, plan, nil)

		iterResults := n.execute(ctx, plan, tracker)
		results = append(results, iterResults...)

		n.emitPlan(ctx, st, blackboard.ProgressPlanCompleted, plan, iterResults)

		if anySucceeded(iterResults) {
			st.FinalResponse = n.synthesize(ctx, st.Input, results, tracker)
			st.ConversationStage = graph.ConvAdmin
			return nil
		}

		n.log.WithError(ErrPlanFailed).WithFields(logrus.Fields{
			"turn_id":   st.TurnID,
			"iteration": iter + 1,
			"calls":     len(iterResults),
		}).Warn("re-planning")
	}

	// Total plan failure: hand the turn to the judge with an explicit
	// failure statement, never an invented confirmation.
	st.FinalResponse = "I was not able to make the requested changes - every attempt failed. Nothing was modified. " + describeFailures(results)
	st.ConversationStage = graph.ConvClarification
	st.AdminEscalated = true
	return nil
}

// planActions converts the instruction plus prior results into an ordered
// tool-call list via constrained reasoning output.
func (n *Node) planActions(ctx context.Context, instruction string, prior []ToolResult) ([]ToolCall, error) {
	var tools strings.Builder
	for _, def := range n.toolset.Definitions() {
		fmt.Fprintf(&tools, "- %s(%s): %s\n", def.Name, strings.Join(def.Args, ", "), def.Description)
	}

	priorBlock := "(none)"
	if len(prior) > 0 {
		priorBlock = renderResults(prior)
	}

	prompt := fmt.Sprintf(`Convert this instruction into an ordered tool-call list.
Reply with JSON only: [{"id": "1", "name": "...", "args": {"key": "value"}}].
Reference an identifier produced by an earlier call with "@last" or
"@last:<entity-type>" (e.g. "@last:party"). Use an empty array when no tool
applies. Available tools:
%s
Earlier results this turn:
%s

Instruction: %s`, tools.String(), priorBlock, instruction)

	raw, err := n.reasoner.Complete(ctx, capability.Request{
		Prompt:  prompt,
		Timeout: n.timeout,
	})
	if err != nil {
		return nil, err
	}

	var plan []ToolCall
	if err := capability.ParseStructured(raw, &plan); err != nil {
		return nil, err
	}

	for i := range plan {
		if plan[i].ID == "" {
			plan[i].ID = fmt.Sprintf("call-%d", i+1)
		}
		if plan[i].Args == nil {
			plan[i].Args = map[string]string{}
		}
	}

	return plan, nil
}

// execute runs each call in order, resolving placeholder arguments first.
// An unresolved dependency skips only that call; every successful mutating
// call is recorded in the tracker.
func (n *Node) execute(ctx context.Context, plan []ToolCall, tracker *EntityTracker) []ToolResult {
	results := make([]ToolResult, 0, len(plan))

	for _, call := range plan {
		resolved, err := resolveArgs(call, tracker, results)
		if err != nil {
			n.log.WithError(err).WithField("call", call.Name).Warn("skipping call")
			results = append(results, ToolResult{
				CallID: call.ID,
				Err:    fmt.Sprintf("%v", err),
			})
			continue
		}

		result := n.toolset.Invoke(ctx, resolved)
		results = append(results, result)

		if result.OK() && result.Mutation != nil {
			tracker.Record(*result.Mutation)
		}
	}

	return results
}

// identifierPattern matches identifiers the registry produces, e.g.
// "party-3f2a91c4", for the reverse-scan fallback.
var identifierPattern = regexp.MustCompile(`\b([a-z]+)-([0-9a-f]{4,})\b`)

// resolveArgs binds "@last" placeholders: first the tracker's same-typed
// entity, then (for untyped placeholders only) the tracker's most recent
// identifier of any type, then a reverse scan of prior results for any
// extractable identifier. An unbindable placeholder fails the call with
// ErrUnresolved.
func resolveArgs(call ToolCall, tracker *EntityTracker, prior []ToolResult) (ToolCall, error) {
	resolved := ToolCall{ID: call.ID, Name: call.Name, Args: make(map[string]string, len(call.Args))}

	for key, value := range call.Args {
		if !strings.HasPrefix(value, "@last") {
			resolved.Args[key] = value
			continue
		}

		wantType := strings.TrimPrefix(value, "@last")
		explicit := strings.HasPrefix(wantType, ":")
		wantType = strings.TrimPrefix(wantType, ":")
		if wantType == "" {
			// Untyped placeholder: infer the type from the argument name
			// ("party_id" wants a party).
			wantType = strings.TrimSuffix(key, "_id")
		}

		if id, ok := tracker.Lookup(wantType); ok {
			resolved.Args[key] = id
			continue
		}

		// An untyped "@last" means "the thing I just made", so the newest
		// identifier of any type is an acceptable binding. An explicit
		// ":<type>" is a hard requirement and never widens.
		if !explicit {
			if id, ok := tracker.LastAny(); ok {
				resolved.Args[key] = id
				continue
			}
		}

		if id, ok := scanPriorResults(prior, wantType); ok {
			resolved.Args[key] = id
			continue
		}

		return ToolCall{}, fmt.Errorf("%w: no %s identifier available for %s.%s",
			ErrUnresolved, wantType, call.Name, key)
	}

	return resolved, nil
}

// scanPriorResults walks earlier results newest-first looking for an
// identifier of the wanted type, falling back to any identifier at all.
func scanPriorResults(prior []ToolResult, wantType string) (string, bool) {
	var anyID string
	for i := len(prior) - 1; i >= 0; i-- {
		if !prior[i].OK() {
			continue
		}
		for _, m := range identifierPattern.FindAllStringSubmatch(prior[i].Content, -1) {
			if m[1] == wantType {
				return m[0], true
			}
			if anyID == "" {
				anyID = m[0]
			}
		}
	}
	if anyID != "" {
		return anyID, true
	}
	return "", false
}

func anySucceeded(results []ToolResult) bool {
	for _, r := range results {
		if r.OK() {
			return true
		}
	}
	return false
}

func renderResults(results []ToolResult) string {
	var sb strings.Builder
	for _, r := range results {
		if r.OK() {
			fmt.Fprintf(&sb, "[%s] ok: %s\n", r.CallID, r.Content)
		} else {
			fmt.Fprintf(&sb, "[%s] failed: %s\n", r.CallID, r.Err)
		}
	}
	return strings.TrimSpace(sb.String())
}

func describeFailures(results []ToolResult) string {
	var reasons []string
	for _, r := range results {
		if !r.OK() && r.Err != "" {
			reasons = append(reasons, r.Err)
		}
	}
	if len(reasons) == 0 {
		return ""
	}
	if len(reasons) > 3 {
		reasons = reasons[:3]
	}
	return "Reported problems: " + strings.Join(reasons, "; ") + "."
}

func (n *Node) emitPlan(ctx context.Context, st *graph.State, typ blackboard.ProgressEventType, plan []ToolCall, results []ToolResult) {
	exec := graph.NewExecutionPlan(callNames(plan)...)
	for i, r := range results {
		if i >= len(exec.Steps) {
			break
		}
		if r.OK() {
			exec.Steps[i].Status = graph.PlanStepCompleted
		} else {
			exec.Steps[i].Status = graph.PlanStepFailed
		}
	}

	detail, err := json.Marshal(exec)
	if err != nil {
		return
	}

	n.sink.Emit(ctx, blackboard.ProgressEvent{
		TurnID:    st.TurnID,
		SessionID: st.SessionID,
		Stage:     string(graph.StageAdminOps),
		Type:      typ,
		Detail:    string(detail),
		AtMs:      time.Now().UnixMilli(),
	})
}

func callNames(plan []ToolCall) []string {
	names := make([]string, len(plan))
	for i, c := range plan {
		names[i] = fmt.Sprintf("%s:%s", c.ID, c.Name)
	}
	return names
}
