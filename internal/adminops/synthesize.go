package adminops

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/moot/internal/capability"
)

// verbEvidence maps instruction-level verb words onto the mutation class
// the tracker must contain evidence of before a confirmation may claim it.
var verbEvidence = map[string]string{
	"delete": "delete",
	"remove": "delete",
	"drop":   "delete",
	"cancel": "delete",
	"create": "create",
	"add":    "create",
	"new":    "create",
	"update": "update",
	"change": "update",
	"rename": "update",
	"edit":   "update",
}

// synthesize converts the raw tool results into a user-facing confirmation.
// The confirmation is checked against the tracker's mutation records: an
// instruction that implies a mutation class with zero recorded evidence gets
// an explicit failure statement instead of the model's wording.
func (n *Node) synthesize(ctx context.Context, instruction string, results []ToolResult, tracker *EntityTracker) string {
	if missing := missingEvidence(instruction, tracker); missing != "" {
		return missing
	}

	prompt := fmt.Sprintf(`Summarise the outcome of these record operations for the user
in one or two plain sentences. Report failures honestly; never claim an
operation happened unless its result says so. No JSON, no markdown.

Instruction: %s

Results:
%s`, instruction, renderResults(results))

	raw, err := n.reasoner.Complete(ctx, capability.Request{
		Prompt:  prompt,
		Timeout: n.timeout,
	})
	if err != nil {
		n.log.WithError(err).Warn("synthesis failed; using generic confirmation")
		return genericConfirmation(results)
	}

	out := strings.TrimSpace(capability.StripStructuredFragments(raw))
	if out == "" {
		return genericConfirmation(results)
	}
	return out
}

// missingEvidence returns a failure statement when the instruction asks for
// a mutation class the tracker never recorded, empty string otherwise.
func missingEvidence(instruction string, tracker *EntityTracker) string {
	lower := strings.ToLower(instruction)
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		class, ok := verbEvidence[word]
		if !ok {
			continue
		}
		if !tracker.HasVerb(class) {
			return fmt.Sprintf("I attempted the requested %s but it did not go through - no %s was recorded. The case file is unchanged in that respect.", word, class)
		}
	}
	return ""
}

func genericConfirmation(results []ToolResult) string {
	succeeded, failed := 0, 0
	for _, r := range results {
		if r.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	if failed == 0 {
		return fmt.Sprintf("Done - %d record operation(s) completed.", succeeded)
	}
	return fmt.Sprintf("Partially done - %d operation(s) completed, %d failed. %s",
		succeeded, failed, describeFailures(results))
}
