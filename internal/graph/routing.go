package graph

import (
	"fmt"

	"github.com/dyluth/moot/pkg/blackboard"
)

// Route computes the next stage after `from` has run. It is a pure function
// of the patched turn state and the latest blackboard workflow status; it
// never relies on in-memory state alone.
//
// Master invariant: a stage whose blackboard status is done for the current
// version is never selected for re-entry within the turn, regardless of what
// the node's local decision (st.Next) suggests. guardDone applies the
// documented redirects instead, which is the single rule preventing infinite
// re-classification loops.
func Route(from Stage, st *State, status blackboard.WorkflowStatus) (Stage, error) {
	switch from {
	case StageGatekeeper:
		switch st.Intent {
		case IntentGreeting:
			return StageFastTrack, nil
		case IntentAdmin:
			return StageAdminOps, nil
		default:
			return StageJudge, nil
		}

	case StageFastTrack:
		return StageEnd, nil

	case StageJudge, StageReflector, StageInquiry:
		// These nodes carry their decision in st.Next; the guard has the
		// final word.
		if err := st.Next.Validate(); err != nil {
			return "", fmt.Errorf("%s produced no routable decision: %w", from, err)
		}
		return guardDone(st.Next, st, status), nil

	case StageAdminOps:
		if st.AdminEscalated {
			return StageJudge, nil
		}
		return StageEnd, nil

	case StageCouncil:
		return guardDone(StageDrafter, st, status), nil

	case StageDrafter:
		// Unconditional hand-back to the judge for final delivery.
		return StageJudge, nil

	default:
		return "", fmt.Errorf("no routing rule for stage %q", from)
	}
}

// guardDone enforces the no-re-entry invariant. When the proposed next stage
// is already done for the current blackboard version, it redirects along the
// pipeline instead: completed research flows to synthesis or council,
// completed council to the drafter, completed drafting to the judge (which
// delivers the stored output verbatim).
func guardDone(next Stage, st *State, status blackboard.WorkflowStatus) Stage {
	switch next {
	case StageInquiry:
		if status.Researcher != blackboard.StageDone {
			// Investigator alone being done is fine: the inquiry node
			// derives its mode from status and resumes at research.
			return StageInquiry
		}
		if st.Complexity == ComplexityLow {
			// The judge answers directly from the research segment and
			// terminates; ending here would skip that synthesis.
			return StageJudge
		}
		return guardDone(StageCouncil, st, status)

	case StageCouncil:
		if status.Council != blackboard.StageDone {
			return StageCouncil
		}
		return guardDone(StageDrafter, st, status)

	case StageDrafter:
		if status.Drafter != blackboard.StageDone {
			return StageDrafter
		}
		return StageJudge

	default:
		return next
	}
}
