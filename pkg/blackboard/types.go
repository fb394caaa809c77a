// Package blackboard provides type-safe Go definitions and Redis schema patterns
// for the Moot blackboard. The blackboard is the versioned, per-session shared
// document through which all workflow stages (gatekeeper, judge, inquiry,
// council, drafter, admin-ops) coordinate, under optimistic-concurrency writes.
//
// All Redis keys and channels are namespaced by instance name so that multiple
// Moot instances can safely coexist on a single Redis server.
package blackboard

import (
	"fmt"
)

// StageStatus is the completion state of one workflow stage for one record
// version. A stage marked done for a version stays done until a Fork creates
// a fresh version with all stages reset to pending.
type StageStatus string

const (
	// StagePending indicates the stage has not completed for this version.
	StagePending StageStatus = "pending"

	// StageDone indicates the stage completed and its segment is immutable
	// for this version.
	StageDone StageStatus = "done"
)

// Validate checks if the StageStatus is a valid enum value.
func (s StageStatus) Validate() error {
	switch s {
	case StagePending, StageDone:
		return nil
	default:
		return fmt.Errorf("unknown stage status: %q", s)
	}
}

// WorkflowStatus tracks per-stage completion for one record version.
// It is a fixed struct rather than a map so that updates can only patch the
// named fields and never clobber the whole set.
type WorkflowStatus struct {
	Investigator StageStatus `json:"investigator"`
	Researcher   StageStatus `json:"researcher"`
	Council      StageStatus `json:"council"`
	Drafter      StageStatus `json:"drafter"`
}

// AllPending returns a WorkflowStatus with every stage pending.
func AllPending() WorkflowStatus {
	return WorkflowStatus{
		Investigator: StagePending,
		Researcher:   StagePending,
		Council:      StagePending,
		Drafter:      StagePending,
	}
}

// Validate checks that every stage field holds a valid status value.
func (w WorkflowStatus) Validate() error {
	for name, s := range map[string]StageStatus{
		"investigator": w.Investigator,
		"researcher":   w.Researcher,
		"council":      w.Council,
		"drafter":      w.Drafter,
	} {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("invalid status for %s: %w", name, err)
		}
	}
	return nil
}

// StatusPatch is a partial update of WorkflowStatus. Nil fields are left
// untouched by Merge; a patch can never replace the whole status.
type StatusPatch struct {
	Investigator *StageStatus
	Researcher   *StageStatus
	Council      *StageStatus
	Drafter      *StageStatus
}

// Merge returns a copy of w with the patch's non-nil fields applied.
func (w WorkflowStatus) Merge(p StatusPatch) WorkflowStatus {
	out := w
	if p.Investigator != nil {
		out.Investigator = *p.Investigator
	}
	if p.Researcher != nil {
		out.Researcher = *p.Researcher
	}
	if p.Council != nil {
		out.Council = *p.Council
	}
	if p.Drafter != nil {
		out.Drafter = *p.Drafter
	}
	return out
}

// StatusOf returns a pointer to a StageStatus value, for building patches.
func StatusOf(s StageStatus) *StageStatus {
	return &s
}

// SegmentName identifies one of the fixed segments in a case record.
type SegmentName string

const (
	SegmentFacts       SegmentName = "facts"
	SegmentResearch    SegmentName = "research"
	SegmentStrategy    SegmentName = "strategy"
	SegmentDraftPlan   SegmentName = "draft_plan"
	SegmentFinalOutput SegmentName = "final_output"
	SegmentTrace       SegmentName = "trace"
)

// Validate checks if the SegmentName is a valid enum value.
func (n SegmentName) Validate() error {
	switch n {
	case SegmentFacts, SegmentResearch, SegmentStrategy,
		SegmentDraftPlan, SegmentFinalOutput, SegmentTrace:
		return nil
	default:
		return fmt.Errorf("unknown segment name: %q", n)
	}
}

// Segments holds the stage outputs for one record version. Each segment is
// written as a whole document, never as a partial or streamed field.
type Segments struct {
	Facts       string `json:"facts"`
	Research    string `json:"research"`
	Strategy    string `json:"strategy"`
	DraftPlan   string `json:"draft_plan"`
	FinalOutput string `json:"final_output"`
	Trace       string `json:"trace"`
}

// Get returns the named segment's content.
func (s *Segments) Get(name SegmentName) (string, error) {
	switch name {
	case SegmentFacts:
		return s.Facts, nil
	case SegmentResearch:
		return s.Research, nil
	case SegmentStrategy:
		return s.Strategy, nil
	case SegmentDraftPlan:
		return s.DraftPlan, nil
	case SegmentFinalOutput:
		return s.FinalOutput, nil
	case SegmentTrace:
		return s.Trace, nil
	default:
		return "", fmt.Errorf("unknown segment name: %q", name)
	}
}

// Set replaces the named segment's content.
func (s *Segments) Set(name SegmentName, value string) error {
	switch name {
	case SegmentFacts:
		s.Facts = value
	case SegmentResearch:
		s.Research = value
	case SegmentStrategy:
		s.Strategy = value
	case SegmentDraftPlan:
		s.DraftPlan = value
	case SegmentFinalOutput:
		s.FinalOutput = value
	case SegmentTrace:
		s.Trace = value
	default:
		return fmt.Errorf("unknown segment name: %q", name)
	}
	return nil
}

// CaseRecord is one version of a session's shared case document.
// Exactly one record per session is "latest" (the max version); earlier
// versions remain retrievable for audit.
type CaseRecord struct {
	SessionID     string         `json:"session_id"`
	Version       int            `json:"version"`        // Monotonic per session, starts at 1
	ParentVersion int            `json:"parent_version"` // 0 for version 1
	Segments      Segments       `json:"segments"`
	Status        WorkflowStatus `json:"status"`
	Token         string         `json:"token"` // Concurrency token, rotated on every successful write
	CreatedAtMs   int64          `json:"created_at_ms"`
}

// Validate checks if the CaseRecord has valid field values.
func (r *CaseRecord) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}

	if r.Version < 1 {
		return fmt.Errorf("invalid version: must be >= 1, got %d", r.Version)
	}

	if r.ParentVersion < 0 || r.ParentVersion >= r.Version {
		return fmt.Errorf("invalid parent version %d for version %d", r.ParentVersion, r.Version)
	}

	if err := r.Status.Validate(); err != nil {
		return fmt.Errorf("invalid workflow status: %w", err)
	}

	if r.Token == "" {
		return fmt.Errorf("concurrency token cannot be empty")
	}

	return nil
}

// ProgressEventType classifies a workflow lifecycle event.
type ProgressEventType string

const (
	ProgressStageStarted   ProgressEventType = "stage_started"
	ProgressStageCompleted ProgressEventType = "stage_completed"
	ProgressStageFailed    ProgressEventType = "stage_failed"
	ProgressPlanCreated    ProgressEventType = "plan_created"
	ProgressPlanCompleted  ProgressEventType = "plan_completed"
)

// ProgressEvent is one ordered lifecycle event emitted while a turn moves
// through the stage graph. Delivery is best-effort (Redis Pub/Sub,
// at-most-once); events are for observers, never for control flow.
type ProgressEvent struct {
	TurnID    string            `json:"turn_id"`
	SessionID string            `json:"session_id"`
	Stage     string            `json:"stage"`
	Type      ProgressEventType `json:"type"`
	Detail    string            `json:"detail,omitempty"`
	AtMs      int64             `json:"at_ms"`
}
