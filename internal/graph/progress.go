package graph

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dyluth/moot/pkg/blackboard"
)

// ProgressSink receives ordered workflow lifecycle events. Implementations
// must be non-blocking or fast; emission failures are logged and ignored,
// never allowed to affect the turn.
type ProgressSink interface {
	Emit(ctx context.Context, ev blackboard.ProgressEvent)
}

// NopSink discards all events.
type NopSink struct{}

// Emit implements ProgressSink.
func (NopSink) Emit(context.Context, blackboard.ProgressEvent) {}

// StoreSink publishes events on the blackboard's progress channel so
// observers in other processes (moot watch) can follow turns live.
type StoreSink struct {
	store *blackboard.Store
	log   *logrus.Entry
}

// NewStoreSink creates a sink backed by the store's Pub/Sub channel.
func NewStoreSink(store *blackboard.Store, log *logrus.Entry) *StoreSink {
	return &StoreSink{store: store, log: log.WithField("component", "progress")}
}

// Emit implements ProgressSink. Publish failures are logged and dropped;
// progress reporting never gates the turn.
func (s *StoreSink) Emit(ctx context.Context, ev blackboard.ProgressEvent) {
	if err := s.store.PublishProgress(ctx, ev); err != nil {
		s.log.WithError(err).Warn("failed to publish progress event")
	}
}

// MultiSink fans each event out to every sink in order.
type MultiSink []ProgressSink

// Emit implements ProgressSink.
func (m MultiSink) Emit(ctx context.Context, ev blackboard.ProgressEvent) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

// PlanStepStatus is the lifecycle state of one execution-plan step.
// Plans exist purely for progress reporting; they carry no control flow.
type PlanStepStatus string

const (
	PlanStepPending    PlanStepStatus = "pending"
	PlanStepInProgress PlanStepStatus = "in_progress"
	PlanStepCompleted  PlanStepStatus = "completed"
	PlanStepFailed     PlanStepStatus = "failed"
)

// PlanStep is one reported unit of work.
type PlanStep struct {
	Name   string         `json:"name"`
	Status PlanStepStatus `json:"status"`
}

// ExecutionPlan is an ordered set of steps reported to the progress sink.
type ExecutionPlan struct {
	Steps []PlanStep `json:"steps"`
}

// NewExecutionPlan builds a plan with every step pending.
func NewExecutionPlan(names ...string) *ExecutionPlan {
	steps := make([]PlanStep, len(names))
	for i, n := range names {
		steps[i] = PlanStep{Name: n, Status: PlanStepPending}
	}
	return &ExecutionPlan{Steps: steps}
}

// SetStatus updates the named step, ignoring unknown names.
func (p *ExecutionPlan) SetStatus(name string, status PlanStepStatus) {
	for i := range p.Steps {
		if p.Steps[i].Name == name {
			p.Steps[i].Status = status
			return
		}
	}
}

// Completed reports whether every step reached a terminal status.
func (p *ExecutionPlan) Completed() bool {
	for _, s := range p.Steps {
		if s.Status != PlanStepCompleted && s.Status != PlanStepFailed {
			return false
		}
	}
	return true
}
