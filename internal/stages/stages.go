// Package stages implements the workflow graph nodes. Each node is a small
// struct holding explicitly injected capability and blackboard handles
// (never module-level state, so sessions cannot cross-talk and tests can
// substitute fakes) whose Run method consumes and patches the turn state.
package stages

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/dyluth/moot/internal/capability"
	"github.com/dyluth/moot/internal/graph"
	"github.com/dyluth/moot/pkg/blackboard"
)

// defaultStageTimeout bounds every reasoning call made by a node.
const defaultStageTimeout = 30 * time.Second

// Deps bundles the injected handles shared by the stage nodes.
type Deps struct {
	Store     *blackboard.Store
	Reasoner  capability.Reasoner
	Retriever capability.Retriever
	Sink      graph.ProgressSink
	Timeout   time.Duration
	Log       *logrus.Entry
}

func (d Deps) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return defaultStageTimeout
}

// Registry builds the full node set for the engine. The admin-ops node is
// passed in from its own package.
func Registry(d Deps, admin graph.Node) map[graph.Stage]graph.Node {
	nodes := map[graph.Stage]graph.Node{
		graph.StageGatekeeper: NewGatekeeper(d),
		graph.StageFastTrack:  NewFastTrack(d),
		graph.StageJudge:      NewJudge(d),
		graph.StageInquiry:    NewInquiry(d),
		graph.StageCouncil:    NewCouncil(d),
		graph.StageDrafter:    NewDrafter(d),
		graph.StageReflector:  NewReflector(d),
	}
	if admin != nil {
		nodes[graph.StageAdminOps] = admin
	}
	return nodes
}

// complete runs one bounded reasoning call. Callers own the fallback for
// every error this returns; nothing here may escape a node unhandled.
func complete(ctx context.Context, r capability.Reasoner, timeout time.Duration, system, prompt string) (string, error) {
	return r.Complete(ctx, capability.Request{
		Prompt:  prompt,
		System:  system,
		Timeout: timeout,
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back off to a rune boundary so no multi-byte sequence is split.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
