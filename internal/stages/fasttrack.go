package stages

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dyluth/moot/internal/graph"
)

// FastTrack answers greetings with a canned response and terminates the
// turn. It makes no capability calls and touches no blackboard state.
type FastTrack struct {
	log *logrus.Entry
}

// NewFastTrack creates the greeting node.
func NewFastTrack(d Deps) *FastTrack {
	return &FastTrack{log: d.Log.WithField("component", "fasttrack")}
}

// Stage implements graph.Node.
func (f *FastTrack) Stage() graph.Stage { return graph.StageFastTrack }

// Run implements graph.Node.
func (f *FastTrack) Run(_ context.Context, st *graph.State) error {
	st.FinalResponse = "Hello! I can look up legal questions, work up case strategy and drafts, or update the case record. What would you like to do?"
	st.ConversationStage = graph.ConvGreeting
	st.Next = graph.StageEnd
	return nil
}
