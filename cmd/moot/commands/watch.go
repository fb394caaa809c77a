package commands

import (
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/moot/internal/config"
	"github.com/dyluth/moot/internal/graph"
	"github.com/dyluth/moot/internal/printer"
	"github.com/dyluth/moot/pkg/blackboard"
)

var watchSession string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live pipeline progress for this instance",
	Long: `Subscribe to the instance's progress channel and print every workflow
lifecycle event as it happens. Run it alongside 'moot chat' in another
terminal to follow turns live.

Use --session to only show events for one session.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSession, "session", "", "Only show events for this session")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error(
			"Configuration error",
			err.Error(),
			[]string{"Run 'moot init' to create a starter moot.yml"},
		)
	}

	store, err := blackboard.NewStore(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Instance)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer store.Close()

	if err := store.Ping(cmd.Context()); err != nil {
		return printer.Error(
			"Redis is not reachable",
			fmt.Sprintf("Could not reach %s: %v", cfg.Redis.Addr, err),
			[]string{"Start Redis locally (e.g. 'docker run -p 6379:6379 redis')", "Fix redis.addr in moot.yml"},
		)
	}

	sub, err := store.SubscribeProgress(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to subscribe to progress events: %w", err)
	}
	defer sub.Close()

	printer.Info("Watching instance %s. Press Ctrl+C to stop.\n\n", cfg.Instance)

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			printer.Warning("subscription error: %v\n", err)
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if watchSession != "" && ev.SessionID != watchSession {
				continue
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev *blackboard.ProgressEvent) {
	switch ev.Type {
	case blackboard.ProgressStageStarted:
		printer.Step("[%s] %s started\n", ev.SessionID, ev.Stage)
	case blackboard.ProgressStageCompleted:
		printer.Success("[%s] %s completed\n", ev.SessionID, ev.Stage)
	case blackboard.ProgressStageFailed:
		printer.Warning("[%s] %s failed\n", ev.SessionID, ev.Stage)
	case blackboard.ProgressPlanCreated:
		printer.Printf("[%s] %s planned %d step(s)\n", ev.SessionID, ev.Stage, len(planSteps(ev.Detail)))
	case blackboard.ProgressPlanCompleted:
		printPlanOutcome(ev)
	default:
		printer.Printf("[%s] %s %s\n", ev.SessionID, ev.Stage, ev.Type)
	}
}

func printPlanOutcome(ev *blackboard.ProgressEvent) {
	var plan graph.ExecutionPlan
	if err := json.Unmarshal([]byte(ev.Detail), &plan); err != nil {
		printer.Printf("[%s] %s plan finished\n", ev.SessionID, ev.Stage)
		return
	}

	failed := 0
	for _, s := range plan.Steps {
		if s.Status == graph.PlanStepFailed {
			failed++
		}
	}

	if plan.Completed() && failed == 0 {
		printer.Success("[%s] %s plan finished, %d step(s) ok\n", ev.SessionID, ev.Stage, len(plan.Steps))
		return
	}
	printer.Warning("[%s] %s plan finished with %d failed step(s)\n", ev.SessionID, ev.Stage, failed)
}

func planSteps(detail string) []graph.PlanStep {
	var plan graph.ExecutionPlan
	if err := json.Unmarshal([]byte(detail), &plan); err != nil {
		return nil
	}
	return plan.Steps
}
