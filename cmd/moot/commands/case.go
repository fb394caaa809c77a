package commands

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/moot/internal/config"
	"github.com/dyluth/moot/internal/printer"
	"github.com/dyluth/moot/pkg/blackboard"
)

var caseVersion int

var caseCmd = &cobra.Command{
	Use:   "case <session-id>",
	Short: "Show a session's case blackboard",
	Long: `Show the workflow status and segment contents of a session's case
blackboard. By default the latest version is shown; use --at to inspect
an earlier one.`,
	Args: cobra.ExactArgs(1),
	RunE: runCase,
}

func init() {
	caseCmd.Flags().IntVar(&caseVersion, "at", 0, "Show a specific version instead of the latest")
	rootCmd.AddCommand(caseCmd)
}

func runCase(cmd *cobra.Command, args []string) error {
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

	sessionID := args[0]

	var record *blackboard.CaseRecord
	if caseVersion > 0 {
		record, err = store.ReadVersion(cmd.Context(), sessionID, caseVersion)
	} else {
		record, err = store.ReadLatest(cmd.Context(), sessionID)
	}
	if err != nil {
		if blackboard.IsNotFound(err) {
			return printer.Error(
				"Case not found",
				fmt.Sprintf("No blackboard exists for session %s in instance %s.", sessionID, cfg.Instance),
				[]string{"Check the session identifier", "Run 'moot chat --session <id>' to start one"},
			)
		}
		return fmt.Errorf("failed to read case: %w", err)
	}

	printer.Printf("Session:  %s\n", record.SessionID)
	printer.Printf("Version:  %d", record.Version)
	if record.ParentVersion > 0 {
		printer.Printf(" (forked from v%d)", record.ParentVersion)
	}
	printer.Println()

	printer.Println("\nWorkflow status:")
	printStatus("investigator", record.Status.Investigator)
	printStatus("researcher", record.Status.Researcher)
	printStatus("council", record.Status.Council)
	printStatus("drafter", record.Status.Drafter)

	printer.Println("\nSegments:")
	printSegment(blackboard.SegmentFacts, record.Segments.Facts)
	printSegment(blackboard.SegmentResearch, record.Segments.Research)
	printSegment(blackboard.SegmentStrategy, record.Segments.Strategy)
	printSegment(blackboard.SegmentDraftPlan, record.Segments.DraftPlan)
	printSegment(blackboard.SegmentFinalOutput, record.Segments.FinalOutput)
	printSegment(blackboard.SegmentTrace, record.Segments.Trace)

	return nil
}

func printStatus(name string, status blackboard.StageStatus) {
	if status == blackboard.StageDone {
		printer.Success("%-14s done\n", name)
	} else {
		printer.Printf("  %-14s pending\n", name)
	}
}

func printSegment(name blackboard.SegmentName, value string) {
	if value == "" {
		printer.Printf("  %-14s (empty)\n", name)
		return
	}
	preview := value
	if len(preview) > 120 {
		preview = preview[:120] + "…"
	}
	printer.Printf("  %-14s %d bytes: %s\n", name, len(value), preview)
}
