package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dyluth/moot/internal/adminops"
	"github.com/dyluth/moot/internal/capability"
	"github.com/dyluth/moot/internal/config"
	"github.com/dyluth/moot/internal/graph"
	"github.com/dyluth/moot/internal/printer"
	"github.com/dyluth/moot/internal/stages"
	"github.com/dyluth/moot/pkg/blackboard"
)

var (
	chatSession string
	chatVerbose bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session against a case",
	Long: `Start an interactive session. Each message you type runs one full
pipeline turn; intermediate stage progress is shown while the turn is
being processed.

Sessions are identified by --session; reuse an identifier to continue
working on the same case blackboard.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Session identifier (default: a fresh UUID)")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "Log pipeline internals to stderr")
	rootCmd.AddCommand(chatCmd)
}

// stageSink prints pipeline progress to the terminal while a turn runs.
type stageSink struct{}

func (stageSink) Emit(ctx context.Context, ev blackboard.ProgressEvent) {
	if ev.Type == blackboard.ProgressStageStarted {
		printer.Stage(ev.Stage)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error(
			"Configuration error",
			err.Error(),
			[]string{"Run 'moot init' to create a starter moot.yml"},
		)
	}

	log := newLogger(chatVerbose)

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

	reasoner, err := newReasoner(cfg, log)
	if err != nil {
		return err
	}

	kb, err := capability.OpenKnowledgeBase(cfg.Knowledge.Path)
	if err != nil {
		return fmt.Errorf("failed to open knowledge base: %w", err)
	}
	defer kb.Close()

	// Progress goes both to the terminal and to the store's Pub/Sub channel,
	// so 'moot watch' in another terminal can follow the same turns.
	sink := graph.MultiSink{stageSink{}, graph.NewStoreSink(store, log)}
	admin := adminops.New(reasoner, adminops.NewCaseRegistry(), sink, cfg.StageTimeout(), log)
	admin.SetReplans(*cfg.Limits.AdminReplans)

	nodes := stages.Registry(stages.Deps{
		Store:     store,
		Reasoner:  reasoner,
		Retriever: kb,
		Sink:      sink,
		Timeout:   cfg.StageTimeout(),
		Log:       log,
	}, admin)

	engine := graph.NewEngine(store, nodes, sink, log)
	engine.SetMaxHops(*cfg.Limits.MaxHops)

	session := chatSession
	if session == "" {
		session = uuid.New().String()
	}

	printer.Info("Session %s (instance %s). Type 'exit' to quit.\n\n", session, cfg.Instance)

	var history []graph.Message
	convStage := graph.ConversationStage("")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		printer.Printf("you> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}

		result, err := engine.RunTurn(cmd.Context(), graph.TurnInput{
			SessionID:         session,
			Text:              text,
			History:           history,
			ConversationStage: convStage,
		})
		if err != nil {
			printer.Warning("turn failed: %v\n", err)
			continue
		}

		printer.Response(result.FinalResponse)
		printer.Println()

		history = append(history,
			graph.Message{Role: "user", Text: text},
			graph.Message{Role: "assistant", Text: result.FinalResponse},
		)
		convStage = result.ConversationStage
	}

	return scanner.Err()
}

func newReasoner(cfg *config.MootConfig, log *logrus.Entry) (capability.Reasoner, error) {
	key, err := cfg.APIKey()
	if err != nil {
		return nil, printer.Error(
			"Provider API key missing",
			err.Error(),
			[]string{fmt.Sprintf("export %s=<your key>", cfg.Provider.APIKeyEnv)},
		)
	}

	switch cfg.Provider.Kind {
	case "anthropic":
		return capability.NewAnthropicReasoner(key, cfg.Provider.Model, log), nil
	case "openai":
		return capability.NewOpenAIReasoner(key, cfg.Provider.Model, log), nil
	default:
		// Unreachable after config validation.
		return nil, fmt.Errorf("unknown provider kind: %s", cfg.Provider.Kind)
	}
}

func newLogger(verbose bool) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	return logrus.NewEntry(l)
}
