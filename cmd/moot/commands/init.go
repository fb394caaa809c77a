package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/moot/internal/printer"
)

var forceInit bool

const starterConfig = `version: "1.0"
instance: default

redis:
  addr: localhost:6379

provider:
  kind: anthropic
  model: claude-sonnet-4-20250514
  # api_key_env: ANTHROPIC_API_KEY

knowledge:
  path: moot-knowledge.db

# limits:
#   stage_timeout_seconds: 30
#   max_hops: 12
#   admin_replans: 3
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter moot.yml in the current directory",
	Long: `Create a starter moot.yml with a local Redis address, the Anthropic
provider and a fresh knowledge base path.

Use --force to overwrite an existing configuration.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite an existing moot.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !forceInit {
		return printer.Error(
			fmt.Sprintf("%s already exists", configPath),
			"A configuration file is already present in this directory.",
			[]string{"Use --force to overwrite it", "Use --config to write elsewhere"},
		)
	}

	if err := os.WriteFile(configPath, []byte(starterConfig), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	printer.Success("created %s\n", configPath)
	printer.Info("Set your provider API key (ANTHROPIC_API_KEY by default) and run 'moot chat'.\n")
	return nil
}
