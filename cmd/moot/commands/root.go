package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	// --config is shared by every subcommand that loads moot.yml.
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "moot",
	Short: "Moot - Conversational legal-case workflow engine",
	Long: `Moot runs a staged conversational pipeline over a versioned case
blackboard: incoming messages are triaged, grounded against the case's
knowledge base, deliberated, drafted and delivered, with record-keeping
commands executed against the case file.

All intermediate work lands on a Redis-backed blackboard with optimistic
concurrency, so every turn is auditable version by version.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "moot.yml", "Path to the moot configuration file")
}
