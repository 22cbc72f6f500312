// chatctl runs the agentdesk chat widget and specialist console in a terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "agentdesk terminal client",
	Long: `chatctl talks to an agentdesk backend.

Subcommands:
  widget      - chat with the storefront assistant
  specialist  - answer live chats as a human agent
  seed        - upload a YAML registry of agents and chains`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		// Logs go to stderr so they do not interleave with the transcript.
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// orEnv returns flag when set, else the environment variable key, else fallback.
func orEnv(flag, key, fallback string) string {
	if flag != "" {
		return flag
	}
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
