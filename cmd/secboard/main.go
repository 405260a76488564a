// Package main provides the secboard CLI: the onboarding server and a
// terminal chat client for it.
//
// # Basic Usage
//
// Start the server:
//
//	secboard serve --config secboard.yaml
//
// Onboard a cloud service from the terminal:
//
//	secboard chat "Azure Storage Account"
//
// # Environment Variables
//
//   - SECBOARD_CONFIG: path to the configuration file
//   - SECBOARD_URL: server address used by chat (default http://localhost:8080)
//   - OPENAI_API_KEY, AZURE_OPENAI_API_KEY, ANTHROPIC_API_KEY: provider keys
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "secboard",
		Short: "secboard - cloud service security onboarding",
		Long: `secboard runs a fixed five step agent pipeline that turns a cloud service
name into security recommendations, an Azure Policy and Terraform, streaming
the results to the client as they are produced.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildStepsCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "secboard %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
