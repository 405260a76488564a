package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/secboard/internal/config"
	"github.com/hupe1980/secboard/onboarding"
)

// buildServeCmd creates the "serve" command that starts the HTTP server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the onboarding server",
		Long: `Start the onboarding server.

The server will:
1. Load configuration from the given file and SECBOARD_* variables
2. Connect the thread and artifact stores
3. Build the onboarding pipeline on the configured language model
4. Serve the chat API, health checks and metrics until SIGINT/SIGTERM`,
		Example: `  # Start with defaults (OpenAI, in-memory stores)
  secboard serve

  # Start with a config file
  secboard serve --config /etc/secboard/secboard.yaml

  # Start with debug logging
  secboard serve --debug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", envOr("SECBOARD_CONFIG", ""), "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

// buildChatCmd creates the "chat" command that runs the pipeline remotely.
func buildChatCmd() *cobra.Command {
	var (
		serverURL string
		threadID  string
		outDir    string
	)

	cmd := &cobra.Command{
		Use:   "chat <cloud service>",
		Short: "Onboard a cloud service through a running server",
		Example: `  secboard chat "Azure Storage Account"
  secboard chat --thread 6f1c... --out ./generated "Azure Key Vault"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd.OutOrStdout(), chatOptions{
				ServerURL: serverURL,
				ThreadID:  threadID,
				Content:   joinArgs(args),
				OutDir:    outDir,
			})
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", envOr("SECBOARD_URL", "http://localhost:8080"), "Server base URL")
	cmd.Flags().StringVar(&threadID, "thread", "", "Continue an existing thread")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Directory to download generated files to")

	return cmd
}

// buildStepsCmd lists the pipeline steps in execution order.
func buildStepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the onboarding pipeline steps",
		Run: func(cmd *cobra.Command, _ []string) {
			for i, name := range onboarding.StepNames() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, name)
			}
		},
	}
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	var configPath string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid (provider=%s model=%s threads=%s artifacts=%s)\n",
				cfg.LLM.Provider, cfg.LLM.Model, cfg.Threads.Driver, cfg.Artifacts.Driver)
			return nil
		},
	}
	validate.Flags().StringVarP(&configPath, "config", "c", envOr("SECBOARD_CONFIG", ""), "Path to YAML configuration file")

	cmd.AddCommand(validate)

	return cmd
}
