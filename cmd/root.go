package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Rorical/PromptMachine/internal/app"
	"github.com/Rorical/PromptMachine/internal/config"
	"github.com/Rorical/PromptMachine/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "promptmachine",
	Short: "Edit a prompt and watch the model answer it live",
	Long: `PromptMachine relays streamed chat completions to an interactive prompt editor.

Run "promptmachine serve" to start the relay, then "promptmachine" to open the
editor. Generations and AI-assisted rewrites of the prompt stream back as they
are produced; rewrites are shown as a line diff that can be accepted or undone.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		level, logJSON, logSource, err := logger.GetLoggerConfig(cmd)
		if err != nil {
			return err
		}
		logger.SetupLogger(level, logJSON, logSource)
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return runEditor(cmd, cfg)
	},
}

// runEditor starts the terminal UI. Logs go to --log-file, or nowhere, while
// the UI owns the terminal.
func runEditor(cmd *cobra.Command, cfg *config.Config) error {
	promptFile, err := cmd.Flags().GetString("prompt-file")
	if err != nil {
		return err
	}
	var prompt string
	if promptFile != "" {
		data, err := os.ReadFile(promptFile)
		if err != nil {
			return fmt.Errorf("failed to read prompt file: %w", err)
		}
		prompt = string(data)
	}

	closeLog, err := redirectLogs(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	local, err := cmd.Flags().GetBool("local")
	if err != nil {
		return err
	}
	if local {
		relayURL, stop, err := startLocalRelay(cfg, logger.GetDefault())
		if err != nil {
			return err
		}
		defer stop()
		cfg.Server.RelayURL = relayURL
	}

	application := app.NewApplication(cfg, prompt, logger.GetDefault())
	defer application.Stop()

	return application.Start()
}

func redirectLogs(cmd *cobra.Command) (func(), error) {
	level, logJSON, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return nil, err
	}
	logFile, err := cmd.Flags().GetString("log-file")
	if err != nil {
		return nil, err
	}

	var out io.Writer = io.Discard
	closeFn := func() {}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}

	logger.Init(&logger.Config{
		Level:      logger.LogLevel(level),
		Output:     out,
		JSON:       logJSON,
		AddSource:  logSource,
		TimeFormat: "15:04:05",
	})
	return closeFn, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.GetDefault().Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
	rootCmd.PersistentFlags().Bool("log-source", false, "include source location in logs")
	rootCmd.PersistentFlags().String("log-file", "", "file to log to while the editor is open")
	addEditorFlags(rootCmd.Flags())
}

func addEditorFlags(fs *pflag.FlagSet) {
	fs.StringP("prompt-file", "f", "", "file with the initial prompt")
	fs.Bool("local", false, "run a relay in-process instead of using the configured relay_url")
}
