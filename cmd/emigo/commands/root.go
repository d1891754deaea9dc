// Package commands provides the CLI commands for emigo.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/emigo/internal/config"
	"github.com/opencode-ai/emigo/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "emigo",
	Short: "emigo - editor-driven LLM sessions",
	Long: `emigo keeps one conversation per workspace and streams model replies
back to an editor-like client.

Run 'emigo serve' to expose the HTTP and JSON-RPC control channel, 'emigo mcp'
to serve over MCP stdio, or 'emigo ask' for a one-shot turn in the terminal.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("emigo %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mentionsCmd)
	rootCmd.AddCommand(modelsCmd)
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// initLogging writes logs to the state dir unless --print-logs is set.
// The level comes from --log-level, then EMIGO_LOG_LEVEL.
func initLogging() error {
	return setupLogging("", "")
}

// setupLogging (re)initializes the global logger. fileLevel and file come
// from the loaded config; fileLevel loses to the flag and environment.
func setupLogging(fileLevel, file string) error {
	level := logLevel
	if level == "" {
		level = os.Getenv("EMIGO_LOG_LEVEL")
	}
	if level == "" {
		level = fileLevel
	}
	if level == "" {
		level = "INFO"
	}

	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(level)
	if printLogs {
		cfg.Pretty = true
	} else {
		paths := config.GetPaths()
		if err := paths.EnsurePaths(); err != nil {
			return err
		}
		cfg.Output = io.Discard
		cfg.File = paths.LogPath()
		if file != "" {
			cfg.File = file
		}
	}
	if err := logging.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return nil
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
