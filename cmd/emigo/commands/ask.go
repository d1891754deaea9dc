package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/emigo/internal/headless"
	"github.com/opencode-ai/emigo/internal/logging"
)

var (
	askOutputFormat string
	askTimeout      string
	askStdin        bool
	askFiles        []string
	askQuiet        bool
	askVerbose      bool
	askNoColor      bool
	askDir          string
)

var askCmd = &cobra.Command{
	Use:   "ask <workspace> [prompt...]",
	Short: "Run one turn against a workspace",
	Long: `Send one prompt to a fresh session for a workspace and stream the reply
to the terminal.

The workspace may be a directory or any file inside it. @path tokens in the
prompt add workspace files to the context.

Examples:
  # Simple prompt
  emigo ask . "What does @main.go do?"

  # Attach files and read the rest of the prompt from stdin
  git diff | emigo ask --stdin -f README.md . "Review this change"

  # Stream JSONL events for programmatic consumption
  emigo ask -o jsonl ~/src/app "Summarize the layout" | jq -r '.type'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askStdin, "stdin", false, "Append standard input to the prompt")
	askCmd.Flags().StringArrayVarP(&askFiles, "file", "f", nil, "Workspace file(s) to add as @mentions")
	askCmd.Flags().StringVarP(&askOutputFormat, "output-format", "o", "text", "Output format: text, json, jsonl")
	askCmd.Flags().BoolVarP(&askQuiet, "quiet", "q", false, "Only print the reply")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "Show session details")
	askCmd.Flags().BoolVar(&askNoColor, "no-color", false, "Disable colored output")
	askCmd.Flags().StringVarP(&askTimeout, "timeout", "t", "10m", "Maximum execution time (e.g., 30s, 5m)")
	askCmd.Flags().StringVar(&askDir, "directory", "", "Directory to load project config from")
}

func runAsk(cmd *cobra.Command, args []string) error {
	timeout, err := time.ParseDuration(askTimeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	var outputFormat headless.OutputFormat
	switch strings.ToLower(askOutputFormat) {
	case "text":
		outputFormat = headless.OutputText
	case "json":
		outputFormat = headless.OutputJSON
	case "jsonl":
		outputFormat = headless.OutputJSONL
	default:
		return fmt.Errorf("invalid output format: %s (must be text, json, or jsonl)", askOutputFormat)
	}

	prompt := strings.Join(args[1:], " ")
	if prompt == "" && !askStdin {
		return fmt.Errorf("prompt required. Provide it after the workspace or via --stdin")
	}

	a, err := loadApp(askDir)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := headless.DefaultConfig()
	cfg.Workspace = args[0]
	cfg.Prompt = prompt
	cfg.Files = askFiles
	cfg.ReadStdin = askStdin
	cfg.OutputFormat = outputFormat
	cfg.Timeout = timeout
	cfg.Quiet = askQuiet
	cfg.Verbose = askVerbose
	cfg.NoColor = askNoColor

	runner := headless.NewRunner(cfg, a.source, a.registryOptions()...)
	result, err := runner.Run(cmd.Context(), os.Stdout)

	if result != nil && result.ExitCode != headless.ExitSuccess {
		logging.Close()
		os.Exit(int(result.ExitCode))
	}
	return err
}
