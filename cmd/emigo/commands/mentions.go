package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/emigo/internal/mention"
	"github.com/opencode-ai/emigo/internal/repomap"
	"github.com/opencode-ai/emigo/internal/workspace"
)

var (
	mentionsJSON  bool
	mentionsFiles []string
)

var mentionsCmd = &cobra.Command{
	Use:   "mentions <workspace> <prompt...>",
	Short: "Show the files a prompt would add to the context",
	Long: `Resolve the workspace, extract @path mentions from the prompt and print
the resulting file set. Dropped mentions are listed with the reason and, when
a close match exists, a suggestion.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runMentions,
}

func init() {
	mentionsCmd.Flags().BoolVar(&mentionsJSON, "json", false, "Print the result as JSON")
	mentionsCmd.Flags().StringArrayVarP(&mentionsFiles, "file", "f", nil, "Explicit file reference(s) merged with the mentions")
}

func runMentions(cmd *cobra.Command, args []string) error {
	fs := afero.NewReadOnlyFs(afero.NewOsFs())
	root, err := workspace.NewResolver(fs).Resolve(args[0])
	if err != nil {
		return err
	}

	tree := repomap.NewTreeBuilder(fs)
	extractor := mention.NewExtractor(fs, mention.WithCandidates(func(root string) ([]string, error) {
		return tree.ListFiles(context.Background(), root)
	}))
	result := extractor.Extract(root, strings.Join(args[1:], " "), mentionsFiles)

	out := cmd.OutOrStdout()
	if mentionsJSON {
		data, err := json.MarshalIndent(struct {
			Workspace string `json:"workspace"`
			mention.Result
		}{root, result}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	faint := color.New(color.FgHiBlack)
	warn := color.New(color.FgYellow)

	fmt.Fprintln(out, faint.Sprintf("workspace: %s", root))
	for _, f := range result.Files {
		fmt.Fprintf(out, "  %s\n", f)
	}
	for _, ig := range result.Ignored {
		line := fmt.Sprintf("  @%s: %s", ig.Mention, ig.Reason)
		if ig.Suggestion != "" {
			line += fmt.Sprintf(" (did you mean %s?)", ig.Suggestion)
		}
		fmt.Fprintln(out, warn.Sprint(line))
	}
	return nil
}
