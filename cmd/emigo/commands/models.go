package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/emigo/internal/config"
	"github.com/opencode-ai/emigo/internal/provider"
)

var modelsDir string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List providers and the configured model",
	Long: `List the built-in model providers and show which one the configured
model resolves to. Models without a known "provider/" prefix go to the
OpenAI-compatible endpoint.`,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().StringVar(&modelsDir, "directory", "", "Directory to load project config from")
}

func runModels(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(modelsDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}

	reg := provider.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "PROVIDER\tCONFIGURED\t")
	providerID, modelID := "", ""
	if cfg.Model != "" {
		providerID, modelID = reg.ParseModelString(cfg.Model)
	}
	for _, id := range reg.List() {
		mark := ""
		if id == providerID {
			mark = modelID
		}
		fmt.Fprintf(w, "%s\t%s\t\n", id, mark)
	}
	return w.Flush()
}
