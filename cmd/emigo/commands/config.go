package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/emigo/internal/config"
)

var (
	configDir    string
	configFormat string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: `Print the configuration after merging the global and project files,
EMIGO_CONFIG, .env files and the environment. The API key is masked.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().StringVar(&configDir, "directory", "", "Directory to load project config from")
	configCmd.Flags().StringVarP(&configFormat, "output-format", "o", "json", "Output format: json, yaml")
}

func runConfig(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(configDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	masked := config.Masked(cfg)

	out := cmd.OutOrStdout()
	switch strings.ToLower(configFormat) {
	case "json":
		data, err := json.MarshalIndent(masked, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(masked)
	default:
		return fmt.Errorf("invalid output format: %s (must be json or yaml)", configFormat)
	}
	return nil
}
