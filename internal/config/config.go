package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/emigo/pkg/types"
)

// configNames are the file names probed in every config directory, in
// load order.
var configNames = []string{"emigo.json", "emigo.jsonc", "emigo.yaml", "emigo.yml"}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/emigo/)
// 2. Project config (<directory>/.emigo/)
// 3. EMIGO_CONFIG file
// 4. EMIGO_CONFIG_CONTENT inline JSON
// 5. .env files (never overriding variables already set)
// 6. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	loaded := make(map[string]bool)
	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config, baseDir)
		if err == nil {
			loaded[absPath] = true
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}

	globalPath := GetPaths().Config
	for _, name := range configNames {
		if err := loadOnce(filepath.Join(globalPath, name), globalPath); err != nil {
			return nil, err
		}
	}

	if directory != "" {
		projectDir := filepath.Join(directory, ".emigo")
		for _, name := range configNames {
			if err := loadOnce(filepath.Join(projectDir, name), projectDir); err != nil {
				return nil, err
			}
		}
	}

	if configPath := os.Getenv("EMIGO_CONFIG"); configPath != "" {
		if err := loadOnce(configPath, filepath.Dir(configPath)); err != nil {
			return nil, err
		}
	}

	if content := os.Getenv("EMIGO_CONFIG_CONTENT"); content != "" {
		var inline types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &inline); err != nil {
			return nil, fmt.Errorf("parse EMIGO_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, &inline)
	}

	loadDotEnv(directory, globalPath)
	applyEnvOverrides(config)

	return config, nil
}

// loadDotEnv loads .env files from the project and the global config dir.
// godotenv.Load does not override variables that are already set.
func loadDotEnv(directory, globalPath string) {
	var files []string
	if directory != "" {
		files = append(files, filepath.Join(directory, ".env"))
	}
	files = append(files, filepath.Join(globalPath, ".env"))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = interpolate(data, baseDir)

	var fileConfig types.Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return err
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &fileConfig); err != nil {
			return err
		}
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match
		}
		// Trailing newlines in key files are never meaningful.
		return escapeJSONString(strings.TrimRight(string(content), "\r\n"))
	})

	return []byte(str)
}

func escapeJSONString(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		"\"", "\\\"",
		"\n", "\\n",
		"\r", "\\r",
		"\t", "\\t",
	)
	return r.Replace(s)
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.BaseURL != "" {
		target.BaseURL = source.BaseURL
	}
	if source.APIKey != "" {
		target.APIKey = source.APIKey
	}
	if source.MaxTokens != 0 {
		target.MaxTokens = source.MaxTokens
	}
	if source.MapTokens != 0 {
		target.MapTokens = source.MapTokens
	}
	if source.FileTokens != 0 {
		target.FileTokens = source.FileTokens
	}
	if source.Tokenizer != "" {
		target.Tokenizer = source.Tokenizer
	}
	if source.SystemPrompt != "" {
		target.SystemPrompt = source.SystemPrompt
	}
	if source.StreamTimeout != "" {
		target.StreamTimeout = source.StreamTimeout
	}

	if len(source.Instructions) > 0 {
		target.Instructions = append(target.Instructions, source.Instructions...)
	}
	if len(source.ReadOnlyFiles) > 0 {
		target.ReadOnlyFiles = append(target.ReadOnlyFiles, source.ReadOnlyFiles...)
	}

	if source.Workers != nil {
		if target.Workers == nil {
			target.Workers = &types.WorkersConfig{}
		}
		if source.Workers.Max != 0 {
			target.Workers.Max = source.Workers.Max
		}
		if source.Workers.Queue != 0 {
			target.Workers.Queue = source.Workers.Queue
		}
	}
	if source.Retry != nil {
		target.Retry = source.Retry
	}
	if source.Server != nil {
		if target.Server == nil {
			target.Server = &types.ServerConfig{}
		}
		if source.Server.Hostname != "" {
			target.Server.Hostname = source.Server.Hostname
		}
		if source.Server.Port != 0 {
			target.Server.Port = source.Server.Port
		}
	}
	if source.Log != nil {
		if target.Log == nil {
			target.Log = &types.LogConfig{}
		}
		if source.Log.Level != "" {
			target.Log.Level = source.Log.Level
		}
		if source.Log.File != "" {
			target.Log.File = source.Log.File
		}
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	if v := os.Getenv("EMIGO_MODEL"); v != "" {
		config.Model = v
	}
	if v := os.Getenv("EMIGO_BASE_URL"); v != "" {
		config.BaseURL = v
	}
	if v := os.Getenv("EMIGO_API_KEY"); v != "" {
		config.APIKey = v
	}
	if v := os.Getenv("EMIGO_TOKENIZER"); v != "" {
		config.Tokenizer = v
	}
	if v := os.Getenv("EMIGO_MAP_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.MapTokens = n
		}
	}
	if v := os.Getenv("EMIGO_LOG_LEVEL"); v != "" {
		if config.Log == nil {
			config.Log = &types.LogConfig{}
		}
		config.Log.Level = v
	}
}
