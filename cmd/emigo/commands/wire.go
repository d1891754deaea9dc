package commands

import (
	"context"

	"github.com/spf13/afero"

	"github.com/opencode-ai/emigo/internal/config"
	"github.com/opencode-ai/emigo/internal/logging"
	"github.com/opencode-ai/emigo/internal/mention"
	"github.com/opencode-ai/emigo/internal/prompt"
	"github.com/opencode-ai/emigo/internal/repomap"
	"github.com/opencode-ai/emigo/internal/session"
	"github.com/opencode-ai/emigo/pkg/types"
)

// app bundles what every long-running command needs.
type app struct {
	workDir string
	config  *types.Config
	source  *config.Source
	fs      afero.Fs
	maps    *repomap.Cache
	watcher *repomap.Watcher
}

// loadApp loads configuration for workDir and prepares the shared
// filesystem and repo map cache.
func loadApp(dir string) (*app, error) {
	workDir, err := GetWorkDir(dir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	if cfg.Log != nil {
		if err := setupLogging(cfg.Log.Level, cfg.Log.File); err != nil {
			return nil, err
		}
	}

	fs := afero.NewReadOnlyFs(afero.NewOsFs())
	return &app{
		workDir: workDir,
		config:  cfg,
		source:  config.NewSource(cfg),
		fs:      fs,
		maps:    repomap.NewCache(repomap.NewTreeBuilder(fs)),
	}, nil
}

// watch invalidates cached repo maps when workspace files change.
func (a *app) watch() {
	w, err := repomap.NewWatcher(a.maps.Invalidate, repomap.DefaultMaxWatchedDirs)
	if err != nil {
		logging.Warn().Err(err).Msg("repo map watcher unavailable")
		return
	}
	a.maps.OnMiss(func(root string) {
		if err := w.Watch(root); err != nil {
			logging.Debug().Err(err).Str("root", root).Msg("failed to watch workspace")
		}
	})
	w.Start()
	a.watcher = w
}

// registryOptions builds the session options from the loaded config.
func (a *app) registryOptions() []session.Option {
	cfg := a.config

	var promptOpts []prompt.Option
	if cfg.SystemPrompt != "" {
		promptOpts = append(promptOpts, prompt.WithSystemPrompt(cfg.SystemPrompt))
	}
	if len(cfg.Instructions) > 0 {
		promptOpts = append(promptOpts, prompt.WithInstructions(cfg.Instructions...))
	}

	fileTokens := cfg.FileTokens
	if fileTokens == 0 {
		fileTokens = types.DefaultFileTokens
	}

	return []session.Option{
		session.WithFs(a.fs),
		session.WithAssembler(prompt.NewAssembler(a.fs, a.maps, promptOpts...)),
		session.WithExtractor(mention.NewExtractor(a.fs, mention.WithCandidates(a.candidates))),
		session.WithWorkers(cfg.MaxWorkers(), cfg.MaxQueued()),
		session.WithStreamTimeout(cfg.StreamTimeoutDuration()),
		session.WithClientConfig(cfg.MaxTokens, cfg.MaxRetries()),
		session.WithFileTokens(fileTokens),
		session.WithReadOnlyFiles(cfg.ReadOnlyFiles...),
	}
}

func (a *app) candidates(root string) ([]string, error) {
	return a.maps.ListFiles(context.Background(), root)
}

// close stops the watcher.
func (a *app) close() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			logging.Debug().Err(err).Msg("watcher stop")
		}
	}
}
