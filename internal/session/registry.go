package session

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"

	"github.com/opencode-ai/emigo/internal/config"
	"github.com/opencode-ai/emigo/internal/event"
	"github.com/opencode-ai/emigo/internal/logging"
	"github.com/opencode-ai/emigo/internal/mention"
	"github.com/opencode-ai/emigo/internal/prompt"
	"github.com/opencode-ai/emigo/internal/provider"
	"github.com/opencode-ai/emigo/internal/repomap"
	"github.com/opencode-ai/emigo/internal/workspace"
	"github.com/opencode-ai/emigo/pkg/types"
)

var (
	// ErrQueueFull is returned when too many turns are waiting or running.
	ErrQueueFull = errors.New("turn queue full")
	// ErrClosed is returned after Shutdown.
	ErrClosed = errors.New("session registry closed")
	// ErrNotFound is returned for a workspace without a session.
	ErrNotFound = errors.New("session not found")
)

// MissingConfigMessage is shown to the user when the model configuration
// is incomplete.
const MissingConfigMessage = "Please set emigo-model, emigo-base-url and emigo-api-key before call emigo."

// Notifier receives the user-visible notifications of a workspace.
type Notifier interface {
	// NeedWindow is sent once per request, before any TranscriptAppend.
	NeedWindow(workspace string)
	TranscriptAppend(workspace, text string, role types.TranscriptRole)
}

// Observer is implemented by notifiers that also want lifecycle events.
type Observer interface {
	SessionCreated(data event.SessionCreatedData)
	TurnCompleted(data event.TurnCompletedData)
}

type nopNotifier struct{}

func (nopNotifier) NeedWindow(string) {}
func (nopNotifier) TranscriptAppend(string, string, types.TranscriptRole) {}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier sets the notification sink.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notify = n }
}

// WithClientFactory sets the model client constructor.
func WithClientFactory(f provider.Factory) Option {
	return func(r *Registry) { r.newClient = f }
}

// WithFs sets the filesystem used by the default resolver, extractor and
// assembler.
func WithFs(fs afero.Fs) Option {
	return func(r *Registry) { r.fs = fs }
}

// WithResolver overrides the workspace resolver.
func WithResolver(res *workspace.Resolver) Option {
	return func(r *Registry) { r.resolver = res }
}

// WithExtractor overrides the mention extractor.
func WithExtractor(e *mention.Extractor) Option {
	return func(r *Registry) { r.extractor = e }
}

// WithAssembler overrides the prompt assembler.
func WithAssembler(a *prompt.Assembler) Option {
	return func(r *Registry) { r.assembler = a }
}

// WithWorkers bounds concurrently streaming turns and turns in flight.
// Non-positive values keep the defaults.
func WithWorkers(max, queue int) Option {
	return func(r *Registry) {
		if max > 0 {
			r.maxWorkers = max
		}
		if queue > 0 {
			r.maxQueued = queue
		}
	}
}

// WithStreamTimeout bounds one model exchange. Zero means no bound.
func WithStreamTimeout(d time.Duration) Option {
	return func(r *Registry) { r.streamTimeout = d }
}

// WithFileTokens sets the per-file token budget.
func WithFileTokens(n int) Option {
	return func(r *Registry) { r.fileTokens = n }
}

// WithReadOnlyFiles sets reference files inlined on the first turn.
func WithReadOnlyFiles(paths ...string) Option {
	return func(r *Registry) { r.readOnly = append([]string(nil), paths...) }
}

// WithClientConfig sets the completion limit and retry count passed to
// new model clients.
func WithClientConfig(maxTokens, maxRetries int) Option {
	return func(r *Registry) {
		r.maxTokens = maxTokens
		r.maxRetries = maxRetries
	}
}

// Registry maps workspace roots to sessions and runs their turns.
//
// Turns of one session run one at a time in submission order; turns of
// different sessions run in parallel up to the worker bound.
type Registry struct {
	cfg       config.Provider
	notify    Notifier
	newClient provider.Factory
	fs        afero.Fs
	resolver  *workspace.Resolver
	extractor *mention.Extractor
	assembler *prompt.Assembler

	maxWorkers    int
	maxQueued     int
	streamTimeout time.Duration
	fileTokens    int
	readOnly      []string
	maxTokens     int
	maxRetries    int

	sem     *semaphore.Weighted
	pending int64

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewRegistry creates a Registry reading model settings from cfg.
func NewRegistry(cfg config.Provider, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		cfg:        cfg,
		notify:     nopNotifier{},
		newClient:  provider.NewRegistry().New,
		maxWorkers: types.DefaultWorkers,
		maxQueued:  types.DefaultQueue,
		fileTokens: types.DefaultFileTokens,
		maxRetries: types.DefaultRetries,
		sessions:   make(map[string]*Session),
		ctx:        ctx,
		cancel:     cancel,
		log:        logging.Component("session"),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.fs == nil {
		r.fs = afero.NewReadOnlyFs(afero.NewOsFs())
	}
	if r.resolver == nil {
		r.resolver = workspace.NewResolver(r.fs)
	}
	if r.assembler == nil || r.extractor == nil {
		tree := repomap.NewTreeBuilder(r.fs)
		if r.assembler == nil {
			r.assembler = prompt.NewAssembler(r.fs, tree)
		}
		if r.extractor == nil {
			r.extractor = mention.NewExtractor(r.fs, mention.WithCandidates(func(root string) ([]string, error) {
				return tree.ListFiles(r.ctx, root)
			}))
		}
	}
	r.sem = semaphore.NewWeighted(int64(r.maxWorkers))
	return r
}

// Submit resolves workspaceID and queues a turn for prompt. It returns
// once the turn is queued; the reply streams through the Notifier and the
// returned Turn completes when history has been updated.
//
// ctx only bounds session creation. Queued turns run until they finish
// or the registry shuts down.
func (r *Registry) Submit(ctx context.Context, workspaceID, text string) (*Turn, error) {
	root, err := r.resolver.Resolve(workspaceID)
	if err != nil {
		r.log.Warn().Err(err).Str("workspace", workspaceID).Msg("cannot resolve workspace")
		return nil, err
	}
	if r.isClosed() {
		return nil, ErrClosed
	}

	r.notify.NeedWindow(root)

	if atomic.AddInt64(&r.pending, 1) > int64(r.maxQueued) {
		atomic.AddInt64(&r.pending, -1)
		r.log.Warn().Str("workspace", root).Int("limit", r.maxQueued).Msg("turn rejected, queue full")
		return nil, ErrQueueFull
	}

	s, err := r.session(ctx, root)
	if err != nil {
		atomic.AddInt64(&r.pending, -1)
		var cfgErr *types.ConfigurationError
		if errors.As(err, &cfgErr) {
			msg := MissingConfigMessage
			if len(cfgErr.Missing) == 0 {
				msg = cfgErr.Error()
			}
			r.notify.TranscriptAppend(root, msg, types.TranscriptError)
		}
		return nil, err
	}

	t := newTurn(ulid.Make().String(), root, text)
	wait, release := s.guard.enqueue()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		release()
		atomic.AddInt64(&r.pending, -1)
		return nil, ErrClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	s.addPending(1)
	r.log.Debug().Str("workspace", root).Str("turn", t.ID).Msg("turn queued")

	go r.run(s, t, wait, release)
	return t, nil
}

// Converse submits a turn and waits for it to finish. A ctx that ends
// first stops the wait, not the turn.
func (r *Registry) Converse(ctx context.Context, workspaceID, text string) (string, error) {
	t, err := r.Submit(ctx, workspaceID, text)
	if err != nil {
		return "", err
	}
	return t.Wait(ctx)
}

// Get returns the session for workspaceID.
func (r *Registry) Get(workspaceID string) (*Session, error) {
	root, err := r.resolver.Resolve(workspaceID)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[root]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// History returns a copy of the history of workspaceID's session.
func (r *Registry) History(workspaceID string) ([]types.Message, error) {
	s, err := r.Get(workspaceID)
	if err != nil {
		return nil, err
	}
	return s.History(), nil
}

// List returns all sessions sorted by workspace.
func (r *Registry) List() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, len(sessions))
	for i, s := range sessions {
		infos[i] = s.Info()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Workspace < infos[j].Workspace })
	return infos
}

// Shutdown stops accepting turns, cancels running and queued turns and
// waits for their workers to exit or ctx to end.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info().Int("sessions", len(r.List())).Msg("session registry stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// session returns the session for root, creating it on first use.
func (r *Registry) session(ctx context.Context, root string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[root]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := r.create(ctx, root)
	if err != nil {
		return nil, err
	}
	if s == nil {
		r.mu.RLock()
		s = r.sessions[root]
		r.mu.RUnlock()
		return s, nil
	}

	r.log.Info().Str("workspace", root).Str("session", s.ID).Str("model", s.client.Model()).Msg("session created")
	if obs, ok := r.notify.(Observer); ok {
		obs.SessionCreated(event.SessionCreatedData{
			ID:        s.ID,
			Workspace: root,
			Model:     s.client.Model(),
			Created:   s.Created.UnixMilli(),
		})
	}
	return s, nil
}

// create builds and registers a session under the registry lock. It
// returns nil without error when another request created it first.
func (r *Registry) create(ctx context.Context, root string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[root]; ok {
		return nil, nil
	}

	keys := []string{config.KeyModel, config.KeyBaseURL, config.KeyAPIKey}
	values := r.cfg.Get(keys...)
	var missing []string
	for i, key := range keys {
		if i >= len(values) || strings.TrimSpace(values[i]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &types.ConfigurationError{Missing: missing}
	}

	client, err := r.newClient(ctx, provider.Config{
		Model:      values[0],
		BaseURL:    values[1],
		APIKey:     values[2],
		MaxTokens:  r.maxTokens,
		MaxRetries: r.maxRetries,
	})
	if err != nil {
		return nil, &types.ConfigurationError{Err: err}
	}

	s := newSession(ulid.Make().String(), root, client)
	r.sessions[root] = s
	return s, nil
}

// promptSettings returns the repo map budget and tokenizer name.
func (r *Registry) promptSettings() (int, string) {
	values := r.cfg.Get(config.KeyMapTokens, config.KeyTokenizer)
	value := func(i int) string {
		if i >= len(values) {
			return ""
		}
		return strings.TrimSpace(values[i])
	}

	mapTokens := types.DefaultMapTokens
	if v := value(0); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.log.Warn().Str("value", v).Msg("invalid map token budget, using default")
		} else {
			mapTokens = n
		}
	}

	tok := types.DefaultTokenizer
	if v := value(1); v != "" {
		tok = v
	}
	return mapTokens, tok
}
