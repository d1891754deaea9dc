package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/emigo/internal/event"
	"github.com/opencode-ai/emigo/internal/prompt"
	"github.com/opencode-ai/emigo/internal/relay"
	"github.com/opencode-ai/emigo/pkg/types"
)

// run executes one turn on its own goroutine and releases the session
// guard once history is final.
func (r *Registry) run(s *Session, t *Turn, wait <-chan struct{}, release func()) {
	defer r.wg.Done()

	text, err := r.runTurn(s, t, wait)

	s.addPending(-1)
	atomic.AddInt64(&r.pending, -1)

	if obs, ok := r.notify.(Observer); ok {
		data := event.TurnCompletedData{Workspace: s.Workspace, TurnID: t.ID}
		if err != nil {
			data.Error = err.Error()
			data.Kind = types.KindOf(err)
		}
		obs.TurnCompleted(data)
	}

	t.finish(text, err)
	release()
}

// runTurn waits for the session's turn, then for a worker slot.
func (r *Registry) runTurn(s *Session, t *Turn, wait <-chan struct{}) (string, error) {
	select {
	case <-wait:
	case <-r.ctx.Done():
		return "", r.ctx.Err()
	}

	if err := r.sem.Acquire(r.ctx, 1); err != nil {
		return "", err
	}
	defer r.sem.Release(1)

	ctx := r.ctx
	if r.streamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.streamTimeout)
		defer cancel()
	}
	return r.exchange(ctx, s, t)
}

// exchange assembles the prompt, commits the user messages, streams the
// reply and commits the assistant message.
func (r *Registry) exchange(ctx context.Context, s *Session, t *Turn) (string, error) {
	log := r.log.With().Str("workspace", s.Workspace).Str("turn", t.ID).Logger()
	started := time.Now()

	first := !s.started()
	mapTokens, tokName := r.promptSettings()

	refs := r.extractor.Extract(s.Workspace, t.Prompt, nil)
	for _, ign := range refs.Ignored {
		ev := log.Debug().Str("mention", ign.Mention).Str("reason", ign.Reason)
		if ign.Suggestion != "" {
			ev = ev.Str("suggestion", ign.Suggestion)
		}
		ev.Msg("ignoring mention")
	}

	req := prompt.Request{
		Root:       s.Workspace,
		UserText:   t.Prompt,
		FileTokens: r.fileTokens,
		Tokenizer:  tokName,
	}
	var (
		res *prompt.Result
		err error
	)
	if first {
		req.ChatFiles = refs.Files
		req.ReadOnlyFiles = r.readOnly
		req.MapTokens = mapTokens
		res, err = r.assembler.Build(ctx, req)
	} else {
		req.ChatFiles = s.newFiles(refs.Files)
		res, err = r.assembler.FollowUp(ctx, req)
	}
	if err != nil {
		log.Warn().Err(err).Msg("prompt build failed")
		r.notify.TranscriptAppend(s.Workspace, err.Error(), types.TranscriptError)
		return "", err
	}

	echo := t.Prompt + "\n\n"
	if !first {
		echo = "\n\n" + echo
	}
	r.notify.TranscriptAppend(s.Workspace, echo, types.TranscriptUser)

	now := time.Now().UnixMilli()
	for i := range res.Messages {
		res.Messages[i].ID = ulid.Make().String()
		res.Messages[i].Created = now
	}
	history := s.append(res.Messages...)
	s.markFiles(res.Files)
	s.markFiles(res.ReadOnly)

	log.Info().
		Bool("first", first).
		Strs("files", res.Files).
		Int("skipped", len(res.Skipped)).
		Int("messages", len(history)).
		Msg("sending prompt")
	if ev := log.Debug(); ev.Enabled() {
		ev.Str("prompt", types.Printable(history)).Msg("full prompt")
	}

	reply, err := r.stream(ctx, s, history)
	if err != nil {
		var se *types.StreamError
		if !errors.As(err, &se) {
			se = &types.StreamError{Err: err}
		}
		content := relay.ErrorText(se.Err)
		if se.Partial != "" {
			content = se.Partial + "\n" + content
		}
		s.append(types.Message{
			ID:      ulid.Make().String(),
			Role:    types.RoleAssistant,
			Content: content,
			Created: time.Now().UnixMilli(),
			Error:   types.NewStreamMessageError(se.Err.Error(), se.Partial),
		})
		log.Error().Err(se.Err).Int("partial", len(se.Partial)).Dur("elapsed", time.Since(started)).Msg("turn failed")
		return se.Partial, se
	}

	s.append(types.Message{
		ID:      ulid.Make().String(),
		Role:    types.RoleAssistant,
		Content: reply,
		Created: time.Now().UnixMilli(),
	})
	log.Info().Int("chars", len(reply)).Dur("elapsed", time.Since(started)).Msg("turn completed")
	return reply, nil
}

// stream opens the model stream and relays it to the notifier.
func (r *Registry) stream(ctx context.Context, s *Session, history []types.Message) (string, error) {
	stream, err := s.client.Stream(ctx, history)
	if err != nil {
		r.notify.TranscriptAppend(s.Workspace, relay.ErrorText(err), types.TranscriptError)
		return "", &types.StreamError{Err: err}
	}
	return relay.Relay(ctx, stream, relay.Funcs{
		OnChunk: func(text string) {
			r.notify.TranscriptAppend(s.Workspace, text, types.TranscriptLLM)
		},
		OnError: func(text string) {
			r.notify.TranscriptAppend(s.Workspace, text, types.TranscriptError)
		},
	})
}
