// Package session maps workspaces to LLM conversations and runs their
// turns.
//
// A Registry owns one Session per canonical workspace root. Sessions are
// created lazily on the first request for a workspace, once the model
// configuration (model, endpoint, credential) is complete, and live until
// the registry shuts down.
//
// # Turns
//
// Submit queues a turn and returns immediately:
//
//	reg := session.NewRegistry(config.NewSource(cfg),
//		session.WithNotifier(event.Notifier{Bus: bus}),
//	)
//	turn, err := reg.Submit(ctx, "/path/to/project/main.go", "explain @main.go")
//	if err != nil {
//		return err // ResolutionError, ConfigurationError or ErrQueueFull
//	}
//	reply, err := turn.Wait(ctx)
//
// Every request first notifies NeedWindow. A turn then extracts the
// @-mentions of its prompt, assembles the prompt (the full message list on
// the first turn, the newly referenced files and the user text later),
// notifies the echoed user text, streams the reply as llm transcript
// fragments and appends the assistant message to history. A failed
// exchange appends an error-tagged assistant message instead and the
// session stays usable.
//
// # Scheduling
//
// Turns of one session run strictly one at a time, in submission order.
// Turns of different sessions run in parallel, bounded by WithWorkers. A
// turn waits for its session turn before taking a worker slot, so a busy
// workspace never holds slots another workspace could use.
package session
