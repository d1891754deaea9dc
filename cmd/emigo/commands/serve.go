package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/emigo/internal/event"
	"github.com/opencode-ai/emigo/internal/logging"
	"github.com/opencode-ai/emigo/internal/server"
	"github.com/opencode-ai/emigo/internal/session"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
	serveNoCORS   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the emigo server",
	Long: `Start emigo as a server exposing an HTTP API, an SSE notification
stream and a WebSocket JSON-RPC control channel.

Editors connect to /rpc, send "converse" requests and receive need-window
and transcript-append notifications for their workspaces.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default 8080)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (default 127.0.0.1)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Directory to load project config from")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false, "Disable CORS headers")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := loadApp(serveDir)
	if err != nil {
		return err
	}
	defer a.close()
	a.watch()

	bus := event.NewBus()
	registry := session.NewRegistry(a.source, append(a.registryOptions(), session.WithNotifier(event.Notifier{Bus: bus}))...)

	serverConfig := server.DefaultConfig()
	if s := a.config.Server; s != nil {
		if s.Hostname != "" {
			serverConfig.Hostname = s.Hostname
		}
		if s.Port != 0 {
			serverConfig.Port = s.Port
		}
	}
	if serveHostname != "" {
		serverConfig.Hostname = serveHostname
	}
	if servePort != 0 {
		serverConfig.Port = servePort
	}
	serverConfig.EnableCORS = !serveNoCORS

	srv := server.New(serverConfig, registry, bus, a.source)

	logging.Info().
		Str("version", Version).
		Str("directory", a.workDir).
		Str("addr", serverConfig.Addr()).
		Msg("starting emigo server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "emigo listening on http://%s\n", serverConfig.Addr())

	select {
	case err := <-errCh:
		if err != nil {
			shutdown(registry, bus)
			return fmt.Errorf("server error: %w", err)
		}
	case <-cmd.Context().Done():
	}

	logging.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("server shutdown")
	}
	shutdown(registry, bus)

	logging.Info().Msg("server stopped")
	return nil
}

// shutdown cancels running turns, then closes the bus so event streams end.
func shutdown(registry *session.Registry, bus *event.Bus) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := registry.Shutdown(ctx); err != nil {
		logging.Warn().Err(err).Msg("session registry shutdown")
	}
	if err := bus.Close(); err != nil {
		logging.Warn().Err(err).Msg("event bus close")
	}
}
