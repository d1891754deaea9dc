package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/emigo/internal/logging"
	"github.com/opencode-ai/emigo/internal/mcpserver"
	"github.com/opencode-ai/emigo/internal/session"
)

var (
	mcpDir     string
	mcpSSEAddr string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve workspace sessions over MCP",
	Long: `Serve the converse, sessions and history tools over the Model Context
Protocol. Uses stdio by default; --sse serves over HTTP instead.

Examples:
  emigo mcp
  emigo mcp --sse 127.0.0.1:7331`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpDir, "directory", "", "Directory to load project config from")
	mcpCmd.Flags().StringVar(&mcpSSEAddr, "sse", "", "Serve over SSE on this address instead of stdio")
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := loadApp(mcpDir)
	if err != nil {
		return err
	}
	defer a.close()
	a.watch()

	notifier := &mcpserver.Notifier{}
	registry := session.NewRegistry(a.source, append(a.registryOptions(), session.WithNotifier(notifier))...)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := registry.Shutdown(ctx); err != nil {
			logging.Warn().Err(err).Msg("session registry shutdown")
		}
	}()

	s := mcpserver.NewServer(registry, Version, server.WithHooks(notifier.Hooks()))
	notifier.Attach(s)

	if mcpSSEAddr == "" {
		logging.Info().Str("directory", a.workDir).Msg("serving MCP over stdio")
		return server.ServeStdio(s)
	}

	sse := server.NewSSEServer(s, server.WithBaseURL("http://"+mcpSSEAddr))
	logging.Info().Str("addr", mcpSSEAddr).Msg("serving MCP over SSE")
	fmt.Fprintf(cmd.ErrOrStderr(), "emigo MCP listening on http://%s/sse\n", mcpSSEAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(mcpSSEAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sse.Shutdown(ctx)
}
