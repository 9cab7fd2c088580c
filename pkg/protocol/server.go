package protocol

import (
	"context"
	"log/slog"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tarsy-labs/cogmem/pkg/version"
)

// ServerName identifies this process to a connecting client during the
// `initialize` handshake; the version half of that handshake comes
// from pkg/version so the MCP server and the HTTP health surface always
// report the same build identity.
const ServerName = "cogmem"

// NewServer builds the stdio MCP server, registering every tool
// and resource against svc.
func NewServer(svc *Service) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    ServerName,
		Version: version.Semver,
	}, nil)

	registerTools(server, svc)
	registerResources(server, svc)

	return server
}

// Run serves the stdio transport until ctx is cancelled, then gives
// server.Run up to shutdownDeadline to finish in-flight handlers before
// this function gives up waiting. Closing the pool afterwards is the
// caller's responsibility.
func Run(ctx context.Context, server *mcpsdk.Server, shutdownDeadline time.Duration) error {
	log := slog.With("component", "protocol")
	log.Info("stdio server starting")

	done := make(chan error, 1)
	go func() {
		done <- server.Run(ctx, &mcpsdk.StdioTransport{})
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() != nil {
			log.Info("stdio server drained on shutdown signal")
			return nil
		}
		if err != nil {
			log.Error("stdio server exited with error", "error", err)
			return err
		}
		log.Info("stdio server stopped")
		return nil
	case <-ctx.Done():
		select {
		case <-done:
			log.Info("stdio server drained on shutdown signal")
		case <-time.After(shutdownDeadline):
			log.Warn("stdio server did not drain within shutdown deadline", "deadline", shutdownDeadline)
		}
		return nil
	}
}
