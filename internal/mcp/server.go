package mcp

import (
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// DefaultCaregiver tags mutations when auth is disabled.
const DefaultCaregiver = "local"

// Services contains all domain services needed by MCP.
type Services struct {
	Profiles ProfileService
	Actions  ActionStore
	Activity ActivityService
	Sync     Syncer // nil when remote sync is disabled

	Reminders ReminderPlanner
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Resolver      CaregiverResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	Version       string
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "lullaby",
		Version: cfg.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Later middleware runs first, so the actor is set before traffic is logged.
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))
	// Stdio is local only and never authenticates.
	if cfg.TransportMode == "http" && cfg.AuthEnabled && cfg.Resolver != nil {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		server.AddReceivingMiddleware(noAuthMiddleware(DefaultCaregiver))
	}

	registerTools(server, NewHandler(cfg.Services))

	return server
}
