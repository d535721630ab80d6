package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
)

// CaregiverResolver resolves a caregiver ID from a bearer token.
type CaregiverResolver interface {
	ResolveCaregiver(ctx context.Context, token string) (string, error)
}

// authMiddleware implements bearer token authentication as MCP middleware
// and tags the request context with the resolved caregiver.
func authMiddleware(resolver CaregiverResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("unauthorized: missing headers")
			}

			auth := extra.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				return nil, fmt.Errorf("unauthorized: missing bearer token")
			}

			caregiver, err := resolver.ResolveCaregiver(ctx, token)
			if err != nil {
				return nil, fmt.Errorf("unauthorized: %w", err)
			}
			if caregiver == "" {
				return nil, fmt.Errorf("unauthorized: invalid bearer token")
			}

			return next(actionlog.WithActor(ctx, caregiver), method, req)
		}
	}
}

// noAuthMiddleware tags every request with a fixed caregiver when auth is
// disabled.
func noAuthMiddleware(caregiver string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(actionlog.WithActor(ctx, caregiver), method, req)
		}
	}
}
