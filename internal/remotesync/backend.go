package remotesync

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// BackendOptions selects and configures a remote backend.
type BackendOptions struct {
	Kind        string // "http" or "postgres"
	BaseURL     string
	Token       string
	PostgresDSN string
	Timeout     time.Duration
}

// OpenBackend builds the configured backend. The returned close function
// releases its connections.
func OpenBackend(ctx context.Context, opts BackendOptions, logger *slog.Logger) (Backend, func(), error) {
	switch opts.Kind {
	case "http":
		client := &http.Client{Timeout: opts.Timeout}
		return NewHTTPBackend(opts.BaseURL, opts.Token, client), func() {}, nil
	case "postgres":
		pg, err := NewPostgresBackend(ctx, opts.PostgresDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown sync backend %q", opts.Kind)
	}
}
