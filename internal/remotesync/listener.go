package remotesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Notice is a push message from the backend.
type Notice struct {
	Type      string `json:"type"`
	ProfileID string `json:"profile_id,omitempty"`
}

// Listener holds a websocket open to the backend and calls onChange for
// every "changed" notice. It reconnects with capped backoff.
type Listener struct {
	url      string
	token    string
	onChange func()
	logger   *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewListener creates a Listener for url.
func NewListener(url, token string, onChange func(), logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Listener{
		url:        url,
		token:      token,
		onChange:   onChange,
		logger:     logger,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Run listens until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		connected, err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = l.minBackoff
		}
		l.logger.Warn("remote change listener disconnected", "error", err, "retry_in", backoff)
		if err := waitWithContext(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, l.maxBackoff)
	}
}

func (l *Listener) listen(ctx context.Context) (bool, error) {
	opts := &websocket.DialOptions{}
	if l.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + l.token}}
	}
	conn, _, err := websocket.Dial(ctx, l.url, opts)
	if err != nil {
		return false, fmt.Errorf("dialing %s: %w", l.url, err)
	}
	defer conn.CloseNow()
	l.logger.Info("remote change listener connected", "url", l.url)

	for {
		var n Notice
		if err := wsjson.Read(ctx, conn, &n); err != nil {
			var closeErr websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.StatusNormalClosure {
				return true, nil
			}
			return true, err
		}
		if n.Type == "changed" {
			l.logger.Debug("remote change notice", "profile_id", n.ProfileID)
			l.onChange()
		}
	}
}
