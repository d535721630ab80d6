package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpggio/lullaby/internal/remotesync"
	"github.com/spf13/cobra"
)

type syncResult struct {
	remotesync.Status
}

func (r syncResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Last attempt: %s\n", formatTime(r.LastAttempt))
	fmt.Fprintf(&b, "Last success: %s\n", formatTime(r.LastSuccess))
	if r.LastError != "" {
		fmt.Fprintf(&b, "Last error:   %s\n", r.LastError)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.RFC3339)
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one pass against the configured remote backend",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			sc := a.cfg.Sync
			if !sc.Enabled {
				return NewExitError(ExitCommandError, "remote sync is not configured: set LULLABY_SYNC_ENABLED")
			}
			ctx := a.ctx(cmd)
			backend, closeBackend, err := remotesync.OpenBackend(ctx, remotesync.BackendOptions{
				Kind:        sc.Backend,
				BaseURL:     sc.BaseURL,
				Token:       sc.Token,
				PostgresDSN: sc.PostgresDSN,
				Timeout:     sc.Timeout,
			}, a.logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open sync backend", err)
			}
			defer closeBackend()

			syncer := remotesync.NewSyncer(backend, a.store, a.profiles, a.actions, a.logger, remotesync.Config{})
			passErr := syncer.SyncOnce(ctx)
			if err := a.out.Success(syncResult{syncer.Status()}); err != nil {
				return err
			}
			if passErr != nil {
				return WrapExitError(ExitFailure, "sync failed", passErr)
			}
			return nil
		}),
	}
}
