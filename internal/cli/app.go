package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rpggio/lullaby/internal/config"
	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/rpggio/lullaby/internal/domain/activity"
	"github.com/rpggio/lullaby/internal/domain/profile"
	"github.com/rpggio/lullaby/internal/sqlite"
	"github.com/spf13/cobra"
)

// cliActor tags activity written from the command line.
const cliActor = "lullabyctl"

// app is the set of services one command runs against.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sqlite.DB
	actions  *sqlite.ActionRepository
	profiles *profile.Service
	activity *activity.Service
	store    *actionlog.Store
	out      *OutputFormatter
}

func openApp(cmd *cobra.Command, opts *RootOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	path := opts.DB
	if path == "" {
		path = cfg.DB.Path
	}

	var logOut io.Writer = io.Discard
	if opts.Verbose {
		logOut = cmd.ErrOrStderr()
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if path != ":memory:" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			logger.Info("creating database", "path", path)
		}
	}
	db, err := sqlite.New(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to migrate database", err)
	}

	exclusive, err := cfg.ExclusiveCategories()
	if err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	actions := sqlite.NewActionRepository(db)
	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), logger)
	store := actionlog.NewStore(actions, logger, actionlog.Config{
		Rules:    action.NewRules(exclusive),
		Identity: db.Identity(),
		Activity: activitySvc,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		actions:  actions,
		profiles: profile.NewService(sqlite.NewProfileRepository(db), logger),
		activity: activitySvc,
		store:    store,
		out:      &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()},
	}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.db.Close()
}

func (a *app) ctx(cmd *cobra.Command) context.Context {
	return actionlog.WithActor(cmd.Context(), cliActor)
}

// requireProfile resolves a profile argument.
func (a *app) requireProfile(ctx context.Context, id string) (*profile.Profile, error) {
	p, err := a.profiles.Get(ctx, id)
	if errors.Is(err, profile.ErrProfileNotFound) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("profile %q not found", id))
	}
	return p, err
}

// withApp opens the app around fn.
func withApp(opts *RootOptions, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}
