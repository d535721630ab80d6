package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/lullaby/internal/changefeed"
	"github.com/rpggio/lullaby/internal/config"
	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/rpggio/lullaby/internal/domain/activity"
	"github.com/rpggio/lullaby/internal/domain/profile"
	"github.com/rpggio/lullaby/internal/liveactivity"
	"github.com/rpggio/lullaby/internal/mcp"
	"github.com/rpggio/lullaby/internal/reminder"
	"github.com/rpggio/lullaby/internal/remotesync"
	"github.com/rpggio/lullaby/internal/sqlite"
	"github.com/rpggio/lullaby/internal/telemetry"
	"github.com/rpggio/lullaby/internal/transport"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if cfg.Log.Path != "" {
		fileWriter, file, err := newLogFileWriter(cfg.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, version, cfg.Telemetry.Insecure)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	bus := changefeed.NewBus(logger)
	defer bus.Close()
	db.SetPublisher(bus)

	actionRepo := sqlite.NewActionRepository(db)
	profileSvc := profile.NewService(sqlite.NewProfileRepository(db), logger)
	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), logger)

	exclusive, err := cfg.ExclusiveCategories()
	if err != nil {
		return err
	}
	live := liveactivity.NewPublisher(profileSvc, liveactivity.NewDedup(liveactivity.NewLogProjector(logger)), logger)
	reminders := reminder.NewIntervalScheduler(cfg.Reminders.FeedingInterval, cfg.Reminders.DiaperInterval, logger)

	store := actionlog.NewStore(actionRepo, logger, actionlog.Config{
		Rules:          action.NewRules(exclusive),
		Identity:       db.Identity(),
		ReloadDebounce: cfg.Actions.ReloadDebounce,
		LiveActivity:   live,
		Reminders:      reminders,
		Activity:       activitySvc,
		Meter:          telemetry.Meter("github.com/rpggio/lullaby/actionlog"),
	})

	shutdown := &shutdownSequence{stop: stop, closeStore: store.Close}
	defer shutdown.run()
	goBackground := func(name string, fn func()) {
		shutdown.background.Add(1)
		go func() {
			defer shutdown.background.Done()
			fn()
			logger.Debug("background task stopped", "task", name)
		}()
	}

	goBackground("observe", func() { store.Observe(ctx, bus) })

	if cfg.Actions.WatchFile && db.Path() != "" {
		watcher := changefeed.NewFileWatcher(db.Path(), db, bus, db.Identity().ContainerID, logger)
		goBackground("file watcher", func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("file watcher failed", "error", err)
			}
		})
	}

	services := mcp.Services{
		Profiles:  profileSvc,
		Actions:   store,
		Activity:  activitySvc,
		Reminders: reminders,
	}

	if cfg.Sync.Enabled {
		backend, closer, err := remotesync.OpenBackend(ctx, remotesync.BackendOptions{
			Kind:        cfg.Sync.Backend,
			BaseURL:     cfg.Sync.BaseURL,
			Token:       cfg.Sync.Token,
			PostgresDSN: cfg.Sync.PostgresDSN,
			Timeout:     cfg.Sync.Timeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("open sync backend: %w", err)
		}
		shutdown.closeBackend = closer

		syncer := remotesync.NewSyncer(backend, store, profileSvc, actionRepo, logger, remotesync.Config{
			Publisher: bus,
			Tracer:    telemetry.Tracer("github.com/rpggio/lullaby/remotesync"),
			Meter:     telemetry.Meter("github.com/rpggio/lullaby/remotesync"),
		})
		store.SetPusher(syncer)
		services.Sync = syncer

		goBackground("sync loop", func() {
			syncer.Run(ctx, cfg.Sync.Interval, cfg.Sync.Jitter, cfg.Sync.Timeout)
		})
		if cfg.Sync.WebsocketURL != "" {
			listener := remotesync.NewListener(cfg.Sync.WebsocketURL, cfg.Sync.Token, syncer.Trigger, logger)
			goBackground("remote listener", func() { _ = listener.Run(ctx) })
		}
		logger.Info("remote sync enabled", "backend", cfg.Sync.Backend, "interval", cfg.Sync.Interval)
	}

	resolver := transport.NewKeyResolver(sqlite.NewAPIKeyRepository(db))
	mcpServer := mcp.NewServer(mcp.Config{
		Services:      services,
		Resolver:      resolver,
		AuthEnabled:   cfg.Auth.Enabled,
		TransportMode: cfg.Transport.Mode,
		Version:       version,
		Logger:        logger,
	})

	if cfg.Transport.Mode == "stdio" {
		return runStdioMode(ctx, logger, mcpServer)
	}
	var auth func(http.Handler) http.Handler
	if cfg.Auth.Enabled {
		auth = transport.AuthMiddleware(resolver)
	}
	return runHTTPMode(ctx, logger, mcpServer, auth, cfg.Server.Host, cfg.Server.Port)
}

func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) error {
	logger.Info("starting stdio transport", "auth", "disabled")

	// Run blocks until stdin closes or ctx is cancelled.
	err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server, auth func(http.Handler) http.Handler, host string, port int) error {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           transport.NewServer(mcpHandler, auth, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "auth", auth != nil)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
