package changefeed

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// VersionProbe reports a counter that moves whenever another connection
// commits to the database.
type VersionProbe interface {
	DataVersion(ctx context.Context) (int64, error)
}

// FileWatcher turns writes to a database file made by other processes into
// cross-context events.
type FileWatcher struct {
	path         string
	probe        VersionProbe
	pub          Publisher
	containerID  string
	pollInterval time.Duration
	logger       *slog.Logger

	lastVersion int64
}

// WatcherOption configures a FileWatcher.
type WatcherOption func(*FileWatcher)

// WithPollInterval also checks the probe on a fixed interval, for
// filesystems that do not deliver write notifications.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) { w.pollInterval = d }
}

// NewFileWatcher watches the database at path.
func NewFileWatcher(path string, probe VersionProbe, pub Publisher, containerID string, logger *slog.Logger, opts ...WatcherOption) *FileWatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &FileWatcher{
		path:        path,
		probe:       probe,
		pub:         pub,
		containerID: containerID,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is cancelled.
func (w *FileWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	v, err := w.probe.DataVersion(ctx)
	if err != nil {
		return fmt.Errorf("reading initial data version: %w", err)
	}
	w.lastVersion = v

	var tick <-chan time.Time
	if w.pollInterval > 0 {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.check(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "path", w.path, "error", err)
		case <-tick:
			w.check(ctx)
		}
	}
}

func (w *FileWatcher) check(ctx context.Context) {
	v, err := w.probe.DataVersion(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("reading data version", "path", w.path, "error", err)
		}
		return
	}
	if v == w.lastVersion {
		return
	}
	w.lastVersion = v
	w.logger.Debug("database changed by another connection", "path", w.path, "data_version", v)
	w.pub.Publish(Event{
		Source:      SourceCrossContext,
		ContainerID: w.containerID,
		ContextID:   "file-watcher",
		Entity:      "database",
	})
}
