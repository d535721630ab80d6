package liveactivity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/lullaby/internal/domain/action"
	"github.com/rpggio/lullaby/internal/domain/actionlog"
	"github.com/rpggio/lullaby/internal/domain/profile"
)

// Projector delivers updates to a display surface.
type Projector interface {
	Push(ctx context.Context, u Update) error
}

// LogProjector writes every update to the log.
type LogProjector struct {
	logger *slog.Logger
}

// NewLogProjector creates a LogProjector.
func NewLogProjector(logger *slog.Logger) *LogProjector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogProjector{logger: logger}
}

func (p *LogProjector) Push(_ context.Context, u Update) error {
	if u.Ended() {
		p.logger.Info("live activity ended", "profile_id", u.ProfileID)
		return nil
	}
	for _, a := range u.Actions {
		p.logger.Info("live activity",
			"profile_id", u.ProfileID,
			"profile_name", u.ProfileName,
			"action_id", a.ID,
			"title", a.Title,
			"subtype", a.SubtypeWord,
			"started", a.StartDate,
		)
	}
	return nil
}

// Dedup forwards an update only when it differs from the last one pushed
// for the same profile.
type Dedup struct {
	next Projector

	mu   sync.Mutex
	last map[string]Update
}

// NewDedup wraps next.
func NewDedup(next Projector) *Dedup {
	return &Dedup{next: next, last: map[string]Update{}}
}

func (d *Dedup) Push(ctx context.Context, u Update) error {
	d.mu.Lock()
	prev, ok := d.last[u.ProfileID]
	if ok && prev.sameContent(u) {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if err := d.next.Push(ctx, u); err != nil {
		return err
	}

	d.mu.Lock()
	d.last[u.ProfileID] = u
	d.mu.Unlock()
	return nil
}

// ProfileLookup resolves profile names.
type ProfileLookup interface {
	Get(ctx context.Context, id string) (*profile.Profile, error)
}

// Publisher turns store refreshes into projector updates.
type Publisher struct {
	profiles  ProfileLookup
	projector Projector
	now       func() time.Time
	logger    *slog.Logger
}

var _ actionlog.LiveActivityRefresher = (*Publisher)(nil)

// NewPublisher creates a Publisher. profiles may be nil, in which case the
// profile id doubles as its name.
func NewPublisher(profiles ProfileLookup, projector Projector, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{profiles: profiles, projector: projector, now: time.Now, logger: logger}
}

// Refresh projects state and pushes it.
func (p *Publisher) Refresh(ctx context.Context, profileID string, state action.ProfileState) error {
	name := profileID
	if p.profiles != nil {
		prof, err := p.profiles.Get(ctx, profileID)
		if err != nil {
			p.logger.Debug("live activity without profile name", "profile_id", profileID, "error", err)
		} else {
			name = prof.Name
		}
	}

	if err := p.projector.Push(ctx, Project(profileID, name, state, p.now())); err != nil {
		return fmt.Errorf("pushing live activity: %w", err)
	}
	return nil
}
