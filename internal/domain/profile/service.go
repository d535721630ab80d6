package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rpggio/lullaby/internal/repository"
	"golang.org/x/text/unicode/norm"
)

const maxNameLength = 80

// Service handles profile operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new profile service.
func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{repo: repo, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest defines profile creation inputs.
type CreateRequest struct {
	ID        string
	Name      string
	BirthDate *time.Time
}

// NormalizeName trims and NFC-normalises a profile name.
func NormalizeName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidInput
	}
	return name, nil
}

// Create creates a new profile.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Profile, error) {
	name, err := NormalizeName(req.Name)
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}

	now := s.now()
	p := &Profile{
		ID:        id,
		Name:      name,
		BirthDate: req.BirthDate,
		CreatedAt: now,
		EditedAt:  now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("creating profile: %w", err)
	}
	s.logger.Info("profile created", "profile_id", p.ID)
	return p, nil
}

// Get fetches a profile by ID.
func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// List returns all profiles, oldest first.
func (s *Service) List(ctx context.Context) ([]Profile, error) {
	profiles, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return profiles, nil
}

// Rename changes a profile's name and bumps its edit time.
func (s *Service) Rename(ctx context.Context, id, name string) (*Profile, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name == name {
		return p, nil
	}
	p.Name = name
	p.EditedAt = s.now()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("renaming profile: %w", err)
	}
	return p, nil
}

// ApplyRemote stores remote profile versions that are newer than the local
// copy, or unknown locally. It returns how many were written.
func (s *Service) ApplyRemote(ctx context.Context, remote []Profile) (int, error) {
	applied := 0
	for i := range remote {
		in := remote[i]
		name, err := NormalizeName(in.Name)
		if err != nil {
			s.logger.Warn("skipping remote profile with invalid name", "profile_id", in.ID)
			continue
		}
		in.Name = name

		local, err := s.repo.Get(ctx, in.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			if in.CreatedAt.IsZero() {
				in.CreatedAt = in.EditedAt
			}
			if err := s.repo.Create(ctx, &in); err != nil {
				return applied, fmt.Errorf("creating remote profile %s: %w", in.ID, err)
			}
			applied++
		case err != nil:
			return applied, fmt.Errorf("getting profile %s: %w", in.ID, err)
		case Newer(in, *local):
			in.CreatedAt = local.CreatedAt
			if err := s.repo.Update(ctx, &in); err != nil {
				return applied, fmt.Errorf("updating remote profile %s: %w", in.ID, err)
			}
			applied++
		}
	}
	return applied, nil
}

// Newer reports whether a should replace b under last-writer-wins.
func Newer(a, b Profile) bool {
	return a.EditedAt.After(b.EditedAt)
}
