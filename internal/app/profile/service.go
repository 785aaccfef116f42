package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/farum-voice/internal/domain"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

// Service holds the logic of reading and growing user profiles.
type Service struct {
	store domain.ProfileStore
	now   func() time.Time

	// mu serializes read-modify-write sequences.
	mu sync.Mutex
}

// NewService creates a profile service from a ProfileStore.
func NewService(store domain.ProfileStore) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// stamp is the current time at the precision every backend keeps, so a
// profile reads back exactly as it was written.
func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// FetchProfile returns the profile of userID, creating and persisting the
// empty default on first access. It never fails: when the stored record cannot
// be read a fresh default is returned without overwriting it.
func (s *Service) FetchProfile(ctx context.Context, userID domain.UserID) *domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return domain.NewProfile(s.stamp())
	}
	return p
}

// load reads the profile of userID. A missing profile is created and
// persisted; any other read failure is returned as is.
func (s *Service) load(ctx context.Context, userID domain.UserID) (*domain.Profile, error) {
	log := observability.LoggerFromContext(ctx).With("user_id", userID)

	p, err := s.store.LoadProfile(ctx, userID)
	if err == nil {
		normalize(p)
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		log.Error("failed to load profile", "error", err)
		return nil, err
	}

	p = domain.NewProfile(s.stamp())
	if err := s.store.SaveProfile(ctx, userID, p); err != nil {
		// The default is still usable for this call.
		log.Error("failed to persist default profile", "error", err)
		return p, nil
	}
	log.Info("created default profile")
	return p, nil
}

// UpdateIdentity merges the non-nil fields of u into the profile, persists it
// and returns the merged profile.
func (s *Service) UpdateIdentity(ctx context.Context, userID domain.UserID, u domain.IdentityUpdate) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	u.Apply(p)
	if err := s.store.SaveProfile(ctx, userID, p); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to save profile identity", "user_id", userID, "error", err)
		return p, err
	}
	return p, nil
}

// AppendProgress adds a milestone to the progress timeline.
func (s *Service) AppendProgress(ctx context.Context, userID domain.UserID, text string, agent domain.AgentID, tags []string) (domain.TimelineEntry, error) {
	return s.appendEntry(ctx, userID, text, agent, tags, func(p *domain.Profile) *domain.Timeline { return &p.Progress })
}

// AppendMemory adds a durable fact to the memory timeline.
func (s *Service) AppendMemory(ctx context.Context, userID domain.UserID, text string, agent domain.AgentID, tags []string) (domain.TimelineEntry, error) {
	return s.appendEntry(ctx, userID, text, agent, tags, func(p *domain.Profile) *domain.Timeline { return &p.Memory })
}

func (s *Service) appendEntry(
	ctx context.Context,
	userID domain.UserID,
	text string,
	agent domain.AgentID,
	tags []string,
	timeline func(*domain.Profile) *domain.Timeline,
) (domain.TimelineEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.TimelineEntry{}, fmt.Errorf("%w: text is required", domain.ErrInvalidEntry)
	}
	if strings.TrimSpace(string(agent)) == "" {
		return domain.TimelineEntry{}, fmt.Errorf("%w: agent is required", domain.ErrInvalidEntry)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load(ctx, userID)
	if err != nil {
		return domain.TimelineEntry{}, err
	}

	entry := domain.TimelineEntry{
		ID:        uuid.NewString(),
		Timestamp: s.stamp(),
		Text:      text,
		Agent:     agent,
		Tags:      cleanTags(tags),
	}
	timeline(p).Append(entry)

	if err := s.store.SaveProfile(ctx, userID, p); err != nil {
		observability.LoggerFromContext(ctx).Error("failed to save timeline entry",
			"user_id", userID, "agent", agent, "error", err)
		return entry, err
	}
	return entry, nil
}

// Clear deletes the profile of userID. The next fetch starts from defaults.
func (s *Service) Clear(ctx context.Context, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteProfile(ctx, userID); err != nil {
		return err
	}
	observability.LoggerFromContext(ctx).Info("profile cleared", "user_id", userID)
	return nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalize replaces nil timelines so the wire shape always carries arrays.
func normalize(p *domain.Profile) {
	if p.Progress.Entries == nil {
		p.Progress.Entries = []domain.TimelineEntry{}
	}
	if p.Memory.Entries == nil {
		p.Memory.Entries = []domain.TimelineEntry{}
	}
	for _, tl := range []*domain.Timeline{&p.Progress, &p.Memory} {
		for i := range tl.Entries {
			if tl.Entries[i].Tags == nil {
				tl.Entries[i].Tags = []string{}
			}
		}
	}
}
