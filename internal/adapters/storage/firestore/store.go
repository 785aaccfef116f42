package firestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// Store implements domain.ScenarioStore and domain.ProfileStore on Firestore.
//
// Layout:
//
//	{prefix}scenarios/{name}                         scenarioDoc
//	{prefix}scenarios/{name}/conversations/{convID}  conversationDoc
//	{prefix}profiles/{userID}                        profileDoc
type Store struct {
	client *firestore.Client
	prefix string
}

// NewStore creates a Firestore store.
// Uses the project passed (FARUM_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return NewStoreFromClient(client, ""), nil
}

// NewStoreFromClient wraps an existing client. prefix namespaces the top-level
// collections.
func NewStoreFromClient(client *firestore.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) scenariosCol() *firestore.CollectionRef {
	return s.client.Collection(s.prefix + "scenarios")
}

// Scenario names are free-form; document ids may not contain '/'.
func (s *Store) scenarioDoc(name string) *firestore.DocumentRef {
	return s.scenariosCol().Doc(url.PathEscape(name))
}

func (s *Store) conversationsCol(name string) *firestore.CollectionRef {
	return s.scenarioDoc(name).Collection("conversations")
}

func (s *Store) profileDoc(userID domain.UserID) *firestore.DocumentRef {
	return s.client.Collection(s.prefix + "profiles").Doc(url.PathEscape(string(userID)))
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type scenarioDoc struct {
	ScenarioID string    `firestore:"scenario_id"`
	Name       string    `firestore:"name"`
	CreatedAt  time.Time `firestore:"created_at"`
}

type messageDoc struct {
	Role    string `firestore:"role"`
	Content string `firestore:"content"`
}

type conversationDoc struct {
	StartedAt time.Time    `firestore:"started_at"`
	Messages  []messageDoc `firestore:"messages"`
}

type entryDoc struct {
	ID        string    `firestore:"id"`
	Timestamp time.Time `firestore:"timestamp"`
	Text      string    `firestore:"text"`
	Agent     string    `firestore:"agent"`
	Tags      []string  `firestore:"tags"`
}

type timelineDoc struct {
	Entries     []entryDoc `firestore:"timeline"`
	LastUpdated time.Time  `firestore:"last_updated"`
}

type profileDoc struct {
	Name     string      `firestore:"name"`
	Pronouns string      `firestore:"pronouns"`
	Consent  bool        `firestore:"consent"`
	Progress timelineDoc `firestore:"progress"`
	Memory   timelineDoc `firestore:"memory"`
}

// ─────────────────────────────────────────
// ScenarioStore implementation
// ─────────────────────────────────────────

func (s *Store) LoadScenario(ctx context.Context, name string) (*domain.Scenario, error) {
	snap, err := s.scenarioDoc(name).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ReadError("firestore LoadScenario", err)
	}
	return s.readScenario(ctx, snap)
}

func (s *Store) readScenario(ctx context.Context, snap *firestore.DocumentSnapshot) (*domain.Scenario, error) {
	var doc scenarioDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, domain.ReadError("firestore decode scenarioDoc", err)
	}

	sc := &domain.Scenario{
		ID:            doc.ScenarioID,
		Name:          doc.Name,
		Conversations: []*domain.Conversation{},
	}

	iter := snap.Ref.Collection("conversations").OrderBy("started_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	for {
		convSnap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, domain.ReadError("firestore list conversations", err)
		}

		var cd conversationDoc
		if err := convSnap.DataTo(&cd); err != nil {
			return nil, domain.ReadError("firestore decode conversationDoc", err)
		}

		conv := &domain.Conversation{
			ID:        domain.ConversationID(convSnap.Ref.ID),
			StartedAt: cd.StartedAt,
			Messages:  make([]domain.Message, 0, len(cd.Messages)),
		}
		for _, m := range cd.Messages {
			conv.Messages = append(conv.Messages, domain.Message{Role: domain.Role(m.Role), Content: m.Content})
		}
		sc.Conversations = append(sc.Conversations, conv)
	}
	return sc, nil
}

// SaveScenario writes the scenario document and every conversation in one
// transaction.
func (s *Store) SaveScenario(ctx context.Context, sc *domain.Scenario) error {
	ref := s.scenarioDoc(sc.Name)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		createdAt := time.Now().UTC()
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing scenarioDoc
			if err := snap.DataTo(&existing); err == nil && !existing.CreatedAt.IsZero() {
				createdAt = existing.CreatedAt
			}
		case !isNotFound(err):
			return err
		}

		if err := tx.Set(ref, scenarioDoc{
			ScenarioID: sc.ID,
			Name:       sc.Name,
			CreatedAt:  createdAt,
		}); err != nil {
			return err
		}

		for _, conv := range sc.Conversations {
			if err := tx.Set(ref.Collection("conversations").Doc(string(conv.ID)), toConversationDoc(conv)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.WriteError("firestore SaveScenario", err)
	}
	return nil
}

// SaveConversation writes one conversation document. The scenario document
// is only read, so the write count per message stays constant however many
// conversations the scenario holds.
func (s *Store) SaveConversation(ctx context.Context, scenario string, conv *domain.Conversation) error {
	ref := s.scenarioDoc(scenario)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if isNotFound(err) {
				return domain.ErrNotFound
			}
			return err
		}
		return tx.Set(ref.Collection("conversations").Doc(string(conv.ID)), toConversationDoc(conv))
	})
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return domain.WriteError("firestore SaveConversation", err)
	}
	return nil
}

func toConversationDoc(conv *domain.Conversation) conversationDoc {
	cd := conversationDoc{
		StartedAt: conv.StartedAt,
		Messages:  make([]messageDoc, 0, len(conv.Messages)),
	}
	for _, m := range conv.Messages {
		cd.Messages = append(cd.Messages, messageDoc{Role: string(m.Role), Content: m.Content})
	}
	return cd
}

// ListScenarios returns scenarios in creation order.
func (s *Store) ListScenarios(ctx context.Context) ([]*domain.Scenario, error) {
	iter := s.scenariosCol().OrderBy("created_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*domain.Scenario
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, domain.ReadError("firestore ListScenarios", err)
		}

		sc, err := s.readScenario(ctx, snap)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

// ClearAll deletes every scenario and its conversations.
func (s *Store) ClearAll(ctx context.Context) error {
	bw := s.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob

	iter := s.scenariosCol().DocumentRefs(ctx)
	for {
		ref, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			bw.End()
			return domain.WriteError("firestore ClearAll", err)
		}

		convs := ref.Collection("conversations").DocumentRefs(ctx)
		for {
			convRef, err := convs.Next()
			if err != nil {
				if errors.Is(err, iterator.Done) {
					break
				}
				bw.End()
				return domain.WriteError("firestore ClearAll", err)
			}
			job, err := bw.Delete(convRef)
			if err != nil {
				bw.End()
				return domain.WriteError("firestore ClearAll", err)
			}
			jobs = append(jobs, job)
		}

		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return domain.WriteError("firestore ClearAll", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil && !isNotFound(err) {
			return domain.WriteError("firestore ClearAll", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────
// ProfileStore implementation
// ─────────────────────────────────────────

func (s *Store) LoadProfile(ctx context.Context, userID domain.UserID) (*domain.Profile, error) {
	snap, err := s.profileDoc(userID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ReadError("firestore LoadProfile", err)
	}

	var doc profileDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, domain.ReadError("firestore decode profileDoc", err)
	}

	return &domain.Profile{
		Name:     doc.Name,
		Pronouns: doc.Pronouns,
		Consent:  doc.Consent,
		Progress: fromTimelineDoc(doc.Progress),
		Memory:   fromTimelineDoc(doc.Memory),
	}, nil
}

func (s *Store) SaveProfile(ctx context.Context, userID domain.UserID, p *domain.Profile) error {
	doc := profileDoc{
		Name:     p.Name,
		Pronouns: p.Pronouns,
		Consent:  p.Consent,
		Progress: toTimelineDoc(p.Progress),
		Memory:   toTimelineDoc(p.Memory),
	}
	if _, err := s.profileDoc(userID).Set(ctx, doc); err != nil {
		return domain.WriteError("firestore SaveProfile", err)
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, userID domain.UserID) error {
	if _, err := s.profileDoc(userID).Delete(ctx); err != nil && !isNotFound(err) {
		return domain.WriteError("firestore DeleteProfile", err)
	}
	return nil
}

func toTimelineDoc(t domain.Timeline) timelineDoc {
	doc := timelineDoc{
		Entries:     make([]entryDoc, 0, len(t.Entries)),
		LastUpdated: t.LastUpdated,
	}
	for _, e := range t.Entries {
		doc.Entries = append(doc.Entries, entryDoc{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Text:      e.Text,
			Agent:     string(e.Agent),
			Tags:      e.Tags,
		})
	}
	return doc
}

func fromTimelineDoc(doc timelineDoc) domain.Timeline {
	t := domain.Timeline{
		Entries:     make([]domain.TimelineEntry, 0, len(doc.Entries)),
		LastUpdated: doc.LastUpdated,
	}
	for _, e := range doc.Entries {
		tags := e.Tags
		if tags == nil {
			tags = []string{}
		}
		t.Entries = append(t.Entries, domain.TimelineEntry{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Text:      e.Text,
			Agent:     domain.AgentID(e.Agent),
			Tags:      tags,
		})
	}
	return t
}
