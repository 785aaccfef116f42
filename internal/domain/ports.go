package domain

import "context"

// ScenarioStore persists scenario records keyed by scenario name.
type ScenarioStore interface {
	// LoadScenario returns ErrNotFound when no record exists for name.
	LoadScenario(ctx context.Context, name string) (*Scenario, error)
	SaveScenario(ctx context.Context, scenario *Scenario) error
	// SaveConversation writes a single conversation of an existing scenario,
	// adding it when new. It returns ErrNotFound when the scenario does not
	// exist. Other conversations are left untouched.
	SaveConversation(ctx context.Context, scenario string, conv *Conversation) error
	ListScenarios(ctx context.Context) ([]*Scenario, error)
	ClearAll(ctx context.Context) error
}

// ProfileStore persists the singleton profile of each user.
type ProfileStore interface {
	// LoadProfile returns ErrNotFound when the user has no profile yet.
	LoadProfile(ctx context.Context, userID UserID) (*Profile, error)
	SaveProfile(ctx context.Context, userID UserID, profile *Profile) error
	DeleteProfile(ctx context.Context, userID UserID) error
}

// Moderator classifies assistant output against content policy.
type Moderator interface {
	Moderate(ctx context.Context, text string) (ModerationVerdict, error)
}
