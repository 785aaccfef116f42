package llm

import (
	"context"
	"strings"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// MockModerator is a keyword classifier for local mode and tests.
type MockModerator struct {
	keywords map[string][]string
}

func NewMockModerator() *MockModerator {
	return &MockModerator{
		keywords: map[string][]string{
			CategoryOffensive: {"idiot", "stupid", "pathetic", "shut up"},
			CategoryOffBrand:  {"diagnose you with", "you should take", "milligrams", "i am a licensed"},
			CategoryViolence:  {"how to hurt", "kill them", "overdose on"},
		},
	}
}

func (m *MockModerator) Moderate(_ context.Context, text string) (domain.ModerationVerdict, error) {
	lower := strings.ToLower(text)
	// Checked in a fixed order so a text with several hits is stable.
	for _, category := range []string{CategoryViolence, CategoryOffensive, CategoryOffBrand} {
		for _, kw := range m.keywords[category] {
			if strings.Contains(lower, kw) {
				return domain.ModerationVerdict{
					Status:    domain.StatusDone,
					Category:  category,
					Rationale: "matched keyword " + `"` + kw + `"`,
					TestText:  text,
				}, nil
			}
		}
	}
	return domain.ModerationVerdict{Status: domain.StatusDone, Category: CategoryNone}, nil
}
