package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

func TestMockModerator(t *testing.T) {
	m := NewMockModerator()
	ctx := context.Background()

	tests := []struct {
		text string
		want string
	}{
		{"It sounds like work has been heavy lately.", CategoryNone},
		{"That was a stupid thing to say.", CategoryOffensive},
		{"I can diagnose you with anxiety.", CategoryOffBrand},
		{"Here is how to hurt someone.", CategoryViolence},
		{"If you feel unsafe, please call 988.", CategoryNone},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v, err := m.Moderate(ctx, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Category)
			assert.Equal(t, domain.StatusDone, v.Status)
			if v.Flagged() {
				assert.Equal(t, tt.text, v.TestText)
			}
		})
	}
}

func TestParseVerdict(t *testing.T) {
	v, err := parseVerdict("```json\n{\"moderationCategory\":\"off_brand\",\"moderationRationale\":\"dosage advice\"}\n```", "take 50mg")
	require.NoError(t, err)
	assert.Equal(t, domain.ModerationVerdict{
		Status: domain.StatusDone, Category: CategoryOffBrand, Rationale: "dosage advice", TestText: "take 50mg",
	}, v)

	v, err = parseVerdict(`{"moderationCategory":"NONE","moderationRationale":"supportive"}`, "hello")
	require.NoError(t, err)
	assert.False(t, v.Flagged())
	assert.Empty(t, v.TestText)

	_, err = parseVerdict(`{"moderationCategory":"SPAM"}`, "x")
	assert.Error(t, err)
	_, err = parseVerdict(`not json`, "x")
	assert.Error(t, err)
}

func TestBuildModerationPrompt(t *testing.T) {
	assert.Equal(t, "Assistant message to classify:\n<<<\nHi there\n>>>", BuildModerationPrompt("Hi there"))
}
