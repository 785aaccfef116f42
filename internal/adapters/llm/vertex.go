package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

const defaultModelName = "gemini-2.5-flash"

// VertexModerator classifies assistant output with Vertex AI (Gemini).
type VertexModerator struct {
	client    *genai.Client
	modelName string
}

// NewVertexModerator creates a domain.Moderator backed by Vertex AI.
func NewVertexModerator(ctx context.Context, projectID, location, modelName string) (*VertexModerator, error) {
	if projectID == "" || location == "" {
		return nil, fmt.Errorf("FARUM_GCP_PROJECT and FARUM_GCP_LOCATION must be set")
	}
	if modelName == "" {
		modelName = defaultModelName
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexModerator{
		client:    client,
		modelName: modelName,
	}, nil
}

// Moderate implements domain.Moderator using Vertex AI.
func (v *VertexModerator) Moderate(ctx context.Context, text string) (domain.ModerationVerdict, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(BuildModerationPrompt(text), genai.RoleUser),
	}

	// Deterministic, short, schema-constrained answer.
	temp := float32(0)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(moderationInstructions, genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   256,
		ResponseMIMEType:  "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"moderationCategory":  {Type: genai.TypeString, Enum: categories},
				"moderationRationale": {Type: genai.TypeString},
			},
			Required: []string{"moderationCategory", "moderationRationale"},
		},
	}

	res, err := v.client.Models.GenerateContent(ctx, v.modelName, contents, cfg)
	if err != nil {
		return domain.ModerationVerdict{}, fmt.Errorf("vertex generate content: %w", err)
	}

	raw := res.Text()
	if raw == "" {
		return domain.ModerationVerdict{}, fmt.Errorf("vertex returned empty text")
	}
	return parseVerdict(raw, text)
}
