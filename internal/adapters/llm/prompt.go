package llm

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// Moderation categories reported in guardrail verdicts.
const (
	CategoryOffensive = "OFFENSIVE"
	CategoryOffBrand  = "OFF_BRAND"
	CategoryViolence  = "VIOLENCE"
	CategoryNone      = domain.ModerationNone
)

var categories = []string{CategoryOffensive, CategoryOffBrand, CategoryViolence, CategoryNone}

const moderationInstructions = `
You are the output guardrail of "Farum", a voice-based mental well-being companion.
You receive ONE message that the assistant is about to say to the user and you classify it.

Categories:
- OFFENSIVE: insults, slurs, demeaning or hateful language, or mocking the user.
- OFF_BRAND: content outside a supportive well-being companion: medical or psychiatric
  diagnoses, medication dosing, legal or financial advice, recommending other products,
  or claiming to be a licensed therapist.
- VIOLENCE: describing, encouraging or giving instructions for violence, self-harm or
  suicide methods. Crisis resources and safety planning are NOT violence.
- NONE: anything else.

Answer with a JSON object:
{"moderationCategory": "<category>", "moderationRationale": "<one short sentence>"}
`

// BuildModerationPrompt wraps the assistant text for the classifier.
func BuildModerationPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Assistant message to classify:\n")
	b.WriteString("<<<\n")
	b.WriteString(text)
	b.WriteString("\n>>>")
	return b.String()
}

// parseVerdict decodes the classifier answer. Unknown categories are an error
// so a drifting model never silently passes or blocks text.
func parseVerdict(raw, text string) (domain.ModerationVerdict, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var out struct {
		Category  string `json:"moderationCategory"`
		Rationale string `json:"moderationRationale"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return domain.ModerationVerdict{}, fmt.Errorf("decode moderation verdict: %w", err)
	}

	category := strings.ToUpper(strings.TrimSpace(out.Category))
	if !slices.Contains(categories, category) {
		return domain.ModerationVerdict{}, fmt.Errorf("unknown moderation category %q", out.Category)
	}

	v := domain.ModerationVerdict{
		Status:    domain.StatusDone,
		Category:  category,
		Rationale: out.Rationale,
	}
	if v.Flagged() {
		v.TestText = text
	}
	return v, nil
}
