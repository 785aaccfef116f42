package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// ToolContext brings metadata of the call to the tool.
type ToolContext struct {
	UserID    domain.UserID
	Scenario  string
	Agent     domain.AgentID
	RequestID string
}

// Tool represents a tool agents can invoke. args is the raw JSON parameter
// object sent by the agent runtime; each tool decodes it into its own request
// type and rejects unknown fields.
type Tool interface {
	Name() domain.ToolName
	Call(ctx context.Context, tctx ToolContext, args json.RawMessage) (any, error)
}

// Call is one tool invocation as received from the agent runtime.
type Call struct {
	Tool domain.ToolName `json:"name"`
	Args json.RawMessage `json:"arguments,omitempty"`
}

// Result is the response returned to the agent runtime. Success is false when
// the backing store failed; Output then holds the safe fallback, if any.
type Result struct {
	Tool    domain.ToolName `json:"tool"`
	Success bool            `json:"success"`
	Output  any             `json:"output,omitempty"`
	Message string          `json:"message,omitempty"`
}

func (tctx ToolContext) user() domain.UserID {
	if tctx.UserID == "" {
		return domain.DefaultUserID
	}
	return tctx.UserID
}

// decodeArgs strictly decodes args into v. Empty or null args decode as {}.
func decodeArgs(tool domain.ToolName, args json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidToolArgs, tool, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: %s: trailing data after arguments", domain.ErrInvalidToolArgs, tool)
	}
	return nil
}

func missingField(tool domain.ToolName, field string) error {
	return fmt.Errorf("%w: %s: %q is required", domain.ErrInvalidToolArgs, tool, field)
}
