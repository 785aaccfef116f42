package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// ProfileService is the profile store as seen by the tools.
type ProfileService interface {
	FetchProfile(ctx context.Context, userID domain.UserID) *domain.Profile
	UpdateIdentity(ctx context.Context, userID domain.UserID, u domain.IdentityUpdate) (*domain.Profile, error)
	AppendProgress(ctx context.Context, userID domain.UserID, text string, agent domain.AgentID, tags []string) (domain.TimelineEntry, error)
	AppendMemory(ctx context.Context, userID domain.UserID, text string, agent domain.AgentID, tags []string) (domain.TimelineEntry, error)
}

// FetchProfileTool returns the caller's profile, creating it on first use.
type FetchProfileTool struct {
	profiles ProfileService
}

func NewFetchProfileTool(profiles ProfileService) *FetchProfileTool {
	return &FetchProfileTool{profiles: profiles}
}

func (t *FetchProfileTool) Name() domain.ToolName { return domain.ToolFetchProfile }

func (t *FetchProfileTool) Call(ctx context.Context, tctx ToolContext, args json.RawMessage) (any, error) {
	var req struct{}
	if err := decodeArgs(t.Name(), args, &req); err != nil {
		return nil, err
	}
	return t.profiles.FetchProfile(ctx, tctx.user()), nil
}

// UpdateIdentityTool merges name, pronouns and consent into the profile.
type UpdateIdentityTool struct {
	profiles ProfileService
}

func NewUpdateIdentityTool(profiles ProfileService) *UpdateIdentityTool {
	return &UpdateIdentityTool{profiles: profiles}
}

func (t *UpdateIdentityTool) Name() domain.ToolName { return domain.ToolUpdateIdentity }

func (t *UpdateIdentityTool) Call(ctx context.Context, tctx ToolContext, args json.RawMessage) (any, error) {
	var req domain.IdentityUpdate
	if err := decodeArgs(t.Name(), args, &req); err != nil {
		return nil, err
	}

	p, err := t.profiles.UpdateIdentity(ctx, tctx.user(), req)
	if err != nil && p == nil {
		p = t.profiles.FetchProfile(ctx, tctx.user())
	}
	return p, err
}

// TimelineRequest is the argument object of updateProgress and updateMemory.
type TimelineRequest struct {
	Text  string         `json:"text"`
	Agent domain.AgentID `json:"agent"`
	Tags  []string       `json:"tags"`
}

func (r TimelineRequest) validate(tool domain.ToolName) error {
	switch {
	case strings.TrimSpace(r.Text) == "":
		return missingField(tool, "text")
	case strings.TrimSpace(string(r.Agent)) == "":
		return missingField(tool, "agent")
	case r.Tags == nil:
		return missingField(tool, "tags")
	}
	return nil
}

// TimelineTool appends an entry to either the progress or the memory
// timeline.
type TimelineTool struct {
	name     domain.ToolName
	appendFn func(ctx context.Context, userID domain.UserID, text string, agent domain.AgentID, tags []string) (domain.TimelineEntry, error)
}

func NewAppendProgressTool(profiles ProfileService) *TimelineTool {
	return &TimelineTool{name: domain.ToolAppendProgress, appendFn: profiles.AppendProgress}
}

func NewAppendMemoryTool(profiles ProfileService) *TimelineTool {
	return &TimelineTool{name: domain.ToolAppendMemory, appendFn: profiles.AppendMemory}
}

func (t *TimelineTool) Name() domain.ToolName { return t.name }

func (t *TimelineTool) Call(ctx context.Context, tctx ToolContext, args json.RawMessage) (any, error) {
	var req TimelineRequest
	if err := decodeArgs(t.name, args, &req); err != nil {
		return nil, err
	}
	if err := req.validate(t.name); err != nil {
		return nil, err
	}

	entry, err := t.appendFn(ctx, tctx.user(), req.Text, req.Agent, req.Tags)
	if errors.Is(err, domain.ErrInvalidEntry) {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToolArgs, err)
	}
	if err != nil {
		if entry.ID == "" {
			return nil, err
		}
		return entry, err
	}
	return entry, nil
}
