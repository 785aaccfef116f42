package tools

import (
	"context"
	"encoding/json"

	"github.com/PabloGalante/farum-voice/internal/domain"
)

// HistoryService is the conversation store as seen by fetchHistoryContext.
type HistoryService interface {
	FetchHistory(ctx context.Context, scenario string, limit int) domain.HistorySummary
}

// FetchHistoryRequest is the argument object of fetchHistoryContext. Both
// fields are optional: the scenario defaults to the caller's and the limit to
// domain.DefaultHistoryLimit.
type FetchHistoryRequest struct {
	Scenario string `json:"scenario,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// FetchHistoryTool returns recent messages of a scenario. It never fails on
// storage errors.
type FetchHistoryTool struct {
	history HistoryService
}

func NewFetchHistoryTool(history HistoryService) *FetchHistoryTool {
	return &FetchHistoryTool{history: history}
}

func (t *FetchHistoryTool) Name() domain.ToolName { return domain.ToolFetchHistory }

func (t *FetchHistoryTool) Call(ctx context.Context, tctx ToolContext, args json.RawMessage) (any, error) {
	var req FetchHistoryRequest
	if err := decodeArgs(t.Name(), args, &req); err != nil {
		return nil, err
	}

	scenario := req.Scenario
	if scenario == "" {
		scenario = tctx.Scenario
	}
	if scenario == "" {
		scenario = domain.DefaultScenario
	}
	return t.history.FetchHistory(ctx, scenario, req.Limit), nil
}

// NewDefaultTools returns the five tools of the dispatch contract.
func NewDefaultTools(profiles ProfileService, history HistoryService) []Tool {
	return []Tool{
		NewFetchProfileTool(profiles),
		NewUpdateIdentityTool(profiles),
		NewAppendProgressTool(profiles),
		NewAppendMemoryTool(profiles),
		NewFetchHistoryTool(history),
	}
}
