package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/PabloGalante/farum-voice/internal/domain"
	"github.com/PabloGalante/farum-voice/internal/observability"
)

// Authorizer decides whether an agent may call a tool. *agentflow.Graph
// implements it.
type Authorizer interface {
	Authorize(agent domain.AgentID, tool domain.ToolName) error
}

// Dispatcher routes tool calls to their implementation after checking the
// calling agent's permissions.
type Dispatcher struct {
	auth  Authorizer
	tools map[domain.ToolName]Tool
}

func NewDispatcher(auth Authorizer, tools ...Tool) *Dispatcher {
	d := &Dispatcher{
		auth:  auth,
		tools: make(map[domain.ToolName]Tool, len(tools)),
	}
	for _, t := range tools {
		d.tools[t.Name()] = t
	}
	return d
}

// Tools returns the registered tool names, sorted.
func (d *Dispatcher) Tools() []domain.ToolName {
	names := make([]domain.ToolName, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch runs call on behalf of tctx.Agent.
//
// The returned error is non-nil only for contract violations: an unknown tool
// (domain.ErrUnknownTool), a tool outside the agent's set
// (domain.ErrToolNotAllowed, domain.ErrAgentNotFound) or invalid arguments
// (domain.ErrInvalidToolArgs). Storage failures are reported in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, tctx ToolContext, call Call) (Result, error) {
	if tctx.RequestID != "" {
		ctx = observability.WithRequestID(ctx, tctx.RequestID)
	}
	log := observability.LoggerFromContext(ctx).With(
		"tool", call.Tool,
		"agent", tctx.Agent,
		"scenario", tctx.Scenario,
	)

	tool, ok := d.tools[call.Tool]
	if !ok {
		observability.ToolCalls.WithLabelValues(string(call.Tool), "unknown").Inc()
		log.Warn("unknown tool")
		return Result{}, fmt.Errorf("%w: %s", domain.ErrUnknownTool, call.Tool)
	}

	if err := d.auth.Authorize(tctx.Agent, call.Tool); err != nil {
		observability.ToolCalls.WithLabelValues(string(call.Tool), "denied").Inc()
		log.Warn("tool call denied", "error", err)
		return Result{}, err
	}

	out, err := tool.Call(ctx, tctx, call.Args)
	switch {
	case err == nil:
		observability.ToolCalls.WithLabelValues(string(call.Tool), "ok").Inc()
		log.Info("tool call succeeded")
		return Result{Tool: call.Tool, Success: true, Output: out}, nil

	case errors.Is(err, domain.ErrInvalidToolArgs):
		observability.ToolCalls.WithLabelValues(string(call.Tool), "invalid").Inc()
		log.Warn("invalid tool arguments", "error", err)
		return Result{}, err

	default:
		observability.ToolCalls.WithLabelValues(string(call.Tool), "storage_error").Inc()
		log.Error("tool call degraded", "error", err)
		return Result{
			Tool:    call.Tool,
			Success: false,
			Output:  out,
			Message: "Storage is unavailable; changes may not have been saved.",
		}, nil
	}
}
