package domain

import "time"

type UserID string
type AgentID string
type ToolName string
type ItemID string
type ConversationID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole maps a wire role to a Role. ok is false for anything that is not
// part of the dialogue (system, tool, empty).
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RoleAssistant:
		return Role(s), true
	default:
		return "", false
	}
}

const (
	// DefaultScenario is used when the surrounding runtime does not say which
	// agent configuration is active.
	DefaultScenario = "multiAgentVirtualTherapist"

	DefaultUserID UserID = "local"

	DefaultHistoryLimit = 20
)

// Tools agents may call. Names match what the realtime agent runtime sees.
const (
	ToolFetchProfile   ToolName = "fetchUserProfile"
	ToolUpdateIdentity ToolName = "updateUserProfile"
	ToolAppendProgress ToolName = "updateProgress"
	ToolAppendMemory   ToolName = "updateMemory"
	ToolFetchHistory   ToolName = "fetchHistoryContext"
)

// KnownTools lists every tool the dispatch contract implements.
var KnownTools = []ToolName{
	ToolFetchProfile,
	ToolUpdateIdentity,
	ToolAppendProgress,
	ToolAppendMemory,
	ToolFetchHistory,
}

func IsKnownTool(name ToolName) bool {
	for _, t := range KnownTools {
		if t == name {
			return true
		}
	}
	return false
}

type Timestamp = time.Time
