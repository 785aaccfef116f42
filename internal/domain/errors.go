package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrConfiguration marks a malformed agent graph. It must stop startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnsafeGraph marks a graph where the safety node is not reachable
	// from every agent within two handoffs.
	ErrUnsafeGraph = errors.New("unsafe agent graph")

	ErrIllegalHandoff = errors.New("illegal handoff")
	ErrAgentNotFound  = errors.New("agent not found")

	ErrUnknownTool     = errors.New("unknown tool")
	ErrToolNotAllowed  = errors.New("tool not allowed for agent")
	ErrInvalidToolArgs = errors.New("invalid tool arguments")

	ErrMalformedEvent = errors.New("malformed transcript event")

	ErrStorageRead  = errors.New("storage read failed")
	ErrStorageWrite = errors.New("storage write failed")

	ErrDuplicateMessage = errors.New("duplicate message")
	ErrEmptyMessage     = errors.New("empty message")
	ErrInvalidEntry     = errors.New("invalid timeline entry")
	ErrNoScenario       = errors.New("no active scenario")
)

// StorageError wraps a persistence boundary failure. errors.Is matches both
// the Kind (ErrStorageRead / ErrStorageWrite) and the underlying cause.
type StorageError struct {
	Op   string
	Kind error
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func ReadError(op string, err error) error {
	return &StorageError{Op: op, Kind: ErrStorageRead, Err: err}
}

func WriteError(op string, err error) error {
	return &StorageError{Op: op, Kind: ErrStorageWrite, Err: err}
}
