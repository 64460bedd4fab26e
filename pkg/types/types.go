// pkg/types/types.go
// Shared domain types for the lifecycle journal
//
// LEARN: These types cross package boundaries (shm and ipcsync produce
// them, internal/audit serializes them), so they live in a leaf package
// that imports nothing from the module.

package types

import "time"

// Action names a lifecycle step of a shared object.
type Action string

// Shared memory actions
const (
	ActionCreate  Action = "create"
	ActionClone   Action = "clone"
	ActionMap     Action = "map"
	ActionUnmap   Action = "unmap"
	ActionReceive Action = "receive"
	ActionSend    Action = "send"
)

// Semaphore actions
const (
	ActionSemCreate    Action = "sem_create"
	ActionSemAttach    Action = "sem_attach"
	ActionSemResurrect Action = "sem_resurrect"
	ActionSemDetach    Action = "sem_detach"
	ActionSemDestroy   Action = "sem_destroy"
	ActionSemRollback  Action = "sem_rollback"
)

// Object kinds
const (
	ObjectRegion    = "region"
	ObjectHandle    = "handle"
	ObjectSemaphore = "semaphore"
)

// AuditEntry is one line of the lifecycle journal.
//
// LEARN: Struct tags control JSON serialization. `omitempty` keeps
// entries short for actions that have no ref count or size.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	EventID   string    `json:"event_id"`
	PID       int       `json:"pid"`
	Action    Action    `json:"action"`
	Object    string    `json:"object"`
	Name      string    `json:"name,omitempty"`
	RefCount  int32     `json:"ref_count,omitempty"`
	Size      int       `json:"size,omitempty"`
	Success   bool      `json:"success"`
	ErrorCode string    `json:"error_code,omitempty"`
}

// HealthResponse is served by the diagnostics endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	PID       int       `json:"pid"`
	Handles   int64     `json:"handles_open"`
	Mappings  int64     `json:"mappings_active"`
}
