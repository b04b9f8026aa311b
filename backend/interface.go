// Package backend defines the task model and the repository contract for
// the remote todo API, shared by the list engine and its consumers.
package backend

import (
	"context"
	"strings"
	"time"
)

// MaxBodyLength is the longest task body the service accepts.
const MaxBodyLength = 500

// Priority represents the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority normalizes a priority string. An empty string is valid and
// means "unset" (the server treats it as medium).
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", true
	case "low":
		return PriorityLow, true
	case "medium":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	}
	return "", false
}

// Status filters a task listing by completion state.
type Status string

const (
	StatusAll       Status = "all"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// ParseStatus normalizes a status filter string.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return StatusAll, true
	case "active":
		return StatusActive, true
	case "completed", "done":
		return StatusCompleted, true
	}
	return "", false
}

// Task represents a todo item as the server reports it.
type Task struct {
	ID          string
	Body        string
	Completed   bool
	Priority    Priority
	DueDate     *time.Time
	StarredBy   []string // user IDs that starred this task; server-authoritative
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// StarredByUser reports whether the server lists userID in the task's
// starredBy set. The local wishlist overlay is applied by the engine, not here.
func (t *Task) StarredByUser(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range t.StarredBy {
		if id == userID {
			return true
		}
	}
	return false
}

// User represents an authenticated account.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuthResponse is the result of a successful login or registration.
type AuthResponse struct {
	Token string
	User  User
}

// Query holds the server-side listing filters. Server filtering is
// advisory; callers re-apply every filter client-side.
type Query struct {
	Search   string
	Status   Status
	Priority Priority
}

// CreatePayload holds the fields for a new task.
type CreatePayload struct {
	Body     string
	Priority Priority
	DueDate  *time.Time
}

// Updates holds a partial task update. The zero value is meaningful: an
// empty update is the wire-level "toggle completed" request, so repositories
// must send exactly what they are given and never infer fields.
type Updates struct {
	Body         *string
	Priority     *Priority
	DueDate      *time.Time
	ClearDueDate bool
}

// IsEmpty reports whether the update carries no fields, which the server
// interprets as a completion toggle.
func (u Updates) IsEmpty() bool {
	return u.Body == nil && u.Priority == nil && u.DueDate == nil && !u.ClearDueDate
}

// StarResult classifies the outcome of a star request.
type StarResult int

const (
	// StarSuccess means the server accepted the star change.
	StarSuccess StarResult = iota
	// StarUnauthorized means the token was missing, expired or rejected.
	StarUnauthorized
	// StarUnsupported means this host rejected the star action as
	// permission-denied; the endpoint is treated as absent from then on.
	StarUnsupported
	// StarFailure covers every other error, network-level included.
	StarFailure
)

// String returns the result name for logs.
func (r StarResult) String() string {
	switch r {
	case StarSuccess:
		return "success"
	case StarUnauthorized:
		return "unauthorized"
	case StarUnsupported:
		return "unsupported"
	default:
		return "failure"
	}
}

// Repository performs task CRUD and star operations against the remote
// store. All methods honor the context and report typed errors; none of
// them enforces authentication, which is a caller responsibility.
type Repository interface {
	List(ctx context.Context, q Query) ([]Task, error)
	Create(ctx context.Context, p CreatePayload) (*Task, error)
	Patch(ctx context.Context, id string, u Updates) (*Task, error)
	Delete(ctx context.Context, id string) error
	SetStar(ctx context.Context, id string, desired bool) (StarResult, error)
}
