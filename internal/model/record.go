package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Record status constants.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusAbandoned: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusAbandoned
}

// NewID generates a new ULID string for use as a record identifier.
func NewID() string {
	return ulid.Make().String()
}

// Record is the persisted telemetry of one inference request. It holds the
// request's derived metadata and the outcome, never the image itself.
type Record struct {
	ID          string     `json:"id"`
	RequestID   uint64     `json:"request_id"`
	Model       string     `json:"model"`
	Status      string     `json:"status"`
	Prompt      string     `json:"prompt"`
	ImageWidth  int        `json:"image_width"`
	ImageHeight int        `json:"image_height"`
	Response    string     `json:"response,omitempty"`
	Error       string     `json:"error,omitempty"`
	DurationMS  *int64     `json:"duration_ms,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
