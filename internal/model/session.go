package model

import "time"

// SessionStatus represents the lifecycle state of an ingestion session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Session is the persisted record of one ingestion run: the frozen search
// criteria, the run status, and its counters. Once a session reaches a
// terminal status it is a read-only historical record.
type Session struct {
	ID           int64          `json:"id"`
	Criteria     SearchCriteria `json:"criteria"`
	Source       string         `json:"source"`
	Status       SessionStatus  `json:"status"`
	Discovered   int            `json:"discovered"`
	Extracted    int            `json:"extracted"`
	Persisted    int            `json:"persisted"`
	Skipped      int            `json:"skipped"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// RunStats is the statistics object returned to callers for every run,
// including cancelled and failed ones.
type RunStats struct {
	SessionID  int64 `json:"session_id"`
	Discovered int   `json:"discovered"`
	Extracted  int   `json:"extracted"`
	Persisted  int   `json:"persisted"`
	Skipped    int   `json:"skipped"`
}
