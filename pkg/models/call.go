package models

import "time"

// CallState describes which of the three lifecycle states a call is in.
// A call is always in exactly one of them.
type CallState string

const (
	CallStateResolved  CallState = "resolved"
	CallStateQueued    CallState = "queued"
	CallStateDismissed CallState = "dismissed"
)

// Call represents a recorded external meeting awaiting or holding an account association
type Call struct {
	ID              string     `json:"id" db:"id"`
	TenantID        string     `json:"tenant_id" db:"tenant_id"`
	ExternalID      string     `json:"external_id" db:"external_id"`
	Provider        string     `json:"provider" db:"provider"`
	Title           string     `json:"title" db:"title"`
	OccurredAt      time.Time  `json:"occurred_at" db:"occurred_at"`
	AccountID       *string    `json:"account_id,omitempty" db:"account_id"`
	Dismissed       bool       `json:"dismissed" db:"dismissed"`
	MatchConfidence *float64   `json:"match_confidence,omitempty" db:"match_confidence"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// State returns the call's lifecycle state. A resolved call is never
// dismissed: resolving clears the dismissed flag.
func (c *Call) State() CallState {
	if c.AccountID != nil {
		return CallStateResolved
	}
	if c.Dismissed {
		return CallStateDismissed
	}
	return CallStateQueued
}

// Participant is a person on a call. Immutable once created.
type Participant struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	CallID      string    `json:"call_id" db:"call_id"`
	Email       *string   `json:"email,omitempty" db:"email"`
	DisplayName *string   `json:"display_name,omitempty" db:"display_name"`
	IsHost      bool      `json:"is_host" db:"is_host"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// QueueItem is a queued call annotated with its current match candidates.
// Candidates are recomputed on every read so alias learning shows up
// immediately.
type QueueItem struct {
	Call         Call          `json:"call"`
	Participants []Participant `json:"participants"`
	Candidates   []Candidate   `json:"candidates"`
}

// QueueListResponse is the paginated review queue response
type QueueListResponse struct {
	Items      []QueueItem `json:"items"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}

// QueueStats summarizes the review queue for a tenant. Confidence figures
// cover queued calls only; dismissed calls are excluded.
type QueueStats struct {
	QueuedCount      int        `json:"queued_count"`
	ResolvedInWindow int        `json:"resolved_in_window"`
	AvgConfidence    *float64   `json:"avg_confidence,omitempty"`
	MinConfidence    *float64   `json:"min_confidence,omitempty"`
	WindowStart      time.Time  `json:"window_start"`
	OldestQueuedAt   *time.Time `json:"oldest_queued_at,omitempty"`
}
