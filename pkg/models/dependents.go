package models

import (
	"encoding/json"
	"time"
)

// NarrativeDocument is a generated account narrative derived from calls
type NarrativeDocument struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	AccountID string    `json:"account_id" db:"account_id"`
	CallID    *string   `json:"call_id,omitempty" db:"call_id"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PublishedPage is a publicly published rendering of a narrative document
type PublishedPage struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	AccountID   string    `json:"account_id" db:"account_id"`
	DocumentID  string    `json:"document_id" db:"document_id"`
	Slug        string    `json:"slug" db:"slug"`
	PublishedAt time.Time `json:"published_at" db:"published_at"`
}

// CRMEvent is a synced CRM activity record attached to an account
type CRMEvent struct {
	ID         string          `json:"id" db:"id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	AccountID  string          `json:"account_id" db:"account_id"`
	EventType  string          `json:"event_type" db:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty" db:"payload"`
	OccurredAt time.Time       `json:"occurred_at" db:"occurred_at"`
}
