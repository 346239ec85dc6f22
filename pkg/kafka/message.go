package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// NormalizedCallMessage is the shape call ingestion produces on the input
// topic: one recorded call with its participant roster, already normalized
// to a provider-independent form.
type NormalizedCallMessage struct {
	TenantID     string                `json:"tenant_id"`
	ExternalID   string                `json:"external_id"`
	Provider     string                `json:"provider"`
	Title        string                `json:"title"`
	OccurredAt   time.Time             `json:"occurred_at"`
	Participants []NormalizedCallParty `json:"participants"`
}

// NormalizedCallParty is one attendee of a normalized call
type NormalizedCallParty struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	IsHost bool   `json:"is_host"`
}

// Validate checks the fields the pipeline cannot proceed without
func (m *NormalizedCallMessage) Validate() error {
	if m.TenantID == "" {
		return fmt.Errorf("normalized call missing tenant_id")
	}
	if m.ExternalID == "" {
		return fmt.Errorf("normalized call missing external_id")
	}
	if m.Provider == "" {
		return fmt.Errorf("normalized call missing provider")
	}
	if m.OccurredAt.IsZero() {
		return fmt.Errorf("normalized call missing occurred_at")
	}
	return nil
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	Call *NormalizedCallMessage
}

// ParseCall parses the message value as a normalized call
func (m *IncomingMessage) ParseCall() error {
	var msg NormalizedCallMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	m.Call = &msg
	return nil
}

// GetTenantID returns the tenant ID from the parsed call, falling back to
// the message header
func (m *IncomingMessage) GetTenantID() string {
	if m.Call != nil && m.Call.TenantID != "" {
		return m.Call.TenantID
	}
	return m.Headers["tenant_id"]
}
