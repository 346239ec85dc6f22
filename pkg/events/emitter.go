// Package events handles event emission for resolution lifecycle changes
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Event types published on the output topic
const (
	EventTypeCallResolved     = "call.resolved"
	EventTypeCallAutoResolved = "call.auto_resolved"
	EventTypeCallsDismissed   = "calls.dismissed"
	EventTypeAccountCreated   = "account.created"
	EventTypeAccountMerged    = "account.merged"
)

// Emitter publishes resolution events. Callers invoke it strictly after
// their transaction commits; an emit failure is logged and swallowed so a
// committed state change is never reported as failed.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitCallResolved emits an event for a manually resolved call
func (e *Emitter) EmitCallResolved(ctx context.Context, tenantID string, callID string, accountID string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCallResolved")
	defer span.End()

	e.publish(ctx, &kafka.ResolutionEvent{
		EventType: EventTypeCallResolved,
		TenantID:  tenantID,
		CallID:    callID,
		AccountID: accountID,
	})
}

// EmitCallAutoResolved emits an event for a call the matcher resolved on its
// own, with the confidence that justified it
func (e *Emitter) EmitCallAutoResolved(ctx context.Context, tenantID string, callID string, accountID string, confidence float64) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCallAutoResolved")
	defer span.End()

	e.publish(ctx, &kafka.ResolutionEvent{
		EventType:  EventTypeCallAutoResolved,
		TenantID:   tenantID,
		CallID:     callID,
		AccountID:  accountID,
		Confidence: &confidence,
	})
}

// EmitCallsDismissed emits one event per dismissed call
func (e *Emitter) EmitCallsDismissed(ctx context.Context, tenantID string, callIDs []string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitCallsDismissed")
	defer span.End()

	batch := make([]*kafka.ResolutionEvent, len(callIDs))
	for i, callID := range callIDs {
		batch[i] = &kafka.ResolutionEvent{
			EventType: EventTypeCallsDismissed,
			TenantID:  tenantID,
			CallID:    callID,
		}
	}

	if err := e.producer.PublishResolutionEvents(ctx, batch); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit calls.dismissed events")
	}
}

// EmitAccountCreated emits an event for an account created from a call
func (e *Emitter) EmitAccountCreated(ctx context.Context, account *models.Account, callID string) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAccountCreated")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"name":           account.Name,
		"primary_domain": account.PrimaryDomain,
	})

	e.publish(ctx, &kafka.ResolutionEvent{
		EventType: EventTypeAccountCreated,
		TenantID:  account.TenantID,
		CallID:    callID,
		AccountID: account.ID,
		Data:      data,
	})
}

// EmitAccountMerged emits an event describing a completed merge
func (e *Emitter) EmitAccountMerged(ctx context.Context, result *models.MergeResult) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAccountMerged")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version":     SchemaVersion,
		"source_account_id":  result.SourceAccountID,
		"source_name":        result.SourceName,
		"target_name":        result.TargetName,
		"moved_calls":        result.MovedCalls,
		"moved_contacts":     result.MovedContacts,
		"discarded_contacts": result.DiscardedContacts,
		"moved_aliases":      result.MovedAliases,
		"reassigned":         result.Reassigned,
	})

	e.publish(ctx, &kafka.ResolutionEvent{
		EventType: EventTypeAccountMerged,
		TenantID:  result.TenantID,
		AccountID: result.TargetAccountID,
		Data:      data,
	})
}

func (e *Emitter) publish(ctx context.Context, event *kafka.ResolutionEvent) {
	if err := e.producer.PublishResolutionEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
		}).Error("Failed to emit resolution event")
	}
}
