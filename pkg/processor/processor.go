// Package processor handles incoming normalized calls. This is the ingestion
// layer: it persists the call and its participants, runs the matcher, and
// either auto-resolves the call or parks it in the review queue.
package processor

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/uow"
)

// CallStore is the call persistence ingestion needs
type CallStore interface {
	GetByExternalID(ctx context.Context, tenantID string, provider string, externalID string) (*models.Call, error)
	Create(ctx context.Context, call *models.Call) (*models.Call, error)
	SetResolution(ctx context.Context, tenantID string, id string, accountID string, confidence *float64) error
	SetMatchConfidence(ctx context.Context, tenantID string, id string, confidence *float64) error
}

// ParticipantStore persists the participants of an ingested call
type ParticipantStore interface {
	CreateBatch(ctx context.Context, participants []models.Participant) error
}

// AccountStore loads the account set the matcher scores against
type AccountStore interface {
	ListRefs(ctx context.Context, tenantID string) ([]matching.AccountRef, error)
}

// AliasStore loads the tenant's alias table
type AliasStore interface {
	MapByTenant(ctx context.Context, tenantID string) (map[string]string, error)
}

// Emitter publishes auto-resolution events after commit
type Emitter interface {
	EmitCallAutoResolved(ctx context.Context, tenantID string, callID string, accountID string, confidence float64)
}

// Processor handles normalized call messages
type Processor struct {
	db              database.DB
	logger          ectologger.Logger
	engine          *matching.Engine
	callRepo        CallStore
	participantRepo ParticipantStore
	accountRepo     AccountStore
	aliasRepo       AliasStore
	emitter         Emitter
	autoResolve     bool
}

// NewProcessor creates a new call ingestion processor
func NewProcessor(
	cfg config.Config,
	db database.DB,
	logger ectologger.Logger,
	engine *matching.Engine,
	callRepo CallStore,
	participantRepo ParticipantStore,
	accountRepo AccountStore,
	aliasRepo AliasStore,
	emitter Emitter,
) *Processor {
	return &Processor{
		db:              db,
		logger:          logger,
		engine:          engine,
		callRepo:        callRepo,
		participantRepo: participantRepo,
		accountRepo:     accountRepo,
		aliasRepo:       aliasRepo,
		emitter:         emitter,
		autoResolve:     cfg.AutoResolveEnabled,
	}
}

// HandleMessage is the kafka.MessageHandler for the input topic. Returning
// an error leaves the message uncommitted for redelivery; ingestion is
// idempotent on (tenant, provider, external_id) so redelivery is safe.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	normalized := msg.Call
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   normalized.TenantID,
		"provider":    normalized.Provider,
		"external_id": normalized.ExternalID,
	})

	existing, err := p.callRepo.GetByExternalID(ctx, normalized.TenantID, normalized.Provider, normalized.ExternalID)
	if err != nil {
		return err
	}
	if existing != nil {
		log.WithFields(map[string]any{"call_id": existing.ID}).Debug("Call already ingested; skipping")
		return nil
	}

	ctxTx, tx, err := uow.Begin(ctx, p.db, p.logger, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctxTx)

	created, participants, err := p.persistCall(ctxTx, normalized)
	if err != nil {
		return err
	}

	aliases, err := p.aliasRepo.MapByTenant(ctxTx, normalized.TenantID)
	if err != nil {
		return err
	}
	refs, err := p.accountRepo.ListRefs(ctxTx, normalized.TenantID)
	if err != nil {
		return err
	}

	candidates := p.engine.FindCandidates(participants, aliases, refs)

	var autoResolved *models.Candidate
	if target, ok := p.engine.AutoResolveTarget(candidates); ok && p.autoResolve {
		// Auto-resolution keeps the confidence that justified it. It does
		// not learn aliases or contacts: only a human decision teaches.
		confidence := target.Confidence
		if err := p.callRepo.SetResolution(ctxTx, normalized.TenantID, created.ID, target.AccountID, &confidence); err != nil {
			return err
		}
		autoResolved = &target
	} else if best := matching.BestConfidence(candidates); best != nil {
		if err := p.callRepo.SetMatchConfidence(ctxTx, normalized.TenantID, created.ID, best); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		log.WithError(err).Error("Failed to commit call ingestion")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to ingest call")
	}

	if autoResolved != nil {
		log.WithFields(map[string]any{
			"call_id":    created.ID,
			"account_id": autoResolved.AccountID,
			"confidence": autoResolved.Confidence,
		}).Info("Auto-resolved call")
		p.emitter.EmitCallAutoResolved(ctx, normalized.TenantID, created.ID, autoResolved.AccountID, autoResolved.Confidence)
	} else {
		log.WithFields(map[string]any{
			"call_id":         created.ID,
			"candidate_count": len(candidates),
		}).Info("Queued call for review")
	}

	return nil
}

// persistCall writes the call and its participants against the context
// transaction
func (p *Processor) persistCall(ctx context.Context, normalized *kafka.NormalizedCallMessage) (*models.Call, []models.Participant, error) {
	created, err := p.callRepo.Create(ctx, &models.Call{
		TenantID:   normalized.TenantID,
		ExternalID: normalized.ExternalID,
		Provider:   normalized.Provider,
		Title:      normalized.Title,
		OccurredAt: normalized.OccurredAt.UTC(),
	})
	if err != nil {
		return nil, nil, err
	}

	participants := make([]models.Participant, 0, len(normalized.Participants))
	for _, party := range normalized.Participants {
		participant := models.Participant{
			TenantID: normalized.TenantID,
			CallID:   created.ID,
			IsHost:   party.IsHost,
		}
		if email := normalizers.Email(party.Email); email != "" {
			participant.Email = &email
		}
		if party.Name != "" {
			name := party.Name
			participant.DisplayName = &name
		}
		participants = append(participants, participant)
	}

	if err := p.participantRepo.CreateBatch(ctx, participants); err != nil {
		return nil, nil, err
	}

	return created, participants, nil
}
