package merging

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/uow"
)

// AccountStore is the account persistence a merge needs
type AccountStore interface {
	LockPair(ctx context.Context, tenantID string, firstID string, secondID string) (map[string]*models.Account, error)
	Delete(ctx context.Context, tenantID string, id string) error
}

// CallReassigner re-points the source account's calls onto the target
type CallReassigner interface {
	Reassign(ctx context.Context, tenantID string, sourceID string, targetID string) (int64, error)
}

// ContactMigrator moves contacts between accounts, discarding duplicates
type ContactMigrator interface {
	MigrateToAccount(ctx context.Context, tenantID string, sourceID string, targetID string) (int64, int64, error)
}

// AliasMigrator re-points domain aliases between accounts
type AliasMigrator interface {
	MigrateToAccount(ctx context.Context, tenantID string, sourceID string, targetID string) (int64, error)
}

// AuditStore persists the merge audit record inside the merge transaction
type AuditStore interface {
	Create(ctx context.Context, audit *models.MergeAudit) (*models.MergeAudit, error)
}

// Emitter publishes the merged event after commit
type Emitter interface {
	EmitAccountMerged(ctx context.Context, result *models.MergeResult)
}

// Engine consolidates two accounts into one. Everything the source account
// owns moves to the target in a single transaction; the source row is gone
// when the transaction commits, leaving only the audit record.
type Engine struct {
	db          database.DB
	logger      ectologger.Logger
	accountRepo AccountStore
	callRepo    CallReassigner
	contactRepo ContactMigrator
	aliasRepo   AliasMigrator
	auditRepo   AuditStore
	registry    *Registry
	emitter     Emitter
}

// NewEngine creates a new merge engine
func NewEngine(
	db database.DB,
	logger ectologger.Logger,
	accountRepo AccountStore,
	callRepo CallReassigner,
	contactRepo ContactMigrator,
	aliasRepo AliasMigrator,
	auditRepo AuditStore,
	registry *Registry,
	emitter Emitter,
) *Engine {
	return &Engine{
		db:          db,
		logger:      logger,
		accountRepo: accountRepo,
		callRepo:    callRepo,
		contactRepo: contactRepo,
		aliasRepo:   aliasRepo,
		auditRepo:   auditRepo,
		registry:    registry,
		emitter:     emitter,
	}
}

// ValidateMergeRequest rejects merges that can never make sense before any
// locking happens
func ValidateMergeRequest(tenantID, sourceID, targetID string) error {
	if tenantID == "" || sourceID == "" || targetID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "tenant_id, source_account_id and target_account_id are required")
	}
	if sourceID == targetID {
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, "an account cannot be merged into itself")
	}
	return nil
}

// MergeAccounts merges the source account into the target. Both account
// rows are locked up front in id order; a re-invocation of a completed
// merge finds no source row and fails NotFound, so the operation cannot
// run twice.
func (e *Engine) MergeAccounts(ctx context.Context, tenantID string, sourceID string, targetID string) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.MergeAccounts")
	defer span.End()

	if err := ValidateMergeRequest(tenantID, sourceID, targetID); err != nil {
		return nil, err
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":         tenantID,
		"source_account_id": sourceID,
		"target_account_id": targetID,
	})

	ctxTx, tx, err := uow.Begin(ctx, e.db, e.logger, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	locked, err := e.accountRepo.LockPair(ctxTx, tenantID, sourceID, targetID)
	if err != nil {
		return nil, err
	}
	source, ok := locked[sourceID]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "source account not found")
	}
	target, ok := locked[targetID]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "target account not found")
	}

	result := &models.MergeResult{
		SourceAccountID: source.ID,
		TargetAccountID: target.ID,
		SourceName:      source.Name,
		TargetName:      target.Name,
		Reassigned:      make(map[string]int64),
		TenantID:        tenantID,
	}

	if result.MovedCalls, err = e.callRepo.Reassign(ctxTx, tenantID, sourceID, targetID); err != nil {
		return nil, err
	}

	if result.MovedContacts, result.DiscardedContacts, err = e.contactRepo.MigrateToAccount(ctxTx, tenantID, sourceID, targetID); err != nil {
		return nil, err
	}

	if result.MovedAliases, err = e.aliasRepo.MigrateToAccount(ctxTx, tenantID, sourceID, targetID); err != nil {
		return nil, err
	}

	for _, reassigner := range e.registry.All() {
		moved, err := reassigner.Reassign(ctxTx, tenantID, sourceID, targetID)
		if err != nil {
			return nil, err
		}
		result.Reassigned[reassigner.Name()] = moved
	}

	audit := &models.MergeAudit{
		TenantID:          tenantID,
		SourceAccountID:   source.ID,
		TargetAccountID:   target.ID,
		SourceName:        source.Name,
		MovedCalls:        result.MovedCalls,
		MovedContacts:     result.MovedContacts,
		DiscardedContacts: result.DiscardedContacts,
		MovedAliases:      result.MovedAliases,
		Reassigned:        database.JSONB[map[string]int64]{Data: result.Reassigned},
	}
	if _, err := e.auditRepo.Create(ctxTx, audit); err != nil {
		return nil, err
	}

	if err := e.accountRepo.Delete(ctxTx, tenantID, sourceID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		log.WithError(err).Error("Failed to commit merge")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge accounts")
	}

	log.WithFields(map[string]any{
		"moved_calls":        result.MovedCalls,
		"moved_contacts":     result.MovedContacts,
		"discarded_contacts": result.DiscardedContacts,
		"moved_aliases":      result.MovedAliases,
	}).Info("Merged accounts")

	e.emitter.EmitAccountMerged(ctx, result)

	return result, nil
}
