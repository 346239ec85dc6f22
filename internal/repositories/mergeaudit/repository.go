package mergeaudit

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/uow"
)

// Repository persists merge audit records
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge audit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create writes the audit row inside the merge transaction
func (r *Repository) Create(ctx context.Context, audit *models.MergeAudit) (*models.MergeAudit, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeaudit.Repository.Create")
	defer span.End()

	if audit.ID == "" {
		audit.ID = uuid.New().String()
	}
	audit.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_audits")
	sb.Cols("id", "tenant_id", "source_account_id", "target_account_id", "source_name", "moved_calls", "moved_contacts", "discarded_contacts", "moved_aliases", "reassigned", "created_at")
	sb.Values(audit.ID, audit.TenantID, audit.SourceAccountID, audit.TargetAccountID, audit.SourceName, audit.MovedCalls, audit.MovedContacts, audit.DiscardedContacts, audit.MovedAliases, audit.Reassigned, audit.CreatedAt)

	query, args := sb.Build()
	if _, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_account_id": audit.SourceAccountID}).Error("Failed to create merge audit")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge audit")
	}

	return audit, nil
}

// ListByAccount lists the merges an account was the target of
func (r *Repository) ListByAccount(ctx context.Context, tenantID string, accountID string) ([]models.MergeAudit, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeaudit.Repository.ListByAccount")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id, tenant_id, source_account_id, target_account_id, source_name, moved_calls, moved_contacts, discarded_contacts, moved_aliases, reassigned, created_at")
	sb.From("merge_audits")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("target_account_id", accountID),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var audits []models.MergeAudit
	if err := uow.GetQuerier(ctx, r.db).SelectContext(ctx, &audits, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge audits")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge audits")
	}

	return audits, nil
}
