package participant

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

// Repository handles call participant persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new participant repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts the participants of a call in one statement
func (r *Repository) CreateBatch(ctx context.Context, participants []models.Participant) error {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.CreateBatch")
	defer span.End()

	if len(participants) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("participants")
	sb.Cols("id", "tenant_id", "call_id", "email", "display_name", "is_host", "created_at")
	for i := range participants {
		p := &participants[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.CreatedAt = now
		sb.Values(p.ID, p.TenantID, p.CallID, p.Email, p.DisplayName, p.IsHost, p.CreatedAt)
	}

	query, args := sb.Build()
	if _, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create participants")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create participants")
	}

	return nil
}

// ListByCall lists the participants of a single call
func (r *Repository) ListByCall(ctx context.Context, tenantID string, callID string) ([]models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.ListByCall")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id, tenant_id, call_id, email, display_name, is_host, created_at")
	sb.From("participants")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("call_id", callID),
	)
	sb.OrderBy("is_host DESC", "email ASC")

	query, args := sb.Build()
	var participants []models.Participant
	if err := uow.GetQuerier(ctx, r.db).SelectContext(ctx, &participants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list participants")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list participants")
	}

	return participants, nil
}

// ListByCalls loads participants for a page of calls keyed by call ID
func (r *Repository) ListByCalls(ctx context.Context, tenantID string, callIDs []string) (map[string][]models.Participant, error) {
	ctx, span := tracing.StartSpan(ctx, "participant.Repository.ListByCalls")
	defer span.End()

	result := make(map[string][]models.Participant, len(callIDs))
	if len(callIDs) == 0 {
		return result, nil
	}

	ids := make([]any, len(callIDs))
	for i, id := range callIDs {
		ids[i] = id
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id, tenant_id, call_id, email, display_name, is_host, created_at")
	sb.From("participants")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("call_id", ids...),
	)
	sb.OrderBy("call_id ASC", "is_host DESC", "email ASC")

	query, args := sb.Build()
	var participants []models.Participant
	if err := uow.GetQuerier(ctx, r.db).SelectContext(ctx, &participants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list participants")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list participants")
	}

	for _, p := range participants {
		result[p.CallID] = append(result[p.CallID], p)
	}

	return result, nil
}
