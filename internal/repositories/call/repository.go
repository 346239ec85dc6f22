package call

import (
	"context"
	"fmt"
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

const columns = "id, tenant_id, external_id, provider, title, occurred_at, account_id, dismissed, match_confidence, resolved_at, created_at, updated_at"

// QueueQuery are the list parameters for the review queue. Callers must
// normalize them first (see queue.Service); the repository trusts them.
type QueueQuery struct {
	Page      int
	PageSize  int
	Search    string
	SortBy    string // "occurred_at" or "match_confidence"
	SortOrder string // "asc" or "desc"
}

// Repository handles call persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new call repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new call
func (r *Repository) Create(ctx context.Context, call *models.Call) (*models.Call, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.Create")
	defer span.End()

	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	call.CreatedAt = time.Now().UTC()
	call.UpdatedAt = call.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("calls")
	sb.Cols("id", "tenant_id", "external_id", "provider", "title", "occurred_at", "account_id", "dismissed", "match_confidence", "resolved_at", "created_at", "updated_at")
	sb.Values(call.ID, call.TenantID, call.ExternalID, call.Provider, call.Title, call.OccurredAt, call.AccountID, call.Dismissed, call.MatchConfidence, call.ResolvedAt, call.CreatedAt, call.UpdatedAt)

	query, args := sb.Build()
	if _, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"call_id": call.ID}).Error("Failed to create call")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create call")
	}

	return call, nil
}

// Get retrieves a call by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.Call, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("calls")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var call models.Call
	if err := uow.GetQuerier(ctx, r.db).GetContext(ctx, &call, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("call %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get call")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get call")
	}

	return &call, nil
}

// GetByExternalID retrieves a call by its provider identity. Ingestion uses
// this to make redelivered messages a no-op; nil means no such call.
func (r *Repository) GetByExternalID(ctx context.Context, tenantID string, provider string, externalID string) (*models.Call, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.GetByExternalID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("calls")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("provider", provider),
		sb.Equal("external_id", externalID),
	)

	query, args := sb.Build()
	var call models.Call
	if err := uow.GetQuerier(ctx, r.db).GetContext(ctx, &call, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get call by external id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get call")
	}

	return &call, nil
}

// GetForUpdate retrieves a call by ID and locks its row for the duration of
// the context transaction. Used by resolution so two concurrent resolves of
// the same call serialize instead of both reading it as unresolved.
func (r *Repository) GetForUpdate(ctx context.Context, tenantID string, id string) (*models.Call, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.GetForUpdate")
	defer span.End()

	query := `
		SELECT ` + columns + `
		FROM calls
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`

	var call models.Call
	if err := uow.GetQuerier(ctx, r.db).GetContext(ctx, &call, query, id, tenantID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("call %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock call")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get call")
	}

	return &call, nil
}

// ListQueue lists calls in the review queue: unresolved and not dismissed.
// Ordering is deterministic; ties in the sort key break by id ascending so
// pagination is stable.
func (r *Repository) ListQueue(ctx context.Context, tenantID string, q QueueQuery) ([]models.Call, int, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.ListQueue")
	defer span.End()

	where := func(sb *sqlbuilder.SelectBuilder) []string {
		conds := []string{
			sb.Equal("tenant_id", tenantID),
			sb.IsNull("account_id"),
			sb.Equal("dismissed", false),
		}
		if q.Search != "" {
			conds = append(conds, sb.ILike("title", "%"+q.Search+"%"))
		}
		return conds
	}

	countBuilder := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countBuilder.Select("COUNT(*)")
	countBuilder.From("calls")
	countBuilder.Where(where(countBuilder)...)

	query, args := countBuilder.Build()
	var total int
	if err := uow.GetQuerier(ctx, r.db).GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count review queue")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list review queue")
	}

	direction := "ASC"
	if q.SortOrder == "desc" {
		direction = "DESC"
	}
	orderBy := fmt.Sprintf("occurred_at %s", direction)
	if q.SortBy == "match_confidence" {
		orderBy = fmt.Sprintf("match_confidence %s NULLS LAST", direction)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("calls")
	sb.Where(where(sb)...)
	sb.OrderBy(orderBy, "id ASC")
	sb.Limit(q.PageSize)
	sb.Offset((q.Page - 1) * q.PageSize)

	query, args = sb.Build()
	var calls []models.Call
	if err := uow.GetQuerier(ctx, r.db).SelectContext(ctx, &calls, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list review queue")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list review queue")
	}

	return calls, total, nil
}

// QueueStats aggregates the review queue. Confidence figures cover queued
// calls only: dismissed calls are out of the active queue and excluded.
func (r *Repository) QueueStats(ctx context.Context, tenantID string, windowStart time.Time) (*models.QueueStats, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.QueueStats")
	defer span.End()

	query := `
		SELECT
			COUNT(*) FILTER (WHERE account_id IS NULL AND dismissed = false) AS queued_count,
			COUNT(*) FILTER (WHERE account_id IS NOT NULL AND resolved_at >= $2) AS resolved_in_window,
			AVG(match_confidence) FILTER (WHERE account_id IS NULL AND dismissed = false) AS avg_confidence,
			MIN(match_confidence) FILTER (WHERE account_id IS NULL AND dismissed = false) AS min_confidence,
			MIN(occurred_at) FILTER (WHERE account_id IS NULL AND dismissed = false) AS oldest_queued_at
		FROM calls
		WHERE tenant_id = $1
	`

	var row struct {
		QueuedCount      int        `db:"queued_count"`
		ResolvedInWindow int        `db:"resolved_in_window"`
		AvgConfidence    *float64   `db:"avg_confidence"`
		MinConfidence    *float64   `db:"min_confidence"`
		OldestQueuedAt   *time.Time `db:"oldest_queued_at"`
	}
	if err := uow.GetQuerier(ctx, r.db).GetContext(ctx, &row, query, tenantID, windowStart); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to aggregate queue stats")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get queue stats")
	}

	return &models.QueueStats{
		QueuedCount:      row.QueuedCount,
		ResolvedInWindow: row.ResolvedInWindow,
		AvgConfidence:    row.AvgConfidence,
		MinConfidence:    row.MinConfidence,
		WindowStart:      windowStart,
		OldestQueuedAt:   row.OldestQueuedAt,
	}, nil
}

// SetResolution assigns a call to an account. A nil confidence stores NULL:
// manual resolution discards the heuristic score because the human decision
// supersedes it. Auto-resolution passes the engine's confidence through.
// Resolving always clears the dismissed flag.
func (r *Repository) SetResolution(ctx context.Context, tenantID string, id string, accountID string, confidence *float64) error {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.SetResolution")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("calls")
	sb.Set(
		sb.Assign("account_id", accountID),
		sb.Assign("match_confidence", confidence),
		sb.Assign("dismissed", false),
		sb.Assign("resolved_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"call_id": id}).Error("Failed to resolve call")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve call")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("call %s not found", id))
	}

	return nil
}

// SetMatchConfidence records the engine's best candidate confidence on an
// unresolved call, for queue display and stats.
func (r *Repository) SetMatchConfidence(ctx context.Context, tenantID string, id string, confidence *float64) error {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.SetMatchConfidence")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("calls")
	sb.Set(
		sb.Assign("match_confidence", confidence),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("account_id"),
	)

	query, args := sb.Build()
	if _, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to set match confidence")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set match confidence")
	}

	return nil
}

// Dismiss hides queued calls from review. Only unresolved calls can be
// dismissed; the returned count tells the caller whether every requested
// call actually was one.
func (r *Repository) Dismiss(ctx context.Context, tenantID string, ids []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.Dismiss")
	defer span.End()

	if len(ids) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("calls")
	sb.Set(
		sb.Assign("dismissed", true),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("id", idsToAny(ids)...),
		sb.IsNull("account_id"),
	)

	query, args := sb.Build()
	result, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to dismiss calls")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to dismiss calls")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// Reassign re-points every call on the source account to the target.
// Runs inside the merge transaction.
func (r *Repository) Reassign(ctx context.Context, tenantID string, sourceID string, targetID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.Reassign")
	defer span.End()

	query := `
		UPDATE calls
		SET account_id = $1, updated_at = $2
		WHERE tenant_id = $3 AND account_id = $4
	`

	result, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, targetID, time.Now().UTC(), tenantID, sourceID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to reassign calls")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign calls")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// Name implements merging.Reassigner
func (r *Repository) Name() string {
	return "calls"
}

// CountByAccount counts the calls attached to an account
func (r *Repository) CountByAccount(ctx context.Context, tenantID string, accountID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "call.Repository.CountByAccount")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("calls")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("account_id", accountID),
	)

	query, args := sb.Build()
	var count int64
	if err := uow.GetQuerier(ctx, r.db).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count calls by account")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count calls")
	}

	return count, nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
