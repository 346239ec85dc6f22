package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/uow"
)

const columns = "id, tenant_id, name, normalized_name, primary_domain, last_synced_at, created_at, updated_at"

// Repository handles CRM account persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new account repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new account. Returns a conflict when another account in
// the tenant already has the same normalized name.
func (r *Repository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Create")
	defer span.End()

	existing, err := r.GetByNormalizedName(ctx, account.TenantID, account.NormalizedName)
	if err != nil && httperror.GetStatusCode(err) != http.StatusNotFound {
		return nil, err
	}
	if existing != nil {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("account %q already exists", existing.Name))
	}

	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.CreatedAt = time.Now().UTC()
	account.UpdatedAt = account.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("accounts")
	sb.Cols("id", "tenant_id", "name", "normalized_name", "primary_domain", "last_synced_at", "created_at", "updated_at")
	sb.Values(account.ID, account.TenantID, account.Name, account.NormalizedName, account.PrimaryDomain, account.LastSyncedAt, account.CreatedAt, account.UpdatedAt)

	query, args := sb.Build()
	if _, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		// Two concurrent creates can both pass the name check; the loser's
		// constraint violation is still a duplicate, not a server fault.
		if isUniqueViolation(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("account %q already exists", account.Name))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"account_id": account.ID}).Error("Failed to create account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create account")
	}

	return account, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Get retrieves an account by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("accounts")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var account models.Account
	if err := uow.GetQuerier(ctx, r.db).GetContext(ctx, &account, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get account")
	}

	return &account, nil
}

// GetForShare retrieves an account and takes a KEY SHARE lock so a
// concurrent merge cannot delete it before the caller's transaction commits.
func (r *Repository) GetForShare(ctx context.Context, tenantID string, id string) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.GetForShare")
	defer span.End()

	query := `
		SELECT ` + columns + `
		FROM accounts
		WHERE id = $1 AND tenant_id = $2
		FOR KEY SHARE
	`

	var account models.Account
	if err := uow.GetQuerier(ctx, r.db).GetContext(ctx, &account, query, id, tenantID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get account")
	}

	return &account, nil
}

// GetByNormalizedName retrieves an account by its normalized name
func (r *Repository) GetByNormalizedName(ctx context.Context, tenantID string, normalizedName string) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.GetByNormalizedName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("accounts")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("normalized_name", normalizedName),
	)

	query, args := sb.Build()
	var account models.Account
	if err := uow.GetQuerier(ctx, r.db).GetContext(ctx, &account, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %q not found", normalizedName))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get account by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get account")
	}

	return &account, nil
}

// ListRefs loads the tenant's full account set in the shape the matching
// engine consumes
func (r *Repository) ListRefs(ctx context.Context, tenantID string) ([]matching.AccountRef, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.ListRefs")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id, name, normalized_name, primary_domain, last_synced_at")
	sb.From("accounts")
	sb.Where(sb.Equal("tenant_id", tenantID))

	query, args := sb.Build()
	var refs []matching.AccountRef
	if err := uow.GetQuerier(ctx, r.db).SelectContext(ctx, &refs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list account refs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list accounts")
	}

	return refs, nil
}

// Search finds accounts by case-insensitive name substring, annotated with
// how many calls each account already holds so reviewers can tell active
// accounts from empty ones.
func (r *Repository) Search(ctx context.Context, tenantID string, term string, limit int) ([]models.AccountSearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Search")
	defer span.End()

	query := `
		SELECT a.id, a.name, a.primary_domain,
		       (SELECT COUNT(*) FROM calls c WHERE c.tenant_id = a.tenant_id AND c.account_id = a.id) AS call_count
		FROM accounts a
		WHERE a.tenant_id = $1
		  AND (a.name ILIKE $2 OR a.normalized_name ILIKE $2 OR a.primary_domain ILIKE $2)
		ORDER BY a.name ASC
		LIMIT $3
	`

	var results []models.AccountSearchResult
	if err := uow.GetQuerier(ctx, r.db).SelectContext(ctx, &results, query, tenantID, "%"+term+"%", limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search accounts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search accounts")
	}

	return results, nil
}

// LockPair locks both accounts of a merge in id order so two merges touching
// the same accounts cannot deadlock. Returns them keyed by their IDs.
func (r *Repository) LockPair(ctx context.Context, tenantID string, firstID string, secondID string) (map[string]*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.LockPair")
	defer span.End()

	query := `
		SELECT ` + columns + `
		FROM accounts
		WHERE tenant_id = $1 AND id IN ($2, $3)
		ORDER BY id ASC
		FOR UPDATE
	`

	var accounts []models.Account
	if err := uow.GetQuerier(ctx, r.db).SelectContext(ctx, &accounts, query, tenantID, firstID, secondID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to lock accounts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock accounts")
	}

	result := make(map[string]*models.Account, len(accounts))
	for i := range accounts {
		result[accounts[i].ID] = &accounts[i]
	}

	return result, nil
}

// Delete removes an account row. Used by merge after everything attached to
// the source has been moved.
func (r *Repository) Delete(ctx context.Context, tenantID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("accounts")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	result, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"account_id": id}).Error("Failed to delete account")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete account")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %s not found", id))
	}

	return nil
}
