package domainalias

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

// Repository handles email domain alias persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new domain alias repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByDomain retrieves the alias for a domain, if one exists
func (r *Repository) GetByDomain(ctx context.Context, tenantID string, domain string) (*models.AccountDomainAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "domainalias.Repository.GetByDomain")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id, tenant_id, account_id, domain, source, created_at")
	sb.From("account_domain_aliases")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("domain", domain),
	)

	query, args := sb.Build()
	var alias models.AccountDomainAlias
	if err := uow.GetQuerier(ctx, r.db).GetContext(ctx, &alias, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no alias for domain %s", domain))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get domain alias")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get domain alias")
	}

	return &alias, nil
}

// MapByTenant loads the tenant's full alias table keyed by domain, in the
// shape the matching engine consumes
func (r *Repository) MapByTenant(ctx context.Context, tenantID string) (map[string]string, error) {
	ctx, span := tracing.StartSpan(ctx, "domainalias.Repository.MapByTenant")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("account_id, domain")
	sb.From("account_domain_aliases")
	sb.Where(sb.Equal("tenant_id", tenantID))

	query, args := sb.Build()
	var rows []struct {
		AccountID string `db:"account_id"`
		Domain    string `db:"domain"`
	}
	if err := uow.GetQuerier(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load alias table")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load alias table")
	}

	aliases := make(map[string]string, len(rows))
	for _, row := range rows {
		aliases[row.Domain] = row.AccountID
	}

	return aliases, nil
}

// Insert records a new alias. A domain maps to exactly one account per
// tenant; inserting an existing domain is a conflict so alias learning can
// skip it instead of silently re-pointing the domain.
func (r *Repository) Insert(ctx context.Context, alias *models.AccountDomainAlias) error {
	ctx, span := tracing.StartSpan(ctx, "domainalias.Repository.Insert")
	defer span.End()

	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	alias.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO account_domain_aliases (id, tenant_id, account_id, domain, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, domain) DO NOTHING
	`

	result, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, alias.ID, alias.TenantID, alias.AccountID, alias.Domain, alias.Source, alias.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"domain": alias.Domain}).Error("Failed to insert domain alias")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert domain alias")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("domain %s is already aliased", alias.Domain))
	}

	return nil
}

// MigrateToAccount moves the source account's aliases onto the target
// during a merge. Domains stay unique per tenant so a plain re-point is
// safe: no alias can exist for both accounts at once.
func (r *Repository) MigrateToAccount(ctx context.Context, tenantID string, sourceID string, targetID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "domainalias.Repository.MigrateToAccount")
	defer span.End()

	query := `
		UPDATE account_domain_aliases
		SET account_id = $1, source = $2
		WHERE tenant_id = $3 AND account_id = $4
	`

	result, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, targetID, models.AliasSourceMerge, tenantID, sourceID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to migrate domain aliases")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to migrate domain aliases")
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// ListByAccount lists the aliases attached to an account
func (r *Repository) ListByAccount(ctx context.Context, tenantID string, accountID string) ([]models.AccountDomainAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "domainalias.Repository.ListByAccount")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id, tenant_id, account_id, domain, source, created_at")
	sb.From("account_domain_aliases")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("account_id", accountID),
	)
	sb.OrderBy("domain ASC")

	query, args := sb.Build()
	var aliases []models.AccountDomainAlias
	if err := uow.GetQuerier(ctx, r.db).SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list domain aliases")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list domain aliases")
	}

	return aliases, nil
}
