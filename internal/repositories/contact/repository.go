package contact

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

// Repository handles contact persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new contact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertIfAbsent records a contact unless the tenant already has one with
// the same email. Resolution calls this for every participant; the existing
// row wins so repeated resolutions never churn contact data. Returns whether
// a row was actually inserted.
func (r *Repository) InsertIfAbsent(ctx context.Context, contact *models.Contact) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.InsertIfAbsent")
	defer span.End()

	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	// Absence is checked tenant-wide: a person already known on any account
	// stays where they are. The table itself only enforces uniqueness per
	// account, since duplicate CRM accounts legitimately carry the same
	// person until a merge collapses them.
	query := `
		INSERT INTO contacts (id, tenant_id, account_id, email, display_name, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM contacts WHERE tenant_id = $2 AND email = $4
		)
	`

	result, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, contact.ID, contact.TenantID, contact.AccountID, contact.Email, contact.DisplayName, now, now)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"email": contact.Email}).Error("Failed to insert contact")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert contact")
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MigrateToAccount moves the source account's contacts onto the target.
// A source contact whose email the target already has is discarded instead
// of moved; the target's row wins. Returns moved and discarded counts.
func (r *Repository) MigrateToAccount(ctx context.Context, tenantID string, sourceID string, targetID string) (int64, int64, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.MigrateToAccount")
	defer span.End()

	q := uow.GetQuerier(ctx, r.db)

	// Discard before moving so the move cannot trip the per-account unique
	// constraint on the target.
	discardQuery := `
		DELETE FROM contacts src
		USING contacts dst
		WHERE src.tenant_id = $1 AND src.account_id = $2
		  AND dst.tenant_id = $1 AND dst.account_id = $3
		  AND src.email = dst.email
	`
	result, err := q.ExecContext(ctx, discardQuery, tenantID, sourceID, targetID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to discard duplicate contacts")
		return 0, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to migrate contacts")
	}
	discarded, _ := result.RowsAffected()

	moveQuery := `
		UPDATE contacts
		SET account_id = $1, updated_at = $2
		WHERE tenant_id = $3 AND account_id = $4
	`
	result, err = q.ExecContext(ctx, moveQuery, targetID, time.Now().UTC(), tenantID, sourceID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to move contacts")
		return 0, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to migrate contacts")
	}
	moved, _ := result.RowsAffected()

	return moved, discarded, nil
}

// ListByAccount lists the contacts attached to an account
func (r *Repository) ListByAccount(ctx context.Context, tenantID string, accountID string) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ListByAccount")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id, tenant_id, account_id, email, display_name, created_at, updated_at")
	sb.From("contacts")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("account_id", accountID),
	)
	sb.OrderBy("email ASC")

	query, args := sb.Build()
	var contacts []models.Contact
	if err := uow.GetQuerier(ctx, r.db).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list contacts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contacts")
	}

	return contacts, nil
}
