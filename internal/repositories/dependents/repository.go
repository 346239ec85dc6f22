package dependents

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/fern/pkg/uow"
)

// reassignable is a table with a tenant-scoped account_id column that a
// merge must re-point from the source account to the target.
type reassignable struct {
	db     database.DB
	logger ectologger.Logger
	name   string
	table  string
	// touchUpdated marks tables that carry an updated_at column
	touchUpdated bool
}

func (r *reassignable) Name() string {
	return r.name
}

func (r *reassignable) Reassign(ctx context.Context, tenantID string, sourceID string, targetID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "dependents.Repository.Reassign."+r.name)
	defer span.End()

	query := `
		UPDATE ` + r.table + `
		SET account_id = $1
		WHERE tenant_id = $2 AND account_id = $3
	`
	args := []any{targetID, tenantID, sourceID}
	if r.touchUpdated {
		query = `
		UPDATE ` + r.table + `
		SET account_id = $1, updated_at = $2
		WHERE tenant_id = $3 AND account_id = $4
	`
		args = []any{targetID, time.Now().UTC(), tenantID, sourceID}
	}

	result, err := uow.GetQuerier(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"table": r.table}).Error("Failed to reassign dependent rows")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign "+r.name)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// NarrativeDocumentRepository re-points narrative documents during merges
type NarrativeDocumentRepository struct {
	reassignable
}

// NewNarrativeDocumentRepository creates a narrative document repository
func NewNarrativeDocumentRepository(db database.DB, logger ectologger.Logger) *NarrativeDocumentRepository {
	return &NarrativeDocumentRepository{reassignable{db: db, logger: logger, name: "narrative_documents", table: "narrative_documents", touchUpdated: true}}
}

// PublishedPageRepository re-points published pages during merges
type PublishedPageRepository struct {
	reassignable
}

// NewPublishedPageRepository creates a published page repository
func NewPublishedPageRepository(db database.DB, logger ectologger.Logger) *PublishedPageRepository {
	return &PublishedPageRepository{reassignable{db: db, logger: logger, name: "published_pages", table: "published_pages"}}
}

// CRMEventRepository re-points CRM sync events during merges
type CRMEventRepository struct {
	reassignable
}

// NewCRMEventRepository creates a CRM event repository
func NewCRMEventRepository(db database.DB, logger ectologger.Logger) *CRMEventRepository {
	return &CRMEventRepository{reassignable{db: db, logger: logger, name: "crm_events", table: "crm_events"}}
}
