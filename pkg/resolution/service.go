// Package resolution implements the manual review operations: resolve,
// bulk resolve, dismiss, and account creation from a call.
package resolution

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/uow"
)

// CallStore is the call persistence the resolution operations need
type CallStore interface {
	GetForUpdate(ctx context.Context, tenantID string, id string) (*models.Call, error)
	SetResolution(ctx context.Context, tenantID string, id string, accountID string, confidence *float64) error
	Dismiss(ctx context.Context, tenantID string, ids []string) (int64, error)
}

// AccountStore is the account persistence the resolution operations need
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetForShare(ctx context.Context, tenantID string, id string) (*models.Account, error)
}

// ParticipantStore loads the participants of a call
type ParticipantStore interface {
	ListByCall(ctx context.Context, tenantID string, callID string) ([]models.Participant, error)
}

// ContactStore records the contacts a resolve learns
type ContactStore interface {
	InsertIfAbsent(ctx context.Context, contact *models.Contact) (bool, error)
}

// AliasStore records the domain aliases a resolve learns
type AliasStore interface {
	Insert(ctx context.Context, alias *models.AccountDomainAlias) error
	GetByDomain(ctx context.Context, tenantID string, domain string) (*models.AccountDomainAlias, error)
}

// Emitter publishes resolution lifecycle events after commit
type Emitter interface {
	EmitCallResolved(ctx context.Context, tenantID string, callID string, accountID string)
	EmitCallsDismissed(ctx context.Context, tenantID string, callIDs []string)
	EmitAccountCreated(ctx context.Context, account *models.Account, callID string)
}

// Service executes review decisions. Each operation runs in one
// transaction; events go out only after it commits.
type Service struct {
	db              database.DB
	logger          ectologger.Logger
	engine          *matching.Engine
	callRepo        CallStore
	participantRepo ParticipantStore
	accountRepo     AccountStore
	contactRepo     ContactStore
	aliasRepo       AliasStore
	emitter         Emitter
	maxBulkSize     int
}

// NewService creates a new resolution service
func NewService(
	cfg config.Config,
	db database.DB,
	logger ectologger.Logger,
	engine *matching.Engine,
	callRepo CallStore,
	participantRepo ParticipantStore,
	accountRepo AccountStore,
	contactRepo ContactStore,
	aliasRepo AliasStore,
	emitter Emitter,
) *Service {
	return &Service{
		db:              db,
		logger:          logger,
		engine:          engine,
		callRepo:        callRepo,
		participantRepo: participantRepo,
		accountRepo:     accountRepo,
		contactRepo:     contactRepo,
		aliasRepo:       aliasRepo,
		emitter:         emitter,
		maxBulkSize:     cfg.MaxBulkSize,
	}
}

// ResolveCall assigns a queued or dismissed call to an account. The match
// confidence is cleared: a human decision supersedes the heuristic score.
// Contact and alias learning run in the same transaction. Resolving a call
// that is already resolved is a conflict even when the target account is the
// same; callers that want idempotency must check call state first.
func (s *Service) ResolveCall(ctx context.Context, tenantID string, callID string, accountID string) (*models.ResolveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.ResolveCall")
	defer span.End()

	ctxTx, tx, err := uow.Begin(ctx, s.db, s.logger, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	result, err := s.resolveInTx(ctxTx, tenantID, callID, accountID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to commit resolve")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve call")
	}

	s.emitter.EmitCallResolved(ctx, tenantID, callID, accountID)

	return result, nil
}

// BulkResolve assigns up to maxBulkSize calls to one account atomically:
// either every call resolves or none does.
func (s *Service) BulkResolve(ctx context.Context, tenantID string, callIDs []string, accountID string) (*models.BulkResolveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.BulkResolve")
	defer span.End()

	if err := s.validateBatch(callIDs); err != nil {
		return nil, err
	}

	ctxTx, tx, err := uow.Begin(ctx, s.db, s.logger, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	result := &models.BulkResolveResult{
		AccountID:   accountID,
		ResolvedIDs: make([]string, 0, len(callIDs)),
	}

	for _, callID := range callIDs {
		one, err := s.resolveInTx(ctxTx, tenantID, callID, accountID)
		if err != nil {
			return nil, err
		}
		result.ResolvedIDs = append(result.ResolvedIDs, callID)
		result.ContactsCreated += one.ContactsCreated
		result.AliasesCreated += one.AliasesCreated
		result.Warnings = appendNewWarnings(result.Warnings, one.Warnings)
	}

	if err := tx.Commit(ctxTx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to commit bulk resolve")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve calls")
	}

	for _, callID := range result.ResolvedIDs {
		s.emitter.EmitCallResolved(ctx, tenantID, callID, accountID)
	}

	return result, nil
}

// DismissCalls hides up to maxBulkSize queued calls atomically. If any
// requested call is not currently queued the whole batch fails, so the
// caller's view of the queue was stale and nothing silently half-applies.
func (s *Service) DismissCalls(ctx context.Context, tenantID string, callIDs []string) (*models.DismissResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.DismissCalls")
	defer span.End()

	if err := s.validateBatch(callIDs); err != nil {
		return nil, err
	}

	ctxTx, tx, err := uow.Begin(ctx, s.db, s.logger, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	dismissed, err := s.callRepo.Dismiss(ctxTx, tenantID, callIDs)
	if err != nil {
		return nil, err
	}
	if dismissed != int64(len(callIDs)) {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("only %d of %d calls are dismissable", dismissed, len(callIDs)))
	}

	if err := tx.Commit(ctxTx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to commit dismiss")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to dismiss calls")
	}

	s.emitter.EmitCallsDismissed(ctx, tenantID, callIDs)

	return &models.DismissResult{DismissedIDs: callIDs}, nil
}

// CreateAccountFromCall provisions a new account and resolves the call to
// it in one transaction. The account name must be unique in the tenant.
func (s *Service) CreateAccountFromCall(ctx context.Context, tenantID string, callID string, name string, primaryDomain string) (*models.CreateAccountResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.CreateAccountFromCall")
	defer span.End()

	normalizedName := normalizers.AccountName(name)
	if normalizedName == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "account name is required")
	}

	ctxTx, tx, err := uow.Begin(ctx, s.db, s.logger, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	// Lock the call first so the create+resolve pair is serialized against
	// concurrent resolves of the same call.
	locked, err := s.callRepo.GetForUpdate(ctxTx, tenantID, callID)
	if err != nil {
		return nil, err
	}
	if locked.State() == models.CallStateResolved {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("call %s is already resolved", callID))
	}

	acct := &models.Account{
		TenantID:       tenantID,
		Name:           name,
		NormalizedName: normalizedName,
	}
	if d := normalizers.Domain(primaryDomain); d != "" {
		acct.PrimaryDomain = &d
	}

	created, err := s.accountRepo.Create(ctxTx, acct)
	if err != nil {
		return nil, err
	}

	// A supplied domain becomes an alias right away so the new account is
	// matchable even when none of the call's participants carry it. A domain
	// already claimed by another account is a conflict the caller must see.
	aliasesCreated := 0
	if acct.PrimaryDomain != nil {
		alias := &models.AccountDomainAlias{
			TenantID:  tenantID,
			AccountID: created.ID,
			Domain:    *acct.PrimaryDomain,
			Source:    models.AliasSourceResolution,
		}
		if err := s.aliasRepo.Insert(ctxTx, alias); err != nil {
			return nil, err
		}
		aliasesCreated++
	}

	resolve, err := s.resolveLocked(ctxTx, tenantID, locked, created.ID)
	if err != nil {
		return nil, err
	}
	resolve.AliasesCreated += aliasesCreated

	if err := tx.Commit(ctxTx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to commit account creation")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create account")
	}

	s.emitter.EmitAccountCreated(ctx, created, callID)
	s.emitter.EmitCallResolved(ctx, tenantID, callID, created.ID)

	return &models.CreateAccountResult{
		Account: *created,
		Resolve: *resolve,
	}, nil
}

// resolveInTx resolves one call against an already-open context transaction
func (s *Service) resolveInTx(ctx context.Context, tenantID string, callID string, accountID string) (*models.ResolveResult, error) {
	locked, err := s.callRepo.GetForUpdate(ctx, tenantID, callID)
	if err != nil {
		return nil, err
	}

	// Lock the target so a concurrent merge cannot delete it mid-resolve
	if _, err := s.accountRepo.GetForShare(ctx, tenantID, accountID); err != nil {
		return nil, err
	}

	return s.resolveLocked(ctx, tenantID, locked, accountID)
}

// resolveLocked finishes a resolve once both rows are locked
func (s *Service) resolveLocked(ctx context.Context, tenantID string, locked *models.Call, accountID string) (*models.ResolveResult, error) {
	if locked.State() == models.CallStateResolved {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("call %s is already resolved", locked.ID))
	}

	if err := s.callRepo.SetResolution(ctx, tenantID, locked.ID, accountID, nil); err != nil {
		return nil, err
	}

	participants, err := s.participantRepo.ListByCall(ctx, tenantID, locked.ID)
	if err != nil {
		return nil, err
	}

	result := &models.ResolveResult{CallID: locked.ID, AccountID: accountID}
	if err := s.learn(ctx, tenantID, accountID, participants, result); err != nil {
		return nil, err
	}

	return result, nil
}

// learn records what a resolve teaches: the call's external participants
// become contacts of the account, and their organization domains become
// aliases of it. An already-claimed domain is skipped with a warning; the
// existing mapping wins because re-pointing a domain would silently change
// future matches for every call.
func (s *Service) learn(ctx context.Context, tenantID string, accountID string, participants []models.Participant, result *models.ResolveResult) error {
	for _, c := range contactRows(tenantID, accountID, participants) {
		created, err := s.contactRepo.InsertIfAbsent(ctx, &c)
		if err != nil {
			return err
		}
		if created {
			result.ContactsCreated++
		}
	}

	for _, domain := range s.engine.OrganizationDomains(participants) {
		alias := &models.AccountDomainAlias{
			TenantID:  tenantID,
			AccountID: accountID,
			Domain:    domain,
			Source:    models.AliasSourceResolution,
		}
		err := s.aliasRepo.Insert(ctx, alias)
		if err == nil {
			result.AliasesCreated++
			continue
		}
		if httperror.GetStatusCode(err) != http.StatusConflict {
			return err
		}

		existing, getErr := s.aliasRepo.GetByDomain(ctx, tenantID, domain)
		if getErr != nil {
			return getErr
		}
		if existing.AccountID == accountID {
			continue
		}

		s.logger.WithContext(ctx).WithFields(map[string]any{
			"domain":     domain,
			"alias_of":   existing.AccountID,
			"account_id": accountID,
		}).Warn("Domain already aliased to another account; keeping existing alias")
		result.Warnings = append(result.Warnings, models.ResolveWarning{
			Domain:    domain,
			AccountID: existing.AccountID,
			Message:   fmt.Sprintf("domain %s is already aliased to another account", domain),
		})
	}

	return nil
}

func (s *Service) validateBatch(callIDs []string) error {
	if len(callIDs) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "call_ids is required")
	}
	if len(callIDs) > s.maxBulkSize {
		return httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("at most %d calls per batch", s.maxBulkSize))
	}
	seen := make(map[string]bool, len(callIDs))
	for _, id := range callIDs {
		if id == "" {
			return httperror.NewHTTPError(http.StatusBadRequest, "call_ids contains an empty id")
		}
		if seen[id] {
			return httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("duplicate call id %s", id))
		}
		seen[id] = true
	}
	return nil
}

// contactRows builds the contact rows a resolve would create: external
// participants with a usable email, normalized, deduplicated by email.
func contactRows(tenantID string, accountID string, participants []models.Participant) []models.Contact {
	seen := make(map[string]bool, len(participants))
	rows := make([]models.Contact, 0, len(participants))
	for _, p := range participants {
		if p.IsHost || p.Email == nil {
			continue
		}
		email := normalizers.Email(*p.Email)
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		rows = append(rows, models.Contact{
			TenantID:    tenantID,
			AccountID:   accountID,
			Email:       email,
			DisplayName: p.DisplayName,
		})
	}
	return rows
}

// appendNewWarnings merges warning lists, dropping duplicates by domain
func appendNewWarnings(existing []models.ResolveWarning, incoming []models.ResolveWarning) []models.ResolveWarning {
	known := make(map[string]bool, len(existing))
	for _, w := range existing {
		known[w.Domain] = true
	}
	for _, w := range incoming {
		if !known[w.Domain] {
			existing = append(existing, w)
			known[w.Domain] = true
		}
	}
	return existing
}
