// Package accounts serves account detail reads for the review UI
package accounts

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/fern/pkg/models"
)

// AccountStore loads the account row
type AccountStore interface {
	Get(ctx context.Context, tenantID string, id string) (*models.Account, error)
}

// CallCounter counts the calls attached to an account
type CallCounter interface {
	CountByAccount(ctx context.Context, tenantID string, accountID string) (int64, error)
}

// ContactStore lists the contacts attached to an account
type ContactStore interface {
	ListByAccount(ctx context.Context, tenantID string, accountID string) ([]models.Contact, error)
}

// AliasStore lists the domain aliases attached to an account
type AliasStore interface {
	ListByAccount(ctx context.Context, tenantID string, accountID string) ([]models.AccountDomainAlias, error)
}

// AuditStore lists the merges an account was the target of
type AuditStore interface {
	ListByAccount(ctx context.Context, tenantID string, accountID string) ([]models.MergeAudit, error)
}

// Service assembles the account detail view
type Service struct {
	logger      ectologger.Logger
	accountRepo AccountStore
	callRepo    CallCounter
	contactRepo ContactStore
	aliasRepo   AliasStore
	auditRepo   AuditStore
}

// NewService creates a new account detail service
func NewService(
	logger ectologger.Logger,
	accountRepo AccountStore,
	callRepo CallCounter,
	contactRepo ContactStore,
	aliasRepo AliasStore,
	auditRepo AuditStore,
) *Service {
	return &Service{
		logger:      logger,
		accountRepo: accountRepo,
		callRepo:    callRepo,
		contactRepo: contactRepo,
		aliasRepo:   aliasRepo,
		auditRepo:   auditRepo,
	}
}

// Detail loads one account with its aliases, contacts, call count, and the
// merge history it accumulated as a merge target
func (s *Service) Detail(ctx context.Context, tenantID string, accountID string) (*models.AccountDetail, error) {
	ctx, span := tracing.StartSpan(ctx, "accounts.Service.Detail")
	defer span.End()

	account, err := s.accountRepo.Get(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}

	aliases, err := s.aliasRepo.ListByAccount(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	contacts, err := s.contactRepo.ListByAccount(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	callCount, err := s.callRepo.CountByAccount(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}
	merges, err := s.auditRepo.ListByAccount(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}

	if aliases == nil {
		aliases = []models.AccountDomainAlias{}
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	if merges == nil {
		merges = []models.MergeAudit{}
	}

	return &models.AccountDetail{
		Account:   *account,
		Aliases:   aliases,
		Contacts:  contacts,
		CallCount: callCount,
		Merges:    merges,
	}, nil
}
