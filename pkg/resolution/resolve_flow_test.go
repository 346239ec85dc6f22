package resolution

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/testutil"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

type stubCalls struct {
	calls          map[string]*models.Call
	resolutions    []string
	dismissedCount int64
}

func (s *stubCalls) GetForUpdate(ctx context.Context, tenantID string, id string) (*models.Call, error) {
	call, ok := s.calls[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "call not found")
	}
	return call, nil
}

func (s *stubCalls) SetResolution(ctx context.Context, tenantID string, id string, accountID string, confidence *float64) error {
	s.resolutions = append(s.resolutions, id)
	s.calls[id].AccountID = &accountID
	s.calls[id].MatchConfidence = confidence
	return nil
}

func (s *stubCalls) Dismiss(ctx context.Context, tenantID string, ids []string) (int64, error) {
	return s.dismissedCount, nil
}

type stubAccounts struct {
	created    []*models.Account
	nextID     string
	createErr  error
	shareErr   error
	shareCalls int
}

func (s *stubAccounts) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	created := *account
	created.ID = s.nextID
	s.created = append(s.created, &created)
	return &created, nil
}

func (s *stubAccounts) GetForShare(ctx context.Context, tenantID string, id string) (*models.Account, error) {
	s.shareCalls++
	if s.shareErr != nil {
		return nil, s.shareErr
	}
	return &models.Account{ID: id, TenantID: tenantID}, nil
}

type stubParticipants struct {
	byCall map[string][]models.Participant
}

func (s *stubParticipants) ListByCall(ctx context.Context, tenantID string, callID string) ([]models.Participant, error) {
	return s.byCall[callID], nil
}

type stubContacts struct {
	inserted []models.Contact
}

func (s *stubContacts) InsertIfAbsent(ctx context.Context, contact *models.Contact) (bool, error) {
	s.inserted = append(s.inserted, *contact)
	return true, nil
}

type stubAliases struct {
	inserted  []models.AccountDomainAlias
	conflicts map[string]string // domain -> owning account id
}

func (s *stubAliases) Insert(ctx context.Context, alias *models.AccountDomainAlias) error {
	if _, claimed := s.conflicts[alias.Domain]; claimed {
		return httperror.NewHTTPError(http.StatusConflict, "domain already aliased")
	}
	s.inserted = append(s.inserted, *alias)
	return nil
}

func (s *stubAliases) GetByDomain(ctx context.Context, tenantID string, domain string) (*models.AccountDomainAlias, error) {
	owner, ok := s.conflicts[domain]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "alias not found")
	}
	return &models.AccountDomainAlias{TenantID: tenantID, AccountID: owner, Domain: domain}, nil
}

type stubEmitter struct {
	resolved  []string
	dismissed [][]string
	accounts  []string
}

func (s *stubEmitter) EmitCallResolved(ctx context.Context, tenantID string, callID string, accountID string) {
	s.resolved = append(s.resolved, callID)
}

func (s *stubEmitter) EmitCallsDismissed(ctx context.Context, tenantID string, callIDs []string) {
	s.dismissed = append(s.dismissed, callIDs)
}

func (s *stubEmitter) EmitAccountCreated(ctx context.Context, account *models.Account, callID string) {
	s.accounts = append(s.accounts, account.ID)
}

type resolveFixture struct {
	svc          *Service
	calls        *stubCalls
	accounts     *stubAccounts
	participants *stubParticipants
	contacts     *stubContacts
	aliases      *stubAliases
	emitter      *stubEmitter
}

func newResolveFixture() *resolveFixture {
	logger := testutil.NewLogger()
	f := &resolveFixture{
		calls:        &stubCalls{calls: map[string]*models.Call{}},
		accounts:     &stubAccounts{nextID: "acc-new"},
		participants: &stubParticipants{byCall: map[string][]models.Participant{}},
		contacts:     &stubContacts{},
		aliases:      &stubAliases{conflicts: map[string]string{}},
		emitter:      &stubEmitter{},
	}
	f.svc = NewService(
		config.Config{MaxBulkSize: 100},
		testutil.NewDB(logger),
		logger,
		matching.NewEngine(matching.DefaultConfig()),
		f.calls,
		f.participants,
		f.accounts,
		f.contacts,
		f.aliases,
		f.emitter,
	)
	return f
}

func queuedCall(id string) *models.Call {
	return &models.Call{ID: id, TenantID: "tenant-1"}
}

func resolvedCall(id string, accountID string) *models.Call {
	return &models.Call{ID: id, TenantID: "tenant-1", AccountID: &accountID}
}

func TestResolveCall(t *testing.T) {
	t.Run("LearnsContactsAndAliases", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.calls["call-1"] = queuedCall("call-1")
		f.participants.byCall["call-1"] = []models.Participant{
			{Email: strPtr("host@ourcompany.example"), IsHost: true},
			{Email: strPtr("jane@northwind.example")},
			{Email: strPtr("joe@northwind.example")},
		}

		result, err := f.svc.ResolveCall(context.Background(), "tenant-1", "call-1", "acc-1")
		require.NoError(t, err)

		assert.Equal(t, 2, result.ContactsCreated)
		assert.Equal(t, 1, result.AliasesCreated)
		assert.Empty(t, result.Warnings)

		require.Len(t, f.aliases.inserted, 1)
		assert.Equal(t, "northwind.example", f.aliases.inserted[0].Domain)
		assert.Equal(t, "acc-1", f.aliases.inserted[0].AccountID)
		assert.Equal(t, models.AliasSourceResolution, f.aliases.inserted[0].Source)

		assert.Equal(t, []string{"call-1"}, f.emitter.resolved)
	})

	t.Run("AlreadyResolvedToSameAccountConflicts", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.calls["call-1"] = resolvedCall("call-1", "acc-1")
		f.participants.byCall["call-1"] = []models.Participant{
			{Email: strPtr("jane@northwind.example")},
		}

		_, err := f.svc.ResolveCall(context.Background(), "tenant-1", "call-1", "acc-1")
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

		// The second resolve must not touch the call or learn anything
		assert.Empty(t, f.calls.resolutions)
		assert.Empty(t, f.aliases.inserted)
		assert.Empty(t, f.contacts.inserted)
		assert.Empty(t, f.emitter.resolved)
	})

	t.Run("AlreadyResolvedToOtherAccountConflicts", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.calls["call-1"] = resolvedCall("call-1", "acc-other")

		_, err := f.svc.ResolveCall(context.Background(), "tenant-1", "call-1", "acc-1")
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})

	t.Run("DismissedCallIsResolvable", func(t *testing.T) {
		f := newResolveFixture()
		call := queuedCall("call-1")
		call.Dismissed = true
		f.calls.calls["call-1"] = call

		result, err := f.svc.ResolveCall(context.Background(), "tenant-1", "call-1", "acc-1")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", result.AccountID)
		assert.Equal(t, []string{"call-1"}, f.calls.resolutions)
	})

	t.Run("ClaimedDomainKeepsExistingAliasWithWarning", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.calls["call-1"] = queuedCall("call-1")
		f.participants.byCall["call-1"] = []models.Participant{
			{Email: strPtr("jane@northwind.example")},
		}
		f.aliases.conflicts["northwind.example"] = "acc-other"

		result, err := f.svc.ResolveCall(context.Background(), "tenant-1", "call-1", "acc-1")
		require.NoError(t, err)

		assert.Equal(t, 0, result.AliasesCreated)
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, "northwind.example", result.Warnings[0].Domain)
		assert.Equal(t, "acc-other", result.Warnings[0].AccountID)
	})

	t.Run("DomainAlreadyOwnAliasIsSilent", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.calls["call-1"] = queuedCall("call-1")
		f.participants.byCall["call-1"] = []models.Participant{
			{Email: strPtr("jane@northwind.example")},
		}
		f.aliases.conflicts["northwind.example"] = "acc-1"

		result, err := f.svc.ResolveCall(context.Background(), "tenant-1", "call-1", "acc-1")
		require.NoError(t, err)

		assert.Equal(t, 0, result.AliasesCreated)
		assert.Empty(t, result.Warnings)
	})
}

func TestBulkResolve(t *testing.T) {
	t.Run("ResolvesEveryCall", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.calls["call-1"] = queuedCall("call-1")
		f.calls.calls["call-2"] = queuedCall("call-2")

		result, err := f.svc.BulkResolve(context.Background(), "tenant-1", []string{"call-1", "call-2"}, "acc-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"call-1", "call-2"}, result.ResolvedIDs)
		assert.Equal(t, []string{"call-1", "call-2"}, f.emitter.resolved)
	})

	t.Run("OneResolvedCallFailsTheBatch", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.calls["call-1"] = queuedCall("call-1")
		f.calls.calls["call-2"] = resolvedCall("call-2", "acc-1")

		_, err := f.svc.BulkResolve(context.Background(), "tenant-1", []string{"call-1", "call-2"}, "acc-1")
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
		assert.Empty(t, f.emitter.resolved)
	})
}

func TestDismissCalls(t *testing.T) {
	t.Run("DismissesBatch", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.dismissedCount = 2

		result, err := f.svc.DismissCalls(context.Background(), "tenant-1", []string{"call-1", "call-2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"call-1", "call-2"}, result.DismissedIDs)
		require.Len(t, f.emitter.dismissed, 1)
	})

	t.Run("PartialBatchConflicts", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.dismissedCount = 1

		_, err := f.svc.DismissCalls(context.Background(), "tenant-1", []string{"call-1", "call-2"})
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
		assert.Empty(t, f.emitter.dismissed)
	})
}

func TestCreateAccountFromCall(t *testing.T) {
	t.Run("SuppliedDomainBecomesAlias", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.calls["call-1"] = queuedCall("call-1")

		result, err := f.svc.CreateAccountFromCall(context.Background(), "tenant-1", "call-1", "Northwind Traders", "Northwind.example")
		require.NoError(t, err)

		require.Len(t, f.aliases.inserted, 1)
		assert.Equal(t, "northwind.example", f.aliases.inserted[0].Domain)
		assert.Equal(t, "acc-new", f.aliases.inserted[0].AccountID)
		assert.Equal(t, models.AliasSourceResolution, f.aliases.inserted[0].Source)

		assert.Equal(t, 1, result.Resolve.AliasesCreated)
		assert.Equal(t, "acc-new", result.Account.ID)
		assert.Equal(t, []string{"call-1"}, f.calls.resolutions)
		assert.Equal(t, []string{"acc-new"}, f.emitter.accounts)
		assert.Equal(t, []string{"call-1"}, f.emitter.resolved)
	})

	t.Run("ClaimedDomainConflicts", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.calls["call-1"] = queuedCall("call-1")
		f.aliases.conflicts["northwind.example"] = "acc-other"

		_, err := f.svc.CreateAccountFromCall(context.Background(), "tenant-1", "call-1", "Northwind Traders", "northwind.example")
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

		// Nothing resolved, nothing announced
		assert.Empty(t, f.calls.resolutions)
		assert.Empty(t, f.emitter.accounts)
		assert.Empty(t, f.emitter.resolved)
	})

	t.Run("NoDomainCreatesNoAlias", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.calls["call-1"] = queuedCall("call-1")

		result, err := f.svc.CreateAccountFromCall(context.Background(), "tenant-1", "call-1", "Northwind Traders", "")
		require.NoError(t, err)
		assert.Empty(t, f.aliases.inserted)
		assert.Equal(t, 0, result.Resolve.AliasesCreated)
	})

	t.Run("AlreadyResolvedCallConflicts", func(t *testing.T) {
		f := newResolveFixture()
		f.calls.calls["call-1"] = resolvedCall("call-1", "acc-other")

		_, err := f.svc.CreateAccountFromCall(context.Background(), "tenant-1", "call-1", "Northwind Traders", "northwind.example")
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
		assert.Empty(t, f.accounts.created)
	})

	t.Run("BlankNameRejected", func(t *testing.T) {
		f := newResolveFixture()
		_, err := f.svc.CreateAccountFromCall(context.Background(), "tenant-1", "call-1", "   ", "")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})
}
