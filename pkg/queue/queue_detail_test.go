package queue

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/call"
	"github.com/Ramsey-B/fern/internal/testutil"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

type stubCalls struct {
	calls map[string]*models.Call
}

func (s *stubCalls) Get(ctx context.Context, tenantID string, id string) (*models.Call, error) {
	c, ok := s.calls[id]
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "call not found")
	}
	return c, nil
}

func (s *stubCalls) ListQueue(ctx context.Context, tenantID string, q call.QueueQuery) ([]models.Call, int, error) {
	return nil, 0, nil
}

func (s *stubCalls) QueueStats(ctx context.Context, tenantID string, windowStart time.Time) (*models.QueueStats, error) {
	return &models.QueueStats{}, nil
}

type stubParticipants struct {
	byCall map[string][]models.Participant
}

func (s *stubParticipants) ListByCall(ctx context.Context, tenantID string, callID string) ([]models.Participant, error) {
	return s.byCall[callID], nil
}

func (s *stubParticipants) ListByCalls(ctx context.Context, tenantID string, callIDs []string) (map[string][]models.Participant, error) {
	return s.byCall, nil
}

type stubAccounts struct {
	refs    []matching.AccountRef
	search  []models.AccountSearchResult
	queries []string
}

func (s *stubAccounts) ListRefs(ctx context.Context, tenantID string) ([]matching.AccountRef, error) {
	return s.refs, nil
}

func (s *stubAccounts) Search(ctx context.Context, tenantID string, term string, limit int) ([]models.AccountSearchResult, error) {
	s.queries = append(s.queries, term)
	return s.search, nil
}

type stubAliases struct {
	byDomain map[string]string
}

func (s *stubAliases) MapByTenant(ctx context.Context, tenantID string) (map[string]string, error) {
	return s.byDomain, nil
}

type queueFixture struct {
	svc          *Service
	calls        *stubCalls
	participants *stubParticipants
	accounts     *stubAccounts
	aliases      *stubAliases
}

func newQueueFixture() *queueFixture {
	logger := testutil.NewLogger()
	f := &queueFixture{
		calls:        &stubCalls{calls: map[string]*models.Call{}},
		participants: &stubParticipants{byCall: map[string][]models.Participant{}},
		accounts:     &stubAccounts{},
		aliases:      &stubAliases{byDomain: map[string]string{}},
	}
	f.svc = NewService(
		config.Config{QueueDefaultPageSize: 20, QueueMaxPageSize: 100},
		testutil.NewDB(logger),
		logger,
		matching.NewEngine(matching.DefaultConfig()),
		f.calls,
		f.participants,
		f.accounts,
		f.aliases,
	)
	return f
}

func TestCallDetail(t *testing.T) {
	t.Run("QueuedCallCarriesCandidates", func(t *testing.T) {
		f := newQueueFixture()
		f.calls.calls["call-1"] = &models.Call{ID: "call-1", TenantID: "tenant-1"}
		email := "jane@northwind.example"
		f.participants.byCall["call-1"] = []models.Participant{{Email: &email}}
		f.aliases.byDomain["northwind.example"] = "acc-1"
		f.accounts.refs = []matching.AccountRef{{ID: "acc-1", Name: "Northwind"}}

		item, err := f.svc.CallDetail(context.Background(), "tenant-1", "call-1")
		require.NoError(t, err)

		assert.Equal(t, "call-1", item.Call.ID)
		require.Len(t, item.Participants, 1)
		require.Len(t, item.Candidates, 1)
		assert.Equal(t, "acc-1", item.Candidates[0].AccountID)
		assert.Equal(t, 1.0, item.Candidates[0].Confidence)
	})

	t.Run("ResolvedCallHasNoCandidates", func(t *testing.T) {
		f := newQueueFixture()
		accountID := "acc-1"
		f.calls.calls["call-1"] = &models.Call{ID: "call-1", TenantID: "tenant-1", AccountID: &accountID}
		email := "jane@northwind.example"
		f.participants.byCall["call-1"] = []models.Participant{{Email: &email}}
		f.aliases.byDomain["northwind.example"] = "acc-1"

		item, err := f.svc.CallDetail(context.Background(), "tenant-1", "call-1")
		require.NoError(t, err)
		assert.Empty(t, item.Candidates)
	})

	t.Run("UnknownCallNotFound", func(t *testing.T) {
		f := newQueueFixture()

		_, err := f.svc.CallDetail(context.Background(), "tenant-1", "missing")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}

func TestSearchAccounts(t *testing.T) {
	t.Run("ClosestNameRanksFirst", func(t *testing.T) {
		f := newQueueFixture()
		f.accounts.search = []models.AccountSearchResult{
			{ID: "acc-1", Name: "Northfield Partners"},
			{ID: "acc-2", Name: "Northwind Traders"},
			{ID: "acc-3", Name: "Northwind"},
		}

		results, err := f.svc.SearchAccounts(context.Background(), "tenant-1", "northwind", 10)
		require.NoError(t, err)

		require.Len(t, results, 3)
		assert.Equal(t, "acc-3", results[0].ID)
		assert.Equal(t, "acc-2", results[1].ID)
		assert.Equal(t, "acc-1", results[2].ID)
	})

	t.Run("EmptyTermRejected", func(t *testing.T) {
		f := newQueueFixture()

		_, err := f.svc.SearchAccounts(context.Background(), "tenant-1", "", 10)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	})
}

func TestRankSearchResults_EqualScoresKeepRepositoryOrder(t *testing.T) {
	results := []models.AccountSearchResult{
		{ID: "acc-1", Name: "Acme Labs"},
		{ID: "acc-2", Name: "Acme Labz"},
	}

	rankSearchResults("acme", results)

	assert.Equal(t, "acc-1", results[0].ID)
	assert.Equal(t, "acc-2", results[1].ID)
}
