package merging

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/testutil"
	"github.com/Ramsey-B/fern/pkg/models"
)

type stubAccounts struct {
	locked  map[string]*models.Account
	deleted []string
}

func (s *stubAccounts) LockPair(ctx context.Context, tenantID string, firstID string, secondID string) (map[string]*models.Account, error) {
	found := map[string]*models.Account{}
	for _, id := range []string{firstID, secondID} {
		if a, ok := s.locked[id]; ok {
			found[id] = a
		}
	}
	return found, nil
}

func (s *stubAccounts) Delete(ctx context.Context, tenantID string, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.locked, id)
	return nil
}

type stubCallMover struct{ moved int64 }

func (s *stubCallMover) Reassign(ctx context.Context, tenantID, sourceID, targetID string) (int64, error) {
	return s.moved, nil
}

type stubContactMover struct {
	moved     int64
	discarded int64
}

func (s *stubContactMover) MigrateToAccount(ctx context.Context, tenantID, sourceID, targetID string) (int64, int64, error) {
	return s.moved, s.discarded, nil
}

type stubAliasMover struct{ moved int64 }

func (s *stubAliasMover) MigrateToAccount(ctx context.Context, tenantID, sourceID, targetID string) (int64, error) {
	return s.moved, nil
}

type stubAudits struct {
	created []*models.MergeAudit
}

func (s *stubAudits) Create(ctx context.Context, audit *models.MergeAudit) (*models.MergeAudit, error) {
	s.created = append(s.created, audit)
	return audit, nil
}

type stubMergeEmitter struct {
	results []*models.MergeResult
}

func (s *stubMergeEmitter) EmitAccountMerged(ctx context.Context, result *models.MergeResult) {
	s.results = append(s.results, result)
}

type mergeFixture struct {
	engine   *Engine
	accounts *stubAccounts
	audits   *stubAudits
	emitter  *stubMergeEmitter
	pages    *fakeReassigner
}

func newMergeFixture() *mergeFixture {
	logger := testutil.NewLogger()
	f := &mergeFixture{
		accounts: &stubAccounts{locked: map[string]*models.Account{
			"acc-src": {ID: "acc-src", TenantID: "tenant-1", Name: "Contoso Ltd"},
			"acc-dst": {ID: "acc-dst", TenantID: "tenant-1", Name: "Contoso"},
		}},
		audits:  &stubAudits{},
		emitter: &stubMergeEmitter{},
		pages:   &fakeReassigner{name: "published_pages", moved: 3},
	}
	f.engine = NewEngine(
		testutil.NewDB(logger),
		logger,
		f.accounts,
		&stubCallMover{moved: 7},
		&stubContactMover{moved: 4, discarded: 2},
		&stubAliasMover{moved: 1},
		f.audits,
		NewRegistry(f.pages),
		f.emitter,
	)
	return f
}

func TestMergeAccounts(t *testing.T) {
	t.Run("CountsCarriedIntoResultAndAudit", func(t *testing.T) {
		f := newMergeFixture()

		result, err := f.engine.MergeAccounts(context.Background(), "tenant-1", "acc-src", "acc-dst")
		require.NoError(t, err)

		assert.Equal(t, int64(7), result.MovedCalls)
		assert.Equal(t, int64(4), result.MovedContacts)
		assert.Equal(t, int64(2), result.DiscardedContacts)
		assert.Equal(t, int64(1), result.MovedAliases)
		assert.Equal(t, int64(3), result.Reassigned["published_pages"])
		assert.Equal(t, "Contoso Ltd", result.SourceName)
		assert.Equal(t, "Contoso", result.TargetName)

		require.Len(t, f.audits.created, 1)
		audit := f.audits.created[0]
		assert.Equal(t, int64(7), audit.MovedCalls)
		assert.Equal(t, int64(4), audit.MovedContacts)
		assert.Equal(t, int64(2), audit.DiscardedContacts)
		assert.Equal(t, int64(1), audit.MovedAliases)
		assert.Equal(t, "Contoso Ltd", audit.SourceName)
		assert.Equal(t, int64(3), audit.Reassigned.Data["published_pages"])

		assert.Equal(t, []string{"acc-src"}, f.accounts.deleted)
		require.Len(t, f.emitter.results, 1)
	})

	t.Run("SecondMergeFindsNoSource", func(t *testing.T) {
		f := newMergeFixture()

		_, err := f.engine.MergeAccounts(context.Background(), "tenant-1", "acc-src", "acc-dst")
		require.NoError(t, err)

		// The source row is gone, so re-running the merge cannot apply twice
		_, err = f.engine.MergeAccounts(context.Background(), "tenant-1", "acc-src", "acc-dst")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
		assert.Len(t, f.audits.created, 1)
		assert.Len(t, f.emitter.results, 1)
	})

	t.Run("MissingTargetNotFound", func(t *testing.T) {
		f := newMergeFixture()
		delete(f.accounts.locked, "acc-dst")

		_, err := f.engine.MergeAccounts(context.Background(), "tenant-1", "acc-src", "acc-dst")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
		assert.Empty(t, f.accounts.deleted)
	})

	t.Run("SelfMergeRejectedBeforeLocking", func(t *testing.T) {
		f := newMergeFixture()

		_, err := f.engine.MergeAccounts(context.Background(), "tenant-1", "acc-src", "acc-src")
		require.Error(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
	})
}
