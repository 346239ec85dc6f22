package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/testutil"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
)

type stubCalls struct {
	existing    *models.Call
	created     []*models.Call
	resolutions []string
	confidences []*float64
}

func (s *stubCalls) GetByExternalID(ctx context.Context, tenantID string, provider string, externalID string) (*models.Call, error) {
	return s.existing, nil
}

func (s *stubCalls) Create(ctx context.Context, call *models.Call) (*models.Call, error) {
	created := *call
	created.ID = "call-1"
	s.created = append(s.created, &created)
	return &created, nil
}

func (s *stubCalls) SetResolution(ctx context.Context, tenantID string, id string, accountID string, confidence *float64) error {
	s.resolutions = append(s.resolutions, accountID)
	return nil
}

func (s *stubCalls) SetMatchConfidence(ctx context.Context, tenantID string, id string, confidence *float64) error {
	s.confidences = append(s.confidences, confidence)
	return nil
}

type stubParticipants struct {
	batches [][]models.Participant
}

func (s *stubParticipants) CreateBatch(ctx context.Context, participants []models.Participant) error {
	s.batches = append(s.batches, participants)
	return nil
}

type stubAccounts struct {
	refs []matching.AccountRef
}

func (s *stubAccounts) ListRefs(ctx context.Context, tenantID string) ([]matching.AccountRef, error) {
	return s.refs, nil
}

type stubAliases struct {
	byDomain map[string]string
}

func (s *stubAliases) MapByTenant(ctx context.Context, tenantID string) (map[string]string, error) {
	return s.byDomain, nil
}

type stubEmitter struct {
	autoResolved []string
}

func (s *stubEmitter) EmitCallAutoResolved(ctx context.Context, tenantID string, callID string, accountID string, confidence float64) {
	s.autoResolved = append(s.autoResolved, accountID)
}

type processorFixture struct {
	proc     *Processor
	calls    *stubCalls
	accounts *stubAccounts
	aliases  *stubAliases
	emitter  *stubEmitter
}

func newProcessorFixture(autoResolve bool) *processorFixture {
	logger := testutil.NewLogger()
	f := &processorFixture{
		calls:    &stubCalls{},
		accounts: &stubAccounts{},
		aliases:  &stubAliases{byDomain: map[string]string{}},
		emitter:  &stubEmitter{},
	}
	f.proc = NewProcessor(
		config.Config{AutoResolveEnabled: autoResolve},
		testutil.NewDB(logger),
		logger,
		matching.NewEngine(matching.DefaultConfig()),
		f.calls,
		&stubParticipants{},
		f.accounts,
		f.aliases,
		f.emitter,
	)
	return f
}

func aliasHitMessage() *kafka.IncomingMessage {
	return &kafka.IncomingMessage{
		Call: &kafka.NormalizedCallMessage{
			TenantID:   "tenant-1",
			ExternalID: "ext-1",
			Provider:   "zoom",
			Title:      "Quarterly review",
			OccurredAt: time.Date(2026, 8, 12, 15, 0, 0, 0, time.UTC),
			Participants: []kafka.NormalizedCallParty{
				{Name: "Host", Email: "host@ourcompany.example", IsHost: true},
				{Name: "Jane", Email: "jane@northwind.example"},
			},
		},
	}
}

func TestHandleMessage(t *testing.T) {
	t.Run("AliasHitAutoResolves", func(t *testing.T) {
		f := newProcessorFixture(true)
		f.aliases.byDomain["northwind.example"] = "acc-1"
		f.accounts.refs = []matching.AccountRef{{ID: "acc-1", Name: "Northwind", NormalizedName: "northwind"}}

		err := f.proc.HandleMessage(context.Background(), aliasHitMessage())
		require.NoError(t, err)

		assert.Equal(t, []string{"acc-1"}, f.calls.resolutions)
		assert.Empty(t, f.calls.confidences)
		assert.Equal(t, []string{"acc-1"}, f.emitter.autoResolved)
	})

	t.Run("DisabledAutoResolveQueuesInstead", func(t *testing.T) {
		f := newProcessorFixture(false)
		f.aliases.byDomain["northwind.example"] = "acc-1"
		f.accounts.refs = []matching.AccountRef{{ID: "acc-1", Name: "Northwind", NormalizedName: "northwind"}}

		err := f.proc.HandleMessage(context.Background(), aliasHitMessage())
		require.NoError(t, err)

		// The call keeps its alias-hit confidence but stays queued
		assert.Empty(t, f.calls.resolutions)
		require.Len(t, f.calls.confidences, 1)
		require.NotNil(t, f.calls.confidences[0])
		assert.Equal(t, 1.0, *f.calls.confidences[0])
		assert.Empty(t, f.emitter.autoResolved)
	})

	t.Run("NoCandidatesQueuesWithoutConfidence", func(t *testing.T) {
		f := newProcessorFixture(true)

		err := f.proc.HandleMessage(context.Background(), aliasHitMessage())
		require.NoError(t, err)

		assert.Empty(t, f.calls.resolutions)
		assert.Empty(t, f.calls.confidences)
	})

	t.Run("DuplicateExternalIDSkipped", func(t *testing.T) {
		f := newProcessorFixture(true)
		f.calls.existing = &models.Call{ID: "call-0", TenantID: "tenant-1"}

		err := f.proc.HandleMessage(context.Background(), aliasHitMessage())
		require.NoError(t, err)
		assert.Empty(t, f.calls.created)
	})
}
