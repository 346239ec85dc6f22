// Package queue serves the manual review queue
package queue

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/call"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

const maxSearchResults = 50

// ListParams are the raw query parameters of a queue list request
type ListParams struct {
	Page      int
	PageSize  int
	Search    string
	SortBy    string
	SortOrder string
}

// CallStore is the call persistence the queue reads
type CallStore interface {
	Get(ctx context.Context, tenantID string, id string) (*models.Call, error)
	ListQueue(ctx context.Context, tenantID string, q call.QueueQuery) ([]models.Call, int, error)
	QueueStats(ctx context.Context, tenantID string, windowStart time.Time) (*models.QueueStats, error)
}

// ParticipantStore loads participants for queue items
type ParticipantStore interface {
	ListByCall(ctx context.Context, tenantID string, callID string) ([]models.Participant, error)
	ListByCalls(ctx context.Context, tenantID string, callIDs []string) (map[string][]models.Participant, error)
}

// AccountStore is the account persistence the queue reads
type AccountStore interface {
	ListRefs(ctx context.Context, tenantID string) ([]matching.AccountRef, error)
	Search(ctx context.Context, tenantID string, term string, limit int) ([]models.AccountSearchResult, error)
}

// AliasStore loads the tenant's alias table
type AliasStore interface {
	MapByTenant(ctx context.Context, tenantID string) (map[string]string, error)
}

// Service reads the review queue. Candidates are recomputed on every read
// from the live alias table and account set, so a resolve that learned an
// alias changes the candidates of every other queued call immediately.
type Service struct {
	db              database.DB
	logger          ectologger.Logger
	engine          *matching.Engine
	callRepo        CallStore
	participantRepo ParticipantStore
	accountRepo     AccountStore
	aliasRepo       AliasStore
	defaultPageSize int
	maxPageSize     int
	resolvedWindow  time.Duration
}

// NewService creates a new queue service
func NewService(
	cfg config.Config,
	db database.DB,
	logger ectologger.Logger,
	engine *matching.Engine,
	callRepo CallStore,
	participantRepo ParticipantStore,
	accountRepo AccountStore,
	aliasRepo AliasStore,
) *Service {
	return &Service{
		db:              db,
		logger:          logger,
		engine:          engine,
		callRepo:        callRepo,
		participantRepo: participantRepo,
		accountRepo:     accountRepo,
		aliasRepo:       aliasRepo,
		defaultPageSize: cfg.QueueDefaultPageSize,
		maxPageSize:     cfg.QueueMaxPageSize,
		resolvedWindow:  cfg.StatsResolvedWindow,
	}
}

// List returns a page of the review queue with fresh match candidates
func (s *Service) List(ctx context.Context, tenantID string, params ListParams) (*models.QueueListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.Service.List")
	defer span.End()

	query, err := s.normalize(params)
	if err != nil {
		return nil, err
	}

	calls, total, err := s.callRepo.ListQueue(ctx, tenantID, query)
	if err != nil {
		return nil, err
	}

	response := &models.QueueListResponse{
		Items:      make([]models.QueueItem, 0, len(calls)),
		TotalCount: total,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	if len(calls) == 0 {
		return response, nil
	}

	callIDs := make([]string, len(calls))
	for i, c := range calls {
		callIDs[i] = c.ID
	}
	participantsByCall, err := s.participantRepo.ListByCalls(ctx, tenantID, callIDs)
	if err != nil {
		return nil, err
	}

	aliases, err := s.aliasRepo.MapByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	refs, err := s.accountRepo.ListRefs(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, c := range calls {
		participants := participantsByCall[c.ID]
		response.Items = append(response.Items, models.QueueItem{
			Call:         c,
			Participants: participants,
			Candidates:   s.engine.FindCandidates(participants, aliases, refs),
		})
	}

	return response, nil
}

// Stats summarizes the queue and recent resolution activity
func (s *Service) Stats(ctx context.Context, tenantID string) (*models.QueueStats, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.Service.Stats")
	defer span.End()

	windowStart := time.Now().UTC().Add(-s.resolvedWindow)
	return s.callRepo.QueueStats(ctx, tenantID, windowStart)
}

// CallDetail loads one call with its participants. Queued calls also carry
// fresh match candidates; resolved and dismissed calls do not.
func (s *Service) CallDetail(ctx context.Context, tenantID string, callID string) (*models.QueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.Service.CallDetail")
	defer span.End()

	c, err := s.callRepo.Get(ctx, tenantID, callID)
	if err != nil {
		return nil, err
	}
	participants, err := s.participantRepo.ListByCall(ctx, tenantID, callID)
	if err != nil {
		return nil, err
	}

	item := &models.QueueItem{
		Call:         *c,
		Participants: participants,
	}
	if c.State() != models.CallStateQueued {
		return item, nil
	}

	aliases, err := s.aliasRepo.MapByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	refs, err := s.accountRepo.ListRefs(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	item.Candidates = s.engine.FindCandidates(participants, aliases, refs)

	return item, nil
}

// SearchAccounts is the typeahead backing the resolve UI
func (s *Service) SearchAccounts(ctx context.Context, tenantID string, term string, limit int) ([]models.AccountSearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.Service.SearchAccounts")
	defer span.End()

	if term == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "search term is required")
	}
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}

	results, err := s.accountRepo.Search(ctx, tenantID, term, limit)
	if err != nil {
		return nil, err
	}
	rankSearchResults(term, results)

	return results, nil
}

// rankSearchResults orders typeahead hits by edit-distance similarity to the
// term so the closest names surface first. The repository's alphabetical
// ordering survives as the tie-break.
func rankSearchResults(term string, results []models.AccountSearchResult) {
	scorer := matching.NewScorer()
	normalized := normalizers.AccountName(term)
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = scorer.Levenshtein(normalized, normalizers.AccountName(r.Name))
	}
	sort.Stable(&rankedResults{scores: scores, results: results})
}

type rankedResults struct {
	scores  []float64
	results []models.AccountSearchResult
}

func (r *rankedResults) Len() int           { return len(r.results) }
func (r *rankedResults) Less(i, j int) bool { return r.scores[i] > r.scores[j] }
func (r *rankedResults) Swap(i, j int) {
	r.scores[i], r.scores[j] = r.scores[j], r.scores[i]
	r.results[i], r.results[j] = r.results[j], r.results[i]
}

// normalize clamps paging and validates sorting. Unknown sort fields are
// rejected rather than defaulted so clients notice their typo.
func (s *Service) normalize(params ListParams) (call.QueueQuery, error) {
	query := call.QueueQuery{
		Page:      params.Page,
		PageSize:  params.PageSize,
		Search:    params.Search,
		SortBy:    params.SortBy,
		SortOrder: params.SortOrder,
	}

	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = s.defaultPageSize
	}
	if query.PageSize > s.maxPageSize {
		query.PageSize = s.maxPageSize
	}

	switch query.SortBy {
	case "":
		query.SortBy = "occurred_at"
	case "occurred_at", "match_confidence":
	default:
		return call.QueueQuery{}, httperror.NewHTTPError(http.StatusBadRequest, "sort_by must be occurred_at or match_confidence")
	}

	switch query.SortOrder {
	case "":
		query.SortOrder = "desc"
	case "asc", "desc":
	default:
		return call.QueueQuery{}, httperror.NewHTTPError(http.StatusBadRequest, "sort_order must be asc or desc")
	}

	return query, nil
}
