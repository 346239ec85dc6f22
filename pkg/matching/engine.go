// Package matching implements call-to-account matching
package matching

import (
	"sort"
	"time"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// AccountRef is the slice of account data the engine matches against
type AccountRef struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	NormalizedName string    `db:"normalized_name"`
	PrimaryDomain  *string   `db:"primary_domain"`
	LastSyncedAt   time.Time `db:"last_synced_at"`
}

// EngineConfig contains the matching policy constants
type EngineConfig struct {
	SimilarityFloor      float64         // Minimum fuzzy name similarity to keep a candidate
	ConfidenceCap        float64         // Fuzzy confidence ceiling; must stay below 1.0 so alias hits always rank first
	AutoResolveThreshold float64         // Single-candidate confidence at or above which auto-resolution is allowed
	MaxCandidates        int             // Maximum candidates returned per call
	FreeEmailDomains     map[string]bool // Domains that never identify an organization
}

// DefaultConfig returns default engine configuration
func DefaultConfig() EngineConfig {
	return EngineConfig{
		SimilarityFloor:      0.6,
		ConfidenceCap:        0.95,
		AutoResolveThreshold: 0.97,
		MaxCandidates:        10,
		FreeEmailDomains:     DomainSet([]string{"gmail.com", "googlemail.com", "outlook.com", "hotmail.com", "live.com", "yahoo.com", "icloud.com", "aol.com", "proton.me", "protonmail.com"}),
	}
}

// ConfigFromApp builds engine configuration from application config
func ConfigFromApp(cfg config.Config) EngineConfig {
	return EngineConfig{
		SimilarityFloor:      cfg.FuzzySimilarityFloor,
		ConfidenceCap:        cfg.FuzzyConfidenceCap,
		AutoResolveThreshold: cfg.AutoResolveThreshold,
		MaxCandidates:        cfg.MaxCandidates,
		FreeEmailDomains:     DomainSet(cfg.FreeEmailDomains),
	}
}

// DomainSet normalizes a denylist into a lookup set
func DomainSet(domains []string) map[string]bool {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		if d = normalizers.Domain(d); d != "" {
			set[d] = true
		}
	}
	return set
}

// Engine computes account candidates for unresolved calls. It is a pure
// function of its inputs: it never reads or writes storage, so it can run
// concurrently without coordination and is recomputed on every queue read.
type Engine struct {
	config EngineConfig
	scorer *Scorer
}

// NewEngine creates a new match engine
func NewEngine(config EngineConfig) *Engine {
	return &Engine{
		config: config,
		scorer: NewScorer(),
	}
}

// FindCandidates returns the ordered candidate accounts for a call.
// aliases maps normalized domain to account id; accounts is the tenant's
// account set. An empty result means no match, never a zero-confidence entry.
func (e *Engine) FindCandidates(participants []models.Participant, aliases map[string]string, accounts []AccountRef) []models.Candidate {
	domains := e.participantDomains(participants)
	if len(domains) == 0 {
		return []models.Candidate{}
	}

	accountsByID := make(map[string]AccountRef, len(accounts))
	for _, a := range accounts {
		accountsByID[a.ID] = a
	}

	// Best confidence per account across all participant domains
	best := make(map[string]models.Candidate)

	for _, domain := range domains {
		if accountID, ok := aliases[domain]; ok {
			keepBest(best, models.Candidate{
				AccountID:   accountID,
				AccountName: accountsByID[accountID].Name,
				Confidence:  1.0,
				Reason:      models.MatchReasonDomainAlias,
				Domain:      domain,
			})
			continue
		}

		label := normalizers.RegistrableLabel(domain)
		if label == "" {
			continue
		}

		for _, account := range accounts {
			similarity := e.scorer.NameSimilarity(label, account.NormalizedName)
			if similarity < e.config.SimilarityFloor {
				continue
			}
			keepBest(best, models.Candidate{
				AccountID:   account.ID,
				AccountName: account.Name,
				Confidence:  similarity * e.config.ConfidenceCap,
				Reason:      models.MatchReasonFuzzyName,
				Domain:      domain,
			})
		}
	}

	candidates := make([]models.Candidate, 0, len(best))
	for _, c := range best {
		candidates = append(candidates, c)
	}

	// Confidence desc, then most recently synced account, then id for a
	// stable order under pagination.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		si := accountsByID[candidates[i].AccountID].LastSyncedAt
		sj := accountsByID[candidates[j].AccountID].LastSyncedAt
		if !si.Equal(sj) {
			return si.After(sj)
		}
		return candidates[i].AccountID < candidates[j].AccountID
	})

	if e.config.MaxCandidates > 0 && len(candidates) > e.config.MaxCandidates {
		candidates = candidates[:e.config.MaxCandidates]
	}

	return candidates
}

// AutoResolveTarget reports whether the candidate list permits automatic
// resolution: exactly one candidate at or above the auto-resolve threshold.
// Everything else goes to the review queue.
func (e *Engine) AutoResolveTarget(candidates []models.Candidate) (models.Candidate, bool) {
	if len(candidates) != 1 {
		return models.Candidate{}, false
	}
	if candidates[0].Confidence < e.config.AutoResolveThreshold {
		return models.Candidate{}, false
	}
	return candidates[0], true
}

// BestConfidence returns the top candidate's confidence, or nil for an
// empty candidate list.
func BestConfidence(candidates []models.Candidate) *float64 {
	if len(candidates) == 0 {
		return nil
	}
	c := candidates[0].Confidence
	return &c
}

// OrganizationDomains returns the distinct organization domains the engine
// would match on for a call. Alias learning uses the same set so a resolve
// can only learn domains that contributed to the match.
func (e *Engine) OrganizationDomains(participants []models.Participant) []string {
	return e.participantDomains(participants)
}

// participantDomains collects the distinct organization domains on a call:
// participant email domains minus free-email providers and the domains of
// the host's own organization.
func (e *Engine) participantDomains(participants []models.Participant) []string {
	hostDomains := make(map[string]bool)
	for _, p := range participants {
		if p.IsHost && p.Email != nil {
			if d := normalizers.EmailDomain(*p.Email); d != "" {
				hostDomains[d] = true
			}
		}
	}

	seen := make(map[string]bool)
	domains := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.Email == nil {
			continue
		}
		domain := normalizers.EmailDomain(*p.Email)
		if domain == "" || seen[domain] || e.config.FreeEmailDomains[domain] || hostDomains[domain] {
			continue
		}
		seen[domain] = true
		domains = append(domains, domain)
	}

	sort.Strings(domains)
	return domains
}

func keepBest(best map[string]models.Candidate, c models.Candidate) {
	if existing, ok := best[c.AccountID]; !ok || c.Confidence > existing.Confidence {
		best[c.AccountID] = c
	}
}
