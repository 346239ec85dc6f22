package models

// Candidate match reasons
const (
	MatchReasonDomainAlias = "domain_alias"
	MatchReasonFuzzyName   = "fuzzy_name"
)

// Candidate is one account the matching engine proposes for an unresolved
// call. Confidence is in [0,1]; an alias hit is always 1.0 and a fuzzy hit
// is always below it, so the two are distinguishable by score alone.
type Candidate struct {
	AccountID   string  `json:"account_id"`
	AccountName string  `json:"account_name"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
	Domain      string  `json:"domain"`
}
