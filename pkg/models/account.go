package models

import "time"

// Account is the canonical CRM-side customer entity calls are associated with
type Account struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	Name           string    `json:"name" db:"name"`
	NormalizedName string    `json:"normalized_name" db:"normalized_name"`
	PrimaryDomain  *string   `json:"primary_domain,omitempty" db:"primary_domain"`
	LastSyncedAt   time.Time `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// AccountDomainAlias maps an email domain to the account it belongs to.
// (tenant_id, domain) is unique: a domain aliases at most one account.
type AccountDomainAlias struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	AccountID string    `json:"account_id" db:"account_id"`
	Domain    string    `json:"domain" db:"domain"`
	Source    string    `json:"source" db:"source"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Alias sources
const (
	AliasSourceCRMSync    = "crm_sync"
	AliasSourceResolution = "resolution"
	AliasSourceMerge      = "merge"
)

// Contact is a known person on an account, identified by email within a
// tenant. (tenant_id, email) is unique.
type Contact struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	AccountID   string    `json:"account_id" db:"account_id"`
	Email       string    `json:"email" db:"email"`
	DisplayName *string   `json:"display_name,omitempty" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// AccountSearchResult is a row returned by the typeahead account search
type AccountSearchResult struct {
	ID            string  `json:"id" db:"id"`
	Name          string  `json:"name" db:"name"`
	PrimaryDomain *string `json:"primary_domain,omitempty" db:"primary_domain"`
	CallCount     int     `json:"call_count" db:"call_count"`
}

// AccountDetail is the full read of one account: everything attached to it
// plus the merges it absorbed.
type AccountDetail struct {
	Account   Account              `json:"account"`
	Aliases   []AccountDomainAlias `json:"aliases"`
	Contacts  []Contact            `json:"contacts"`
	CallCount int64                `json:"call_count"`
	Merges    []MergeAudit         `json:"merges"`
}
