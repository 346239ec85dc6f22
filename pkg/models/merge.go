package models

import (
	"time"

	"github.com/Ramsey-B/stem/pkg/database"
)

// MergeResult describes what a completed account merge moved. Counts are
// taken inside the merge transaction, so they are exact.
type MergeResult struct {
	SourceAccountID   string           `json:"source_account_id"`
	TargetAccountID   string           `json:"target_account_id"`
	SourceName        string           `json:"source_name"`
	TargetName        string           `json:"target_name"`
	MovedCalls        int64            `json:"moved_calls"`
	MovedContacts     int64            `json:"moved_contacts"`
	DiscardedContacts int64            `json:"discarded_contacts"`
	MovedAliases      int64            `json:"moved_aliases"`
	Reassigned        map[string]int64 `json:"reassigned"`
	TenantID          string           `json:"tenant_id"`
}

// MergeAudit is the permanent record of an account merge. The source
// account row is gone after the merge; this row is what remains of it.
type MergeAudit struct {
	ID                string                           `json:"id" db:"id"`
	TenantID          string                           `json:"tenant_id" db:"tenant_id"`
	SourceAccountID   string                           `json:"source_account_id" db:"source_account_id"`
	TargetAccountID   string                           `json:"target_account_id" db:"target_account_id"`
	SourceName        string                           `json:"source_name" db:"source_name"`
	MovedCalls        int64                            `json:"moved_calls" db:"moved_calls"`
	MovedContacts     int64                            `json:"moved_contacts" db:"moved_contacts"`
	DiscardedContacts int64                            `json:"discarded_contacts" db:"discarded_contacts"`
	MovedAliases      int64                            `json:"moved_aliases" db:"moved_aliases"`
	Reassigned        database.JSONB[map[string]int64] `json:"reassigned" db:"reassigned"`
	CreatedAt         time.Time                        `json:"created_at" db:"created_at"`
}
